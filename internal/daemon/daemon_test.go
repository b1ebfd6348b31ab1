package daemon

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/xkilldash9x/puppetd/api/schemas"
	"github.com/xkilldash9x/puppetd/internal/config"
)

func newTestDaemon(t *testing.T) *Daemon {
	t.Helper()
	cfg := &config.Config{
		Server: config.ServerConfig{
			SocketDir:       t.TempDir(),
			ShutdownTimeout: time.Second,
		},
	}
	d, err := New(cfg, zap.NewNop())
	require.NoError(t, err)
	t.Cleanup(d.browserCancel)
	return d
}

func mustMarshal(t *testing.T, v any) json.RawMessage {
	t.Helper()
	raw, err := codec.Marshal(v)
	require.NoError(t, err)
	return raw
}

func TestHandleLaunchRejectsMissingExecutionID(t *testing.T) {
	d := newTestDaemon(t)
	_, err := d.handleLaunch(context.Background(), mustMarshal(t, schemas.LaunchRequest{}))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "execution id")
}

func TestHandleExecWithoutSessionIsSoftFailure(t *testing.T) {
	d := newTestDaemon(t)
	reply, err := d.handleExec(context.Background(), mustMarshal(t, schemas.ExecRequest{
		ExecutionID: "exec-1",
		Steps:       []schemas.Step{{URL: "https://example.com"}},
	}))
	require.NoError(t, err, "a missing session must not be a request error")

	execReply, ok := reply.(schemas.ExecReply)
	require.True(t, ok)
	assert.Contains(t, execReply.Result.Error, "no session for execution exec-1")
	assert.Empty(t, execReply.Result.Items)
}

func TestHandleCheckWithoutSession(t *testing.T) {
	d := newTestDaemon(t)
	reply, err := d.handleCheck(context.Background(), mustMarshal(t, schemas.CheckRequest{
		ExecutionID: "exec-1",
		BaseURL:     "http://localhost:5678",
	}))
	require.NoError(t, err)
	assert.Equal(t, schemas.CheckReply{Acknowledged: false}, reply)
}

func TestHandleShutdownWithoutSession(t *testing.T) {
	d := newTestDaemon(t)
	reply, err := d.handleShutdown(context.Background(), mustMarshal(t, schemas.ShutdownRequest{
		ExecutionID: "exec-1",
	}))
	require.NoError(t, err)
	assert.Equal(t, schemas.ShutdownReply{Existed: false}, reply)
}

func TestHandlersRejectMalformedPayloads(t *testing.T) {
	d := newTestDaemon(t)
	bad := json.RawMessage(`{"executionId": 42`)

	_, err := d.handleLaunch(context.Background(), bad)
	assert.Error(t, err)
	_, err = d.handleExec(context.Background(), bad)
	assert.Error(t, err)
	_, err = d.handleCheck(context.Background(), bad)
	assert.Error(t, err)
	_, err = d.handleShutdown(context.Background(), bad)
	assert.Error(t, err)
}
