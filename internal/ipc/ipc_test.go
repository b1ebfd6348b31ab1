package ipc

import (
	"context"
	"encoding/json"
	"errors"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"
	"go.uber.org/zap"

	"github.com/xkilldash9x/puppetd/api/schemas"
)

func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m)
}

type echoRequest struct {
	Message string `json:"message"`
}

type echoReply struct {
	Message string `json:"message"`
}

func startTestServer(t *testing.T) (*Server, string) {
	t.Helper()
	socketPath := filepath.Join(t.TempDir(), schemas.EndpointName+".sock")
	srv := NewServer(socketPath, zap.NewNop())

	srv.Handle("echo", func(ctx context.Context, payload json.RawMessage) (any, error) {
		req, err := decodePayload[echoRequest](payload)
		if err != nil {
			return nil, err
		}
		return echoReply{Message: req.Message}, nil
	})
	srv.Handle("boom", func(ctx context.Context, payload json.RawMessage) (any, error) {
		return nil, errors.New("it broke")
	})

	require.NoError(t, srv.Start(context.Background()))
	t.Cleanup(srv.Stop)
	return srv, socketPath
}

func TestRequestRoundTrip(t *testing.T) {
	_, socketPath := startTestServer(t)
	c := NewClient(socketPath, 10*time.Millisecond, zap.NewNop())

	var reply echoReply
	err := c.Request(context.Background(), "echo", echoRequest{Message: "hello"}, &reply)
	require.NoError(t, err)
	assert.Equal(t, "hello", reply.Message)
}

func TestRequestHandlerError(t *testing.T) {
	_, socketPath := startTestServer(t)
	c := NewClient(socketPath, 10*time.Millisecond, zap.NewNop())

	err := c.Request(context.Background(), "boom", nil, nil)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "it broke")
}

func TestRequestUnknownOperation(t *testing.T) {
	_, socketPath := startTestServer(t)
	c := NewClient(socketPath, 10*time.Millisecond, zap.NewNop())

	err := c.Request(context.Background(), "nope", nil, nil)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "unknown operation")
}

func TestRequestRetriesUntilServerIsUp(t *testing.T) {
	socketPath := filepath.Join(t.TempDir(), schemas.EndpointName+".sock")
	c := NewClient(socketPath, 10*time.Millisecond, zap.NewNop())

	srv := NewServer(socketPath, zap.NewNop())
	srv.Handle("echo", func(ctx context.Context, payload json.RawMessage) (any, error) {
		return echoReply{Message: "late"}, nil
	})

	started := make(chan struct{})
	go func() {
		time.Sleep(50 * time.Millisecond)
		if err := srv.Start(context.Background()); err == nil {
			close(started)
		}
	}()

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	var reply echoReply
	err := c.Request(ctx, "echo", nil, &reply)
	require.NoError(t, err)
	assert.Equal(t, "late", reply.Message)

	<-started
	srv.Stop()
}

func TestRequestAbortsOnContextCancel(t *testing.T) {
	socketPath := filepath.Join(t.TempDir(), schemas.EndpointName+".sock")
	c := NewClient(socketPath, 10*time.Millisecond, zap.NewNop())

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()

	err := c.Request(ctx, "echo", nil, nil)
	require.Error(t, err)
	assert.ErrorIs(t, err, context.DeadlineExceeded)
}

func TestConcurrentRequests(t *testing.T) {
	_, socketPath := startTestServer(t)
	c := NewClient(socketPath, 10*time.Millisecond, zap.NewNop())

	const n = 8
	errs := make(chan error, n)
	for i := 0; i < n; i++ {
		go func() {
			var reply echoReply
			errs <- c.Request(context.Background(), "echo", echoRequest{Message: "x"}, &reply)
		}()
	}
	for i := 0; i < n; i++ {
		assert.NoError(t, <-errs)
	}
}
