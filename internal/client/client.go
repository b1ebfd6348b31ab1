// internal/client/client.go
package client

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/xkilldash9x/puppetd/api/schemas"
	"github.com/xkilldash9x/puppetd/internal/ipc"
)

// Client is the typed surface over the daemon's IPC operations.
type Client struct {
	ipc *ipc.Client
}

// New creates a client for the daemon listening on socketPath.
func New(socketPath string, retryInterval time.Duration, logger *zap.Logger) *Client {
	return &Client{ipc: ipc.NewClient(socketPath, retryInterval, logger)}
}

// Launch ensures a browser session exists for the execution id. It returns
// whether a session is registered after the call.
func (c *Client) Launch(ctx context.Context, executionID string, opts schemas.GlobalOptions) (bool, error) {
	var reply schemas.LaunchReply
	err := c.ipc.Request(ctx, schemas.OpLaunch, schemas.LaunchRequest{
		GlobalOptions: opts,
		ExecutionID:   executionID,
	}, &reply)
	if err != nil {
		return false, err
	}
	return reply.Launched, nil
}

// Exec runs a step pipeline against the execution's session. The returned
// result may be partial; its Error field carries any pipeline abort.
func (c *Client) Exec(ctx context.Context, executionID string, opts schemas.GlobalOptions, steps []schemas.Step, continueOnFail bool) (*schemas.PipelineResult, error) {
	var reply schemas.ExecReply
	err := c.ipc.Request(ctx, schemas.OpExec, schemas.ExecRequest{
		GlobalOptions:  opts,
		Steps:          steps,
		ExecutionID:    executionID,
		ContinueOnFail: continueOnFail,
	}, &reply)
	if err != nil {
		return nil, err
	}
	return &reply.Result, nil
}

// Check asks the daemon to watch the execution's status and reap the session
// once it finishes. A false reply means no session exists.
func (c *Client) Check(ctx context.Context, executionID, baseURL, apiKey string) (bool, error) {
	var reply schemas.CheckReply
	err := c.ipc.Request(ctx, schemas.OpCheck, schemas.CheckRequest{
		ExecutionID: executionID,
		APIKey:      apiKey,
		BaseURL:     baseURL,
	}, &reply)
	if err != nil {
		return false, err
	}
	return reply.Acknowledged, nil
}

// Shutdown closes the execution's session. It reports whether one existed.
func (c *Client) Shutdown(ctx context.Context, executionID string) (bool, error) {
	var reply schemas.ShutdownReply
	err := c.ipc.Request(ctx, schemas.OpShutdown, schemas.ShutdownRequest{
		ExecutionID: executionID,
	}, &reply)
	if err != nil {
		return false, err
	}
	return reply.Existed, nil
}

// Summarize renders a compact human summary of a pipeline result for CLI use.
func Summarize(result *schemas.PipelineResult) string {
	if result == nil {
		return "no result"
	}
	s := fmt.Sprintf("%d step result(s)", len(result.Items))
	if result.Error != "" {
		s += fmt.Sprintf(", aborted: %s", result.Error)
	}
	return s
}
