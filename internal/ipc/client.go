// internal/ipc/client.go
package ipc

import (
	"context"
	"fmt"
	"net"
	"time"

	"go.uber.org/zap"

	"github.com/xkilldash9x/puppetd/api/schemas"
)

// DefaultRetryInterval matches the source's connection retry cadence.
const DefaultRetryInterval = 1500 * time.Millisecond

// Client issues single request/response exchanges against the orchestration
// server. Each Request call opens its own connection, mirroring the
// one-connection-per-invocation behavior of the short-lived caller.
type Client struct {
	logger        *zap.Logger
	socketPath    string
	retryInterval time.Duration
}

// NewClient creates a client for the given socket path. A zero retryInterval
// falls back to DefaultRetryInterval.
func NewClient(socketPath string, retryInterval time.Duration, logger *zap.Logger) *Client {
	if retryInterval <= 0 {
		retryInterval = DefaultRetryInterval
	}
	return &Client{
		logger:        logger.Named("ipc_client"),
		socketPath:    socketPath,
		retryInterval: retryInterval,
	}
}

// dial connects to the server, retrying at the configured interval until the
// context is done. The unbounded retry matches the source behavior; callers
// bound the wait through ctx.
func (c *Client) dial(ctx context.Context) (*conn, error) {
	var d net.Dialer
	for {
		raw, err := d.DialContext(ctx, "unix", c.socketPath)
		if err == nil {
			return newConn(raw), nil
		}
		if ctx.Err() != nil {
			return nil, fmt.Errorf("failed to connect to %s: %w", c.socketPath, ctx.Err())
		}
		c.logger.Debug("Connection failed, retrying",
			zap.String("socket", c.socketPath),
			zap.Duration("retry_in", c.retryInterval),
			zap.Error(err))
		select {
		case <-time.After(c.retryInterval):
		case <-ctx.Done():
			return nil, fmt.Errorf("failed to connect to %s: %w", c.socketPath, ctx.Err())
		}
	}
}

// Request sends one envelope and waits for the correlated response, decoding
// its payload into reply. Cancelling ctx aborts both the dial and the read.
func (c *Client) Request(ctx context.Context, op string, payload, reply any) error {
	cn, err := c.dial(ctx)
	if err != nil {
		return err
	}
	defer cn.Close()

	// Unblock the read when the caller gives up.
	done := make(chan struct{})
	defer close(done)
	go func() {
		select {
		case <-ctx.Done():
			cn.Close()
		case <-done:
		}
	}()

	if err := cn.WriteEnvelope(op, payload); err != nil {
		return err
	}

	env, err := cn.ReadEnvelope()
	if err != nil {
		if ctx.Err() != nil {
			return fmt.Errorf("request %q aborted: %w", op, ctx.Err())
		}
		return fmt.Errorf("failed to read %q response: %w", op, err)
	}

	if env.Op == schemas.OpError {
		errReply, derr := decodePayload[schemas.ErrorReply](env.Payload)
		if derr != nil {
			return fmt.Errorf("request %q failed with undecodable error reply: %w", op, derr)
		}
		return fmt.Errorf("request %q failed: %s", op, errReply.Error)
	}
	if env.Op != op {
		return fmt.Errorf("response op %q does not match request op %q", env.Op, op)
	}

	// Handler failures ride on the op's own channel as an error payload.
	if errReply, derr := decodePayload[schemas.ErrorReply](env.Payload); derr == nil && errReply.Error != "" {
		return fmt.Errorf("request %q failed: %s", op, errReply.Error)
	}

	if reply != nil {
		if err := codec.Unmarshal(env.Payload, reply); err != nil {
			return fmt.Errorf("failed to decode %q reply: %w", op, err)
		}
	}
	return nil
}
