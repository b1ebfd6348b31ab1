// internal/ipc/server.go
package ipc

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net"
	"os"
	"path/filepath"
	"sync"

	"go.uber.org/zap"

	"github.com/xkilldash9x/puppetd/api/schemas"
)

// Handler processes one request payload and returns the reply payload.
// Handlers must not write to the connection themselves; exactly one reply
// envelope is emitted per request, correlated by operation name.
type Handler func(ctx context.Context, payload json.RawMessage) (any, error)

// Server accepts connections on a unix socket and dispatches envelopes to
// registered operation handlers.
type Server struct {
	logger     *zap.Logger
	socketPath string

	mu       sync.Mutex
	handlers map[string]Handler
	listener net.Listener

	wg     sync.WaitGroup
	cancel context.CancelFunc
}

// NewServer creates a server for the given socket path.
func NewServer(socketPath string, logger *zap.Logger) *Server {
	return &Server{
		logger:     logger.Named("ipc_server"),
		socketPath: socketPath,
		handlers:   make(map[string]Handler),
	}
}

// Handle registers a handler for an operation name.
func (s *Server) Handle(op string, h Handler) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.handlers[op] = h
}

// Start begins listening and serving. It returns once the listener is ready;
// connections are served on background goroutines until Stop or ctx is done.
func (s *Server) Start(ctx context.Context) error {
	if err := os.MkdirAll(filepath.Dir(s.socketPath), 0o700); err != nil {
		return fmt.Errorf("failed to create socket directory: %w", err)
	}
	// A previous unclean exit may have left the socket behind.
	if err := os.Remove(s.socketPath); err != nil && !errors.Is(err, os.ErrNotExist) {
		return fmt.Errorf("failed to remove stale socket: %w", err)
	}

	ln, err := net.Listen("unix", s.socketPath)
	if err != nil {
		return fmt.Errorf("failed to listen on %s: %w", s.socketPath, err)
	}

	serveCtx, cancel := context.WithCancel(ctx)
	s.mu.Lock()
	s.listener = ln
	s.cancel = cancel
	s.mu.Unlock()

	s.logger.Info("IPC server listening", zap.String("socket", s.socketPath))

	s.wg.Add(1)
	go s.acceptLoop(serveCtx, ln)
	return nil
}

func (s *Server) acceptLoop(ctx context.Context, ln net.Listener) {
	defer s.wg.Done()
	for {
		raw, err := ln.Accept()
		if err != nil {
			select {
			case <-ctx.Done():
				return
			default:
			}
			if errors.Is(err, net.ErrClosed) {
				return
			}
			s.logger.Warn("Accept failed", zap.Error(err))
			continue
		}
		s.wg.Add(1)
		go func() {
			defer s.wg.Done()
			s.serveConn(ctx, newConn(raw))
		}()
	}
}

func (s *Server) serveConn(ctx context.Context, c *conn) {
	defer c.Close()

	// Tear the connection down when the server stops so blocked reads return.
	done := make(chan struct{})
	defer close(done)
	go func() {
		select {
		case <-ctx.Done():
			c.Close()
		case <-done:
		}
	}()

	for {
		env, err := c.ReadEnvelope()
		if err != nil {
			if !errors.Is(err, io.EOF) && !errors.Is(err, net.ErrClosed) && ctx.Err() == nil {
				s.logger.Warn("Failed to read request", zap.Error(err))
			}
			return
		}

		s.mu.Lock()
		handler, ok := s.handlers[env.Op]
		s.mu.Unlock()

		if !ok {
			s.logger.Warn("Unknown operation", zap.String("op", env.Op))
			if err := c.WriteEnvelope(schemas.OpError, schemas.ErrorReply{
				Error: fmt.Sprintf("unknown operation %q", env.Op),
			}); err != nil {
				return
			}
			continue
		}

		reply, err := handler(ctx, env.Payload)
		if err != nil {
			// Handler-level failures are reported on the op channel so the
			// caller's correlation still works.
			s.logger.Error("Handler failed", zap.String("op", env.Op), zap.Error(err))
			reply = schemas.ErrorReply{Error: err.Error()}
		}
		if err := c.WriteEnvelope(env.Op, reply); err != nil {
			if ctx.Err() == nil {
				s.logger.Warn("Failed to write reply", zap.String("op", env.Op), zap.Error(err))
			}
			return
		}
	}
}

// Stop closes the listener and waits for in-flight connections to drain.
func (s *Server) Stop() {
	s.mu.Lock()
	if s.cancel != nil {
		s.cancel()
	}
	if s.listener != nil {
		s.listener.Close()
	}
	s.mu.Unlock()

	s.wg.Wait()
	os.Remove(s.socketPath)
	s.logger.Info("IPC server stopped")
}
