// internal/session/registry.go
package session

import (
	"context"
	"errors"
	"sync"

	"go.uber.org/zap"
)

// ErrExists is returned when registering a second session for an execution id.
var ErrExists = errors.New("session already exists")

// Registry is the in-memory mapping from execution id to session. It is the
// only shared mutable state in the server and lives for the process lifetime.
type Registry struct {
	logger *zap.Logger

	mu       sync.Mutex
	sessions map[string]*Session
}

// NewRegistry creates an empty registry.
func NewRegistry(logger *zap.Logger) *Registry {
	return &Registry{
		logger:   logger.Named("sessions"),
		sessions: make(map[string]*Session),
	}
}

// Register creates a session owning the given browser handle. An execution id
// maps to at most one live session; a duplicate registration is refused and
// the caller keeps ownership of the handle it passed in.
func (r *Registry) Register(executionID string, b Browser) (*Session, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.sessions[executionID]; ok {
		return nil, ErrExists
	}
	s := &Session{ExecutionID: executionID, browser: b}
	r.sessions[executionID] = s
	r.logger.Info("Session registered", zap.String("execution_id", executionID))
	return s, nil
}

// Lookup returns the live session for an execution id, if any.
func (r *Registry) Lookup(executionID string) (*Session, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	s, ok := r.sessions[executionID]
	return s, ok
}

// Close deletes the session entry and releases its browser handle. The entry
// is removed before the close so no caller can observe a session whose
// browser is already gone. Returns whether a session existed.
func (r *Registry) Close(ctx context.Context, executionID string) bool {
	r.mu.Lock()
	s, ok := r.sessions[executionID]
	if ok {
		delete(r.sessions, executionID)
	}
	r.mu.Unlock()

	if !ok {
		return false
	}
	if err := s.close(ctx); err != nil {
		r.logger.Warn("Browser close failed",
			zap.String("execution_id", executionID), zap.Error(err))
	} else {
		r.logger.Info("Session closed", zap.String("execution_id", executionID))
	}
	return true
}

// CloseAll releases every live session. Used on daemon shutdown.
func (r *Registry) CloseAll(ctx context.Context) {
	r.mu.Lock()
	ids := make([]string, 0, len(r.sessions))
	for id := range r.sessions {
		ids = append(ids, id)
	}
	r.mu.Unlock()

	for _, id := range ids {
		r.Close(ctx, id)
	}
}

// Len reports the number of live sessions.
func (r *Registry) Len() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.sessions)
}
