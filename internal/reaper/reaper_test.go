package reaper

import (
	"context"
	"fmt"
	"net/http"
	"net/http/httptest"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"
	"go.uber.org/zap"

	"github.com/xkilldash9x/puppetd/internal/config"
	"github.com/xkilldash9x/puppetd/internal/session"
)

func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m)
}

type stubBrowser struct {
	mu     sync.Mutex
	closed bool
}

func (b *stubBrowser) NewPage(ctx context.Context) (session.Page, error) { return nil, nil }

func (b *stubBrowser) Close(ctx context.Context) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.closed = true
	return nil
}

func (b *stubBrowser) isClosed() bool {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.closed
}

func newFastReaper(registry *session.Registry) *Reaper {
	return NewReaper(config.ReaperConfig{
		PollInterval: 10 * time.Millisecond,
		HTTPTimeout:  time.Second,
	}, registry, zap.NewNop())
}

func TestWatchReapsFinishedExecution(t *testing.T) {
	var polls atomic.Int64
	var gotKey atomic.Value

	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotKey.Store(r.Header.Get("X-Api-Key"))
		w.Header().Set("Content-Type", "application/json")
		if polls.Add(1) < 3 {
			fmt.Fprint(w, `{"data":{"finished":false,"stoppedAt":null}}`)
			return
		}
		fmt.Fprint(w, `{"data":{"finished":true,"stoppedAt":null}}`)
	}))
	defer ts.Close()

	registry := session.NewRegistry(zap.NewNop())
	browser := &stubBrowser{}
	_, err := registry.Register("exec-1", browser)
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	newFastReaper(registry).Watch(ctx, "exec-1", ts.URL, "secret")

	assert.Eventually(t, func() bool { return registry.Len() == 0 }, 2*time.Second, 10*time.Millisecond)
	assert.True(t, browser.isClosed())
	assert.GreaterOrEqual(t, polls.Load(), int64(3))
	assert.Equal(t, "secret", gotKey.Load())
}

func TestWatchStopsWhenSessionDisappears(t *testing.T) {
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, `{"finished":false,"stoppedAt":null}`)
	}))
	defer ts.Close()

	registry := session.NewRegistry(zap.NewNop())
	_, err := registry.Register("exec-1", &stubBrowser{})
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	newFastReaper(registry).Watch(ctx, "exec-1", ts.URL, "")

	// Something else closes the session; the watcher must notice and exit.
	registry.Close(context.Background(), "exec-1")
	time.Sleep(50 * time.Millisecond)
}

func TestWatchKeepsPollingThroughErrors(t *testing.T) {
	var polls atomic.Int64
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if polls.Add(1) < 3 {
			w.WriteHeader(http.StatusBadGateway)
			return
		}
		fmt.Fprint(w, `{"finished":true}`)
	}))
	defer ts.Close()

	registry := session.NewRegistry(zap.NewNop())
	browser := &stubBrowser{}
	_, err := registry.Register("exec-1", browser)
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	newFastReaper(registry).Watch(ctx, "exec-1", ts.URL, "")

	assert.Eventually(t, func() bool { return browser.isClosed() }, 2*time.Second, 10*time.Millisecond)
}

func TestFetchStatus(t *testing.T) {
	tests := []struct {
		name string
		body string
		done bool
	}{
		{"running nested", `{"data":{"finished":false,"stoppedAt":null}}`, false},
		{"finished nested", `{"data":{"finished":true,"stoppedAt":null}}`, true},
		{"stopped wins", `{"data":{"finished":false,"stoppedAt":"2026-08-29T10:00:00Z"}}`, true},
		{"running top-level", `{"finished":false,"stoppedAt":null}`, false},
		{"missing finished counts as done", `{}`, true},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				fmt.Fprint(w, tc.body)
			}))
			defer ts.Close()

			r := newFastReaper(session.NewRegistry(zap.NewNop()))
			done, err := r.fetchStatus(context.Background(), ts.URL, "")
			require.NoError(t, err)
			assert.Equal(t, tc.done, done)
		})
	}
}
