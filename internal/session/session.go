// internal/session/session.go
package session

import (
	"context"
	"sync"
	"time"

	"github.com/xkilldash9x/puppetd/api/schemas"
)

// Page is the surface a session's driven page exposes to the pipeline
// executor. It is implemented by internal/browser and stubbed in tests.
type Page interface {
	// Configure applies viewport, cache, device emulation or user agent, and
	// extra headers before the first navigation on this page.
	Configure(ctx context.Context, opts *schemas.GlobalOptions) error

	// Navigate opens the URL and waits for the wait-until condition,
	// returning the observed document response.
	Navigate(ctx context.Context, url string, timeout time.Duration, waitUntil schemas.WaitUntil) (*schemas.PageResponse, error)

	// WaitNavigation awaits a navigation event on the current page.
	WaitNavigation(ctx context.Context, waitUntil schemas.WaitUntil, timeout time.Duration) error

	Sleep(ctx context.Context, d time.Duration) error
	WaitForSelector(ctx context.Context, selector string, timeout time.Duration) error

	InjectHTML(ctx context.Context, content string) error
	InjectCSS(ctx context.Context, content string) error
	InjectScript(ctx context.Context, content string) error

	// Fill focuses the element and types the value with a keystroke delay.
	Fill(ctx context.Context, selector, value string) error
	// Click clicks the element in-page, optionally awaiting the navigation it
	// triggers.
	Click(ctx context.Context, selector string, waitForNavigation bool) error

	// Content returns the full serialized document.
	Content(ctx context.Context) (string, error)
	// HTML returns the inner or outer HTML of elements matching the selector;
	// only the first match unless all is set.
	HTML(ctx context.Context, selector string, inner, all bool) ([]string, error)

	Screenshot(ctx context.Context, spec *schemas.ScreenshotSpec) ([]byte, error)
	PDF(ctx context.Context, spec *schemas.PDFSpec) ([]byte, error)

	Close(ctx context.Context) error
}

// Browser is the session's exclusively owned browser-process handle.
type Browser interface {
	NewPage(ctx context.Context) (Page, error)
	Close(ctx context.Context) error
}

// Session binds an execution id to one browser handle plus the page/response
// most recently driven for it. Carry-over state supports steps that omit a
// URL, including across separate exec calls on the same execution id.
type Session struct {
	ExecutionID string

	browser Browser

	// runMu serializes pipelines for this session; distinct sessions run
	// concurrently.
	runMu sync.Mutex

	mu           sync.Mutex
	lastPage     Page
	lastResponse *schemas.PageResponse
	reapArmed    bool
	closed       bool
}

// Browser returns the owned browser handle.
func (s *Session) Browser() Browser { return s.browser }

// Carry returns the page/response left by the previous pipeline step, or
// nils when no step has supplied a URL yet.
func (s *Session) Carry() (Page, *schemas.PageResponse) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.lastPage, s.lastResponse
}

// SetCarry records the page/response to thread into the next URL-less step.
func (s *Session) SetCarry(page Page, resp *schemas.PageResponse) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.lastPage = page
	s.lastResponse = resp
}

// ArmReaper marks the session as watched. It returns true only the first
// time, guarding against duplicate polling loops under repeated checks.
func (s *Session) ArmReaper() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.reapArmed {
		return false
	}
	s.reapArmed = true
	return true
}

// RunExclusive executes fn while holding the session's pipeline lock.
func (s *Session) RunExclusive(fn func() error) error {
	s.runMu.Lock()
	defer s.runMu.Unlock()
	return fn()
}

// close releases the browser handle exactly once. Further calls are no-ops.
func (s *Session) close(ctx context.Context) error {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return nil
	}
	s.closed = true
	s.lastPage = nil
	s.lastResponse = nil
	s.mu.Unlock()

	return s.browser.Close(ctx)
}
