// internal/browser/browser.go
package browser

import (
	"context"
	"fmt"
	"sync"

	"github.com/chromedp/chromedp"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/xkilldash9x/puppetd/internal/browser/stealth"
	"github.com/xkilldash9x/puppetd/internal/session"
)

var _ session.Browser = (*Browser)(nil)

// Browser owns one browser process. The allocator context controls the
// process; every page (tab) is derived from the root context. Close releases
// the process exactly once.
type Browser struct {
	logger *zap.Logger

	allocCtx    context.Context
	allocCancel context.CancelFunc
	rootCtx     context.Context
	rootCancel  context.CancelFunc

	stealth bool

	mu     sync.Mutex
	closed bool
}

// NewPage opens a new tab and returns its driver. The stealth profile is
// applied before anything else runs in the tab.
func (b *Browser) NewPage(ctx context.Context) (session.Page, error) {
	b.mu.Lock()
	if b.closed {
		b.mu.Unlock()
		return nil, fmt.Errorf("browser is closed")
	}
	b.mu.Unlock()

	id := uuid.New().String()
	tabCtx, tabCancel := chromedp.NewContext(b.rootCtx)
	logger := b.logger.With(zap.String("page_id", id[:8]))

	p := newPage(tabCtx, tabCancel, logger)

	if b.stealth {
		if err := chromedp.Run(tabCtx, stealth.Apply(stealth.DefaultPersona, logger)); err != nil {
			p.Close(ctx)
			return nil, fmt.Errorf("failed to apply stealth profile: %w", err)
		}
	}
	return p, nil
}

// Close terminates the browser process. Safe to call more than once.
func (b *Browser) Close(ctx context.Context) error {
	b.mu.Lock()
	if b.closed {
		b.mu.Unlock()
		return nil
	}
	b.closed = true
	b.mu.Unlock()

	// Try a graceful browser shutdown first, then tear down the process.
	if err := chromedp.Cancel(b.rootCtx); err != nil {
		b.logger.Debug("Graceful browser cancel failed", zap.Error(err))
	}
	b.rootCancel()
	b.allocCancel()

	select {
	case <-b.allocCtx.Done():
	case <-ctx.Done():
		return fmt.Errorf("browser shutdown interrupted: %w", ctx.Err())
	}
	b.logger.Info("Browser process closed")
	return nil
}
