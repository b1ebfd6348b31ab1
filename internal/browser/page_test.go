package browser

import (
	"testing"

	"github.com/chromedp/cdproto/cdp"
	"github.com/stretchr/testify/assert"

	"github.com/xkilldash9x/puppetd/api/schemas"
)

func TestNavResponseTracker(t *testing.T) {
	main := cdp.FrameID("main")
	frame := cdp.FrameID("iframe")

	t.Run("main frame response observed before commit", func(t *testing.T) {
		tr := newNavResponseTracker("https://example.com")
		tr.Observe(main, schemas.PageResponse{URL: "https://example.com", StatusCode: 200})
		tr.Commit(main)
		assert.Equal(t, 200, tr.Response().StatusCode)
	})

	t.Run("iframe response does not clobber the main document", func(t *testing.T) {
		tr := newNavResponseTracker("https://example.com")
		tr.Observe(main, schemas.PageResponse{URL: "https://example.com", StatusCode: 200})
		tr.Observe(frame, schemas.PageResponse{URL: "https://ads.example/404", StatusCode: 404})
		tr.Commit(main)

		resp := tr.Response()
		assert.Equal(t, 200, resp.StatusCode)
		assert.Equal(t, "https://example.com", resp.URL)

		// Late iframe responses are ignored too.
		tr.Observe(frame, schemas.PageResponse{StatusCode: 500})
		assert.Equal(t, 200, tr.Response().StatusCode)
	})

	t.Run("matching frame responses after commit win", func(t *testing.T) {
		tr := newNavResponseTracker("https://example.com")
		tr.Observe(main, schemas.PageResponse{URL: "https://example.com", StatusCode: 301})
		tr.Commit(main)
		tr.Observe(main, schemas.PageResponse{URL: "https://example.com/new", StatusCode: 200})

		resp := tr.Response()
		assert.Equal(t, 200, resp.StatusCode)
		assert.Equal(t, "https://example.com/new", resp.URL)
	})

	t.Run("no response observed keeps the requested url", func(t *testing.T) {
		tr := newNavResponseTracker("https://example.com")
		tr.Commit(main)
		resp := tr.Response()
		assert.Equal(t, "https://example.com", resp.URL)
		assert.Zero(t, resp.StatusCode)
	})
}
