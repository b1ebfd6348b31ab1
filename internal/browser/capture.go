// internal/browser/capture.go
package browser

import (
	"context"
	"fmt"
	"strconv"
	"strings"

	"github.com/chromedp/cdproto/cdp"
	"github.com/chromedp/cdproto/emulation"
	"github.com/chromedp/cdproto/page"
	"github.com/chromedp/chromedp"

	"github.com/xkilldash9x/puppetd/api/schemas"
)

// paperFormats maps named paper sizes to width/height in inches.
var paperFormats = map[string][2]float64{
	"letter":  {8.5, 11},
	"legal":   {8.5, 14},
	"tabloid": {11, 17},
	"ledger":  {17, 11},
	"a0":      {33.1, 46.8},
	"a1":      {23.4, 33.1},
	"a2":      {16.54, 23.4},
	"a3":      {11.7, 16.54},
	"a4":      {8.27, 11.7},
	"a5":      {5.83, 8.27},
	"a6":      {4.13, 5.83},
}

// lengthToInches converts a CSS-style length ("100px", "2.5cm", "10mm",
// "1in", or a bare number meaning pixels) to inches.
func lengthToInches(value string) (float64, error) {
	v := strings.TrimSpace(value)
	if v == "" {
		return 0, fmt.Errorf("empty length")
	}
	unit := "px"
	num := v
	if len(v) > 2 {
		switch suffix := v[len(v)-2:]; suffix {
		case "px", "in", "cm", "mm":
			unit = suffix
			num = strings.TrimSpace(v[:len(v)-2])
		}
	}
	f, err := strconv.ParseFloat(num, 64)
	if err != nil {
		return 0, fmt.Errorf("invalid length %q: %w", value, err)
	}
	switch unit {
	case "px":
		return f / 96, nil
	case "in":
		return f, nil
	case "cm":
		return f / 2.54, nil
	default: // mm
		return f / 25.4, nil
	}
}

type elementRect struct {
	X      float64 `json:"x"`
	Y      float64 `json:"y"`
	Width  float64 `json:"width"`
	Height float64 `json:"height"`
}

// Screenshot captures the page, or one element when the spec names a
// selector. Quality applies to lossy formats only.
func (p *Page) Screenshot(ctx context.Context, spec *schemas.ScreenshotSpec) ([]byte, error) {
	opctx, cancel := p.opCtx(ctx, schemas.DefaultNavigationTimeout)
	defer cancel()

	params := page.CaptureScreenshot().
		WithFormat(page.CaptureScreenshotFormat(spec.Type()))
	if spec.Type() != schemas.ImagePNG {
		quality := spec.Quality
		if quality <= 0 {
			quality = 100
		}
		params = params.WithQuality(quality)
	}

	if spec.CSSSelector != "" {
		if err := p.WaitForSelector(ctx, spec.CSSSelector, interactionNavTimeout); err != nil {
			return nil, err
		}
		var rect *elementRect
		expr := fmt.Sprintf(`(() => {
	const e = document.querySelector(%s);
	if (e === null) return null;
	const r = e.getBoundingClientRect();
	return {x: r.x, y: r.y, width: r.width, height: r.height};
})()`, jsString(spec.CSSSelector))
		if err := chromedp.Run(opctx, chromedp.Evaluate(expr, &rect)); err != nil {
			return nil, fmt.Errorf("failed to measure %q: %w", spec.CSSSelector, err)
		}
		if rect == nil || rect.Width <= 0 || rect.Height <= 0 {
			return nil, fmt.Errorf("element %q has no visible box", spec.CSSSelector)
		}
		params = params.WithClip(&page.Viewport{
			X:      rect.X,
			Y:      rect.Y,
			Width:  rect.Width,
			Height: rect.Height,
			Scale:  1,
		})
	} else if spec.FullPage {
		params = params.WithCaptureBeyondViewport(true)
	}

	var buf []byte
	err := chromedp.Run(opctx, chromedp.ActionFunc(func(c context.Context) error {
		var err error
		buf, err = params.Do(c)
		return err
	}))
	if err != nil {
		return nil, fmt.Errorf("screenshot failed: %w", err)
	}
	return buf, nil
}

// PDF renders the current page to PDF. Renders on one page never overlap;
// the spec's paper format is consulted only when CSS page size is not
// preferred and no explicit height/width is given.
func (p *Page) PDF(ctx context.Context, spec *schemas.PDFSpec) ([]byte, error) {
	p.pdfMu.Lock()
	defer p.pdfMu.Unlock()

	opctx, cancel := p.opCtx(ctx, schemas.DefaultNavigationTimeout)
	defer cancel()

	params := page.PrintToPDF().
		WithScale(spec.EffectiveScale()).
		WithLandscape(spec.Landscape).
		WithPrintBackground(spec.PrintBackground).
		WithPreferCSSPageSize(spec.PreferCSSPageSize)
	if spec.PageRanges != "" {
		params = params.WithPageRanges(spec.PageRanges)
	}

	if spec.Height != "" {
		h, err := lengthToInches(spec.Height)
		if err != nil {
			return nil, fmt.Errorf("invalid page height: %w", err)
		}
		params = params.WithPaperHeight(h)
	}
	if spec.Width != "" {
		w, err := lengthToInches(spec.Width)
		if err != nil {
			return nil, fmt.Errorf("invalid page width: %w", err)
		}
		params = params.WithPaperWidth(w)
	}
	if !spec.PreferCSSPageSize && spec.Height == "" && spec.Width == "" && spec.Format != "" {
		size, ok := paperFormats[strings.ToLower(spec.Format)]
		if !ok {
			return nil, fmt.Errorf("unknown paper format %q", spec.Format)
		}
		params = params.WithPaperWidth(size[0]).WithPaperHeight(size[1])
	}

	if m := spec.Margin; m != nil {
		margins := []struct {
			value string
			with  func(*page.PrintToPDFParams, float64) *page.PrintToPDFParams
			name  string
		}{
			{m.Top, (*page.PrintToPDFParams).WithMarginTop, "top"},
			{m.Bottom, (*page.PrintToPDFParams).WithMarginBottom, "bottom"},
			{m.Left, (*page.PrintToPDFParams).WithMarginLeft, "left"},
			{m.Right, (*page.PrintToPDFParams).WithMarginRight, "right"},
		}
		for _, side := range margins {
			if side.value == "" {
				continue
			}
			v, err := lengthToInches(side.value)
			if err != nil {
				return nil, fmt.Errorf("invalid %s margin: %w", side.name, err)
			}
			params = side.with(params, v)
		}
	}

	if spec.DisplayHeaderFooter {
		params = params.WithDisplayHeaderFooter(true)
		if spec.HeaderTemplate != "" {
			params = params.WithHeaderTemplate(spec.HeaderTemplate)
		}
		if spec.FooterTemplate != "" {
			params = params.WithFooterTemplate(spec.FooterTemplate)
		}
	}

	var buf []byte
	err := chromedp.Run(opctx, chromedp.ActionFunc(func(c context.Context) error {
		if spec.OmitBackground {
			if err := emulation.SetDefaultBackgroundColorOverride().
				WithColor(&cdp.RGBA{R: 0, G: 0, B: 0, A: 0}).Do(c); err != nil {
				return err
			}
			defer emulation.SetDefaultBackgroundColorOverride().Do(c)
		}
		var err error
		buf, _, err = params.Do(c)
		return err
	}))
	if err != nil {
		return nil, fmt.Errorf("pdf rendering failed: %w", err)
	}
	return buf, nil
}
