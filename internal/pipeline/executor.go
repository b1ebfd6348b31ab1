// internal/pipeline/executor.go
package pipeline

import (
	"context"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/xkilldash9x/puppetd/api/schemas"
	"github.com/xkilldash9x/puppetd/internal/session"
)

// selectorWaitTimeout bounds the pre-action selector wait. It is fixed and
// independent of the navigation timeout.
const selectorWaitTimeout = 10 * time.Second

// Executor runs step pipelines against a session's browser. One executor is
// shared by all sessions; per-session ordering comes from the session lock.
type Executor struct {
	logger *zap.Logger
}

// NewExecutor creates a pipeline executor.
func NewExecutor(logger *zap.Logger) *Executor {
	return &Executor{logger: logger.Named("pipeline")}
}

// Run executes the steps in order against the session, holding its pipeline
// lock for the duration. Results collected before an abort are returned
// alongside the abort error.
func (e *Executor) Run(ctx context.Context, sess *session.Session, opts *schemas.GlobalOptions, steps []schemas.Step, continueOnFail bool) *schemas.PipelineResult {
	result := &schemas.PipelineResult{}
	err := sess.RunExclusive(func() error {
		return e.run(ctx, sess, opts, steps, continueOnFail, result)
	})
	if err != nil {
		result.Error = err.Error()
		e.logger.Warn("Pipeline aborted",
			zap.String("execution_id", sess.ExecutionID),
			zap.Int("completed_steps", len(result.Items)),
			zap.Error(err))
	}
	return result
}

func (e *Executor) run(ctx context.Context, sess *session.Session, opts *schemas.GlobalOptions, steps []schemas.Step, continueOnFail bool, result *schemas.PipelineResult) error {
	for i := range steps {
		step := &steps[i]

		page, resp, err := e.acquirePage(ctx, sess, opts, step)
		if err != nil {
			return err
		}
		if page == nil {
			// A URL-less step with no page to continue on does nothing.
			e.logger.Debug("Skipping step with no URL and no prior page",
				zap.String("execution_id", sess.ExecutionID), zap.Int("step", i+1))
			continue
		}

		item, err := e.runStep(ctx, page, resp, step, opts, i, continueOnFail)
		if err != nil {
			if cerr := page.Close(ctx); cerr != nil {
				e.logger.Warn("Page close after step failure", zap.Error(cerr))
			}
			sess.SetCarry(nil, nil)
			return fmt.Errorf("step %d: %w", i+1, err)
		}
		result.Items = append(result.Items, *item)

		// The page stays open when the next step continues on it, and at the
		// end of the pipeline so a later exec call can pick it up.
		keep := i == len(steps)-1 || steps[i+1].URL == ""
		if keep {
			sess.SetCarry(page, resp)
		} else {
			if cerr := page.Close(ctx); cerr != nil {
				e.logger.Warn("Page close failed", zap.Error(cerr))
			}
			sess.SetCarry(nil, nil)
		}
	}
	return nil
}

// acquirePage resolves the page a step runs on: the carried page for a
// URL-less step, or a freshly configured and navigated page otherwise. A nil
// page (with nil error) means the step has nothing to run on.
func (e *Executor) acquirePage(ctx context.Context, sess *session.Session, opts *schemas.GlobalOptions, step *schemas.Step) (session.Page, *schemas.PageResponse, error) {
	if step.URL == "" {
		page, resp := sess.Carry()
		// A URL-less step with its own wait-until condition awaits the next
		// navigation on the carried page before anything else runs.
		if page != nil && step.Options.WaitUntil != "" {
			if err := page.WaitNavigation(ctx, step.Options.WaitUntil, step.Options.NavigationTimeout(opts)); err != nil {
				return nil, nil, err
			}
		}
		return page, resp, nil
	}

	// A fresh navigation supersedes any carried page.
	if old, _ := sess.Carry(); old != nil {
		if err := old.Close(ctx); err != nil {
			e.logger.Warn("Carried page close failed", zap.Error(err))
		}
		sess.SetCarry(nil, nil)
	}

	page, err := sess.Browser().NewPage(ctx)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to open page: %w", err)
	}
	if err := page.Configure(ctx, opts); err != nil {
		page.Close(ctx)
		return nil, nil, err
	}

	target := buildURL(step.URL, step.QueryParameters)
	resp, err := page.Navigate(ctx, target,
		step.Options.NavigationTimeout(opts),
		step.Options.NavigationWaitUntil(opts))
	if err != nil {
		page.Close(ctx)
		return nil, nil, err
	}
	return page, resp, nil
}

func (e *Executor) runStep(ctx context.Context, page session.Page, resp *schemas.PageResponse, step *schemas.Step, opts *schemas.GlobalOptions, index int, continueOnFail bool) (*schemas.StepResult, error) {
	o := &step.Options

	if d := o.EffectiveTimeToWait(opts); d > 0 {
		if err := page.Sleep(ctx, d); err != nil {
			return nil, err
		}
	}
	if sel := o.EffectiveWaitForSelector(opts); sel != "" {
		if err := page.WaitForSelector(ctx, sel, selectorWaitTimeout); err != nil {
			return nil, err
		}
	}

	if v := o.EffectiveInjectHTML(opts); v != "" {
		if err := page.InjectHTML(ctx, v); err != nil {
			return nil, err
		}
	}
	if v := o.EffectiveInjectCSS(opts); v != "" {
		if err := page.InjectCSS(ctx, v); err != nil {
			return nil, err
		}
	}
	if v := o.EffectiveInjectJS(opts); v != "" {
		if err := page.InjectScript(ctx, v); err != nil {
			return nil, err
		}
	}

	for _, ia := range step.Interactions {
		if ia.Value != "" {
			if err := page.Fill(ctx, ia.Selector, ia.Value); err != nil {
				return nil, err
			}
		} else {
			if err := page.Click(ctx, ia.Selector, ia.WaitForNavigation); err != nil {
				return nil, err
			}
		}
	}

	item := &schemas.StepResult{Step: index + 1}
	if resp != nil {
		item.StatusCode = resp.StatusCode
		item.Headers = resp.Headers
	}

	// A non-200 document response aborts the pipeline unless failures are
	// tolerated, in which case only page content is still captured.
	if resp != nil && resp.StatusCode != http.StatusOK {
		if continueOnFail {
			return nil, fmt.Errorf("Request failed with status code %d", resp.StatusCode)
		}
		for i := range step.Output.PageContent {
			spec := &step.Output.PageContent[i]
			value, err := e.captureContent(ctx, page, spec)
			if err != nil {
				return nil, err
			}
			if item.Fields == nil {
				item.Fields = make(map[string]any)
			}
			item.Fields[spec.PropertyName()] = value
		}
		return item, nil
	}

	if step.Output.Empty() {
		return item, nil
	}

	var mu sync.Mutex
	g, gctx := errgroup.WithContext(ctx)

	for i := range step.Output.PageContent {
		spec := &step.Output.PageContent[i]
		g.Go(func() error {
			value, err := e.captureContent(gctx, page, spec)
			if err != nil {
				return err
			}
			mu.Lock()
			defer mu.Unlock()
			if item.Fields == nil {
				item.Fields = make(map[string]any)
			}
			item.Fields[spec.PropertyName()] = value
			return nil
		})
	}
	for i := range step.Output.Screenshots {
		spec := &step.Output.Screenshots[i]
		g.Go(func() error {
			buf, err := page.Screenshot(gctx, spec)
			if err != nil {
				return err
			}
			mu.Lock()
			defer mu.Unlock()
			if item.Binary == nil {
				item.Binary = make(map[string]schemas.Binary)
			}
			item.Binary[spec.PropertyName()] = schemas.Binary{Type: string(spec.Type()), Data: buf}
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}

	// PDF renders run one at a time.
	for i := range step.Output.PDFs {
		spec := &step.Output.PDFs[i]
		buf, err := page.PDF(ctx, spec)
		if err != nil {
			return nil, err
		}
		if item.Binary == nil {
			item.Binary = make(map[string]schemas.Binary)
		}
		item.Binary[spec.PropertyName()] = schemas.Binary{Type: "pdf", Data: buf}
	}

	return item, nil
}

func (e *Executor) captureContent(ctx context.Context, page session.Page, spec *schemas.PageContentSpec) (any, error) {
	convert := func(markup string) (any, error) {
		if spec.HTMLToJSON {
			return FromHTML(markup, spec.NoAttributes)
		}
		return markup, nil
	}

	if spec.CSSSelector == "" {
		markup, err := page.Content(ctx)
		if err != nil {
			return nil, err
		}
		return convert(markup)
	}

	parts, err := page.HTML(ctx, spec.CSSSelector, spec.InnerHTML, spec.SelectAll)
	if err != nil {
		return nil, err
	}
	if spec.SelectAll {
		out := make([]any, 0, len(parts))
		for _, part := range parts {
			v, err := convert(part)
			if err != nil {
				return nil, err
			}
			out = append(out, v)
		}
		return out, nil
	}
	if len(parts) == 0 {
		return nil, nil
	}
	return convert(parts[0])
}

// buildURL appends query parameters to the URL in their configured order,
// after any parameters already present.
func buildURL(raw string, params []schemas.Parameter) string {
	if len(params) == 0 {
		return raw
	}
	var b strings.Builder
	b.WriteString(raw)
	sep := "?"
	if strings.Contains(raw, "?") {
		sep = "&"
	}
	for _, p := range params {
		b.WriteString(sep)
		b.WriteString(url.QueryEscape(p.Name))
		b.WriteByte('=')
		b.WriteString(url.QueryEscape(p.Value))
		sep = "&"
	}
	return b.String()
}
