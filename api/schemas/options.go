// api/schemas/options.go
package schemas

import "time"

// WaitUntil is the page-load completion criterion used to decide when a
// navigation is considered finished.
type WaitUntil string

const (
	WaitUntilLoad             WaitUntil = "load"
	WaitUntilDOMContentLoaded WaitUntil = "domcontentloaded"
	WaitUntilNetworkIdle0     WaitUntil = "networkidle0"
	WaitUntilNetworkIdle2     WaitUntil = "networkidle2"
)

// DefaultNavigationTimeout applies when no timeout is configured.
const DefaultNavigationTimeout = 30 * time.Second

// Parameter is an ordered name/value pair (query parameters, headers).
type Parameter struct {
	Name  string `json:"name"`
	Value string `json:"value"`
}

// Viewport sets the page viewport dimensions.
type Viewport struct {
	Width  int64 `json:"width"`
	Height int64 `json:"height"`
}

// GlobalOptions is the configuration shared by every step of a pipeline
// unless a step overrides it. It is supplied already validated by the caller.
type GlobalOptions struct {
	Device          string      `json:"device,omitempty"`
	ExecutablePath  string      `json:"executablePath,omitempty"`
	Headers         []Parameter `json:"headers,omitempty"`
	LaunchArguments []string    `json:"launchArguments,omitempty"`
	Viewport        *Viewport   `json:"viewport,omitempty"`
	Timeout         int         `json:"timeout,omitempty"`    // navigation timeout, milliseconds
	WaitUntil       WaitUntil   `json:"waitUntil,omitempty"`  // default "load"
	TimeToWait      int         `json:"timeToWait,omitempty"` // pre-action delay, milliseconds
	WaitForSelector string      `json:"waitForSelector,omitempty"`
	PageCaching     *bool       `json:"pageCaching,omitempty"` // default true
	Headless        *bool       `json:"headless,omitempty"`    // default true
	Stealth         bool        `json:"stealth,omitempty"`
	ProxyServer     string      `json:"proxyServer,omitempty"`
	InjectHTML      string      `json:"injectHtml,omitempty"`
	InjectCSS       string      `json:"injectCss,omitempty"`
	InjectJS        string      `json:"injectJs,omitempty"`
}

// StepOptions are step-scoped overrides. Each field falls back to the
// corresponding GlobalOptions field when unset.
type StepOptions struct {
	Timeout         int       `json:"timeout,omitempty"`
	WaitUntil       WaitUntil `json:"waitUntil,omitempty"`
	TimeToWait      int       `json:"timeToWait,omitempty"`
	WaitForSelector string    `json:"waitForSelector,omitempty"`
	InjectHTML      string    `json:"injectHtml,omitempty"`
	InjectCSS       string    `json:"injectCss,omitempty"`
	InjectJS        string    `json:"injectJs,omitempty"`
}

// IsHeadless reports the effective headless flag (unset means true).
func (g *GlobalOptions) IsHeadless() bool {
	return g.Headless == nil || *g.Headless
}

// IsPageCaching reports the effective page-cache flag (unset means true).
func (g *GlobalOptions) IsPageCaching() bool {
	return g.PageCaching == nil || *g.PageCaching
}

// HeaderMap flattens the ordered header list into a map. Later entries win.
func (g *GlobalOptions) HeaderMap() map[string]string {
	if len(g.Headers) == 0 {
		return nil
	}
	m := make(map[string]string, len(g.Headers))
	for _, h := range g.Headers {
		m[h.Name] = h.Value
	}
	return m
}

// NavigationTimeout resolves the effective navigation timeout for a step.
func (s *StepOptions) NavigationTimeout(g *GlobalOptions) time.Duration {
	if s != nil && s.Timeout > 0 {
		return time.Duration(s.Timeout) * time.Millisecond
	}
	if g.Timeout > 0 {
		return time.Duration(g.Timeout) * time.Millisecond
	}
	return DefaultNavigationTimeout
}

// NavigationWaitUntil resolves the effective wait-until condition for a
// navigation (default "load").
func (s *StepOptions) NavigationWaitUntil(g *GlobalOptions) WaitUntil {
	if s != nil && s.WaitUntil != "" {
		return s.WaitUntil
	}
	if g.WaitUntil != "" {
		return g.WaitUntil
	}
	return WaitUntilLoad
}

// EffectiveTimeToWait resolves the pre-action delay. A step-level value takes
// precedence even when zero is meant; absence is modeled as zero, matching
// the source behavior where zero disables the wait.
func (s *StepOptions) EffectiveTimeToWait(g *GlobalOptions) time.Duration {
	if s != nil && s.TimeToWait > 0 {
		return time.Duration(s.TimeToWait) * time.Millisecond
	}
	if g.TimeToWait > 0 {
		return time.Duration(g.TimeToWait) * time.Millisecond
	}
	return 0
}

// EffectiveWaitForSelector resolves the post-navigation selector wait.
func (s *StepOptions) EffectiveWaitForSelector(g *GlobalOptions) string {
	if s != nil && s.WaitForSelector != "" {
		return s.WaitForSelector
	}
	return g.WaitForSelector
}

// EffectiveInjectHTML resolves the HTML injection content.
func (s *StepOptions) EffectiveInjectHTML(g *GlobalOptions) string {
	if s != nil && s.InjectHTML != "" {
		return s.InjectHTML
	}
	return g.InjectHTML
}

// EffectiveInjectCSS resolves the CSS injection content.
func (s *StepOptions) EffectiveInjectCSS(g *GlobalOptions) string {
	if s != nil && s.InjectCSS != "" {
		return s.InjectCSS
	}
	return g.InjectCSS
}

// EffectiveInjectJS resolves the script injection content.
func (s *StepOptions) EffectiveInjectJS(g *GlobalOptions) string {
	if s != nil && s.InjectJS != "" {
		return s.InjectJS
	}
	return g.InjectJS
}
