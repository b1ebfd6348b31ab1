// api/schemas/pipeline.go
package schemas

// Interaction is one unit of page interaction within a step. A non-empty
// Value means "focus the element and type the value"; an empty Value means
// "click the element", optionally awaiting the navigation it triggers.
type Interaction struct {
	Selector          string `json:"selector"`
	Value             string `json:"value,omitempty"`
	WaitForNavigation bool   `json:"waitForNavigation,omitempty"`
}

// PageContentSpec requests serialized page content as a step output.
type PageContentSpec struct {
	DataPropertyName string `json:"dataPropertyName,omitempty"` // default "pageContent"
	CSSSelector      string `json:"cssSelector,omitempty"`
	HTMLToJSON       bool   `json:"htmlToJson,omitempty"`
	InnerHTML        bool   `json:"innerHtml,omitempty"`
	SelectAll        bool   `json:"selectAll,omitempty"`
	NoAttributes     bool   `json:"noAttributes,omitempty"`
}

// PropertyName returns the output slot for this content capture.
func (s *PageContentSpec) PropertyName() string {
	if s.DataPropertyName != "" {
		return s.DataPropertyName
	}
	return "pageContent"
}

// ImageType is the screenshot encoding.
type ImageType string

const (
	ImagePNG  ImageType = "png"
	ImageJPEG ImageType = "jpeg"
	ImageWebP ImageType = "webp"
)

// ScreenshotSpec requests a screenshot as a step output. When CSSSelector is
// set, the matching element is captured and FullPage is ignored. Quality
// applies to jpeg and webp only.
type ScreenshotSpec struct {
	DataPropertyName string    `json:"dataPropertyName,omitempty"` // default "data"
	CSSSelector      string    `json:"cssSelector,omitempty"`
	ImageType        ImageType `json:"imageType,omitempty"` // default png
	Quality          int64     `json:"quality,omitempty"`   // default 100
	FullPage         bool      `json:"fullPage,omitempty"`
}

// PropertyName returns the binary slot for this screenshot.
func (s *ScreenshotSpec) PropertyName() string {
	if s.DataPropertyName != "" {
		return s.DataPropertyName
	}
	return "data"
}

// Type returns the effective image format.
func (s *ScreenshotSpec) Type() ImageType {
	if s.ImageType == "" {
		return ImagePNG
	}
	return s.ImageType
}

// PDFMargin holds per-side margins. Values accept a number (pixels) or a
// string with a px/in/cm/mm unit, as the source did.
type PDFMargin struct {
	Top    string `json:"top,omitempty"`
	Bottom string `json:"bottom,omitempty"`
	Left   string `json:"left,omitempty"`
	Right  string `json:"right,omitempty"`
}

// PDFSpec requests a PDF rendering of the current page as a step output.
// Format is consulted only when PreferCSSPageSize is off and no explicit
// Height/Width is given; Header/FooterTemplate only when DisplayHeaderFooter.
type PDFSpec struct {
	DataPropertyName    string     `json:"dataPropertyName,omitempty"` // default "data"
	PageRanges          string     `json:"pageRanges,omitempty"`
	Scale               float64    `json:"scale,omitempty"` // default 1.0
	PreferCSSPageSize   bool       `json:"preferCSSPageSize,omitempty"`
	Format              string     `json:"format,omitempty"` // named paper size, e.g. "Letter", "A4"
	Height              string     `json:"height,omitempty"`
	Width               string     `json:"width,omitempty"`
	Landscape           bool       `json:"landscape,omitempty"`
	Margin              *PDFMargin `json:"margin,omitempty"`
	DisplayHeaderFooter bool       `json:"displayHeaderFooter,omitempty"`
	HeaderTemplate      string     `json:"headerTemplate,omitempty"`
	FooterTemplate      string     `json:"footerTemplate,omitempty"`
	OmitBackground      bool       `json:"omitBackground,omitempty"`
	PrintBackground     bool       `json:"printBackground,omitempty"`
}

// PropertyName returns the binary slot for this PDF.
func (s *PDFSpec) PropertyName() string {
	if s.DataPropertyName != "" {
		return s.DataPropertyName
	}
	return "data"
}

// EffectiveScale returns the print scale (default 1.0).
func (s *PDFSpec) EffectiveScale() float64 {
	if s.Scale > 0 {
		return s.Scale
	}
	return 1.0
}

// Output is the set of captures requested for one step.
type Output struct {
	PageContent []PageContentSpec `json:"getPageContent,omitempty"`
	Screenshots []ScreenshotSpec  `json:"getScreenshot,omitempty"`
	PDFs        []PDFSpec         `json:"getPDF,omitempty"`
}

// Empty reports whether the step requests no output at all.
func (o *Output) Empty() bool {
	return len(o.PageContent) == 0 && len(o.Screenshots) == 0 && len(o.PDFs) == 0
}

// Step is one configured unit of navigate-act-capture work. An empty URL
// means "continue on the page left by the previous step".
type Step struct {
	URL             string        `json:"url,omitempty"`
	QueryParameters []Parameter   `json:"queryParameters,omitempty"`
	Options         StepOptions   `json:"stepOptions,omitempty"`
	Interactions    []Interaction `json:"interactions,omitempty"`
	Output          Output        `json:"output,omitempty"`
}

// PageResponse is the document response observed for a navigation.
type PageResponse struct {
	URL        string            `json:"url"`
	StatusCode int               `json:"statusCode"`
	Headers    map[string]string `json:"headers,omitempty"`
}

// Binary is an opaque payload crossing the IPC boundary.
// Type is one of png, jpeg, webp, pdf.
type Binary struct {
	Type string `json:"type"`
	Data []byte `json:"data"`
}

// StepResult is the outcome of one executed step. Fields carries the JSON
// outputs keyed by their slot names; Binary carries screenshot/PDF payloads.
type StepResult struct {
	Step       int               `json:"step"` // 1-based pipeline position
	StatusCode int               `json:"statusCode"`
	Headers    map[string]string `json:"headers,omitempty"`
	Fields     map[string]any    `json:"json,omitempty"`
	Binary     map[string]Binary `json:"binary,omitempty"`
}

// PipelineResult is what an exec call returns: all step results captured
// before the pipeline finished or aborted, plus the abort error if any.
type PipelineResult struct {
	Items []StepResult `json:"items,omitempty"`
	Error string       `json:"error,omitempty"`
}
