package contentstream

import (
	"github.com/wudi/pdf2html/coords"
	"github.com/wudi/pdf2html/ir/raw"
	"github.com/wudi/pdf2html/pdferr"
)

type EventKind int

const (
	EventText EventKind = iota
	EventPath
	EventImage
	EventShading
)

func (k EventKind) String() string {
	switch k {
	case EventText:
		return "text"
	case EventPath:
		return "path"
	case EventImage:
		return "image"
	case EventShading:
		return "shading"
	}
	return "unknown"
}

// GlyphPlacement is one shown glyph. Matrix is the text rendering matrix
// composed with the CTM: it maps glyph space (scaled by 1/1000 for
// widths) to page space, with the glyph origin at Matrix[4], Matrix[5].
type GlyphPlacement struct {
	Glyph  Glyph
	Matrix coords.Matrix
	// Advance is the horizontal displacement in text space units.
	Advance float64
}

// Origin returns the glyph origin in page space.
func (g GlyphPlacement) Origin() coords.Point {
	return coords.Point{X: g.Matrix[4], Y: g.Matrix[5]}
}

// BBox returns the glyph box in page space using the font's ascent and
// descent (per 1000 em) and the glyph advance.
func (g GlyphPlacement) BBox(ascent, descent float64) coords.Quad {
	w := g.Glyph.Width / 1000
	if w <= 0 {
		w = 0.5
	}
	r := coords.Rect{LLX: 0, LLY: descent / 1000, URX: w, URY: ascent / 1000}
	return r.TransformQuad(g.Matrix)
}

// Image describes an image XObject or inline image.
type Image struct {
	Stream    *raw.StreamObj
	Inline    bool
	Width     int
	Height    int
	ImageMask bool
	HasSMask  bool
	// Resources is the scope used to resolve named colour spaces.
	Resources *raw.DictObj
}

// PaintEvent is emitted by every painting operator with a snapshot of the
// graphics state at that moment.
type PaintEvent struct {
	Kind  EventKind
	State GraphicsState
	// Seq is the event's position in paint order on the page.
	Seq int
	// Depth is the form XObject nesting level.
	Depth int

	// Path events; Path is in page space.
	Path    *Path
	Fill    bool
	Stroke  bool
	EvenOdd bool

	// Text events.
	Glyphs []GlyphPlacement
	// Type3 marks text whose glyph shapes are painted as separate path
	// events from the font's glyph procedures.
	Type3 bool

	// Image events: Matrix maps the unit square to page space.
	Image  *Image
	Matrix coords.Matrix

	// Shading events cover Bounds in page space.
	Shading *raw.DictObj
	Bounds  coords.Rect
}

// Diagnostic is a non-fatal problem met while interpreting.
type Diagnostic struct {
	Kind     pdferr.Kind
	Operator string
	Message  string
	Offset   int64
}

// Sink receives paint events in stream order.
type Sink interface {
	Paint(ev *PaintEvent)
	Diagnose(d Diagnostic)
}

type fanOut []Sink

// FanOut delivers every event to each sink in order.
func FanOut(sinks ...Sink) Sink { return fanOut(sinks) }

func (f fanOut) Paint(ev *PaintEvent) {
	for _, s := range f {
		s.Paint(ev)
	}
}

func (f fanOut) Diagnose(d Diagnostic) {
	for _, s := range f {
		s.Diagnose(d)
	}
}

// Recorder is a Sink that keeps everything it receives.
type Recorder struct {
	Events      []*PaintEvent
	Diagnostics []Diagnostic
}

func (r *Recorder) Paint(ev *PaintEvent)  { r.Events = append(r.Events, ev) }
func (r *Recorder) Diagnose(d Diagnostic) { r.Diagnostics = append(r.Diagnostics, d) }
