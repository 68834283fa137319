// Package layout turns the text paint events of a page into positioned
// text runs, marking glyphs hidden by later opaque paint.
package layout

import (
	"math"
	"strings"

	"golang.org/x/text/unicode/norm"

	"github.com/wudi/pdf2html/contentstream"
	"github.com/wudi/pdf2html/coords"
	"github.com/wudi/pdf2html/fonts"
	"github.com/wudi/pdf2html/observability"
)

const (
	// DefaultSpaceThreshold is the gap, as a fraction of the font size,
	// above which two glyphs on one baseline are separated by a space.
	DefaultSpaceThreshold = 0.125
	// baselineTolerance is the largest baseline shift, in points, that
	// keeps glyphs in one run.
	baselineTolerance = 0.5
	quadCapacity      = 16
)

// Engine collects one page's paint events and builds its text runs. It
// is a contentstream.Sink; call Runs once interpretation is done.
type Engine struct {
	width  float64
	height float64

	SpaceThreshold float64
	logger         observability.Logger

	glyphs    []pending
	occluders []*occluder
	// barrier counts non-text paints so runs never span them.
	barrier int
}

type pending struct {
	placement contentstream.GlyphPlacement
	state     *contentstream.GraphicsState
	seq       int
	barrier   int
	type3     bool
}

// Option defines a configuration option for the Engine.
type Option func(*Engine)

// WithSpaceThreshold sets the gap fraction that inserts a space.
func WithSpaceThreshold(t float64) Option {
	return func(e *Engine) {
		e.SpaceThreshold = t
	}
}

// WithLogger sets the logger used for per-page summaries.
func WithLogger(l observability.Logger) Option {
	return func(e *Engine) {
		e.logger = l
	}
}

// NewEngine creates an engine for a page of the given displayed size.
func NewEngine(width, height float64, opts ...Option) *Engine {
	e := &Engine{
		width:          width,
		height:         height,
		SpaceThreshold: DefaultSpaceThreshold,
	}
	for _, opt := range opts {
		opt(e)
	}
	e.logger = observability.OrNop(e.logger)
	return e
}

func (e *Engine) Paint(ev *contentstream.PaintEvent) {
	if ev.Kind != contentstream.EventText {
		e.barrier++
		if o := occluderFor(ev, e.page()); o != nil {
			e.occluders = append(e.occluders, o)
		}
		return
	}
	st := &ev.State
	for _, g := range ev.Glyphs {
		e.glyphs = append(e.glyphs, pending{
			placement: g,
			state:     st,
			seq:       ev.Seq,
			barrier:   e.barrier,
			type3:     ev.Type3,
		})
	}
}

func (e *Engine) Diagnose(contentstream.Diagnostic) {}

func (e *Engine) page() coords.Rect { return coords.Rect{URX: e.width, URY: e.height} }

// Runs classifies every collected glyph and groups the glyphs into runs
// in paint order.
func (e *Engine) Runs() []TextRun {
	tree := newQuadTree(e.page(), quadCapacity)
	for i, o := range e.occluders {
		tree.insert(o.bounds(), i)
	}
	var runs []TextRun
	var b *runBuilder
	hidden := 0
	for i := range e.glyphs {
		p := &e.glyphs[i]
		vis := e.visibility(p, tree)
		if vis == Occluded {
			hidden++
		}
		if b != nil && b.accept(p, vis, e.SpaceThreshold) {
			continue
		}
		if b != nil {
			runs = append(runs, b.finish())
		}
		b = newRunBuilder(p, vis, e.height)
	}
	if b != nil {
		runs = append(runs, b.finish())
	}
	e.logger.Debug("text layout",
		observability.Int("glyphs", len(e.glyphs)),
		observability.Int("runs", len(runs)),
		observability.Int("occluded", hidden))
	return runs
}

// visibility applies the four-corner test: a glyph is occluded only when
// each corner of its box is covered by opaque paint that comes later.
func (e *Engine) visibility(p *pending, tree *quadTree) Visibility {
	st := p.state
	if p.type3 {
		return Painted
	}
	if !st.Text.RenderMode.Visible() {
		return Invisible
	}
	ascent, descent := 750.0, -250.0
	if f := st.Text.Font; f != nil {
		ascent, descent = f.Ascent(), f.Descent()
	}
	quad := p.placement.BBox(ascent, descent)
	if st.ClipSet && quadBounds(quad).Intersect(st.Clip).Empty() {
		return Occluded
	}
	var found []int
	for _, corner := range quad {
		found = tree.query(corner, found[:0])
		covered := false
		for _, i := range found {
			o := e.occluders[i]
			if o.seq > p.seq && o.covers(corner) {
				covered = true
				break
			}
		}
		if !covered {
			return Visible
		}
	}
	return Occluded
}

type runBuilder struct {
	run     TextRun
	first   *pending
	inverse coords.Matrix
	ok      bool
	text    strings.Builder
	// end is the local x where the last glyph stops.
	end float64
}

func newRunBuilder(p *pending, vis Visibility, pageHeight float64) *runBuilder {
	st := p.state
	m := p.placement.Matrix
	origin := p.placement.Origin()
	b := &runBuilder{
		first: p,
		run: TextRun{
			Font:       fonts.Unwrap(st.Text.Font),
			FontName:   st.Text.FontName,
			Size:       sizeOf(m),
			Matrix:     m,
			X:          origin.X,
			Y:          pageHeight - origin.Y,
			Visibility: vis,
			Seq:        p.seq,
		},
	}
	b.run.Color, b.run.Alpha = paintColor(st)
	frame := b.run.Transform()
	frame[4], frame[5] = origin.X, origin.Y
	if inv, err := frame.Inverse(); err == nil {
		b.inverse, b.ok = inv, true
	}
	b.add(p, 0)
	return b
}

func paintColor(st *contentstream.GraphicsState) (RGB, float64) {
	mode := st.Text.RenderMode
	if !mode.Fills() && mode.Strokes() {
		r, g, bl := st.StrokeColor.RGB()
		return RGB{r, g, bl}, st.StrokeAlpha
	}
	r, g, bl := st.FillColor.RGB()
	return RGB{r, g, bl}, st.FillAlpha
}

func (b *runBuilder) local(p coords.Point) coords.Point { return b.inverse.Transform(p) }

// add appends p whose origin is at local x.
func (b *runBuilder) add(p *pending, x float64) {
	g := p.placement
	w := g.Glyph.Width / 1000
	end := x
	if b.ok {
		end = b.local(g.Matrix.Transform(coords.Point{X: w})).X
	}
	b.run.Glyphs = append(b.run.Glyphs, RunGlyph{Text: g.Glyph.Text, GID: g.Glyph.GID, Offset: x, Advance: end - x})
	b.text.WriteString(g.Glyph.Text)
	b.end = end
}

// accept appends p when it continues the run.
func (b *runBuilder) accept(p *pending, vis Visibility, threshold float64) bool {
	if !b.ok || vis != b.run.Visibility || p.barrier != b.first.barrier {
		return false
	}
	st, fst := p.state, b.first.state
	if st.Text.Font != fst.Text.Font || st.Text.FontName != fst.Text.FontName {
		return false
	}
	if c, a := paintColor(st); !sameColor(c, b.run.Color) || math.Abs(a-b.run.Alpha) > 1e-6 {
		return false
	}
	m := p.placement.Matrix
	size := sizeOf(m)
	if math.Abs(size-b.run.Size) > 1e-3*math.Max(1, b.run.Size) {
		return false
	}
	for i := 0; i < 4; i++ {
		if math.Abs(m[i]-b.run.Matrix[i]) > 1e-4*math.Max(1, b.run.Size) {
			return false
		}
	}
	local := b.local(p.placement.Origin())
	if math.Abs(local.Y) > baselineTolerance {
		return false
	}
	gap := local.X - b.end
	limit := threshold * size
	switch {
	case gap < -limit:
		return false
	case gap > limit:
		last := b.run.Glyphs[len(b.run.Glyphs)-1].Text
		if b.run.Font != nil && b.run.Font.HasSpace() || isSpace(last) || isSpace(p.placement.Glyph.Text) {
			return false
		}
		b.run.Glyphs = append(b.run.Glyphs, RunGlyph{Text: " ", GID: -1, Offset: b.end, Advance: gap, Synthetic: true})
		b.text.WriteString(" ")
	}
	b.add(p, local.X)
	return true
}

func isSpace(s string) bool { return strings.TrimSpace(s) == "" }

func sameColor(a, b RGB) bool {
	return math.Abs(a.R-b.R) < 1e-6 && math.Abs(a.G-b.G) < 1e-6 && math.Abs(a.B-b.B) < 1e-6
}

func (b *runBuilder) finish() TextRun {
	b.run.Text = norm.NFC.String(b.text.String())
	b.run.Width = b.end
	return b.run
}
