package layout

import (
	"math"

	"github.com/wudi/pdf2html/coords"
	"github.com/wudi/pdf2html/fonts"
)

// Visibility says how a run is shown. Every run stays selectable.
type Visibility int

const (
	Visible Visibility = iota
	// Invisible text is drawn by render mode 3 or 7.
	Invisible
	// Occluded text is fully covered by later opaque paint or clipped away.
	Occluded
	// Painted text is a Type3 font whose glyphs are in the background.
	Painted
)

func (v Visibility) String() string {
	switch v {
	case Invisible:
		return "invisible"
	case Occluded:
		return "occluded"
	case Painted:
		return "painted"
	}
	return "visible"
}

// Transparent reports whether the run's text is not painted in HTML.
func (v Visibility) Transparent() bool { return v != Visible }

// RGB is a colour with components in [0, 1].
type RGB struct {
	R, G, B float64
}

// TextRun is a sequence of glyphs sharing font, size, colour, baseline
// and visibility.
type TextRun struct {
	// Font is nil when the font resource could not be loaded.
	Font *fonts.ExtractedFont
	// FontName is the resource name the run was shown with.
	FontName string
	// Size is the font size in page units, measured perpendicular to the
	// baseline.
	Size float64
	// Matrix is the first glyph's text rendering matrix composed with the
	// CTM: it maps text space (1 unit = 1 em) to page space.
	Matrix coords.Matrix
	// X and Y are the baseline origin of the first glyph with the origin
	// at the top-left corner of the page.
	X, Y       float64
	Color      RGB
	Alpha      float64
	Visibility Visibility
	// Text is NFC-normalized.
	Text   string
	Glyphs []RunGlyph
	// Width is the run's extent along the baseline in run units.
	Width float64
	// Seq is the paint order of the first glyph.
	Seq int
}

// RunGlyph is one glyph within a run. Offset is its position along the
// baseline from the run origin, in run units (page units before the
// run's rotation, skew and horizontal scaling).
type RunGlyph struct {
	Text string
	// GID is the glyph id in the run's font.
	GID     int
	Offset  float64
	Advance float64
	// Synthetic marks a space inserted for a positioning gap.
	Synthetic bool
}

// Transform returns Matrix with the font size divided out and no
// translation: the rotation, skew and horizontal scaling of the run.
func (r *TextRun) Transform() coords.Matrix {
	m := r.Matrix
	if r.Size == 0 {
		return coords.Identity()
	}
	return coords.Matrix{m[0] / r.Size, m[1] / r.Size, m[2] / r.Size, m[3] / r.Size, 0, 0}
}

// Upright reports whether the run is unrotated, unskewed and not
// horizontally scaled.
func (r *TextRun) Upright() bool {
	t := r.Transform()
	return math.Abs(t[1]) < 1e-6 && math.Abs(t[2]) < 1e-6 && math.Abs(t[3]-1) < 1e-6 && math.Abs(t[0]-1) < 1e-6
}

// syntheticSpace is the advance, in em, assumed for an inserted space.
const syntheticSpace = 0.25

// Spacing is the letter spacing, in run units, that spreads the
// difference between Width and the glyphs' own advances evenly between
// glyphs. It carries character and word spacing and positioning
// adjustments.
func (r *TextRun) Spacing() float64 {
	if len(r.Glyphs) < 2 {
		return 0
	}
	natural := 0.0
	for _, g := range r.Glyphs {
		if g.Synthetic {
			natural += syntheticSpace * r.Size
		} else {
			natural += g.Advance
		}
	}
	s := (r.Width - natural) / float64(len(r.Glyphs)-1)
	if math.Abs(s) < 1e-3*math.Max(1, r.Size) {
		return 0
	}
	return s
}

// SourcePoint maps the run origin back to PDF page space using the page
// height.
func (r *TextRun) SourcePoint(pageHeight float64) coords.Point {
	return coords.Point{X: r.X, Y: pageHeight - r.Y}
}

// sizeOf is the font size carried by a text rendering matrix: the length
// of its vertical axis.
func sizeOf(m coords.Matrix) float64 {
	return math.Hypot(m[2], m[3])
}
