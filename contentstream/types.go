package contentstream

import "github.com/wudi/pdf2html/coords"

// TextRenderMode matches PDF text rendering modes set via Tr operator.
type TextRenderMode int

const (
	TextFill TextRenderMode = iota
	TextStroke
	TextFillStroke
	TextInvisible
	TextFillClip
	TextStrokeClip
	TextFillStrokeClip
	TextClip
)

// Fills reports whether glyphs are filled in this mode.
func (m TextRenderMode) Fills() bool {
	return m == TextFill || m == TextFillStroke || m == TextFillClip || m == TextFillStrokeClip
}

// Strokes reports whether glyph outlines are stroked in this mode.
func (m TextRenderMode) Strokes() bool {
	return m == TextStroke || m == TextFillStroke || m == TextStrokeClip || m == TextFillStrokeClip
}

// Visible reports whether the mode paints anything.
func (m TextRenderMode) Visible() bool { return m.Fills() || m.Strokes() }

// LineCap represents the line cap style (J operator).
type LineCap int

const (
	LineCapButt LineCap = iota
	LineCapRound
	LineCapSquare
)

// LineJoin represents the line join style (j operator).
type LineJoin int

const (
	LineJoinMiter LineJoin = iota
	LineJoinRound
	LineJoinBevel
)

// Path is a sequence of segments in page space.
type Path struct {
	Segments []Segment
}

// Segment is one path construction step. CurveTo uses all three points;
// MoveTo and LineTo only P[0]; Close uses none.
type Segment struct {
	Op SegmentOp
	P  [3]coords.Point
}

type SegmentOp int

const (
	SegMoveTo SegmentOp = iota
	SegLineTo
	SegCurveTo
	SegClose
)

// ControlPoints counts the points carried by the path's segments.
func (p *Path) ControlPoints() int {
	n := 0
	for _, s := range p.Segments {
		switch s.Op {
		case SegMoveTo, SegLineTo:
			n++
		case SegCurveTo:
			n += 3
		}
	}
	return n
}

func (p *Path) Empty() bool { return p == nil || len(p.Segments) == 0 }
