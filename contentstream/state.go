package contentstream

import (
	"github.com/wudi/pdf2html/coords"
	"github.com/wudi/pdf2html/ir/raw"
)

// TextState holds the text parameters that are part of the graphics
// state. The text and line matrices live on the interpreter since they
// reset with every BT.
type TextState struct {
	Font     Font
	FontName string
	FontRef  raw.ObjectRef
	Size     float64
	// CharSpacing, WordSpacing and Leading are in unscaled text units.
	CharSpacing float64
	WordSpacing float64
	// HScale is the horizontal scaling as a fraction (Tz 100 = 1).
	HScale     float64
	Leading    float64
	Rise       float64
	RenderMode TextRenderMode
}

// GraphicsState is one frame of the save/restore stack.
type GraphicsState struct {
	CTM         coords.Matrix
	FillColor   Color
	StrokeColor Color
	LineWidth   float64
	LineCap     LineCap
	LineJoin    LineJoin
	MiterLimit  float64
	Dash        []float64
	DashPhase   float64
	FillAlpha   float64
	StrokeAlpha float64
	BlendMode   string
	// SoftMask is set while an ExtGState soft mask is active.
	SoftMask bool
	// Clip is the clip region's bounding box in page space. ClipSet is
	// false until the first clipping path.
	Clip    coords.Rect
	ClipSet bool
	Text    TextState
}

// NewGraphicsState returns the initial state for a page whose default
// user space maps to the output through ctm.
func NewGraphicsState(ctm coords.Matrix) GraphicsState {
	return GraphicsState{
		CTM:         ctm,
		FillColor:   black(),
		StrokeColor: black(),
		LineWidth:   1,
		MiterLimit:  10,
		FillAlpha:   1,
		StrokeAlpha: 1,
		BlendMode:   "Normal",
		Text:        TextState{HScale: 1},
	}
}

// Snapshot returns a deep copy safe to retain after further operators run.
func (gs *GraphicsState) Snapshot() GraphicsState {
	c := *gs
	c.FillColor = gs.FillColor.clone()
	c.StrokeColor = gs.StrokeColor.clone()
	c.Dash = append([]float64(nil), gs.Dash...)
	return c
}

// OpaqueFill reports whether a fill in this state fully hides what lies
// beneath it.
func (gs *GraphicsState) OpaqueFill() bool {
	return gs.FillAlpha >= 1 && !gs.SoftMask && (gs.BlendMode == "" || gs.BlendMode == "Normal" || gs.BlendMode == "Compatible")
}

// stateStack is the q/Q stack. The base frame can never be popped.
type stateStack struct {
	frames []GraphicsState
}

func newStateStack(base GraphicsState) *stateStack {
	return &stateStack{frames: []GraphicsState{base}}
}

func (s *stateStack) top() *GraphicsState { return &s.frames[len(s.frames)-1] }

func (s *stateStack) push() {
	s.frames = append(s.frames, s.top().Snapshot())
}

// pop restores the previous frame. It reports false, leaving the base
// frame in place, when there is nothing to restore.
func (s *stateStack) pop() bool {
	if len(s.frames) == 1 {
		return false
	}
	s.frames = s.frames[:len(s.frames)-1]
	return true
}

func (s *stateStack) depth() int { return len(s.frames) - 1 }
