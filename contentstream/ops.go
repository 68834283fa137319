package contentstream

import (
	"math"

	"github.com/wudi/pdf2html/coords"
	"github.com/wudi/pdf2html/ir/raw"
	"github.com/wudi/pdf2html/pdferr"
)

type opFunc func(f *frame, args []raw.Object) error

type opSpec struct {
	// arity is the exact operand count, or -1 when it varies.
	arity int
	fn    opFunc
}

var operators map[string]opSpec

func init() {
	operators = map[string]opSpec{
		"cm": {6, opConcat},

		"q":  {0, opSave},
		"Q":  {0, opRestore},
		"w":  {1, opLineWidth},
		"J":  {1, opLineCap},
		"j":  {1, opLineJoin},
		"M":  {1, opMiterLimit},
		"d":  {2, opDash},
		"ri": {1, opNoop},
		"i":  {1, opNoop},
		"gs": {1, opExtGState},

		"CS":  {1, opStrokeSpace},
		"cs":  {1, opFillSpace},
		"SC":  {-1, opStrokeColor},
		"SCN": {-1, opStrokeColor},
		"sc":  {-1, opFillColor},
		"scn": {-1, opFillColor},
		"G":   {1, opStrokeGray},
		"g":   {1, opFillGray},
		"RG":  {3, opStrokeRGB},
		"rg":  {3, opFillRGB},
		"K":   {4, opStrokeCMYK},
		"k":   {4, opFillCMYK},

		"m":  {2, opMoveTo},
		"l":  {2, opLineTo},
		"c":  {6, opCurveTo},
		"v":  {4, opCurveToV},
		"y":  {4, opCurveToY},
		"h":  {0, opClosePath},
		"re": {4, opRect},

		"S":  {0, paintOp(false, true, false, false)},
		"s":  {0, paintOp(false, true, false, true)},
		"f":  {0, paintOp(true, false, false, false)},
		"F":  {0, paintOp(true, false, false, false)},
		"f*": {0, paintOp(true, false, true, false)},
		"B":  {0, paintOp(true, true, false, false)},
		"B*": {0, paintOp(true, true, true, false)},
		"b":  {0, paintOp(true, true, false, true)},
		"b*": {0, paintOp(true, true, true, true)},
		"n":  {0, paintOp(false, false, false, false)},
		"W":  {0, opClip(clipNonZero)},
		"W*": {0, opClip(clipEvenOdd)},

		"BT": {0, opBeginText},
		"ET": {0, opEndText},
		"Tc": {1, opCharSpacing},
		"Tw": {1, opWordSpacing},
		"Tz": {1, opHScale},
		"TL": {1, opLeading},
		"Tf": {2, opFont},
		"Tr": {1, opRenderMode},
		"Ts": {1, opRise},
		"Td": {2, opTextMove},
		"TD": {2, opTextMoveLeading},
		"Tm": {6, opTextMatrix},
		"T*": {0, opNextLine},
		"Tj": {1, opShow},
		"TJ": {1, opShowArray},
		"'":  {1, opNextLineShow},
		`"`:  {3, opSpacingNextLineShow},

		"d0": {2, opNoop},
		"d1": {6, opNoop},

		"BMC": {1, opBeginMarked},
		"BDC": {2, opBeginMarked},
		"EMC": {0, opEndMarked},
		"MP":  {1, opNoop},
		"DP":  {2, opNoop},

		"BX": {0, opBeginCompat},
		"EX": {0, opEndCompat},

		"Do": {1, opXObject},
		"sh": {1, opShading},
	}
}

func opNoop(*frame, []raw.Object) error { return nil }

func opConcat(f *frame, args []raw.Object) error {
	v, err := numbers(args)
	if err != nil {
		return err
	}
	gs := f.gs()
	gs.CTM = coords.FromSlice(v).Multiply(gs.CTM)
	return nil
}

func opSave(f *frame, _ []raw.Object) error {
	f.states.push()
	return nil
}

// opRestore clamps an unmatched Q to the base frame.
func opRestore(f *frame, _ []raw.Object) error {
	if !f.states.pop() {
		return pdferr.Errorf(pdferr.KindCorruptStructure, "Q", "restore without matching save")
	}
	return nil
}

func opLineWidth(f *frame, args []raw.Object) error {
	v, err := numbers(args)
	if err != nil {
		return err
	}
	f.gs().LineWidth = math.Abs(v[0])
	return nil
}

func opLineCap(f *frame, args []raw.Object) error {
	v, err := numbers(args)
	if err != nil {
		return err
	}
	f.gs().LineCap = LineCap(clampInt(int(v[0]), 0, 2))
	return nil
}

func opLineJoin(f *frame, args []raw.Object) error {
	v, err := numbers(args)
	if err != nil {
		return err
	}
	f.gs().LineJoin = LineJoin(clampInt(int(v[0]), 0, 2))
	return nil
}

func opMiterLimit(f *frame, args []raw.Object) error {
	v, err := numbers(args)
	if err != nil {
		return err
	}
	f.gs().MiterLimit = v[0]
	return nil
}

func opDash(f *frame, args []raw.Object) error {
	arr, ok := args[0].(*raw.ArrayObj)
	if !ok {
		return errOperandType
	}
	dash, err := numbers(arr.Items)
	if err != nil {
		return err
	}
	phase, ok := raw.Number(args[1])
	if !ok {
		return errOperandType
	}
	gs := f.gs()
	gs.Dash, gs.DashPhase = dash, phase
	return nil
}

func clampInt(v, lo, hi int) int {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}

func opExtGState(f *frame, args []raw.Object) error {
	name, err := nameArg(args[0])
	if err != nil {
		return err
	}
	entry, ok := f.resource("ExtGState", name)
	if !ok {
		return pdferr.Errorf(pdferr.KindCorruptStructure, "gs", "unknown ExtGState %s", name)
	}
	doc := f.it.doc
	d, err := doc.Dict(entry)
	if err != nil || d == nil {
		return pdferr.Errorf(pdferr.KindCorruptStructure, "gs", "ExtGState %s is not a dictionary", name)
	}
	gs := f.gs()
	for _, key := range d.Keys() {
		val, err := doc.Lookup(d, key)
		if err != nil {
			continue
		}
		switch key {
		case "LW":
			if n, ok := raw.Number(val); ok {
				gs.LineWidth = math.Abs(n)
			}
		case "LC":
			if n, ok := raw.Number(val); ok {
				gs.LineCap = LineCap(clampInt(int(n), 0, 2))
			}
		case "LJ":
			if n, ok := raw.Number(val); ok {
				gs.LineJoin = LineJoin(clampInt(int(n), 0, 2))
			}
		case "ML":
			if n, ok := raw.Number(val); ok {
				gs.MiterLimit = n
			}
		case "D":
			if arr, _ := doc.Array(val); arr != nil && arr.Len() == 2 {
				pattern, _ := arr.Get(0)
				phase, _ := arr.Get(1)
				if dash, ok := doc.Numbers(pattern); ok {
					gs.Dash = dash
				}
				if p, ok := doc.Number(phase); ok {
					gs.DashPhase = p
				}
			}
		case "CA":
			if n, ok := raw.Number(val); ok {
				gs.StrokeAlpha = clamp01(n)
			}
		case "ca":
			if n, ok := raw.Number(val); ok {
				gs.FillAlpha = clamp01(n)
			}
		case "BM":
			gs.BlendMode = blendModeName(doc, val)
		case "SMask":
			gs.SoftMask = doc.Name(val) != "None"
		case "Font":
			if arr, _ := doc.Array(val); arr != nil && arr.Len() == 2 {
				fontObj, _ := arr.Get(0)
				sizeObj, _ := arr.Get(1)
				size, _ := doc.Number(sizeObj)
				f.setFont("", fontObj, size)
			}
		}
	}
	return nil
}

func blendModeName(doc *raw.Document, o raw.Object) string {
	if arr, _ := doc.Array(o); arr != nil {
		if first, ok := arr.Get(0); ok {
			return doc.Name(first)
		}
		return "Normal"
	}
	if n := doc.Name(o); n != "" {
		return n
	}
	return "Normal"
}

func (f *frame) colorSpace(arg raw.Object) (*ColorSpace, error) {
	name, err := nameArg(arg)
	if err != nil {
		return nil, err
	}
	cs, ok := resolveColorSpace(f.it.doc, raw.Name(name), f.resources, 0)
	if !ok {
		return cs, pdferr.Errorf(pdferr.KindCorruptStructure, "cs", "unknown colour space %s", name)
	}
	return cs, nil
}

func opStrokeSpace(f *frame, args []raw.Object) error {
	cs, err := f.colorSpace(args[0])
	f.gs().StrokeColor = cs.Initial()
	return err
}

func opFillSpace(f *frame, args []raw.Object) error {
	cs, err := f.colorSpace(args[0])
	f.gs().FillColor = cs.Initial()
	return err
}

func setComponents(c *Color, args []raw.Object) error {
	if n := len(args); n > 0 {
		if name, ok := args[n-1].(raw.NameObj); ok {
			c.Pattern = name.Val
			args = args[:n-1]
		}
	}
	v, err := numbers(args)
	if err != nil {
		return err
	}
	if len(v) > 0 || c.Pattern == "" {
		c.Values = v
	}
	return nil
}

func opStrokeColor(f *frame, args []raw.Object) error {
	gs := f.gs()
	c := gs.StrokeColor.clone()
	if err := setComponents(&c, args); err != nil {
		return err
	}
	gs.StrokeColor = c
	return nil
}

func opFillColor(f *frame, args []raw.Object) error {
	gs := f.gs()
	c := gs.FillColor.clone()
	if err := setComponents(&c, args); err != nil {
		return err
	}
	gs.FillColor = c
	return nil
}

func deviceColor(cs *ColorSpace, args []raw.Object) (Color, error) {
	v, err := numbers(args)
	if err != nil {
		return Color{}, err
	}
	return Color{Space: cs, Values: v}, nil
}

func setStroke(cs *ColorSpace) opFunc {
	return func(f *frame, args []raw.Object) error {
		c, err := deviceColor(cs, args)
		if err != nil {
			return err
		}
		f.gs().StrokeColor = c
		return nil
	}
}

func setFill(cs *ColorSpace) opFunc {
	return func(f *frame, args []raw.Object) error {
		c, err := deviceColor(cs, args)
		if err != nil {
			return err
		}
		f.gs().FillColor = c
		return nil
	}
}

var (
	opStrokeGray = setStroke(DeviceGray)
	opFillGray   = setFill(DeviceGray)
	opStrokeRGB  = setStroke(DeviceRGB)
	opFillRGB    = setFill(DeviceRGB)
	opStrokeCMYK = setStroke(DeviceCMYK)
	opFillCMYK   = setFill(DeviceCMYK)
)

func (f *frame) point(x, y float64) coords.Point {
	return f.gs().CTM.Transform(coords.Point{X: x, Y: y})
}

func opMoveTo(f *frame, args []raw.Object) error {
	v, err := numbers(args)
	if err != nil {
		return err
	}
	p := f.point(v[0], v[1])
	f.path.Segments = append(f.path.Segments, Segment{Op: SegMoveTo, P: [3]coords.Point{p}})
	f.current, f.start, f.hasCurrent = p, p, true
	return nil
}

func opLineTo(f *frame, args []raw.Object) error {
	v, err := numbers(args)
	if err != nil {
		return err
	}
	if !f.hasCurrent {
		return pdferr.Errorf(pdferr.KindCorruptStructure, "l", "no current point")
	}
	p := f.point(v[0], v[1])
	f.path.Segments = append(f.path.Segments, Segment{Op: SegLineTo, P: [3]coords.Point{p}})
	f.current = p
	return nil
}

func (f *frame) curve(c1, c2, p coords.Point) {
	f.path.Segments = append(f.path.Segments, Segment{Op: SegCurveTo, P: [3]coords.Point{c1, c2, p}})
	f.current = p
}

func opCurveTo(f *frame, args []raw.Object) error {
	v, err := numbers(args)
	if err != nil {
		return err
	}
	if !f.hasCurrent {
		return pdferr.Errorf(pdferr.KindCorruptStructure, "c", "no current point")
	}
	f.curve(f.point(v[0], v[1]), f.point(v[2], v[3]), f.point(v[4], v[5]))
	return nil
}

func opCurveToV(f *frame, args []raw.Object) error {
	v, err := numbers(args)
	if err != nil {
		return err
	}
	if !f.hasCurrent {
		return pdferr.Errorf(pdferr.KindCorruptStructure, "v", "no current point")
	}
	f.curve(f.current, f.point(v[0], v[1]), f.point(v[2], v[3]))
	return nil
}

func opCurveToY(f *frame, args []raw.Object) error {
	v, err := numbers(args)
	if err != nil {
		return err
	}
	if !f.hasCurrent {
		return pdferr.Errorf(pdferr.KindCorruptStructure, "y", "no current point")
	}
	end := f.point(v[2], v[3])
	f.curve(f.point(v[0], v[1]), end, end)
	return nil
}

func opClosePath(f *frame, _ []raw.Object) error {
	if !f.hasCurrent {
		return nil
	}
	f.path.Segments = append(f.path.Segments, Segment{Op: SegClose})
	f.current = f.start
	return nil
}

func opRect(f *frame, args []raw.Object) error {
	v, err := numbers(args)
	if err != nil {
		return err
	}
	x, y, w, h := v[0], v[1], v[2], v[3]
	p0, p1, p2, p3 := f.point(x, y), f.point(x+w, y), f.point(x+w, y+h), f.point(x, y+h)
	f.path.Segments = append(f.path.Segments,
		Segment{Op: SegMoveTo, P: [3]coords.Point{p0}},
		Segment{Op: SegLineTo, P: [3]coords.Point{p1}},
		Segment{Op: SegLineTo, P: [3]coords.Point{p2}},
		Segment{Op: SegLineTo, P: [3]coords.Point{p3}},
		Segment{Op: SegClose},
	)
	f.current, f.start, f.hasCurrent = p0, p0, true
	return nil
}

func opClip(mode int) opFunc {
	return func(f *frame, _ []raw.Object) error {
		f.clip = mode
		return nil
	}
}

// paintOp ends the current path: it emits a path event when anything is
// painted, applies a pending clip, then clears the path.
func paintOp(fill, stroke, evenOdd, closeFirst bool) opFunc {
	return func(f *frame, _ []raw.Object) error {
		if closeFirst {
			_ = opClosePath(f, nil)
		}
		if (fill || stroke) && !f.path.Empty() {
			path := &Path{Segments: append([]Segment(nil), f.path.Segments...)}
			f.emit(&PaintEvent{
				Kind:    EventPath,
				State:   f.gs().Snapshot(),
				Path:    path,
				Fill:    fill,
				Stroke:  stroke,
				EvenOdd: evenOdd,
			})
		}
		if f.clip != clipNone && !f.path.Empty() {
			f.intersectClip(PathBounds(&f.path))
		}
		f.path.Segments = f.path.Segments[:0]
		f.hasCurrent = false
		f.clip = clipNone
		return nil
	}
}

func (f *frame) intersectClip(r coords.Rect) {
	gs := f.gs()
	if !gs.ClipSet {
		gs.Clip, gs.ClipSet = r, true
		return
	}
	gs.Clip = gs.Clip.Intersect(r)
}

// PathBounds returns the bounding box of every point in p, control
// points included.
func PathBounds(p *Path) coords.Rect {
	first := true
	var r coords.Rect
	add := func(pt coords.Point) {
		if first {
			r = coords.Rect{LLX: pt.X, LLY: pt.Y, URX: pt.X, URY: pt.Y}
			first = false
			return
		}
		r.LLX, r.LLY = math.Min(r.LLX, pt.X), math.Min(r.LLY, pt.Y)
		r.URX, r.URY = math.Max(r.URX, pt.X), math.Max(r.URY, pt.Y)
	}
	for _, s := range p.Segments {
		switch s.Op {
		case SegMoveTo, SegLineTo:
			add(s.P[0])
		case SegCurveTo:
			add(s.P[0])
			add(s.P[1])
			add(s.P[2])
		}
	}
	return r
}

func opBeginMarked(f *frame, _ []raw.Object) error {
	f.marked++
	return nil
}

func opEndMarked(f *frame, _ []raw.Object) error {
	if f.marked > 0 {
		f.marked--
	}
	return nil
}

func opBeginCompat(f *frame, _ []raw.Object) error {
	f.compat++
	return nil
}

func opEndCompat(f *frame, _ []raw.Object) error {
	if f.compat > 0 {
		f.compat--
	}
	return nil
}
