package contentstream

import (
	"github.com/wudi/pdf2html/coords"
	"github.com/wudi/pdf2html/ir/raw"
	"github.com/wudi/pdf2html/pdferr"
)

func opBeginText(f *frame, _ []raw.Object) error {
	f.tm, f.tlm = coords.Identity(), coords.Identity()
	return nil
}

func opEndText(*frame, []raw.Object) error { return nil }

func textParam(set func(ts *TextState, v float64)) opFunc {
	return func(f *frame, args []raw.Object) error {
		v, err := numbers(args)
		if err != nil {
			return err
		}
		set(&f.gs().Text, v[0])
		return nil
	}
}

var (
	opCharSpacing = textParam(func(ts *TextState, v float64) { ts.CharSpacing = v })
	opWordSpacing = textParam(func(ts *TextState, v float64) { ts.WordSpacing = v })
	opHScale      = textParam(func(ts *TextState, v float64) { ts.HScale = v / 100 })
	opLeading     = textParam(func(ts *TextState, v float64) { ts.Leading = v })
	opRise        = textParam(func(ts *TextState, v float64) { ts.Rise = v })
	opRenderMode  = textParam(func(ts *TextState, v float64) { ts.RenderMode = TextRenderMode(clampInt(int(v), 0, 7)) })
)

func opFont(f *frame, args []raw.Object) error {
	name, err := nameArg(args[0])
	if err != nil {
		return err
	}
	size, ok := raw.Number(args[1])
	if !ok {
		return errOperandType
	}
	entry, found := f.resource("Font", name)
	if !found {
		f.setFont(name, nil, size)
		return pdferr.Errorf(pdferr.KindFontError, "Tf", "font %s not in resources", name)
	}
	f.setFont(name, entry, size)
	return nil
}

// setFont loads the font named by obj through the configured FontSource,
// caching per object, and falls back to a width-only font on failure.
func (f *frame) setFont(name string, obj raw.Object, size float64) {
	ts := &f.gs().Text
	ts.Size = size
	if name != "" {
		ts.FontName = name
	}
	var ref raw.ObjectRef
	if r, ok := obj.(raw.RefObj); ok {
		ref = r.R
	}
	ts.FontRef = ref
	doc := f.it.doc
	dict, _ := doc.Dict(obj)
	var key any = ref
	if ref.IsZero() {
		if dict == nil {
			ts.Font = newFallbackFont(doc, nil)
			return
		}
		key = dict
	}
	if font, ok := f.it.fonts[key]; ok {
		ts.Font = font
		return
	}
	var font Font
	if src := f.it.opts.Fonts; src != nil && dict != nil {
		loaded, err := src.Font(f.it.ctx, doc, ref, dict)
		if err != nil {
			f.diag(pdferr.KindFontError, "Tf", err.Error())
		}
		font = loaded
	}
	if font == nil {
		font = newFallbackFont(doc, dict)
	}
	f.it.fonts[key] = font
	ts.Font = font
}

func (f *frame) nextLine(tx, ty float64) {
	f.tlm = coords.Translate(tx, ty).Multiply(f.tlm)
	f.tm = f.tlm
}

func opTextMove(f *frame, args []raw.Object) error {
	v, err := numbers(args)
	if err != nil {
		return err
	}
	f.nextLine(v[0], v[1])
	return nil
}

func opTextMoveLeading(f *frame, args []raw.Object) error {
	v, err := numbers(args)
	if err != nil {
		return err
	}
	f.gs().Text.Leading = -v[1]
	f.nextLine(v[0], v[1])
	return nil
}

func opTextMatrix(f *frame, args []raw.Object) error {
	v, err := numbers(args)
	if err != nil {
		return err
	}
	f.tm = coords.FromSlice(v)
	f.tlm = f.tm
	return nil
}

func opNextLine(f *frame, _ []raw.Object) error {
	f.nextLine(0, -f.gs().Text.Leading)
	return nil
}

func stringArg(o raw.Object) ([]byte, error) {
	s, ok := o.(raw.StringObj)
	if !ok {
		return nil, errOperandType
	}
	return s.Bytes, nil
}

func opShow(f *frame, args []raw.Object) error {
	s, err := stringArg(args[0])
	if err != nil {
		return err
	}
	return f.show([]raw.Object{raw.Str(s)})
}

func opShowArray(f *frame, args []raw.Object) error {
	arr, ok := args[0].(*raw.ArrayObj)
	if !ok {
		return errOperandType
	}
	return f.show(arr.Items)
}

func opNextLineShow(f *frame, args []raw.Object) error {
	_ = opNextLine(f, nil)
	return opShow(f, args)
}

func opSpacingNextLineShow(f *frame, args []raw.Object) error {
	v, err := numbers(args[:2])
	if err != nil {
		return err
	}
	ts := &f.gs().Text
	ts.WordSpacing, ts.CharSpacing = v[0], v[1]
	_ = opNextLine(f, nil)
	return opShow(f, args[2:])
}

// show places the glyphs of a Tj or TJ operand list and emits one text
// event for the whole operator. Numbers in items are TJ adjustments in
// thousandths of text space.
func (f *frame) show(items []raw.Object) error {
	gs := f.gs()
	ts := &gs.Text
	if ts.Font == nil {
		f.diag(pdferr.KindFontError, "Tj", "text shown with no font set")
		f.setFont("", nil, ts.Size)
	}
	font := ts.Font
	t3, isType3 := font.(Type3Font)
	var glyphs []GlyphPlacement
	for _, item := range items {
		if adj, ok := raw.Number(item); ok {
			tx := -adj / 1000 * ts.Size * ts.HScale
			f.tm = coords.Translate(tx, 0).Multiply(f.tm)
			continue
		}
		s, ok := item.(raw.StringObj)
		if !ok {
			continue
		}
		for _, g := range font.Decode(s.Bytes) {
			trm := coords.Matrix{ts.Size * ts.HScale, 0, 0, ts.Size, 0, ts.Rise}.
				Multiply(f.tm).Multiply(gs.CTM)
			adv := g.Width / 1000 * ts.Size
			adv += ts.CharSpacing
			if g.Len == 1 && g.Code == 32 {
				adv += ts.WordSpacing
			}
			adv *= ts.HScale
			glyphs = append(glyphs, GlyphPlacement{Glyph: g, Matrix: trm, Advance: adv})
			f.tm = coords.Translate(adv, 0).Multiply(f.tm)
		}
	}
	if len(glyphs) == 0 {
		return nil
	}
	f.emit(&PaintEvent{Kind: EventText, State: gs.Snapshot(), Glyphs: glyphs, Type3: isType3})
	if isType3 && ts.RenderMode.Visible() {
		return f.type3Glyphs(t3, glyphs)
	}
	return nil
}

// type3Glyphs runs each glyph procedure with glyph space mapped through
// the font matrix and the glyph's rendering matrix.
func (f *frame) type3Glyphs(font Type3Font, glyphs []GlyphPlacement) error {
	if f.depth+1 > f.it.opts.RecursionLimit {
		return pdferr.Errorf(pdferr.KindRecursionLimitExceeded, "Tj", "Type3 glyph nesting deeper than %d", f.it.opts.RecursionLimit)
	}
	res := font.Resources()
	if res == nil {
		res = f.resources
	}
	fm := font.FontMatrix()
	for _, g := range glyphs {
		proc := font.CharProc(g.Glyph)
		if proc == nil {
			continue
		}
		content, err := f.it.doc.DecodeStream(f.it.ctx, proc)
		if err != nil {
			f.diag(pdferr.KindFontError, "Tj", err.Error())
			continue
		}
		base := f.gs().Snapshot()
		base.CTM = fm.Multiply(g.Matrix)
		if err := f.it.run(content, res, base, f.depth+1); err != nil {
			return err
		}
	}
	return nil
}
