package contentstream

import (
	"fmt"

	"github.com/wudi/pdf2html/coords"
	"github.com/wudi/pdf2html/ir/raw"
	"github.com/wudi/pdf2html/pdferr"
	"github.com/wudi/pdf2html/scanner"
)

var unitSquare = coords.Rect{URX: 1, URY: 1}

func opXObject(f *frame, args []raw.Object) error {
	name, err := nameArg(args[0])
	if err != nil {
		return err
	}
	entry, ok := f.resource("XObject", name)
	if !ok {
		return pdferr.Errorf(pdferr.KindCorruptStructure, "Do", "unknown XObject %s", name)
	}
	doc := f.it.doc
	st, err := doc.Stream(entry)
	if err != nil || st == nil {
		return pdferr.Errorf(pdferr.KindCorruptStructure, "Do", "XObject %s is not a stream", name)
	}
	switch doc.Name(mustLookup(doc, st.Dict, "Subtype")) {
	case "Image":
		f.image(st, false)
		return nil
	case "Form":
		var ref raw.ObjectRef
		if r, ok := entry.(raw.RefObj); ok {
			ref = r.R
		}
		return f.form(name, ref, st)
	}
	return nil
}

func (f *frame) image(st *raw.StreamObj, inline bool) {
	doc := f.it.doc
	gs := f.gs()
	img := &Image{Stream: st, Inline: inline, Resources: f.resources}
	if w, ok := doc.Number(mustLookup(doc, st.Dict, "Width")); ok {
		img.Width = int(w)
	}
	if h, ok := doc.Number(mustLookup(doc, st.Dict, "Height")); ok {
		img.Height = int(h)
	}
	if b, ok := mustLookup(doc, st.Dict, "ImageMask").(raw.BoolObj); ok {
		img.ImageMask = b.V
	}
	_, img.HasSMask = st.Dict.Get("SMask")
	f.emit(&PaintEvent{
		Kind:   EventImage,
		State:  gs.Snapshot(),
		Image:  img,
		Matrix: gs.CTM,
		Bounds: unitSquare.Transform(gs.CTM),
	})
}

// form draws a form XObject in a nested frame. Self-reference and nesting
// past the recursion limit abort only this form.
func (f *frame) form(name string, ref raw.ObjectRef, st *raw.StreamObj) error {
	it := f.it
	if f.depth+1 > it.opts.RecursionLimit {
		return pdferr.Errorf(pdferr.KindRecursionLimitExceeded, "Do", "form %s nested deeper than %d", name, it.opts.RecursionLimit)
	}
	if !ref.IsZero() {
		if it.active[ref] {
			return pdferr.Errorf(pdferr.KindRecursionLimitExceeded, "Do", "form %s (%s) draws itself", name, ref)
		}
		it.active[ref] = true
		defer delete(it.active, ref)
	}
	content, err := it.doc.DecodeStream(it.ctx, st)
	if err != nil {
		return err
	}
	doc := it.doc
	base := f.gs().Snapshot()
	if m, ok := doc.Numbers(mustLookup(doc, st.Dict, "Matrix")); ok && len(m) == 6 {
		base.CTM = coords.FromSlice(m).Multiply(base.CTM)
	}
	if bbox, ok := doc.Numbers(mustLookup(doc, st.Dict, "BBox")); ok {
		if r, ok := coords.RectFromSlice(bbox); ok {
			r = r.Transform(base.CTM)
			if base.ClipSet {
				base.Clip = base.Clip.Intersect(r)
			} else {
				base.Clip, base.ClipSet = r, true
			}
		}
	}
	res, _ := doc.Dict(mustLookup(doc, st.Dict, "Resources"))
	if res == nil {
		res = f.resources
	}
	return it.run(content, res, base, f.depth+1)
}

func opShading(f *frame, args []raw.Object) error {
	name, err := nameArg(args[0])
	if err != nil {
		return err
	}
	entry, ok := f.resource("Shading", name)
	if !ok {
		return pdferr.Errorf(pdferr.KindCorruptStructure, "sh", "unknown shading %s", name)
	}
	d, err := f.it.doc.Dict(entry)
	if err != nil || d == nil {
		return pdferr.Errorf(pdferr.KindCorruptStructure, "sh", "shading %s is not a dictionary", name)
	}
	gs := f.gs()
	bounds := f.it.page
	if gs.ClipSet {
		bounds = gs.Clip.Intersect(bounds)
	}
	f.emit(&PaintEvent{Kind: EventShading, State: gs.Snapshot(), Shading: d, Bounds: bounds})
	return nil
}

var inlineKeys = map[string]string{
	"BPC": "BitsPerComponent",
	"CS":  "ColorSpace",
	"D":   "Decode",
	"DP":  "DecodeParms",
	"F":   "Filter",
	"H":   "Height",
	"IM":  "ImageMask",
	"I":   "Interpolate",
	"W":   "Width",
	"L":   "Length",
}

var inlineFilters = map[string]string{
	"AHx": "ASCIIHexDecode",
	"A85": "ASCII85Decode",
	"LZW": "LZWDecode",
	"Fl":  "FlateDecode",
	"RL":  "RunLengthDecode",
	"CCF": "CCITTFaxDecode",
	"DCT": "DCTDecode",
}

func expandFilter(o raw.Object) raw.Object {
	switch v := o.(type) {
	case raw.NameObj:
		if full, ok := inlineFilters[v.Val]; ok {
			return raw.Name(full)
		}
	case *raw.ArrayObj:
		items := make([]raw.Object, len(v.Items))
		for i, it := range v.Items {
			items[i] = expandFilter(it)
		}
		return raw.NewArray(items...)
	}
	return o
}

// inlineImage reads a BI ... ID ... EI sequence with the scanner just
// past BI and emits it as an image event.
func (f *frame) inlineImage(s *scanner.Scanner) error {
	dict := raw.Dict()
	for {
		tok, err := s.Next()
		if err != nil {
			return fmt.Errorf("inline image header: %w", err)
		}
		if tok.Keyword() == "ID" {
			break
		}
		if tok.Type != scanner.TokenName {
			return fmt.Errorf("inline image header: unexpected %s", tok.Type)
		}
		key, _ := tok.Value.(string)
		valTok, err := s.Next()
		if err != nil {
			return fmt.Errorf("inline image header: %w", err)
		}
		val, err := s.ObjectFrom(valTok)
		if err != nil {
			return fmt.Errorf("inline image %s: %w", key, err)
		}
		if full, ok := inlineKeys[key]; ok {
			key = full
		}
		if key == "Filter" {
			val = expandFilter(val)
		}
		dict.Set(key, val)
	}
	data, err := s.InlineImageData(f.inlineSize(dict))
	if err != nil {
		return err
	}
	f.image(raw.NewStream(dict, data), true)
	return nil
}

// inlineSize returns the expected sample byte count of an unfiltered
// inline image, or -1 when the data has to be delimited by EI.
func (f *frame) inlineSize(d *raw.DictObj) int64 {
	if n, ok := raw.Number(mustLookup(f.it.doc, d, "Length")); ok && n > 0 {
		return int64(n)
	}
	if _, filtered := d.Get("Filter"); filtered {
		return -1
	}
	w, okW := raw.Number(mustLookup(f.it.doc, d, "Width"))
	h, okH := raw.Number(mustLookup(f.it.doc, d, "Height"))
	if !okW || !okH || w <= 0 || h <= 0 {
		return -1
	}
	bpc, comps := 8.0, 1
	if b, ok := raw.Number(mustLookup(f.it.doc, d, "BitsPerComponent")); ok && b > 0 {
		bpc = b
	}
	if mask, ok := mustLookup(f.it.doc, d, "ImageMask").(raw.BoolObj); ok && mask.V {
		bpc, comps = 1, 1
	} else if csObj, ok := d.Get("ColorSpace"); ok {
		cs, _ := resolveColorSpace(f.it.doc, csObj, f.resources, 0)
		if cs.N > 0 {
			comps = cs.N
		}
	}
	rowBytes := (int64(w)*int64(comps)*int64(bpc) + 7) / 8
	return rowBytes * int64(h)
}
