package fonts

import (
	"context"
	"fmt"
	"strings"

	"golang.org/x/image/font/sfnt"

	"github.com/wudi/pdf2html/coords"
	"github.com/wudi/pdf2html/ir/raw"
	"github.com/wudi/pdf2html/pdferr"
)

// Font descriptor flags.
const (
	flagFixedPitch = 1 << 0
	flagSerif      = 1 << 1
	flagSymbolic   = 1 << 2
	flagItalic     = 1 << 6
	flagForceBold  = 1 << 18
)

// extract builds the ExtractedFont for dict. Problems with the embedded
// program never fail extraction; they set Substituted and Warning.
func extract(ctx context.Context, doc *raw.Document, key string, dict *raw.DictObj) (*ExtractedFont, error) {
	look := func(d *raw.DictObj, k string) raw.Object {
		o, _ := doc.Lookup(d, k)
		return o
	}
	f := &ExtractedFont{
		Key:          key,
		Subtype:      doc.Name(look(dict, "Subtype")),
		BaseFont:     doc.Name(look(dict, "BaseFont")),
		widths:       make(map[uint32]float64),
		defaultWidth: 1000,
		ascent:       800,
		descent:      -200,
	}
	if tu, _ := doc.Stream(look(dict, "ToUnicode")); tu != nil {
		if data, err := doc.DecodeStream(ctx, tu); err == nil {
			f.toUnicode, _ = ParseCMap(data)
		}
	}

	descFont := dict
	switch f.Subtype {
	case "Type0":
		f.Composite = true
		kids, _ := doc.Array(look(dict, "DescendantFonts"))
		if kids == nil || kids.Len() == 0 {
			return nil, pdferr.Errorf(pdferr.KindFontError, "font "+key, "Type0 font without descendant")
		}
		first, _ := kids.Get(0)
		cid, err := doc.Dict(first)
		if err != nil || cid == nil {
			return nil, pdferr.Errorf(pdferr.KindFontError, "font "+key, "bad descendant font")
		}
		descFont = cid
		if f.BaseFont == "" {
			f.BaseFont = doc.Name(look(cid, "BaseFont"))
		}
		if err := f.compositeEncoding(ctx, doc, look(dict, "Encoding")); err != nil {
			return nil, err
		}
		f.cidWidths(doc, cid)
		f.cidGlyphs(ctx, doc, look(cid, "CIDToGIDMap"))
	case "Type3":
		f.Kind = ProgramType3
		f.type3(doc, dict)
		return f, nil
	default:
		f.simpleWidths(doc, dict)
	}

	desc, _ := doc.Dict(look(descFont, "FontDescriptor"))
	flags := 0
	if desc != nil {
		if v, ok := doc.Number(look(desc, "Flags")); ok {
			flags = int(v)
		}
		if a, ok := doc.Number(look(desc, "Ascent")); ok && a != 0 {
			f.ascent = a
		}
		if d, ok := doc.Number(look(desc, "Descent")); ok && d != 0 {
			f.descent = -abs(d)
		}
		if w, ok := doc.Number(look(desc, "FontWeight")); ok && w >= 600 {
			f.Bold = true
		}
		if a, ok := doc.Number(look(desc, "ItalicAngle")); ok && a != 0 {
			f.Italic = true
		}
		if !f.Composite {
			if mw, ok := doc.Number(look(desc, "MissingWidth")); ok {
				f.defaultWidth = mw
			}
		}
	}
	f.Bold = f.Bold || flags&flagForceBold != 0 || nameHas(f.BaseFont, "bold", "black", "heavy")
	f.Italic = f.Italic || flags&flagItalic != 0 || nameHas(f.BaseFont, "italic", "oblique")
	if !f.Composite {
		f.encoding = fontEncoding(doc, dict, f.BaseFont, flags&flagSymbolic != 0)
	}

	f.loadProgram(ctx, doc, desc)
	if f.Kind == ProgramTrueType && !f.Composite && !f.Substituted {
		f.simpleGlyphIDs(flags&flagSymbolic != 0)
	}
	if f.Kind == ProgramCFF && !f.Substituted {
		f.cffGlyphIDs()
	}
	if !f.Kind.Embeddable() || f.Substituted {
		f.Substituted = true
		f.Family, f.Generic = substituteFamily(f.BaseFont, flags)
	}
	return f, nil
}

func abs(v float64) float64 {
	if v < 0 {
		return -v
	}
	return v
}

func nameHas(name string, words ...string) bool {
	lower := strings.ToLower(name)
	for _, w := range words {
		if strings.Contains(lower, w) {
			return true
		}
	}
	return false
}

// loadProgram classifies and reads the embedded program.
func (f *ExtractedFont) loadProgram(ctx context.Context, doc *raw.Document, desc *raw.DictObj) {
	if desc == nil {
		return
	}
	var st *raw.StreamObj
	switch {
	case has(desc, "FontFile2"):
		f.Kind = ProgramTrueType
		st, _ = doc.Stream(lookup(doc, desc, "FontFile2"))
	case has(desc, "FontFile3"):
		st, _ = doc.Stream(lookup(doc, desc, "FontFile3"))
		if st != nil && doc.Name(lookup(doc, st.Dict, "Subtype")) == "OpenType" {
			f.Kind = ProgramOpenType
		} else {
			f.Kind = ProgramCFF
		}
	case has(desc, "FontFile"):
		f.Kind = ProgramType1
		st, _ = doc.Stream(lookup(doc, desc, "FontFile"))
	default:
		return
	}
	if st == nil {
		f.substitute(fmt.Errorf("%s program is not a stream", f.Kind))
		return
	}
	data, err := doc.DecodeStream(ctx, st)
	if err != nil {
		f.substitute(fmt.Errorf("decode %s program: %w", f.Kind, err))
		return
	}
	switch f.Kind {
	case ProgramTrueType, ProgramOpenType:
		m, err := readMetrics(data)
		if err != nil {
			f.substitute(err)
			return
		}
		f.program = data
		if m.Ascent != 0 && f.ascent == 800 {
			f.ascent, f.descent = m.Ascent, m.Descent
		}
	case ProgramCFF:
		info, err := loadCFF(data)
		if err != nil {
			f.substitute(err)
			return
		}
		f.program, f.cff = data, info
	case ProgramType1:
		info, err := readType1(data)
		if err != nil {
			f.substitute(err)
			return
		}
		f.substitute(fmt.Errorf("Type 1 program %q is not converted to a web font", info.FontName))
	}
}

func (f *ExtractedFont) substitute(err error) {
	f.Substituted = true
	f.Warning = pdferr.New(pdferr.KindFontError, "font "+f.BaseFont, err)
}

func has(d *raw.DictObj, key string) bool {
	_, ok := d.Get(key)
	return ok
}

func lookup(doc *raw.Document, d *raw.DictObj, key string) raw.Object {
	o, _ := doc.Lookup(d, key)
	return o
}

func (f *ExtractedFont) simpleWidths(doc *raw.Document, dict *raw.DictObj) {
	first, _ := doc.Number(lookup(doc, dict, "FirstChar"))
	widths, _ := doc.Numbers(lookup(doc, dict, "Widths"))
	for i, w := range widths {
		f.widths[uint32(int(first)+i)] = w
	}
	if len(widths) > 0 {
		f.defaultWidth = 0
	} else if w, ok := standardWidth(f.BaseFont); ok {
		f.defaultWidth = w
	} else {
		f.defaultWidth = 500
	}
}

// compositeEncoding sets the code-to-CID CMap of a Type0 font.
func (f *ExtractedFont) compositeEncoding(ctx context.Context, doc *raw.Document, enc raw.Object) error {
	if name := doc.Name(enc); name != "" {
		f.cmap = IdentityCMap(name)
		f.Vertical = strings.HasSuffix(name, "-V")
		if !strings.HasPrefix(name, "Identity-") {
			f.Warning = pdferr.Errorf(pdferr.KindFontError, "font "+f.BaseFont, "predefined CMap %s read as Identity", name)
		}
		return nil
	}
	st, _ := doc.Stream(enc)
	if st == nil {
		f.cmap = IdentityCMap("Identity-H")
		return nil
	}
	data, err := doc.DecodeStream(ctx, st)
	if err != nil {
		return pdferr.New(pdferr.KindFontError, "font "+f.BaseFont, err)
	}
	f.cmap, _ = ParseCMap(data)
	if wm, ok := doc.Number(lookup(doc, st.Dict, "WMode")); ok && wm == 1 {
		f.Vertical = true
	}
	return nil
}

// cidWidths reads /DW and the /W array: "c [w1 w2 ...]" and
// "cfirst clast w" forms.
func (f *ExtractedFont) cidWidths(doc *raw.Document, cid *raw.DictObj) {
	if dw, ok := doc.Number(lookup(doc, cid, "DW")); ok {
		f.defaultWidth = dw
	}
	w, _ := doc.Array(lookup(doc, cid, "W"))
	if w == nil {
		return
	}
	items := w.Items
	for i := 0; i < len(items); {
		start, ok := doc.Number(items[i])
		if !ok || i+1 >= len(items) {
			return
		}
		next, _ := doc.Resolve(items[i+1])
		if arr, ok := next.(*raw.ArrayObj); ok {
			for j, item := range arr.Items {
				if v, ok := doc.Number(item); ok {
					f.widths[uint32(int(start)+j)] = v
				}
			}
			i += 2
			continue
		}
		if i+2 >= len(items) {
			return
		}
		end, ok1 := doc.Number(items[i+1])
		v, ok2 := doc.Number(items[i+2])
		if ok1 && ok2 && end >= start && end-start < 1<<16 {
			for c := int(start); c <= int(end); c++ {
				f.widths[uint32(c)] = v
			}
		}
		i += 3
	}
}

func (f *ExtractedFont) cidGlyphs(ctx context.Context, doc *raw.Document, m raw.Object) {
	st, _ := doc.Stream(m)
	if st == nil {
		f.identityGID = true
		return
	}
	data, err := doc.DecodeStream(ctx, st)
	if err != nil {
		f.identityGID = true
		return
	}
	f.cidToGID = make([]uint16, len(data)/2)
	for i := range f.cidToGID {
		f.cidToGID[i] = uint16(data[2*i])<<8 | uint16(data[2*i+1])
	}
}

// simpleGlyphIDs maps single-byte codes to glyph ids through the
// program's cmap: symbolic fonts by the (3,0) convention, others by the
// Unicode value of each code.
func (f *ExtractedFont) simpleGlyphIDs(symbolic bool) {
	font, err := sfnt.Parse(f.program)
	if err != nil {
		return
	}
	var buf sfnt.Buffer
	table := new([256]uint16)
	for c := 0; c < 256; c++ {
		var gid sfnt.GlyphIndex
		if symbolic {
			gid, _ = font.GlyphIndex(&buf, rune(0xf000+c))
			if gid == 0 {
				gid, _ = font.GlyphIndex(&buf, rune(c))
			}
		}
		if gid == 0 && f.encoding != nil {
			if s := []rune(f.encoding.text[c]); len(s) == 1 {
				gid, _ = font.GlyphIndex(&buf, s[0])
			}
		}
		table[c] = uint16(gid)
	}
	f.codeToGID = table
}

// cffGlyphIDs selects CFF glyphs: by CID through the charset for
// CID-keyed programs, by glyph name for simple fonts. CIDToGIDMap does
// not apply to CFF outlines.
func (f *ExtractedFont) cffGlyphIDs() {
	info := f.cff
	if f.Composite {
		f.cidToGID, f.identityGID = nil, info.cids == nil
		for gid, cid := range info.cids {
			if int(cid) >= len(f.cidToGID) {
				f.cidToGID = append(f.cidToGID, make([]uint16, int(cid)+1-len(f.cidToGID))...)
			}
			if f.cidToGID[cid] == 0 {
				f.cidToGID[cid] = uint16(gid)
			}
		}
		return
	}
	byName := make(map[string]uint16, len(info.names))
	for gid, name := range info.names {
		if _, ok := byName[name]; !ok && name != "" && gid > 0 {
			byName[name] = uint16(gid)
		}
	}
	table := new([256]uint16)
	if f.encoding != nil {
		for c, name := range f.encoding.names {
			table[c] = byName[name]
		}
	}
	f.codeToGID = table
}

func (f *ExtractedFont) type3(doc *raw.Document, dict *raw.DictObj) {
	f.Substituted = true
	f.Family, f.Generic = substituteFamily(f.BaseFont, 0)
	f.fontMatrix = coords.Matrix{0.001, 0, 0, 0.001, 0, 0}
	if m, ok := doc.Numbers(lookup(doc, dict, "FontMatrix")); ok && len(m) == 6 {
		f.fontMatrix = coords.FromSlice(m)
	}
	scale := f.fontMatrix[0] * 1000
	if scale == 0 {
		scale = 1
	}
	first, _ := doc.Number(lookup(doc, dict, "FirstChar"))
	widths, _ := doc.Numbers(lookup(doc, dict, "Widths"))
	for i, w := range widths {
		f.widths[uint32(int(first)+i)] = w * scale
	}
	f.defaultWidth = 0
	if bbox, ok := doc.Numbers(lookup(doc, dict, "FontBBox")); ok {
		if r, ok := coords.RectFromSlice(bbox); ok && !r.Empty() {
			r = r.Transform(f.fontMatrix)
			f.ascent, f.descent = r.URY*1000, r.LLY*1000
		}
	}
	f.encoding = fontEncoding(doc, dict, "", false)
	f.charProcs = make(map[string]*raw.StreamObj)
	if procs, _ := doc.Dict(lookup(doc, dict, "CharProcs")); procs != nil {
		for _, name := range procs.Keys() {
			if st, _ := doc.Stream(lookup(doc, procs, name)); st != nil {
				f.charProcs[name] = st
			}
		}
	}
	f.resources, _ = doc.Dict(lookup(doc, dict, "Resources"))
}
