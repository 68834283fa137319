// Package fonts extracts embedded font programs, maps character codes to
// Unicode and glyphs, subsets TrueType programs to the glyphs actually
// painted, wraps bare CFF programs as OpenType and serves every embedded
// program as WOFF with a cmap built from the painted text.
package fonts

import (
	"sync"

	"github.com/wudi/pdf2html/contentstream"
	"github.com/wudi/pdf2html/coords"
	"github.com/wudi/pdf2html/ir/raw"
)

// ProgramKind classifies the embedded font program.
type ProgramKind int

const (
	// ProgramNone is a non-embedded font, rendered with a CSS substitute.
	ProgramNone ProgramKind = iota
	ProgramTrueType
	ProgramOpenType
	ProgramCFF
	ProgramType1
	ProgramType3
)

func (k ProgramKind) String() string {
	switch k {
	case ProgramTrueType:
		return "truetype"
	case ProgramOpenType:
		return "opentype"
	case ProgramCFF:
		return "cff"
	case ProgramType1:
		return "type1"
	case ProgramType3:
		return "type3"
	}
	return "none"
}

// Embeddable reports whether the kind is served as a web font.
func (k ProgramKind) Embeddable() bool {
	return k == ProgramTrueType || k == ProgramOpenType || k == ProgramCFF
}

// Placeholder is the text of codes with no Unicode mapping.
const Placeholder = "�"

// ExtractedFont is a font resource resolved for conversion. It decodes
// shown strings for the interpreter and carries the web font produced
// by Finalize.
type ExtractedFont struct {
	// Key identifies the font dictionary within its document.
	Key      string
	BaseFont string
	Subtype  string
	Kind     ProgramKind
	// Composite is set for Type0 fonts.
	Composite bool
	Vertical  bool

	// Family is the CSS family for substituted fonts; embedded fonts use
	// their hash after Finalize.
	Family  string
	Generic string
	Bold    bool
	Italic  bool

	// Substituted is set when the program is absent or could not be used.
	Substituted bool
	// Warning records why the program was substituted.
	Warning error

	// WOFF and Hash are filled by Finalize for embeddable fonts.
	WOFF []byte
	Hash string

	program []byte
	cff     *cffInfo
	ascent  float64
	descent float64

	widths       map[uint32]float64
	defaultWidth float64
	toUnicode    *CMap
	encoding     *simpleEncoding
	cmap         *CMap
	cidToGID     []uint16
	identityGID  bool
	codeToGID    *[256]uint16

	charProcs  map[string]*raw.StreamObj
	fontMatrix coords.Matrix
	resources  *raw.DictObj

	mu       sync.Mutex
	used     glyphSet
	usedText map[glyphText]struct{}
	unicode  *unicodeMap
}

// Extracted returns f; wrappers embed it to expose the underlying font.
func (f *ExtractedFont) Extracted() *ExtractedFont { return f }

// Ascent is in 1/1000 em.
func (f *ExtractedFont) Ascent() float64 { return f.ascent }

// Descent is in 1/1000 em and negative.
func (f *ExtractedFont) Descent() float64 { return f.descent }

// HasSpace reports whether the font maps some code to U+0020.
func (f *ExtractedFont) HasSpace() bool {
	if f.toUnicode != nil {
		if s, ok := f.toUnicode.Text(32, 1); ok && s == " " {
			return true
		}
	}
	return !f.Composite && f.encoding != nil && f.encoding.text[32] == " "
}

// Decode splits s into character codes and resolves each code's width,
// glyph id and text.
func (f *ExtractedFont) Decode(s []byte) []contentstream.Glyph {
	if f.Composite {
		return f.decodeComposite(s)
	}
	out := make([]contentstream.Glyph, len(s))
	for i, c := range s {
		g := contentstream.Glyph{Code: uint32(c), Len: 1, CID: int(c), GID: int(c), Width: f.width(uint32(c))}
		if f.codeToGID != nil {
			g.GID = int(f.codeToGID[c])
		}
		if f.encoding != nil {
			g.Name = f.encoding.names[c]
		}
		g.Text = f.text(uint32(c), 1)
		out[i] = g
	}
	return out
}

func (f *ExtractedFont) decodeComposite(s []byte) []contentstream.Glyph {
	var out []contentstream.Glyph
	for len(s) > 0 {
		code, n := f.cmap.Next(s)
		s = s[n:]
		cid, ok := f.cmap.CID(code, n)
		if !ok {
			cid = 0
		}
		gid := cid
		if !f.identityGID {
			if cid < len(f.cidToGID) {
				gid = int(f.cidToGID[cid])
			} else {
				gid = 0
			}
		}
		out = append(out, contentstream.Glyph{
			Code:  code,
			Len:   n,
			CID:   cid,
			GID:   gid,
			Width: f.width(uint32(cid)),
			Text:  f.text(code, n),
		})
	}
	return out
}

func (f *ExtractedFont) width(key uint32) float64 {
	if w, ok := f.widths[key]; ok {
		return w
	}
	return f.defaultWidth
}

func (f *ExtractedFont) text(code uint32, n int) string {
	if f.toUnicode != nil {
		if s, ok := f.toUnicode.Text(code, n); ok && s != "" {
			return s
		}
	}
	if !f.Composite && n == 1 && f.encoding != nil {
		if s := f.encoding.text[code&0xff]; s != "" {
			return s
		}
	}
	return Placeholder
}

// UseText records a glyph painted for text. The pairs decide the cmap
// of the web font.
func (f *ExtractedFont) UseText(gid int, text string) {
	if gid < 0 || gid > 0xffff {
		return
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.used == nil {
		f.used = make(glyphSet)
	}
	if f.usedText == nil {
		f.usedText = make(map[glyphText]struct{})
	}
	f.used.add(uint16(gid))
	f.usedText[glyphText{gid: uint16(gid), text: text}] = struct{}{}
}

// Display returns what to write in HTML to show glyph gid painted for
// text: text itself, or the private use code point the web font maps to
// the glyph when text cannot select it. It is text until Finalize ran.
func (f *ExtractedFont) Display(gid int, text string) string {
	f.mu.Lock()
	u := f.unicode
	f.mu.Unlock()
	if u == nil || gid < 0 || gid > 0xffff {
		return text
	}
	if r, ok := u.remap[glyphText{gid: uint16(gid), text: text}]; ok {
		return string(r)
	}
	return text
}

// UsedGlyphs returns the recorded glyph ids in ascending order.
func (f *ExtractedFont) UsedGlyphs() []uint16 {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.used.sorted()
}

// type3Font exposes glyph procedures to the interpreter.
type type3Font struct {
	*ExtractedFont
}

func (f type3Font) CharProc(g contentstream.Glyph) *raw.StreamObj {
	name := ""
	if f.encoding != nil && g.Code < 256 {
		name = f.encoding.names[g.Code]
	}
	return f.charProcs[name]
}

func (f type3Font) FontMatrix() coords.Matrix { return f.fontMatrix }
func (f type3Font) Resources() *raw.DictObj   { return f.resources }

// Unwrap returns the ExtractedFont behind an interpreter font, or nil for
// fonts this package did not produce.
func Unwrap(font contentstream.Font) *ExtractedFont {
	if x, ok := font.(interface{ Extracted() *ExtractedFont }); ok {
		return x.Extracted()
	}
	return nil
}
