package contentstream

import (
	"context"

	"github.com/wudi/pdf2html/coords"
	"github.com/wudi/pdf2html/ir/raw"
)

// Glyph is one character code decoded from a shown string.
type Glyph struct {
	Code uint32
	// Len is the number of string bytes the code occupied.
	Len int
	// CID and GID identify the glyph in composite and embedded fonts.
	CID int
	GID int
	// Width is the horizontal advance in glyph units (1/1000 em).
	Width float64
	Text  string
	// Name is the glyph name from the encoding, if any.
	Name string
}

// Font decodes shown strings into glyphs.
type Font interface {
	Decode(s []byte) []Glyph
	// Ascent and Descent are in 1/1000 em; Descent is negative.
	Ascent() float64
	Descent() float64
}

// Type3Font is a font whose glyphs are content stream procedures.
type Type3Font interface {
	Font
	CharProc(g Glyph) *raw.StreamObj
	FontMatrix() coords.Matrix
	Resources() *raw.DictObj
}

// FontSource resolves font resources. ref is the font dictionary's object
// id, or zero for direct dictionaries.
type FontSource interface {
	Font(ctx context.Context, doc *raw.Document, ref raw.ObjectRef, dict *raw.DictObj) (Font, error)
}

// fallbackFont stands in when no font could be loaded: single-byte
// codes, widths from /Widths when present, and unmapped text.
type fallbackFont struct {
	first  int
	widths []float64
}

func newFallbackFont(doc *raw.Document, dict *raw.DictObj) *fallbackFont {
	f := &fallbackFont{}
	if dict == nil || doc == nil {
		return f
	}
	if fc, ok := doc.Number(mustLookup(doc, dict, "FirstChar")); ok {
		f.first = int(fc)
	}
	if w, ok := doc.Numbers(mustLookup(doc, dict, "Widths")); ok {
		f.widths = w
	}
	return f
}

func (f *fallbackFont) Decode(s []byte) []Glyph {
	out := make([]Glyph, len(s))
	for i, c := range s {
		w := 500.0
		if idx := int(c) - f.first; idx >= 0 && idx < len(f.widths) {
			w = f.widths[idx]
		}
		out[i] = Glyph{Code: uint32(c), Len: 1, CID: int(c), GID: int(c), Width: w, Text: "�"}
	}
	return out
}

func (f *fallbackFont) Ascent() float64  { return 750 }
func (f *fallbackFont) Descent() float64 { return -250 }
