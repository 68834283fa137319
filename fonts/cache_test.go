package fonts

import (
	"context"
	"sync"
	"testing"

	"github.com/wudi/pdf2html/contentstream"
	"github.com/wudi/pdf2html/coords"
	"github.com/wudi/pdf2html/ir/raw"
)

func trueTypeDoc() (*raw.Document, *raw.DictObj) {
	program := buildTestFont()
	doc := newDoc(memLoader{
		raw.ObjectRef{Num: 5}: raw.NewStream(raw.Dict(), program),
		raw.ObjectRef{Num: 6}: dict(
			"Subtype", raw.Name("TrueType"),
			"BaseFont", raw.Name("Test"),
			"FirstChar", raw.Int(65),
			"Widths", ints(500, 510, 520),
			"FontDescriptor", dict("Flags", raw.Int(32), "FontFile2", raw.Ref(5, 0)),
		),
	})
	d, _ := doc.Dict(raw.Ref(6, 0))
	return doc, d
}

func TestCacheSharesExtraction(t *testing.T) {
	doc, d := trueTypeDoc()
	c := NewCache(nil)
	ref := raw.ObjectRef{Num: 6}
	var wg sync.WaitGroup
	got := make([]*ExtractedFont, 8)
	for i := range got {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			got[i], _ = c.Extract(context.Background(), doc, ref, d)
		}(i)
	}
	wg.Wait()
	for i, f := range got {
		if f == nil || f != got[0] {
			t.Fatalf("extraction %d returned a different font", i)
		}
	}
	if n := len(c.Fonts()); n != 1 {
		t.Fatalf("cache holds %d fonts, want 1", n)
	}
}

func TestFinalizeSubsetsUsedGlyphs(t *testing.T) {
	doc, d := trueTypeDoc()
	c := NewCache(nil)
	font, err := c.Font(context.Background(), doc, raw.ObjectRef{Num: 6}, d)
	if err != nil {
		t.Fatalf("Font: %v", err)
	}
	a := NewAnalyzer()
	st := contentstream.NewGraphicsState(coords.Identity())
	st.Text.Font = font
	var placed []contentstream.GlyphPlacement
	for _, g := range font.Decode([]byte("C")) {
		placed = append(placed, contentstream.GlyphPlacement{Glyph: g})
	}
	a.Paint(&contentstream.PaintEvent{Kind: contentstream.EventText, State: st, Glyphs: placed})
	f := Unwrap(font)
	if got := f.UsedGlyphs(); len(got) != 1 || got[0] != 3 {
		t.Fatalf("used glyphs = %v, want [3]", got)
	}

	if err := c.Finalize(context.Background()); err != nil {
		t.Fatalf("Finalize: %v", err)
	}
	if f.WOFF == nil || len(f.Hash) != 32 || f.Family != "f"+f.Hash {
		t.Fatalf("font not finalized: hash=%q family=%q", f.Hash, f.Family)
	}
	program, err := UnwrapWOFF(f.WOFF)
	if err != nil {
		t.Fatalf("UnwrapWOFF: %v", err)
	}
	if ContentHash(program) != f.Hash {
		t.Fatalf("hash does not identify the subset program")
	}
	m, err := readMetrics(program)
	if err != nil {
		t.Fatalf("subset program: %v", err)
	}
	if m.NumGlyphs != 4 {
		t.Fatalf("subset keeps %d glyphs, want 4", m.NumGlyphs)
	}
}

func TestIdenticalProgramsShareHash(t *testing.T) {
	finalize := func() string {
		doc, d := trueTypeDoc()
		c := NewCache(nil)
		font, _ := c.Font(context.Background(), doc, raw.ObjectRef{Num: 6}, d)
		Unwrap(font).UseText(1, "A")
		Unwrap(font).UseText(2, "B")
		if err := c.Finalize(context.Background()); err != nil {
			t.Fatalf("Finalize: %v", err)
		}
		return Unwrap(font).Hash
	}
	if a, b := finalize(), finalize(); a == "" || a != b {
		t.Fatalf("hashes differ: %q vs %q", a, b)
	}
}

func TestFinalizeCancelled(t *testing.T) {
	doc, d := trueTypeDoc()
	c := NewCache(nil)
	if _, err := c.Extract(context.Background(), doc, raw.ObjectRef{Num: 6}, d); err != nil {
		t.Fatalf("Extract: %v", err)
	}
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	if err := c.Finalize(ctx); err == nil {
		t.Fatalf("expected error from cancelled Finalize")
	}
}
