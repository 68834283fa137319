package layout

import (
	"context"
	"errors"
	"math"
	"testing"

	"github.com/google/go-cmp/cmp"

	"github.com/wudi/pdf2html/contentstream"
	"github.com/wudi/pdf2html/coords"
	"github.com/wudi/pdf2html/fonts"
	"github.com/wudi/pdf2html/ir/raw"
)

type memLoader map[raw.ObjectRef]raw.Object

func (m memLoader) Load(ref raw.ObjectRef) (raw.Object, error) {
	o, ok := m[ref]
	if !ok {
		return nil, errors.New("missing object")
	}
	return o, nil
}

func (m memLoader) Decode(_ context.Context, s *raw.StreamObj) ([]byte, error) { return s.Data, nil }

func (m memLoader) Refs() []raw.ObjectRef { return nil }

func dict(kv ...any) *raw.DictObj {
	d := raw.Dict()
	for i := 0; i+1 < len(kv); i += 2 {
		d.Set(kv[i].(string), kv[i+1].(raw.Object))
	}
	return d
}

const pageW, pageH = 612.0, 792.0

// resources declares /F1 as Helvetica, /F2 as a font without a usable
// dictionary, and /Im1 as a one-pixel opaque image.
func resources() *raw.DictObj {
	helvetica := dict(
		"Type", raw.Name("Font"),
		"Subtype", raw.Name("Type1"),
		"BaseFont", raw.Name("Helvetica"),
		"Encoding", raw.Name("WinAnsiEncoding"),
	)
	bare := dict(
		"Subtype", raw.Name("Type1"),
		"BaseFont", raw.Name("Custom"),
		"FirstChar", raw.Int(65),
		"Widths", raw.NewArray(raw.Int(500), raw.Int(500)),
	)
	img := raw.NewStream(dict(
		"Subtype", raw.Name("Image"),
		"Width", raw.Int(1),
		"Height", raw.Int(1),
		"BitsPerComponent", raw.Int(8),
		"ColorSpace", raw.Name("DeviceGray"),
	), []byte{0})
	return dict(
		"Font", dict("F1", helvetica, "F2", bare),
		"XObject", dict("Im1", img),
	)
}

func layoutRuns(t *testing.T, content string) []TextRun {
	t.Helper()
	doc := raw.NewDocument("1.7", raw.Dict(), memLoader{})
	e := NewEngine(pageW, pageH)
	opts := contentstream.Options{Fonts: fonts.NewCache(nil)}
	base := contentstream.NewGraphicsState(coords.Identity())
	err := contentstream.Run(context.Background(), doc, []byte(content), resources(), base, e.page(), e, opts)
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	return e.Runs()
}

type runSummary struct {
	Text       string
	Visibility Visibility
}

func summarize(runs []TextRun) []runSummary {
	out := make([]runSummary, len(runs))
	for i, r := range runs {
		out[i] = runSummary{r.Text, r.Visibility}
	}
	return out
}

func TestCoordinateMapping(t *testing.T) {
	runs := layoutRuns(t, "BT /F1 12 Tf 100 700 Td (x) Tj ET")
	if len(runs) != 1 {
		t.Fatalf("got %d runs, want 1", len(runs))
	}
	r := runs[0]
	if r.X != 100 || r.Y != 92 || r.Size != 12 {
		t.Fatalf("run at (%v, %v) size %v, want (100, 92) size 12", r.X, r.Y, r.Size)
	}
	if r.Text != "x" || r.Font == nil || r.Font.BaseFont != "Helvetica" {
		t.Fatalf("run text %q font %+v", r.Text, r.Font)
	}
	if !r.Upright() {
		t.Fatalf("upright text reported as transformed: %v", r.Transform())
	}
}

func TestCoordinateRoundTrip(t *testing.T) {
	runs := layoutRuns(t, "BT /F1 9 Tf 1 0 0 1 37.25 411.5 Tm (a) Tj 0 -13.7 Td (b) Tj ET 2 0 0 2 10 10 cm BT /F1 5 Tf 3 7 Td (c) Tj ET")
	want := []coords.Point{{X: 37.25, Y: 411.5}, {X: 37.25, Y: 397.8}, {X: 16, Y: 24}}
	if len(runs) != len(want) {
		t.Fatalf("got %d runs, want %d", len(runs), len(want))
	}
	for i, r := range runs {
		src := r.SourcePoint(pageH)
		if math.Hypot(src.X-want[i].X, src.Y-want[i].Y) > 0.5 {
			t.Errorf("run %d maps back to %v, want %v", i, src, want[i])
		}
		inv, err := r.Matrix.Inverse()
		if err != nil {
			t.Fatalf("run %d matrix not invertible", i)
		}
		o := inv.Transform(src)
		if math.Hypot(o.X, o.Y) > 0.5 {
			t.Errorf("run %d origin in text space = %v, want (0, 0)", i, o)
		}
	}
}

func TestOcclusionByLaterImage(t *testing.T) {
	// Helvetica 12pt: "A" spans x 100..106.67, "B" 106.67..113.34; the
	// image covers x 99..107.
	runs := layoutRuns(t, "BT /F1 12 Tf 100 700 Td (AB) Tj ET q 8 0 0 20 99 690 cm /Im1 Do Q")
	want := []runSummary{{"A", Occluded}, {"B", Visible}}
	if diff := cmp.Diff(want, summarize(runs)); diff != "" {
		t.Fatalf("runs (-want +got):\n%s", diff)
	}
}

func TestOcclusionRules(t *testing.T) {
	tests := []struct {
		name    string
		content string
		want    Visibility
	}{
		{"later fill", "BT /F1 12 Tf 100 700 Td (A) Tj ET 90 690 30 30 re f", Occluded},
		{"earlier fill", "90 690 30 30 re f BT /F1 12 Tf 100 700 Td (A) Tj ET", Visible},
		{"stroke", "BT /F1 12 Tf 100 700 Td (A) Tj ET 20 w 90 690 30 30 re S", Visible},
		{"translucent", "BT /F1 12 Tf 100 700 Td (A) Tj ET /GS1 gs 90 690 30 30 re f", Visible},
		{"clipped fill", "BT /F1 12 Tf 100 700 Td (A) Tj ET 0 0 50 50 re W n 90 690 30 30 re f", Visible},
		{"even-odd hole", "BT /F1 12 Tf 100 700 Td (A) Tj ET 50 650 100 100 re 95 690 20 30 re f*", Visible},
		{"nonzero fills hole", "BT /F1 12 Tf 100 700 Td (A) Tj ET 50 650 100 100 re 95 690 20 30 re f", Occluded},
		{"invisible mode", "BT /F1 12 Tf 3 Tr 100 700 Td (A) Tj ET", Invisible},
		{"clip away", "0 0 50 50 re W n BT /F1 12 Tf 100 700 Td (A) Tj ET", Occluded},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			content := tt.content
			res := resources()
			res.Set("ExtGState", dict("GS1", dict("ca", raw.Real(0.5))))
			doc := raw.NewDocument("1.7", raw.Dict(), memLoader{})
			e := NewEngine(pageW, pageH)
			err := contentstream.Run(context.Background(), doc, []byte(content), res,
				contentstream.NewGraphicsState(coords.Identity()), e.page(), e,
				contentstream.Options{Fonts: fonts.NewCache(nil)})
			if err != nil {
				t.Fatalf("Run: %v", err)
			}
			runs := e.Runs()
			if len(runs) != 1 || runs[0].Visibility != tt.want {
				t.Fatalf("runs = %v, want one %v run", summarize(runs), tt.want)
			}
		})
	}
}

func TestRunSplitting(t *testing.T) {
	tests := []struct {
		name    string
		content string
		want    []string
	}{
		{"same line", "BT /F1 12 Tf 100 700 Td (A) Tj (B) Tj ET", []string{"AB"}},
		{"state no-op", "BT /F1 12 Tf 100 700 Td (A) Tj 0 g 0 Tc (B) Tj ET", []string{"AB"}},
		{"colour", "BT /F1 12 Tf 100 700 Td (A) Tj 1 0 0 rg (B) Tj ET", []string{"A", "B"}},
		{"size", "BT /F1 12 Tf 100 700 Td (A) Tj /F1 14 Tf (B) Tj ET", []string{"A", "B"}},
		{"font", "BT /F1 12 Tf 100 700 Td (A) Tj /F2 12 Tf (B) Tj ET", []string{"A", "B"}},
		{"baseline", "BT /F1 12 Tf 100 700 Td (A) Tj 5 Ts (B) Tj ET", []string{"A", "B"}},
		{"small rise", "BT /F1 12 Tf 100 700 Td (A) Tj 0.3 Ts (B) Tj ET", []string{"AB"}},
		{"path between", "BT /F1 12 Tf 100 700 Td (A) Tj ET 0 0 1 1 re S BT /F1 12 Tf 106.672 700 Td (B) Tj ET", []string{"A", "B"}},
		{"gap with space glyph", "BT /F1 12 Tf 100 700 Td (A) Tj 20 0 Td (B) Tj ET", []string{"A", "B"}},
		{"explicit space", "BT /F1 12 Tf 100 700 Td (A B) Tj ET", []string{"A B"}},
		{"backwards", "BT /F1 12 Tf 100 700 Td (A) Tj -50 0 Td (B) Tj ET", []string{"A", "B"}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			runs := layoutRuns(t, tt.content)
			var got []string
			for _, r := range runs {
				got = append(got, r.Text)
			}
			if diff := cmp.Diff(tt.want, got); diff != "" {
				t.Fatalf("runs (-want +got):\n%s", diff)
			}
		})
	}
}

func TestGapInsertsSpaceWhenFontHasNone(t *testing.T) {
	// Without a font source the fallback font maps no code to a space,
	// so the gap becomes a synthetic space.
	doc := raw.NewDocument("1.7", raw.Dict(), memLoader{})
	e := NewEngine(pageW, pageH)
	base := contentstream.NewGraphicsState(coords.Identity())
	err := contentstream.Run(context.Background(), doc, []byte("BT /F2 10 Tf 100 700 Td (A) Tj 20 0 Td (B) Tj ET"),
		resources(), base, e.page(), e, contentstream.Options{})
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	runs := e.Runs()
	if len(runs) != 1 {
		t.Fatalf("got %d runs, want 1", len(runs))
	}
	g := runs[0].Glyphs
	if len(g) != 3 || !g[1].Synthetic || g[1].Text != " " {
		t.Fatalf("glyphs = %+v", g)
	}
	if math.Abs(g[2].Offset-20) > 1e-6 || math.Abs(g[1].Advance-15) > 1e-6 {
		t.Fatalf("offsets: space advance %v, B at %v", g[1].Advance, g[2].Offset)
	}
}

func TestRotatedRun(t *testing.T) {
	runs := layoutRuns(t, "BT /F1 10 Tf 0 1 -1 0 300 400 Tm (AB) Tj ET")
	if len(runs) != 1 {
		t.Fatalf("got %d runs, want 1", len(runs))
	}
	r := runs[0]
	if r.Upright() || r.X != 300 || r.Y != pageH-400 || r.Size != 10 {
		t.Fatalf("run = %+v", r)
	}
	if r.Width <= 0 {
		t.Fatalf("width = %v", r.Width)
	}
}

func TestHorizontalScaling(t *testing.T) {
	runs := layoutRuns(t, "BT /F1 12 Tf 50 Tz 100 700 Td (hello) Tj ET")
	if len(runs) != 1 {
		t.Fatalf("got %d runs, want 1", len(runs))
	}
	r := runs[0]
	if r.Upright() {
		t.Fatalf("scaled text reported as upright: %v", r.Transform())
	}
	if tr := r.Transform(); math.Abs(tr[0]-0.5) > 1e-9 || math.Abs(tr[3]-1) > 1e-9 {
		t.Fatalf("transform = %v, want x scale 0.5", tr)
	}
}

func TestCharacterSpacing(t *testing.T) {
	// Helvetica a, b, c: 556, 556, 500; 1 Tc adds 1 unit after each.
	runs := layoutRuns(t, "BT /F1 12 Tf 1 Tc 100 700 Td (abc) Tj ET")
	if len(runs) != 1 || runs[0].Text != "abc" {
		t.Fatalf("runs = %v", summarize(runs))
	}
	r := runs[0]
	if math.Abs(r.Width-23.344) > 1e-6 {
		t.Fatalf("width = %v, want 23.344", r.Width)
	}
	if s := r.Spacing(); math.Abs(s-1) > 1e-6 {
		t.Fatalf("spacing = %v, want 1", s)
	}

	plain := layoutRuns(t, "BT /F1 12 Tf 100 700 Td (abc) Tj ET")
	if s := plain[0].Spacing(); s != 0 {
		t.Fatalf("unspaced run spacing = %v", s)
	}
}

func TestNFCNormalization(t *testing.T) {
	e := NewEngine(pageW, pageH)
	st := contentstream.NewGraphicsState(coords.Identity())
	mk := func(text string, x float64) contentstream.GlyphPlacement {
		return contentstream.GlyphPlacement{
			Glyph:  contentstream.Glyph{Text: text, Width: 0},
			Matrix: coords.Matrix{10, 0, 0, 10, x, 100},
		}
	}
	e.Paint(&contentstream.PaintEvent{Kind: contentstream.EventText, State: st,
		Glyphs: []contentstream.GlyphPlacement{mk("e", 10), mk("\u0301", 10)}})
	runs := e.Runs()
	if len(runs) != 1 || runs[0].Text != "\u00e9" {
		t.Fatalf("runs = %v", summarize(runs))
	}
}

func TestType3TextIsPainted(t *testing.T) {
	e := NewEngine(pageW, pageH)
	e.Paint(&contentstream.PaintEvent{
		Kind:   contentstream.EventText,
		State:  contentstream.NewGraphicsState(coords.Identity()),
		Type3:  true,
		Glyphs: []contentstream.GlyphPlacement{{Glyph: contentstream.Glyph{Text: "a", Width: 500}, Matrix: coords.Matrix{10, 0, 0, 10, 0, 0}}},
	})
	runs := e.Runs()
	if len(runs) != 1 || runs[0].Visibility != Painted || !runs[0].Visibility.Transparent() {
		t.Fatalf("runs = %v", summarize(runs))
	}
}
