package background

import (
	"bytes"
	"context"
	"errors"
	"image"
	"image/color"
	"image/png"
	"strings"
	"testing"

	"github.com/wudi/pdf2html/contentstream"
	"github.com/wudi/pdf2html/coords"
	"github.com/wudi/pdf2html/fonts"
	"github.com/wudi/pdf2html/ir/raw"
	"github.com/wudi/pdf2html/pdferr"
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

func nums(v ...float64) *raw.ArrayObj {
	a := raw.NewArray()
	for _, x := range v {
		a.Items = append(a.Items, raw.Real(x))
	}
	return a
}

func resources() *raw.DictObj {
	rgb := raw.NewStream(dict(
		"Subtype", raw.Name("Image"),
		"Width", raw.Int(2),
		"Height", raw.Int(1),
		"BitsPerComponent", raw.Int(8),
		"ColorSpace", raw.Name("DeviceRGB"),
	), []byte{0xFF, 0, 0, 0, 0, 0xFF})
	axial := dict(
		"ShadingType", raw.Int(2),
		"ColorSpace", raw.Name("DeviceGray"),
		"Coords", nums(0, 0, 100, 0),
		"Function", dict(
			"FunctionType", raw.Int(2),
			"Domain", nums(0, 1),
			"C0", nums(0),
			"C1", nums(1),
			"N", raw.Int(1),
		),
		"Extend", raw.NewArray(raw.Bool(true), raw.Bool(true)),
	)
	return dict(
		"Font", dict("F1", dict(
			"Type", raw.Name("Font"),
			"Subtype", raw.Name("Type1"),
			"BaseFont", raw.Name("Helvetica"),
		)),
		"XObject", dict("Im1", rgb),
		"ExtGState", dict(
			"Mul", dict("BM", raw.Name("Multiply")),
			"Half", dict("ca", raw.Real(0.5)),
		),
		"Shading", dict("Sh1", axial),
	)
}

func build(t *testing.T, w, h float64, content string) *Builder {
	t.Helper()
	doc := raw.NewDocument("1.7", raw.Dict(), memLoader{})
	b := NewBuilder(doc, w, h)
	opts := contentstream.Options{Fonts: fonts.NewCache(nil)}
	base := contentstream.NewGraphicsState(coords.Identity())
	page := coords.Rect{URX: w, URY: h}
	if err := contentstream.Run(context.Background(), doc, []byte(content), resources(), base, page, b, opts); err != nil {
		t.Fatalf("Run: %v", err)
	}
	return b
}

func repeat(op string, n int) string {
	var sb strings.Builder
	for i := 0; i < n; i++ {
		sb.WriteString(op)
		sb.WriteByte('\n')
	}
	return sb.String()
}

func decodePNG(t *testing.T, l *Layer) image.Image {
	t.Helper()
	img, err := png.Decode(bytes.NewReader(l.Data))
	if err != nil {
		t.Fatalf("png: %v", err)
	}
	return img
}

func TestComplexityFallback(t *testing.T) {
	const line = "0 0 m 10 10 l S"

	simple := build(t, 200, 100, repeat(line, 10))
	if got := simple.Score(); got != 40 {
		t.Fatalf("score = %d, want 40", got)
	}
	if kind, _ := simple.Decide(FormatAuto, DefaultThreshold); kind != KindVector {
		t.Fatalf("10 ops: kind = %v, want vector", kind)
	}

	busy := build(t, 200, 100, repeat(line, 10000))
	kind, reason := busy.Decide(FormatAuto, DefaultThreshold)
	if kind != KindRaster {
		t.Fatalf("10000 ops: kind = %v, want raster", kind)
	}
	if !strings.Contains(reason, "complexity") {
		t.Fatalf("reason = %q", reason)
	}
	layer, err := busy.Render(context.Background(), RenderOptions{DPI: 144})
	if err != nil {
		t.Fatalf("Render: %v", err)
	}
	if layer.Kind != KindRaster || layer.Width != 400 || layer.Height != 200 {
		t.Fatalf("layer = %v %dx%d, want raster 400x200", layer.Kind, layer.Width, layer.Height)
	}
	if b := decodePNG(t, layer).Bounds(); b.Dx() != 400 || b.Dy() != 200 {
		t.Fatalf("png bounds = %v", b)
	}
	if layer.MediaType() != "image/png" || !strings.HasSuffix(layer.Name(), ".png") {
		t.Fatalf("media = %s name = %s", layer.MediaType(), layer.Name())
	}
}

func TestDecide(t *testing.T) {
	tests := []struct {
		name    string
		content string
		pref    Format
		want    Kind
		reason  string
	}{
		{"text only", "BT /F1 12 Tf 10 10 Td (Hi) Tj ET", FormatAuto, KindNone, "nothing painted"},
		{"unpainted path", "0 0 m 10 10 l n", FormatRaster, KindNone, "nothing painted"},
		{"forced raster", "0 0 10 10 re f", FormatRaster, KindRaster, "forced raster"},
		{"forced vector over blend", "/Mul gs 0 0 10 10 re f", FormatVector, KindVector, "forced vector"},
		{"blend mode", "/Mul gs 0 0 10 10 re f", FormatAuto, KindRaster, "blend mode Multiply"},
		{"translucent stays vector", "/Half gs 0 0 10 10 re f", FormatAuto, KindVector, "complexity"},
		{"image weight", "/Im1 Do", FormatAuto, KindVector, "complexity 50"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			b := build(t, 100, 100, tt.content)
			kind, reason := b.Decide(tt.pref, DefaultThreshold)
			if kind != tt.want {
				t.Fatalf("kind = %v, want %v", kind, tt.want)
			}
			if !strings.Contains(reason, tt.reason) {
				t.Fatalf("reason = %q, want %q", reason, tt.reason)
			}
		})
	}
}

func TestRenderEmpty(t *testing.T) {
	b := build(t, 100, 100, "BT /F1 12 Tf (x) Tj ET")
	layer, err := b.Render(context.Background(), RenderOptions{})
	if err != nil || layer != nil {
		t.Fatalf("Render = %v, %v; want nil, nil", layer, err)
	}
}

func TestRenderCancelled(t *testing.T) {
	b := build(t, 100, 100, "0 0 10 10 re f")
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err := b.Render(ctx, RenderOptions{})
	if !errors.Is(err, pdferr.ErrTimeout) {
		t.Fatalf("err = %v, want timeout", err)
	}
}

func TestSVG(t *testing.T) {
	b := build(t, 100, 50, "1 0 0 rg 10 10 20 20 re f 2 w 0 0 1 RG [3 1] 0 d 0 0 m 100 50 l S")
	layer, err := b.Render(context.Background(), RenderOptions{Format: FormatVector})
	if err != nil {
		t.Fatalf("Render: %v", err)
	}
	svg := string(layer.Data)
	for _, want := range []string{
		`viewBox="0 0 100 50"`,
		`<g transform="matrix(1 0 0 -1 0 50)">`,
		`<path d="M10 10 L30 10 L30 30 L10 30 Z" fill="#ff0000"/>`,
		`stroke="#0000ff" stroke-width="2"`,
		`stroke-dasharray="3 1"`,
	} {
		if !strings.Contains(svg, want) {
			t.Errorf("svg lacks %s:\n%s", want, svg)
		}
	}
	if layer.Width != 100 || layer.Height != 50 || layer.MediaType() != "image/svg+xml" {
		t.Fatalf("layer = %dx%d %s", layer.Width, layer.Height, layer.MediaType())
	}
}

func TestSVGClipAndImage(t *testing.T) {
	b := build(t, 100, 100, "q 0 0 50 50 re W n 100 0 0 100 0 0 cm /Im1 Do Q")
	layer, err := b.Render(context.Background(), RenderOptions{Format: FormatVector})
	if err != nil {
		t.Fatalf("Render: %v", err)
	}
	svg := string(layer.Data)
	for _, want := range []string{
		`<clipPath id="c1"><rect x="0" y="0" width="50" height="50"/></clipPath>`,
		`transform="matrix(100 0 0 -100 0 100)"`,
		`clip-path="url(#c1)"`,
		`xlink:href="data:image/png;base64,`,
	} {
		if !strings.Contains(svg, want) {
			t.Errorf("svg lacks %s:\n%s", want, svg)
		}
	}
}

func TestSVGGradient(t *testing.T) {
	b := build(t, 100, 100, "/Sh1 sh")
	layer, err := b.Render(context.Background(), RenderOptions{Format: FormatVector})
	if err != nil {
		t.Fatalf("Render: %v", err)
	}
	svg := string(layer.Data)
	for _, want := range []string{
		`<linearGradient id="g1" x1="0" y1="0" x2="100" y2="0"`,
		`<stop offset="0" stop-color="#000000"/>`,
		`<stop offset="1" stop-color="#ffffff"/>`,
		`<rect x="0" y="0" width="100" height="100" fill="url(#g1)"/>`,
	} {
		if !strings.Contains(svg, want) {
			t.Errorf("svg lacks %s:\n%s", want, svg)
		}
	}
}

func TestLayerHashDeterministic(t *testing.T) {
	content := "0 1 0 rg 5 5 40 40 re f"
	a, err := build(t, 50, 50, content).Render(context.Background(), RenderOptions{})
	if err != nil {
		t.Fatal(err)
	}
	b, err := build(t, 50, 50, content).Render(context.Background(), RenderOptions{})
	if err != nil {
		t.Fatal(err)
	}
	if a.Hash == "" || a.Hash != b.Hash || len(a.Hash) != 32 {
		t.Fatalf("hashes %q %q", a.Hash, b.Hash)
	}
	if !bytes.Equal(a.Data, b.Data) {
		t.Fatal("identical pages rendered differently")
	}
}

func TestParseFormat(t *testing.T) {
	for in, want := range map[string]Format{"": FormatAuto, "auto": FormatAuto, "SVG": FormatVector, "raster": FormatRaster} {
		got, err := ParseFormat(in)
		if err != nil || got != want {
			t.Errorf("ParseFormat(%q) = %v, %v", in, got, err)
		}
	}
	if _, err := ParseFormat("bitmap"); err == nil {
		t.Error("ParseFormat accepted bitmap")
	}
}

func nrgbaAt(img image.Image, x, y int) color.NRGBA {
	return color.NRGBAModel.Convert(img.At(x, y)).(color.NRGBA)
}
