package background

import (
	"bytes"
	"context"
	"image"
	"image/color"
	"image/jpeg"
	"math"
	"testing"

	"github.com/wudi/pdf2html/contentstream"
	"github.com/wudi/pdf2html/coords"
	"github.com/wudi/pdf2html/ir/raw"
)

func TestStencil(t *testing.T) {
	red := color.NRGBA{R: 0xFF, A: 0xFF}
	// rows are byte aligned: 0b01000000, 0b10000000
	img := stencil([]byte{0x40, 0x80}, 2, 2, nil, red)
	want := [][2]bool{{true, false}, {false, true}}
	for y, row := range want {
		for x, painted := range row {
			if got := img.NRGBAAt(x, y).A == 0xFF; got != painted {
				t.Errorf("(%d,%d) painted = %v, want %v", x, y, got, painted)
			}
		}
	}
	inverted := stencil([]byte{0x40, 0x80}, 2, 2, []float64{1, 0}, red)
	if inverted.NRGBAAt(0, 0).A != 0 || inverted.NRGBAAt(1, 0).A != 0xFF {
		t.Fatal("Decode [1 0] did not invert the stencil")
	}
}

func TestSamples(t *testing.T) {
	indexed := &contentstream.ColorSpace{
		Family: contentstream.FamilyIndexed,
		N:      1,
		Base:   contentstream.DeviceRGB,
		HiVal:  1,
		Lookup: []byte{0, 0xFF, 0, 0, 0, 0xFF},
	}
	tests := []struct {
		name   string
		data   []byte
		w      int
		bpc    int
		cs     *contentstream.ColorSpace
		decode []float64
		want   []color.NRGBA
	}{
		{
			name: "gray 8",
			data: []byte{0, 0x80, 0xFF},
			w:    3, bpc: 8, cs: contentstream.DeviceGray,
			want: []color.NRGBA{{0, 0, 0, 0xFF}, {0x80, 0x80, 0x80, 0xFF}, {0xFF, 0xFF, 0xFF, 0xFF}},
		},
		{
			name: "gray 1 with inverted decode",
			data: []byte{0x80},
			w:    2, bpc: 1, cs: contentstream.DeviceGray, decode: []float64{1, 0},
			want: []color.NRGBA{{0, 0, 0, 0xFF}, {0xFF, 0xFF, 0xFF, 0xFF}},
		},
		{
			name: "cmyk",
			data: []byte{0, 0xFF, 0xFF, 0},
			w:    1, bpc: 8, cs: contentstream.DeviceCMYK,
			want: []color.NRGBA{{0xFF, 0, 0, 0xFF}},
		},
		{
			name: "indexed 1 bit",
			data: []byte{0x40},
			w:    2, bpc: 1, cs: indexed,
			want: []color.NRGBA{{0, 0xFF, 0, 0xFF}, {0, 0, 0xFF, 0xFF}},
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			img, err := samples(tt.data, tt.w, 1, tt.bpc, tt.cs, tt.decode)
			if err != nil {
				t.Fatal(err)
			}
			for x, want := range tt.want {
				if got := img.NRGBAAt(x, 0); got != want {
					t.Errorf("pixel %d = %v, want %v", x, got, want)
				}
			}
		})
	}
	if _, err := samples(nil, 1, 1, 3, contentstream.DeviceGray, nil); err == nil {
		t.Fatal("3 bits per component accepted")
	}
}

func TestDecodeImage(t *testing.T) {
	var jpg bytes.Buffer
	src := image.NewGray(image.Rect(0, 0, 4, 4))
	for i := range src.Pix {
		src.Pix[i] = 0xC0
	}
	if err := jpeg.Encode(&jpg, src, nil); err != nil {
		t.Fatal(err)
	}
	mask := raw.NewStream(dict(
		"Width", raw.Int(1),
		"Height", raw.Int(1),
		"BitsPerComponent", raw.Int(8),
		"ColorSpace", raw.Name("DeviceGray"),
	), []byte{0x40})
	doc := raw.NewDocument("1.7", raw.Dict(), memLoader{})
	st := raw.NewStream(dict(
		"Width", raw.Int(4),
		"Height", raw.Int(4),
		"Filter", raw.Name("DCTDecode"),
		"SMask", mask,
	), jpg.Bytes())
	out, err := imageSource{doc: doc}.decode(context.Background(), &contentstream.Image{
		Stream: st, Width: 4, Height: 4, HasSMask: true,
	}, color.NRGBA{})
	if err != nil {
		t.Fatalf("decode: %v", err)
	}
	c := color.NRGBAModel.Convert(out.At(2, 2)).(color.NRGBA)
	if c.R < 0xB0 || c.R > 0xD0 || c.A != 0x40 {
		t.Fatalf("pixel = %+v, want grey with soft mask alpha 0x40", c)
	}

	bad := raw.NewStream(dict("Filter", raw.Name("JPXDecode")), []byte{0})
	if _, err := (imageSource{doc: doc}).decode(context.Background(), &contentstream.Image{Stream: bad, Width: 1, Height: 1}, color.NRGBA{}); err == nil {
		t.Fatal("JPX image decoded")
	}
	if _, err := (imageSource{doc: doc}).decode(context.Background(), &contentstream.Image{Stream: st, Width: 0, Height: 4}, color.NRGBA{}); err == nil {
		t.Fatal("zero-width image decoded")
	}
}

func TestFunctions(t *testing.T) {
	doc := raw.NewDocument("1.7", raw.Dict(), memLoader{})
	r := functionReader{ctx: context.Background(), src: imageSource{doc: doc}}
	exp := func(c0, c1 float64) *raw.DictObj {
		return dict("FunctionType", raw.Int(2), "Domain", nums(0, 1), "C0", nums(c0), "C1", nums(c1), "N", raw.Int(1))
	}
	stitched := r.read(dict(
		"FunctionType", raw.Int(3),
		"Domain", nums(0, 1),
		"Functions", raw.NewArray(exp(0, 1), exp(1, 0)),
		"Bounds", nums(0.5),
		"Encode", nums(0, 1, 0, 1),
	), 0)
	sampledFn := r.read(raw.NewStream(dict(
		"FunctionType", raw.Int(0),
		"Domain", nums(0, 1),
		"Range", nums(0, 1),
		"Size", raw.NewArray(raw.Int(3)),
		"BitsPerSample", raw.Int(8),
	), []byte{0, 0xFF, 0}), 0)

	tests := []struct {
		name string
		fn   function
		in   float64
		want float64
	}{
		{"exponential", r.read(exp(0.2, 0.6), 0), 0.5, 0.4},
		{"stitched rising", stitched, 0.25, 0.5},
		{"stitched falling", stitched, 0.75, 0.5},
		{"stitched bound", stitched, 0.5, 1},
		{"sampled peak", sampledFn, 0.5, 1},
		{"sampled between", sampledFn, 0.25, 0.5},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if tt.fn == nil {
				t.Fatal("function not read")
			}
			got := tt.fn.eval(tt.in)
			if len(got) != 1 || math.Abs(got[0]-tt.want) > 1e-6 {
				t.Fatalf("eval(%v) = %v, want %v", tt.in, got, tt.want)
			}
		})
	}
	if r.read(dict("FunctionType", raw.Int(4)), 0) != nil {
		t.Fatal("PostScript calculator functions are not evaluated")
	}
}

func TestRadialParam(t *testing.T) {
	sh := &shading{
		typ:    3,
		coords: []float64{50, 50, 0, 50, 50, 40},
		inv:    coords.Identity(),
	}
	tests := []struct {
		p    coords.Point
		want float64
		ok   bool
	}{
		{coords.Point{X: 50, Y: 50}, 0, true},
		{coords.Point{X: 70, Y: 50}, 0.5, true},
		{coords.Point{X: 50, Y: 90}, 1, true},
		{coords.Point{X: 99, Y: 50}, 0, false},
	}
	for _, tt := range tests {
		got, ok := sh.param(tt.p)
		if ok != tt.ok || (ok && math.Abs(got-tt.want) > 1e-9) {
			t.Errorf("param(%v) = %v, %v; want %v, %v", tt.p, got, ok, tt.want, tt.ok)
		}
	}
}

func TestCSSBlend(t *testing.T) {
	for in, want := range map[string]string{"Multiply": "multiply", "ColorDodge": "color-dodge", "SoftLight": "soft-light"} {
		if got := cssBlend(in); got != want {
			t.Errorf("cssBlend(%s) = %s, want %s", in, got, want)
		}
	}
}
