package background

import (
	"context"
	"math"
	"testing"

	"github.com/google/go-cmp/cmp"
)

func rasterize(t *testing.T, content string) *Layer {
	t.Helper()
	b := build(t, 100, 100, content)
	layer, err := b.Render(context.Background(), RenderOptions{Format: FormatRaster, DPI: 72})
	if err != nil {
		t.Fatalf("Render: %v", err)
	}
	if layer.Width != 100 || layer.Height != 100 {
		t.Fatalf("size = %dx%d", layer.Width, layer.Height)
	}
	return layer
}

func TestRasterPixels(t *testing.T) {
	type probe struct {
		x, y  int
		check func(r, g, b, a uint8) bool
	}
	opaque := func(wr, wg, wb uint8) func(r, g, b, a uint8) bool {
		return func(r, g, b, a uint8) bool { return r == wr && g == wg && b == wb && a == 0xFF }
	}
	transparent := func(_, _, _, a uint8) bool { return a == 0 }
	tests := []struct {
		name    string
		content string
		probes  []probe
	}{
		{
			name:    "fill is flipped to top-left origin",
			content: "1 0 0 rg 0 0 50 50 re f",
			probes:  []probe{{10, 90, opaque(0xFF, 0, 0)}, {10, 10, transparent}, {90, 90, transparent}},
		},
		{
			name:    "stroke width",
			content: "4 w 0 50 m 100 50 l S",
			probes:  []probe{{50, 49, opaque(0, 0, 0)}, {50, 50, opaque(0, 0, 0)}, {50, 40, transparent}},
		},
		{
			name:    "clip box",
			content: "0 0 50 100 re W n 0 0 1 rg 0 0 100 100 re f",
			probes:  []probe{{25, 50, opaque(0, 0, 0xFF)}, {75, 50, transparent}},
		},
		{
			name:    "image placed by ctm",
			content: "100 0 0 100 0 0 cm /Im1 Do",
			probes: []probe{
				{20, 50, func(r, _, b, a uint8) bool { return r > 200 && b < 60 && a == 0xFF }},
				{80, 50, func(r, _, b, a uint8) bool { return b > 200 && r < 60 && a == 0xFF }},
			},
		},
		{
			name:    "translucent fill",
			content: "/Half gs 1 0 0 rg 0 0 100 100 re f",
			probes:  []probe{{50, 50, func(r, _, _, a uint8) bool { return a > 120 && a < 136 && r > 250 }}},
		},
		{
			name:    "axial shading",
			content: "/Sh1 sh",
			probes: []probe{
				{2, 50, func(r, _, _, a uint8) bool { return r < 12 && a == 0xFF }},
				{97, 50, func(r, _, _, a uint8) bool { return r > 243 && a == 0xFF }},
			},
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			img := decodePNG(t, rasterize(t, tt.content))
			for _, p := range tt.probes {
				c := nrgbaAt(img, p.x, p.y)
				if !p.check(c.R, c.G, c.B, c.A) {
					t.Errorf("pixel (%d,%d) = %+v", p.x, p.y, c)
				}
			}
		})
	}
}

func TestApplyDash(t *testing.T) {
	line := []point{{0, 0}, {10, 0}}
	got := applyDash(line, []float64{2, 2}, 0)
	want := [][]point{
		{{0, 0}, {2, 0}},
		{{4, 0}, {6, 0}},
		{{8, 0}, {10, 0}},
	}
	if diff := cmp.Diff(want, got, cmp.AllowUnexported(point{})); diff != "" {
		t.Fatalf("dashes (-want +got):\n%s", diff)
	}

	shifted := applyDash(line, []float64{2, 2}, 3)
	if len(shifted) != 3 || shifted[0][0] != (point{1, 0}) || shifted[0][1] != (point{3, 0}) {
		t.Fatalf("phase 3 dashes = %v", shifted)
	}
}

func TestDeviceDash(t *testing.T) {
	if got := deviceDash([]float64{3}, 2); !cmp.Equal(got, []float64{6, 6}) {
		t.Fatalf("odd dash = %v", got)
	}
	if deviceDash([]float64{0, 0}, 1) != nil {
		t.Fatal("all-zero dash should draw solid")
	}
	if deviceDash([]float64{1, -1}, 1) != nil {
		t.Fatal("negative dash should draw solid")
	}
}

func TestStrokeScale(t *testing.T) {
	if got := strokeScale([6]float64{2, 0, 0, 2, 5, 5}); got != 2 {
		t.Fatalf("scale = %v", got)
	}
	if got := strokeScale([6]float64{0, 3, -3, 0, 0, 0}); math.Abs(got-3) > 1e-9 {
		t.Fatalf("rotated scale = %v", got)
	}
}
