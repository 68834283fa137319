package background

import (
	"context"
	"math"

	"github.com/wudi/pdf2html/contentstream"
	"github.com/wudi/pdf2html/coords"
	"github.com/wudi/pdf2html/ir/raw"
)

// function is a one-input PDF function: exponential (type 2), stitching
// (type 3) or sampled (type 0).
type function interface {
	eval(t float64) []float64
}

type exponential struct {
	c0, c1 []float64
	n      float64
}

func (f exponential) eval(t float64) []float64 {
	out := make([]float64, len(f.c0))
	x := math.Pow(t, f.n)
	for i := range out {
		c1 := 1.0
		if i < len(f.c1) {
			c1 = f.c1[i]
		}
		out[i] = f.c0[i] + x*(c1-f.c0[i])
	}
	return out
}

type stitching struct {
	domain [2]float64
	parts  []function
	bounds []float64
	encode []float64
}

func (f stitching) eval(t float64) []float64 {
	if len(f.parts) == 0 {
		return nil
	}
	k := len(f.parts) - 1
	for i, b := range f.bounds {
		if t < b {
			k = i
			break
		}
	}
	lo, hi := f.domain[0], f.domain[1]
	if k > 0 {
		lo = f.bounds[k-1]
	}
	if k < len(f.bounds) {
		hi = f.bounds[k]
	}
	e0, e1 := 0.0, 1.0
	if len(f.encode) >= 2*k+2 {
		e0, e1 = f.encode[2*k], f.encode[2*k+1]
	}
	x := e0
	if hi > lo {
		x = e0 + (t-lo)*(e1-e0)/(hi-lo)
	}
	return f.parts[k].eval(x)
}

// sampled interpolates linearly between the samples of a one-input
// type 0 function.
type sampled struct {
	domain [2]float64
	rng    []float64
	table  [][]float64
}

func (f sampled) eval(t float64) []float64 {
	n := len(f.table)
	if n == 0 {
		return nil
	}
	x := 0.0
	if f.domain[1] > f.domain[0] {
		x = (t - f.domain[0]) / (f.domain[1] - f.domain[0]) * float64(n-1)
	}
	x = math.Max(0, math.Min(float64(n-1), x))
	i := int(x)
	j := min(i+1, n-1)
	frac := x - float64(i)
	out := make([]float64, len(f.table[i]))
	for c := range out {
		v := f.table[i][c]*(1-frac) + f.table[j][c]*frac
		if len(f.rng) >= 2*c+2 {
			v = f.rng[2*c] + v*(f.rng[2*c+1]-f.rng[2*c])
		}
		out[c] = v
	}
	return out
}

type functionReader struct {
	ctx context.Context
	src imageSource
}

func (r functionReader) read(obj raw.Object, depth int) function {
	if depth > 8 {
		return nil
	}
	doc := r.src.doc
	var d *raw.DictObj
	var st *raw.StreamObj
	if s, err := doc.Stream(obj); err == nil && s != nil {
		st, d = s, s.Dict
	} else if dd, err := doc.Dict(obj); err == nil && dd != nil {
		d = dd
	}
	if d == nil {
		return nil
	}
	domain := [2]float64{0, 1}
	if v, ok := doc.Numbers(r.src.lookup(d, "Domain")); ok && len(v) >= 2 {
		domain = [2]float64{v[0], v[1]}
	}
	typ, _ := doc.Number(r.src.lookup(d, "FunctionType"))
	switch int(typ) {
	case 2:
		c0, ok := doc.Numbers(r.src.lookup(d, "C0"))
		if !ok {
			c0 = []float64{0}
		}
		c1, ok := doc.Numbers(r.src.lookup(d, "C1"))
		if !ok {
			c1 = []float64{1}
		}
		n, _ := doc.Number(r.src.lookup(d, "N"))
		if len(c1) > len(c0) {
			c0 = append(c0, make([]float64, len(c1)-len(c0))...)
		}
		return exponential{c0: c0, c1: c1, n: n}
	case 3:
		arr, err := doc.Array(r.src.lookup(d, "Functions"))
		if err != nil || arr == nil {
			return nil
		}
		f := stitching{domain: domain}
		for _, item := range arr.Items {
			part := r.read(item, depth+1)
			if part == nil {
				return nil
			}
			f.parts = append(f.parts, part)
		}
		f.bounds, _ = doc.Numbers(r.src.lookup(d, "Bounds"))
		f.encode, _ = doc.Numbers(r.src.lookup(d, "Encode"))
		return f
	case 0:
		if st == nil {
			return nil
		}
		return r.sampled(st, domain)
	}
	return nil
}

func (r functionReader) sampled(st *raw.StreamObj, domain [2]float64) function {
	doc := r.src.doc
	size, ok := doc.Numbers(r.src.lookup(st.Dict, "Size"))
	if !ok || len(size) != 1 || size[0] < 1 {
		return nil
	}
	rng, _ := doc.Numbers(r.src.lookup(st.Dict, "Range"))
	bps, _ := doc.Number(r.src.lookup(st.Dict, "BitsPerSample"))
	outputs := len(rng) / 2
	if outputs == 0 || bps <= 0 || bps > 32 {
		return nil
	}
	data, err := doc.DecodeStream(r.ctx, st)
	if err != nil {
		return nil
	}
	maxv := math.Pow(2, bps) - 1
	br := &bitReader{data: data}
	f := sampled{domain: domain, rng: rng}
	for i := 0; i < int(size[0]); i++ {
		row := make([]float64, outputs)
		for c := range row {
			v, ok := br.read(int(bps))
			if !ok {
				return f
			}
			row[c] = float64(v) / maxv
		}
		f.table = append(f.table, row)
	}
	return f
}

// shading evaluates an axial or radial shading at page-space points.
// Other shading types paint the colour at the middle of their domain.
type shading struct {
	typ    int
	cs     *contentstream.ColorSpace
	fn     function
	coords []float64
	domain [2]float64
	extend [2]bool
	// inv maps page space to shading space.
	inv coords.Matrix
	bg  []float64
}

func (s imageSource) shading(ctx context.Context, d *raw.DictObj, res *raw.DictObj, ctm coords.Matrix) *shading {
	doc := s.doc
	sh := &shading{domain: [2]float64{0, 1}}
	typ, _ := doc.Number(s.lookup(d, "ShadingType"))
	sh.typ = int(typ)
	sh.cs, _ = contentstream.ResolveColorSpace(doc, s.lookup(d, "ColorSpace"), res)
	sh.fn = functionReader{ctx: ctx, src: s}.read(s.lookup(d, "Function"), 0)
	sh.coords, _ = doc.Numbers(s.lookup(d, "Coords"))
	if v, ok := doc.Numbers(s.lookup(d, "Domain")); ok && len(v) >= 2 {
		sh.domain = [2]float64{v[0], v[1]}
	}
	if arr, err := doc.Array(s.lookup(d, "Extend")); err == nil && arr != nil {
		for i := 0; i < 2 && i < arr.Len(); i++ {
			item, _ := arr.Get(i)
			if b, ok := item.(raw.BoolObj); ok {
				sh.extend[i] = b.V
			}
		}
	}
	sh.bg, _ = doc.Numbers(s.lookup(d, "Background"))
	inv, err := ctm.Inverse()
	if err != nil {
		inv = coords.Identity()
	}
	sh.inv = inv
	return sh
}

// color returns the colour at parameter t in [0, 1] of the domain.
func (sh *shading) color(t float64) (r, g, b float64) {
	vals := sh.bg
	if sh.fn != nil {
		x := sh.domain[0] + t*(sh.domain[1]-sh.domain[0])
		vals = sh.fn.eval(x)
	}
	if vals == nil {
		return 0.5, 0.5, 0.5
	}
	return contentstream.Color{Space: sh.cs, Values: vals}.RGB()
}

// param returns the normalised parameter at page point p, false when
// the point lies outside an unextended shading.
func (sh *shading) param(p coords.Point) (float64, bool) {
	q := sh.inv.Transform(p)
	switch {
	case sh.typ == 2 && len(sh.coords) >= 4:
		x0, y0, x1, y1 := sh.coords[0], sh.coords[1], sh.coords[2], sh.coords[3]
		dx, dy := x1-x0, y1-y0
		den := dx*dx + dy*dy
		if den == 0 {
			return 0, false
		}
		return sh.clamp(((q.X-x0)*dx + (q.Y-y0)*dy) / den)
	case sh.typ == 3 && len(sh.coords) >= 6:
		return sh.radial(q)
	}
	return 0.5, true
}

// radial solves |q - c(t)| = r(t) for the two-circle gradient, taking
// the larger root whose radius is non-negative.
func (sh *shading) radial(q coords.Point) (float64, bool) {
	x0, y0, r0 := sh.coords[0], sh.coords[1], sh.coords[2]
	x1, y1, r1 := sh.coords[3], sh.coords[4], sh.coords[5]
	cdx, cdy, dr := x1-x0, y1-y0, r1-r0
	pdx, pdy := q.X-x0, q.Y-y0
	a := cdx*cdx + cdy*cdy - dr*dr
	b := pdx*cdx + pdy*cdy + r0*dr
	c := pdx*pdx + pdy*pdy - r0*r0
	var roots []float64
	if math.Abs(a) < 1e-12 {
		if b == 0 {
			return 0, false
		}
		roots = []float64{c / (2 * b)}
	} else {
		disc := b*b - a*c
		if disc < 0 {
			return 0, false
		}
		sq := math.Sqrt(disc)
		t1, t2 := (b+sq)/a, (b-sq)/a
		roots = []float64{math.Max(t1, t2), math.Min(t1, t2)}
	}
	for _, t := range roots {
		if r0+t*dr < 0 {
			continue
		}
		if v, ok := sh.clamp(t); ok {
			return v, true
		}
	}
	return 0, false
}

func (sh *shading) clamp(t float64) (float64, bool) {
	switch {
	case t < 0:
		return 0, sh.extend[0]
	case t > 1:
		return 1, sh.extend[1]
	}
	return t, true
}
