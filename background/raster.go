package background

import (
	"bytes"
	"context"
	"image"
	"image/color"
	"image/draw"
	"image/png"
	"math"

	xdraw "golang.org/x/image/draw"
	"golang.org/x/image/math/f64"
	"golang.org/x/image/vector"

	"github.com/wudi/pdf2html/contentstream"
	"github.com/wudi/pdf2html/coords"
	"github.com/wudi/pdf2html/filters"
	"github.com/wudi/pdf2html/observability"
	"github.com/wudi/pdf2html/pdferr"
)

// flattenSteps is the number of chords per cubic when stroking.
const flattenSteps = 12

// rasterizer paints page-space events onto an RGBA canvas whose origin
// is the top-left corner of the page.
type rasterizer struct {
	ctx    context.Context
	b      *Builder
	src    imageSource
	dst    *image.RGBA
	z      *vector.Rasterizer
	scale  float64
	height float64
}

func (b *Builder) raster(ctx context.Context, dpi float64) ([]byte, int, int, error) {
	scale := dpi / 72
	w := max(1, int(math.Ceil(b.width*scale)))
	h := max(1, int(math.Ceil(b.height*scale)))
	if err := filters.ValidateImageBounds(w, h); err != nil {
		return nil, 0, 0, pdferr.New(pdferr.KindCorruptStructure, "background", err)
	}
	r := &rasterizer{
		ctx:    ctx,
		b:      b,
		src:    imageSource{doc: b.doc},
		dst:    image.NewRGBA(image.Rect(0, 0, w, h)),
		z:      vector.NewRasterizer(w, h),
		scale:  scale,
		height: b.height,
	}
	for i, ev := range b.events {
		if i%64 == 0 {
			if err := ctx.Err(); err != nil {
				return nil, 0, 0, pdferr.New(pdferr.KindTimeout, "background", err)
			}
		}
		switch ev.Kind {
		case contentstream.EventPath:
			if ev.Fill {
				r.fill(ev)
			}
			if ev.Stroke {
				r.stroke(ev)
			}
		case contentstream.EventImage:
			r.image(ev)
		case contentstream.EventShading:
			r.shading(ev)
		}
	}
	var buf bytes.Buffer
	enc := png.Encoder{CompressionLevel: png.BestCompression}
	if err := enc.Encode(&buf, r.dst); err != nil {
		return nil, 0, 0, err
	}
	return buf.Bytes(), w, h, nil
}

// device maps a page point to canvas pixels.
func (r *rasterizer) device(p coords.Point) (float64, float64) {
	return p.X * r.scale, (r.height - p.Y) * r.scale
}

// clipRect is the canvas rectangle the state's clip box allows.
func (r *rasterizer) clipRect(gs *contentstream.GraphicsState) image.Rectangle {
	bounds := r.dst.Bounds()
	if !gs.ClipSet {
		return bounds
	}
	c := gs.Clip
	x0, y0 := r.device(coords.Point{X: c.LLX, Y: c.URY})
	x1, y1 := r.device(coords.Point{X: c.URX, Y: c.LLY})
	rect := image.Rect(int(math.Floor(x0)), int(math.Floor(y0)), int(math.Ceil(x1)), int(math.Ceil(y1)))
	return rect.Intersect(bounds)
}

func rgba(c contentstream.Color, alpha float64) color.NRGBA {
	cr, cg, cb := c.RGB()
	return color.NRGBA{R: to8(cr), G: to8(cg), B: to8(cb), A: to8(alpha)}
}

// begin prepares the rasterizer for a shape drawn inside rect; shape
// coordinates are then offset by rect.Min.
func (r *rasterizer) begin(rect image.Rectangle) {
	r.z.Reset(rect.Dx(), rect.Dy())
}

func (r *rasterizer) draw(rect image.Rectangle, c color.NRGBA) {
	r.z.Draw(r.dst, rect, image.NewUniform(c), image.Point{})
}

func (r *rasterizer) fill(ev *contentstream.PaintEvent) {
	gs := &ev.State
	rect := r.clipRect(gs)
	if rect.Empty() {
		return
	}
	r.begin(rect)
	ox, oy := float64(rect.Min.X), float64(rect.Min.Y)
	pt := func(p coords.Point) (float32, float32) {
		x, y := r.device(p)
		return float32(x - ox), float32(y - oy)
	}
	started := false
	for _, s := range ev.Path.Segments {
		switch s.Op {
		case contentstream.SegMoveTo:
			r.z.MoveTo(pt(s.P[0]))
			started = true
		case contentstream.SegLineTo:
			if !started {
				r.z.MoveTo(pt(s.P[0]))
				started = true
				continue
			}
			r.z.LineTo(pt(s.P[0]))
		case contentstream.SegCurveTo:
			if !started {
				continue
			}
			x1, y1 := pt(s.P[0])
			x2, y2 := pt(s.P[1])
			x3, y3 := pt(s.P[2])
			r.z.CubeTo(x1, y1, x2, y2, x3, y3)
		case contentstream.SegClose:
			if started {
				r.z.ClosePath()
			}
		}
	}
	if started {
		r.z.ClosePath()
		r.draw(rect, rgba(gs.FillColor, gs.FillAlpha))
	}
}

type point struct{ x, y float64 }

// polylines flattens the path into device-space subpaths; closed
// subpaths repeat their first point at the end.
func (r *rasterizer) polylines(path *contentstream.Path) (lines [][]point, closed []bool) {
	var cur []point
	flush := func(isClosed bool) {
		if len(cur) > 1 {
			lines = append(lines, cur)
			closed = append(closed, isClosed)
		}
		cur = nil
	}
	dev := func(p coords.Point) point {
		x, y := r.device(p)
		return point{x, y}
	}
	for _, s := range path.Segments {
		switch s.Op {
		case contentstream.SegMoveTo:
			flush(false)
			cur = []point{dev(s.P[0])}
		case contentstream.SegLineTo:
			cur = append(cur, dev(s.P[0]))
		case contentstream.SegCurveTo:
			if len(cur) == 0 {
				continue
			}
			p0 := cur[len(cur)-1]
			p1, p2, p3 := dev(s.P[0]), dev(s.P[1]), dev(s.P[2])
			for i := 1; i <= flattenSteps; i++ {
				t := float64(i) / flattenSteps
				u := 1 - t
				a, b, c, d := u*u*u, 3*u*u*t, 3*u*t*t, t*t*t
				cur = append(cur, point{
					a*p0.x + b*p1.x + c*p2.x + d*p3.x,
					a*p0.y + b*p1.y + c*p2.y + d*p3.y,
				})
			}
		case contentstream.SegClose:
			if len(cur) > 0 {
				start := cur[0]
				cur = append(cur, start)
				flush(true)
				cur = []point{start}
			}
		}
	}
	flush(false)
	return lines, closed
}

// stroke outlines each flattened segment as a quad, the approach of a
// simple polygon stroker: joins and caps are added as separate shapes
// wound the same way so the rasterizer's coverage accumulates.
func (r *rasterizer) stroke(ev *contentstream.PaintEvent) {
	gs := &ev.State
	rect := r.clipRect(gs)
	if rect.Empty() {
		return
	}
	scale := strokeScale(gs.CTM) * r.scale
	hw := gs.LineWidth * scale / 2
	if hw < 0.5 {
		hw = 0.5
	}
	lines, closed := r.polylines(ev.Path)
	if len(lines) == 0 {
		return
	}
	if dash := deviceDash(gs.Dash, scale); dash != nil {
		var dashed [][]point
		var flags []bool
		for _, l := range lines {
			for _, d := range applyDash(l, dash, gs.DashPhase*scale) {
				dashed = append(dashed, d)
				flags = append(flags, false)
			}
		}
		lines, closed = dashed, flags
	}
	r.begin(rect)
	off := point{float64(rect.Min.X), float64(rect.Min.Y)}
	for i, l := range lines {
		r.strokeLine(l, closed[i], hw, gs.LineCap, gs.LineJoin, off)
	}
	r.draw(rect, rgba(gs.StrokeColor, gs.StrokeAlpha))
}

func (r *rasterizer) poly(off point, pts ...point) {
	r.z.MoveTo(float32(pts[0].x-off.x), float32(pts[0].y-off.y))
	for _, p := range pts[1:] {
		r.z.LineTo(float32(p.x-off.x), float32(p.y-off.y))
	}
	r.z.ClosePath()
}

// signedArea is positive for the winding used by segment quads.
func signedArea(pts []point) float64 {
	a := 0.0
	for i := range pts {
		j := (i + 1) % len(pts)
		a += pts[i].x*pts[j].y - pts[j].x*pts[i].y
	}
	return -a
}

func (r *rasterizer) oriented(off point, pts ...point) {
	if signedArea(pts) < 0 {
		for i, j := 0, len(pts)-1; i < j; i, j = i+1, j-1 {
			pts[i], pts[j] = pts[j], pts[i]
		}
	}
	r.poly(off, pts...)
}

func (r *rasterizer) disc(off, c point, radius float64) {
	const n = 16
	pts := make([]point, n)
	for i := range pts {
		a := 2 * math.Pi * float64(i) / n
		pts[i] = point{c.x + radius*math.Cos(a), c.y + radius*math.Sin(a)}
	}
	r.oriented(off, pts...)
}

func normal(a, b point) (point, bool) {
	vx, vy := b.x-a.x, b.y-a.y
	l := math.Hypot(vx, vy)
	if l == 0 {
		return point{}, false
	}
	return point{-vy / l, vx / l}, true
}

func (r *rasterizer) strokeLine(l []point, closed bool, hw float64, lc contentstream.LineCap, lj contentstream.LineJoin, off point) {
	if !closed && lc == contentstream.LineCapSquare && len(l) >= 2 {
		l = append([]point(nil), l...)
		l[0] = extend(l[1], l[0], hw)
		l[len(l)-1] = extend(l[len(l)-2], l[len(l)-1], hw)
	}
	var prev point
	havePrev := false
	for i := 0; i+1 < len(l); i++ {
		a, b := l[i], l[i+1]
		n, ok := normal(a, b)
		if !ok {
			continue
		}
		n.x, n.y = n.x*hw, n.y*hw
		r.oriented(off,
			point{a.x + n.x, a.y + n.y}, point{b.x + n.x, b.y + n.y},
			point{b.x - n.x, b.y - n.y}, point{a.x - n.x, a.y - n.y})
		if havePrev {
			r.join(off, a, prev, n, hw, lj)
		}
		prev, havePrev = n, true
	}
	if closed && len(l) > 2 && havePrev {
		if n, ok := normal(l[0], l[1]); ok {
			r.join(off, l[0], prev, point{n.x * hw, n.y * hw}, hw, lj)
		}
	}
	if !closed && lc == contentstream.LineCapRound {
		r.disc(off, l[0], hw)
		r.disc(off, l[len(l)-1], hw)
	}
}

func (r *rasterizer) join(off, at, n0, n1 point, hw float64, lj contentstream.LineJoin) {
	if lj == contentstream.LineJoinRound {
		r.disc(off, at, hw)
		return
	}
	r.oriented(off, at, point{at.x + n0.x, at.y + n0.y}, point{at.x + n1.x, at.y + n1.y})
	r.oriented(off, at, point{at.x - n0.x, at.y - n0.y}, point{at.x - n1.x, at.y - n1.y})
}

// extend moves b away from a by d.
func extend(a, b point, d float64) point {
	vx, vy := b.x-a.x, b.y-a.y
	l := math.Hypot(vx, vy)
	if l == 0 {
		return b
	}
	return point{b.x + vx/l*d, b.y + vy/l*d}
}

func deviceDash(dash []float64, scale float64) []float64 {
	if len(dash) == 0 {
		return nil
	}
	out := make([]float64, 0, len(dash)*2)
	total := 0.0
	for _, d := range dash {
		if d < 0 {
			return nil
		}
		total += d
		out = append(out, d*scale)
	}
	if total == 0 {
		return nil
	}
	if len(out)%2 == 1 {
		out = append(out, out...)
	}
	return out
}

// applyDash splits a polyline into its "on" dash pieces.
func applyDash(l []point, dash []float64, phase float64) [][]point {
	period := 0.0
	for _, d := range dash {
		period += d
	}
	phase = math.Mod(phase, period)
	if phase < 0 {
		phase += period
	}
	idx := 0
	for phase >= dash[idx] {
		phase -= dash[idx]
		idx = (idx + 1) % len(dash)
	}
	left := dash[idx] - phase
	on := idx%2 == 0
	var out [][]point
	var cur []point
	if on {
		cur = []point{l[0]}
	}
	for i := 0; i+1 < len(l); i++ {
		a, b := l[i], l[i+1]
		seg := math.Hypot(b.x-a.x, b.y-a.y)
		pos := 0.0
		for seg-pos > left {
			pos += left
			t := pos / seg
			p := point{a.x + (b.x-a.x)*t, a.y + (b.y-a.y)*t}
			if on {
				cur = append(cur, p)
				out = append(out, cur)
				cur = nil
			} else {
				cur = []point{p}
			}
			on = !on
			idx = (idx + 1) % len(dash)
			left = dash[idx]
		}
		left -= seg - pos
		if on {
			cur = append(cur, b)
		}
	}
	if on && len(cur) > 1 {
		out = append(out, cur)
	}
	return out
}

// image draws an image XObject with a bilinear affine transform from
// image pixels to canvas pixels.
func (r *rasterizer) image(ev *contentstream.PaintEvent) {
	gs := &ev.State
	rect := r.clipRect(gs)
	if rect.Empty() {
		return
	}
	src, err := r.src.decode(r.ctx, ev.Image, fillNRGBA(gs))
	if err != nil {
		r.b.logger.Warn("background image skipped", observability.Err(err))
		return
	}
	sb := src.Bounds()
	m := ev.Matrix
	sw, sh := float64(sb.Dx()), float64(sb.Dy())
	s, h := r.scale, r.height
	// pixel (x, y) -> unit square (x/w, 1-y/h) -> page -> canvas
	aff := f64.Aff3{
		s * m[0] / sw, -s * m[2] / sh, s * (m[2] + m[4]),
		-s * m[1] / sw, s * m[3] / sh, s * (h - m[3] - m[5]),
	}
	if aff[0]*aff[4]-aff[1]*aff[3] == 0 {
		return
	}
	var opts *xdraw.Options
	if gs.FillAlpha < 1 {
		opts = &xdraw.Options{SrcMask: image.NewUniform(color.Alpha{A: to8(gs.FillAlpha)})}
	}
	dst := r.dst.SubImage(rect).(*image.RGBA)
	xdraw.BiLinear.Transform(dst, aff, src, sb, draw.Over, opts)
}

// shading evaluates the shading at each pixel centre inside its bounds.
func (r *rasterizer) shading(ev *contentstream.PaintEvent) {
	gs := &ev.State
	sh := r.src.shading(r.ctx, ev.Shading, nil, gs.CTM)
	b := ev.Bounds
	x0, y0 := r.device(coords.Point{X: b.LLX, Y: b.URY})
	x1, y1 := r.device(coords.Point{X: b.URX, Y: b.LLY})
	rect := image.Rect(int(math.Floor(x0)), int(math.Floor(y0)), int(math.Ceil(x1)), int(math.Ceil(y1)))
	rect = rect.Intersect(r.clipRect(gs))
	for y := rect.Min.Y; y < rect.Max.Y; y++ {
		for x := rect.Min.X; x < rect.Max.X; x++ {
			p := coords.Point{X: (float64(x) + 0.5) / r.scale, Y: r.height - (float64(y)+0.5)/r.scale}
			t, ok := sh.param(p)
			if !ok {
				continue
			}
			cr, cg, cb := sh.color(t)
			over(r.dst, x, y, color.NRGBA{R: to8(cr), G: to8(cg), B: to8(cb), A: to8(gs.FillAlpha)})
		}
	}
}

// over composites c onto one pixel of dst.
func over(dst *image.RGBA, x, y int, c color.NRGBA) {
	i := dst.PixOffset(x, y)
	a := uint32(c.A)
	ia := 255 - a
	p := dst.Pix[i : i+4 : i+4]
	p[0] = uint8((uint32(c.R)*a + uint32(p[0])*ia) / 255)
	p[1] = uint8((uint32(c.G)*a + uint32(p[1])*ia) / 255)
	p[2] = uint8((uint32(c.B)*a + uint32(p[2])*ia) / 255)
	p[3] = uint8(a + uint32(p[3])*ia/255)
}
