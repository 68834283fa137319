package layout

import (
	"github.com/wudi/pdf2html/contentstream"
	"github.com/wudi/pdf2html/coords"
)

// occluder is an opaque element: a filled path, an image or a shading.
type occluder struct {
	seq  int
	clip coords.Rect
	// Exactly one of poly, quad or rect describes the painted area.
	poly    [][]coords.Point
	evenOdd bool
	quad    *coords.Quad
	rect    *coords.Rect
}

// occluderFor returns the opaque area painted by ev, or nil when ev lets
// what lies beneath show through. Strokes never occlude.
func occluderFor(ev *contentstream.PaintEvent, page coords.Rect) *occluder {
	st := &ev.State
	if !st.OpaqueFill() {
		return nil
	}
	o := &occluder{seq: ev.Seq, clip: page}
	if st.ClipSet {
		o.clip = st.Clip.Intersect(page)
	}
	switch ev.Kind {
	case contentstream.EventPath:
		if !ev.Fill || ev.Path.Empty() {
			return nil
		}
		o.poly = flatten(ev.Path)
		o.evenOdd = ev.EvenOdd
	case contentstream.EventImage:
		if ev.Image == nil || ev.Image.ImageMask || ev.Image.HasSMask {
			return nil
		}
		q := coords.Rect{URX: 1, URY: 1}.TransformQuad(ev.Matrix)
		o.quad = &q
	case contentstream.EventShading:
		r := ev.Bounds
		o.rect = &r
	default:
		return nil
	}
	if o.clip.Empty() {
		return nil
	}
	return o
}

// bounds is the occluder's box in page space.
func (o *occluder) bounds() coords.Rect {
	var r coords.Rect
	switch {
	case o.quad != nil:
		r = quadBounds(*o.quad)
	case o.rect != nil:
		r = *o.rect
	default:
		first := true
		for _, sub := range o.poly {
			for _, p := range sub {
				if first {
					r = coords.Rect{LLX: p.X, LLY: p.Y, URX: p.X, URY: p.Y}
					first = false
					continue
				}
				r = r.Union(coords.Rect{LLX: p.X, LLY: p.Y, URX: p.X, URY: p.Y})
			}
		}
	}
	return r.Intersect(o.clip)
}

func quadBounds(q coords.Quad) coords.Rect {
	r := coords.Rect{LLX: q[0].X, LLY: q[0].Y, URX: q[0].X, URY: q[0].Y}
	for _, p := range q[1:] {
		r.LLX, r.URX = min(r.LLX, p.X), max(r.URX, p.X)
		r.LLY, r.URY = min(r.LLY, p.Y), max(r.URY, p.Y)
	}
	return r
}

// covers reports whether p is inside the painted area.
func (o *occluder) covers(p coords.Point) bool {
	if !containsPoint(o.clip, p) {
		return false
	}
	switch {
	case o.quad != nil:
		return o.quad.Contains(p)
	case o.rect != nil:
		return containsPoint(*o.rect, p)
	}
	w := winding(o.poly, p)
	if o.evenOdd {
		return w%2 != 0
	}
	return w != 0
}

// curveSteps is the number of chords each Bézier segment is flattened to.
const curveSteps = 8

// flatten converts a path into closed polygons.
func flatten(path *contentstream.Path) [][]coords.Point {
	var out [][]coords.Point
	var cur []coords.Point
	flush := func() {
		if len(cur) > 2 {
			out = append(out, cur)
		}
		cur = nil
	}
	for _, s := range path.Segments {
		switch s.Op {
		case contentstream.SegMoveTo:
			flush()
			cur = []coords.Point{s.P[0]}
		case contentstream.SegLineTo:
			cur = append(cur, s.P[0])
		case contentstream.SegCurveTo:
			if len(cur) == 0 {
				cur = []coords.Point{s.P[0]}
			}
			p0 := cur[len(cur)-1]
			for i := 1; i <= curveSteps; i++ {
				cur = append(cur, bezier(p0, s.P[0], s.P[1], s.P[2], float64(i)/curveSteps))
			}
		case contentstream.SegClose:
			if len(cur) > 0 {
				start := cur[0]
				flush()
				cur = []coords.Point{start}
			}
		}
	}
	flush()
	return out
}

func bezier(p0, p1, p2, p3 coords.Point, t float64) coords.Point {
	u := 1 - t
	a, b, c, d := u*u*u, 3*u*u*t, 3*u*t*t, t*t*t
	return coords.Point{
		X: a*p0.X + b*p1.X + c*p2.X + d*p3.X,
		Y: a*p0.Y + b*p1.Y + c*p2.Y + d*p3.Y,
	}
}

// winding returns the winding number of the implicitly closed polygons
// around p. Points on an edge count as inside.
func winding(polys [][]coords.Point, p coords.Point) int {
	w := 0
	for _, poly := range polys {
		n := len(poly)
		for i := 0; i < n; i++ {
			a, b := poly[i], poly[(i+1)%n]
			if onSegment(a, b, p) {
				return 1
			}
			cross := (b.X-a.X)*(p.Y-a.Y) - (p.X-a.X)*(b.Y-a.Y)
			switch {
			case a.Y <= p.Y && b.Y > p.Y && cross > 0:
				w++
			case a.Y > p.Y && b.Y <= p.Y && cross < 0:
				w--
			}
		}
	}
	return w
}

func onSegment(a, b, p coords.Point) bool {
	cross := (b.X-a.X)*(p.Y-a.Y) - (p.X-a.X)*(b.Y-a.Y)
	if cross > 1e-9 || cross < -1e-9 {
		return false
	}
	return p.X >= min(a.X, b.X) && p.X <= max(a.X, b.X) &&
		p.Y >= min(a.Y, b.Y) && p.Y <= max(a.Y, b.Y)
}
