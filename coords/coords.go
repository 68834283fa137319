// Package coords holds the affine matrix, point and rectangle types shared
// by the interpreter, layout and background renderers.
package coords

import (
	"errors"
	"math"
)

// Matrix is a PDF affine transform [a b c d e f], mapping (x, y) to
// (a*x + c*y + e, b*x + d*y + f).
type Matrix [6]float64

func Identity() Matrix { return Matrix{1, 0, 0, 1, 0, 0} }

// Multiply returns m × o: m is applied first, then o.
func (m Matrix) Multiply(o Matrix) Matrix {
	return Matrix{
		m[0]*o[0] + m[1]*o[2],
		m[0]*o[1] + m[1]*o[3],
		m[2]*o[0] + m[3]*o[2],
		m[2]*o[1] + m[3]*o[3],
		m[4]*o[0] + m[5]*o[2] + o[4],
		m[4]*o[1] + m[5]*o[3] + o[5],
	}
}

type Point struct{ X, Y float64 }

func (m Matrix) Transform(p Point) Point {
	return Point{X: m[0]*p.X + m[2]*p.Y + m[4], Y: m[1]*p.X + m[3]*p.Y + m[5]}
}

// TransformVector applies the linear part only.
func (m Matrix) TransformVector(p Point) Point {
	return Point{X: m[0]*p.X + m[2]*p.Y, Y: m[1]*p.X + m[3]*p.Y}
}

var ErrSingular = errors.New("matrix singular")

func (m Matrix) Inverse() (Matrix, error) {
	det := m[0]*m[3] - m[1]*m[2]
	if math.Abs(det) < 1e-10 {
		return Matrix{}, ErrSingular
	}
	return Matrix{
		m[3] / det, -m[1] / det,
		-m[2] / det, m[0] / det,
		(m[2]*m[5] - m[3]*m[4]) / det,
		(m[1]*m[4] - m[0]*m[5]) / det,
	}, nil
}

// ScaleFactor is the geometric mean of the axis scales, used to convert
// widths such as line width into device units.
func (m Matrix) ScaleFactor() float64 {
	return math.Sqrt(math.Abs(m[0]*m[3] - m[1]*m[2]))
}

func (m Matrix) IsIdentity() bool { return m == Identity() }

func Translate(tx, ty float64) Matrix { return Matrix{1, 0, 0, 1, tx, ty} }
func Scale(sx, sy float64) Matrix     { return Matrix{sx, 0, 0, sy, 0, 0} }

// Rotate returns a counter-clockwise rotation by angle radians.
func Rotate(angle float64) Matrix {
	c, s := math.Cos(angle), math.Sin(angle)
	return Matrix{c, s, -s, c, 0, 0}
}

// FromSlice builds a matrix from six numbers; other lengths give identity.
func FromSlice(v []float64) Matrix {
	if len(v) != 6 {
		return Identity()
	}
	return Matrix{v[0], v[1], v[2], v[3], v[4], v[5]}
}

// Rect is an axis-aligned rectangle. Normalized rectangles have
// LLX <= URX and LLY <= URY.
type Rect struct {
	LLX, LLY, URX, URY float64
}

func NewRect(x0, y0, x1, y1 float64) Rect {
	return Rect{math.Min(x0, x1), math.Min(y0, y1), math.Max(x0, x1), math.Max(y0, y1)}
}

// RectFromSlice reads a PDF rectangle array.
func RectFromSlice(v []float64) (Rect, bool) {
	if len(v) != 4 {
		return Rect{}, false
	}
	return NewRect(v[0], v[1], v[2], v[3]), true
}

func (r Rect) Width() float64  { return r.URX - r.LLX }
func (r Rect) Height() float64 { return r.URY - r.LLY }
func (r Rect) Empty() bool     { return r.Width() <= 0 || r.Height() <= 0 }

func (r Rect) Contains(p Point) bool {
	return p.X >= r.LLX && p.X <= r.URX && p.Y >= r.LLY && p.Y <= r.URY
}

func (r Rect) Intersect(o Rect) Rect {
	out := Rect{
		LLX: math.Max(r.LLX, o.LLX), LLY: math.Max(r.LLY, o.LLY),
		URX: math.Min(r.URX, o.URX), URY: math.Min(r.URY, o.URY),
	}
	if out.Empty() {
		return Rect{}
	}
	return out
}

func (r Rect) Union(o Rect) Rect {
	if r.Empty() {
		return o
	}
	if o.Empty() {
		return r
	}
	return Rect{
		LLX: math.Min(r.LLX, o.LLX), LLY: math.Min(r.LLY, o.LLY),
		URX: math.Max(r.URX, o.URX), URY: math.Max(r.URY, o.URY),
	}
}

// Corners returns the four corners counter-clockwise from lower-left.
func (r Rect) Corners() [4]Point {
	return [4]Point{{r.LLX, r.LLY}, {r.URX, r.LLY}, {r.URX, r.URY}, {r.LLX, r.URY}}
}

// Transform returns the bounding box of r under m.
func (r Rect) Transform(m Matrix) Rect {
	var out Rect
	for i, c := range r.Corners() {
		p := m.Transform(c)
		if i == 0 {
			out = Rect{p.X, p.Y, p.X, p.Y}
			continue
		}
		out.LLX, out.LLY = math.Min(out.LLX, p.X), math.Min(out.LLY, p.Y)
		out.URX, out.URY = math.Max(out.URX, p.X), math.Max(out.URY, p.Y)
	}
	return out
}

// Quad is an arbitrary quadrilateral, the image of a Rect under a matrix.
type Quad [4]Point

func (r Rect) TransformQuad(m Matrix) Quad {
	var q Quad
	for i, c := range r.Corners() {
		q[i] = m.Transform(c)
	}
	return q
}

// Contains reports whether p lies inside the convex quad q.
func (q Quad) Contains(p Point) bool {
	sign := 0.0
	for i := 0; i < 4; i++ {
		a, b := q[i], q[(i+1)%4]
		cross := (b.X-a.X)*(p.Y-a.Y) - (b.Y-a.Y)*(p.X-a.X)
		if math.Abs(cross) < 1e-9 {
			continue
		}
		if sign == 0 {
			sign = cross
		} else if (sign > 0) != (cross > 0) {
			return false
		}
	}
	return true
}
