package layout

import "github.com/wudi/pdf2html/coords"

// quadTree is a spatial index of occluder boxes. Entries that straddle a
// split line stay in the parent node.
type quadTree struct {
	bounds   coords.Rect
	capacity int
	entries  []entry
	nodes    []*quadTree
}

type entry struct {
	rect  coords.Rect
	index int
}

func newQuadTree(bounds coords.Rect, capacity int) *quadTree {
	return &quadTree{
		bounds:   bounds,
		capacity: capacity,
		entries:  make([]entry, 0, capacity),
	}
}

// insert adds rect. Rects not inside any child, including those reaching
// past the root bounds, stay at the root.
func (qt *quadTree) insert(rect coords.Rect, index int) {
	if qt.nodes != nil {
		for _, node := range qt.nodes {
			if contains(node.bounds, rect) {
				node.insert(rect, index)
				return
			}
		}
		qt.entries = append(qt.entries, entry{rect, index})
		return
	}
	if len(qt.entries) < qt.capacity || qt.bounds.Width() < 1 || qt.bounds.Height() < 1 {
		qt.entries = append(qt.entries, entry{rect, index})
		return
	}
	qt.subdivide()
	old := qt.entries
	qt.entries = make([]entry, 0, qt.capacity)
	for _, e := range old {
		qt.insert(e.rect, e.index)
	}
	qt.insert(rect, index)
}

func (qt *quadTree) subdivide() {
	b := qt.bounds
	xMid := (b.LLX + b.URX) / 2
	yMid := (b.LLY + b.URY) / 2
	qt.nodes = []*quadTree{
		newQuadTree(coords.Rect{LLX: b.LLX, LLY: yMid, URX: xMid, URY: b.URY}, qt.capacity),
		newQuadTree(coords.Rect{LLX: xMid, LLY: yMid, URX: b.URX, URY: b.URY}, qt.capacity),
		newQuadTree(coords.Rect{LLX: b.LLX, LLY: b.LLY, URX: xMid, URY: yMid}, qt.capacity),
		newQuadTree(coords.Rect{LLX: xMid, LLY: b.LLY, URX: b.URX, URY: yMid}, qt.capacity),
	}
}

// query appends the indexes of entries whose box contains p.
func (qt *quadTree) query(p coords.Point, found []int) []int {
	for _, e := range qt.entries {
		if containsPoint(e.rect, p) {
			found = append(found, e.index)
		}
	}
	for _, node := range qt.nodes {
		if containsPoint(node.bounds, p) {
			found = node.query(p, found)
		}
	}
	return found
}

func containsPoint(r coords.Rect, p coords.Point) bool {
	return p.X >= r.LLX && p.X <= r.URX && p.Y >= r.LLY && p.Y <= r.URY
}

func contains(outer, inner coords.Rect) bool {
	return inner.LLX >= outer.LLX && inner.URX <= outer.URX &&
		inner.LLY >= outer.LLY && inner.URY <= outer.URY
}
