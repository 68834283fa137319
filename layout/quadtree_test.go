package layout

import (
	"sort"
	"testing"

	"github.com/google/go-cmp/cmp"

	"github.com/wudi/pdf2html/coords"
)

func TestQuadTreeQuery(t *testing.T) {
	qt := newQuadTree(coords.Rect{URX: 100, URY: 100}, 2)
	rects := []coords.Rect{
		{LLX: 0, LLY: 0, URX: 10, URY: 10},
		{LLX: 60, LLY: 60, URX: 70, URY: 70},
		{LLX: 40, LLY: 40, URX: 60, URY: 60}, // straddles the split
		{LLX: 5, LLY: 5, URX: 15, URY: 15},
		{LLX: 80, LLY: 0, URX: 90, URY: 10},
		{LLX: -20, LLY: -20, URX: 200, URY: 200}, // larger than the tree
	}
	for i, r := range rects {
		qt.insert(r, i)
	}
	tests := []struct {
		p    coords.Point
		want []int
	}{
		{coords.Point{X: 7, Y: 7}, []int{0, 3, 5}},
		{coords.Point{X: 50, Y: 50}, []int{2, 5}},
		{coords.Point{X: 65, Y: 65}, []int{1, 5}},
		{coords.Point{X: 150, Y: 150}, []int{5}},
		{coords.Point{X: 30, Y: 80}, []int{5}},
	}
	for _, tt := range tests {
		got := qt.query(tt.p, nil)
		sort.Ints(got)
		if diff := cmp.Diff(tt.want, got); diff != "" {
			t.Errorf("query(%v) (-want +got):\n%s", tt.p, diff)
		}
	}
}

func TestWindingRules(t *testing.T) {
	outer := []coords.Point{{X: 0, Y: 0}, {X: 10, Y: 0}, {X: 10, Y: 10}, {X: 0, Y: 10}}
	inner := []coords.Point{{X: 3, Y: 3}, {X: 7, Y: 3}, {X: 7, Y: 7}, {X: 3, Y: 7}}
	polys := [][]coords.Point{outer, inner}
	if w := winding(polys, coords.Point{X: 5, Y: 5}); w != 2 {
		t.Fatalf("winding in hole = %d, want 2", w)
	}
	if w := winding(polys, coords.Point{X: 1, Y: 5}); w != 1 {
		t.Fatalf("winding in ring = %d, want 1", w)
	}
	if w := winding(polys, coords.Point{X: 20, Y: 5}); w != 0 {
		t.Fatalf("winding outside = %d, want 0", w)
	}
	if w := winding(polys, coords.Point{X: 10, Y: 5}); w == 0 {
		t.Fatalf("edge point reported outside")
	}
}
