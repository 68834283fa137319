package semantic

import (
	"context"
	"testing"

	"github.com/google/go-cmp/cmp"

	"github.com/wudi/pdf2html/coords"
	"github.com/wudi/pdf2html/ir/raw"
	"github.com/wudi/pdf2html/parser"
	"github.com/wudi/pdf2html/writer"
)

func rectArr(v ...float64) *raw.ArrayObj {
	a := raw.NewArray()
	for _, x := range v {
		a.Items = append(a.Items, raw.Real(x))
	}
	return a
}

func parse(t *testing.T, data []byte) *raw.Document {
	t.Helper()
	doc, err := parser.Parse(context.Background(), data, parser.Config{})
	if err != nil {
		t.Fatalf("Parse: %v", err)
	}
	return doc
}

// nestedTree builds root -> [inner -> [p1, p2], p3] with attributes on
// the intermediate nodes.
func nestedTree(t *testing.T) []byte {
	t.Helper()
	w := writer.New(writer.Config{})
	root := w.Reserve()
	inner := w.Reserve()
	content := func(s string) raw.RefObj { return w.Add(raw.NewStream(raw.Dict(), []byte(s))) }

	leaf := func(parent raw.RefObj, c raw.Object) raw.RefObj {
		d := raw.Dict()
		d.Set("Type", raw.Name("Page"))
		d.Set("Parent", parent)
		d.Set("Contents", c)
		return w.Add(d)
	}
	p1 := leaf(inner, content("p1"))
	p2 := leaf(inner, raw.NewArray(content("q"), content("Q")))
	p3d := raw.Dict()
	p3d.Set("Type", raw.Name("Page"))
	p3d.Set("Parent", root)
	p3d.Set("MediaBox", rectArr(0, 0, 200, 100))
	p3d.Set("CropBox", rectArr(10, 10, 110, 60))
	p3 := w.Add(p3d)

	in := raw.Dict()
	in.Set("Type", raw.Name("Pages"))
	in.Set("Parent", root)
	in.Set("Kids", raw.NewArray(p1, p2))
	in.Set("Count", raw.Int(2))
	in.Set("MediaBox", rectArr(0, 0, 300, 400))
	in.Set("Rotate", raw.Int(-90))
	res := raw.Dict()
	res.Set("ProcSet", raw.NewArray(raw.Name("PDF")))
	in.Set("Resources", res)
	w.Set(inner, in)

	rd := raw.Dict()
	rd.Set("Type", raw.Name("Pages"))
	rd.Set("Kids", raw.NewArray(inner, p3))
	rd.Set("Count", raw.Int(3))
	w.Set(root, rd)

	cat := raw.Dict()
	cat.Set("Type", raw.Name("Catalog"))
	cat.Set("Pages", root)
	data, err := w.Bytes(w.Add(cat))
	if err != nil {
		t.Fatal(err)
	}
	return data
}

// countLeaves is an independent walk used to cross-check Pages.
func countLeaves(doc *raw.Document, o raw.Object, depth int) int {
	if depth > 32 {
		return 0
	}
	d, err := doc.Dict(o)
	if err != nil || d == nil {
		return 0
	}
	if d.NameValue("Type") == "Page" {
		return 1
	}
	kids, _ := doc.Lookup(d, "Kids")
	arr, _ := doc.Array(kids)
	if arr == nil {
		return 0
	}
	n := 0
	for _, k := range arr.Items {
		n += countLeaves(doc, k, depth+1)
	}
	return n
}

func TestPagesInheritance(t *testing.T) {
	doc := parse(t, nestedTree(t))
	pages, err := Pages(context.Background(), doc, Config{})
	if err != nil {
		t.Fatalf("Pages: %v", err)
	}
	cat, _ := doc.Catalog()
	root, _ := cat.Get("Pages")
	if want := countLeaves(doc, root, 0); len(pages) != want {
		t.Fatalf("got %d pages, independent walk found %d", len(pages), want)
	}
	type summary struct {
		Index   int
		Media   coords.Rect
		Crop    coords.Rect
		Rotate  int
		HasProc bool
	}
	var got []summary
	for _, p := range pages {
		_, hasProc := p.Resources.Get("ProcSet")
		got = append(got, summary{p.Index, p.MediaBox, p.CropBox, p.Rotate, hasProc})
	}
	want := []summary{
		{0, coords.Rect{URX: 300, URY: 400}, coords.Rect{URX: 300, URY: 400}, 270, true},
		{1, coords.Rect{URX: 300, URY: 400}, coords.Rect{URX: 300, URY: 400}, 270, true},
		{2, coords.Rect{URX: 200, URY: 100}, coords.Rect{LLX: 10, LLY: 10, URX: 110, URY: 60}, 0, false},
	}
	if diff := cmp.Diff(want, got); diff != "" {
		t.Fatalf("pages mismatch (-want +got):\n%s", diff)
	}
	if n, ok := DeclaredCount(doc); !ok || n != 3 {
		t.Errorf("DeclaredCount = %d, %v", n, ok)
	}
	if w, h := pages[0].Size(); w != 400 || h != 300 {
		t.Errorf("rotated size = %vx%v, want 400x300", w, h)
	}
	if w, h := pages[2].Size(); w != 100 || h != 50 {
		t.Errorf("cropped size = %vx%v, want 100x50", w, h)
	}
}

func TestPageContentConcatenates(t *testing.T) {
	doc := parse(t, nestedTree(t))
	pages, err := Pages(context.Background(), doc, Config{})
	if err != nil {
		t.Fatal(err)
	}
	data, dropped, err := pages[1].Content(context.Background(), doc, nil)
	if err != nil || len(dropped) != 0 {
		t.Fatalf("content: dropped %v, err %v", dropped, err)
	}
	if string(data) != "q\nQ\n" {
		t.Fatalf("content = %q", data)
	}
	empty, _, err := pages[2].Content(context.Background(), doc, nil)
	if err != nil || len(empty) != 0 {
		t.Fatalf("page without contents = %q, %v", empty, err)
	}
}

func TestPagesCycle(t *testing.T) {
	w := writer.New(writer.Config{})
	root := w.Reserve()
	page := raw.Dict()
	page.Set("Type", raw.Name("Page"))
	p := w.Add(page)
	rd := raw.Dict()
	rd.Set("Type", raw.Name("Pages"))
	rd.Set("Kids", raw.NewArray(p, root))
	w.Set(root, rd)
	cat := raw.Dict()
	cat.Set("Type", raw.Name("Catalog"))
	cat.Set("Pages", root)
	data, err := w.Bytes(w.Add(cat))
	if err != nil {
		t.Fatal(err)
	}
	pages, err := Pages(context.Background(), parse(t, data), Config{})
	if err != nil {
		t.Fatalf("Pages: %v", err)
	}
	if len(pages) != 1 {
		t.Fatalf("got %d pages, want 1", len(pages))
	}
}

func TestPagesMissingTree(t *testing.T) {
	w := writer.New(writer.Config{})
	cat := raw.Dict()
	cat.Set("Type", raw.Name("Catalog"))
	data, err := w.Bytes(w.Add(cat))
	if err != nil {
		t.Fatal(err)
	}
	if _, err := Pages(context.Background(), parse(t, data), Config{}); err == nil {
		t.Fatal("catalog without /Pages must fail")
	}
}

func TestDisplayMatrix(t *testing.T) {
	p := &Page{MediaBox: coords.Rect{URX: 200, URY: 100}, Rotate: 90}
	p.CropBox = p.MediaBox
	m := p.DisplayMatrix()
	// the lower-left corner ends up top-left of the rotated page
	got := m.Transform(coords.Point{X: 0, Y: 0})
	if got != (coords.Point{X: 0, Y: 200}) {
		t.Fatalf("origin maps to %+v", got)
	}
	got = m.Transform(coords.Point{X: 200, Y: 100})
	if got != (coords.Point{X: 100, Y: 0}) {
		t.Fatalf("upper-right maps to %+v", got)
	}
}

func TestNormalizeRotation(t *testing.T) {
	for in, want := range map[int]int{0: 0, 90: 90, -90: 270, 450: 90, 180: 180, 89: 90, 360: 0, -270: 90} {
		if got := NormalizeRotation(in); got != want {
			t.Errorf("NormalizeRotation(%d) = %d, want %d", in, got, want)
		}
	}
}
