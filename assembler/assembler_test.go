package assembler

import (
	"regexp"
	"strings"
	"testing"

	"github.com/google/go-cmp/cmp"
	"golang.org/x/net/html"

	"github.com/wudi/pdf2html/background"
	"github.com/wudi/pdf2html/coords"
	"github.com/wudi/pdf2html/fonts"
	"github.com/wudi/pdf2html/layout"
)

func run(text string, x, y, size float64) layout.TextRun {
	return layout.TextRun{
		FontName: "F1",
		Size:     size,
		Matrix:   coords.Matrix{size, 0, 0, size, x, 792 - y},
		X:        x,
		Y:        y,
		Alpha:    1,
		Text:     text,
	}
}

func assemble(opts Options, inputs ...PageInput) *Bundle {
	a := New(opts, nil)
	pages := make([]Page, 0, len(inputs))
	for _, in := range inputs {
		pages = append(pages, a.Page(in))
	}
	return a.Bundle(pages, inputs, nil)
}

var classRE = regexp.MustCompile(`\bs[0-9a-f]{12}\b`)

func TestPagePositioning(t *testing.T) {
	b := assemble(DefaultOptions(), PageInput{Number: 1, Width: 612, Height: 792, Runs: []layout.TextRun{run("x", 100, 92, 12)}})
	frag := b.Pages[0].HTML
	for _, want := range []string{
		`<div id="pf1" class="pf" data-page-no="1" style="width:612px;height:792px">`,
		`style="left:100px;top:92px">x</span>`,
	} {
		if !strings.Contains(frag, want) {
			t.Errorf("fragment lacks %s:\n%s", want, frag)
		}
	}
	if !strings.Contains(b.Stylesheet, "font-size:12px;") || !strings.Contains(b.Stylesheet, "translateY(-0.8em)") {
		t.Errorf("stylesheet:\n%s", b.Stylesheet)
	}
}

func TestZoom(t *testing.T) {
	opts := DefaultOptions()
	opts.Zoom = 2
	b := assemble(opts, PageInput{Number: 1, Width: 100, Height: 50, Runs: []layout.TextRun{run("z", 10, 20, 8)}})
	frag := b.Pages[0].HTML
	if !strings.Contains(frag, "width:200px;height:100px") || !strings.Contains(frag, "left:20px;top:40px") {
		t.Fatalf("fragment not zoomed:\n%s", frag)
	}
	if !strings.Contains(b.Stylesheet, "font-size:16px;") {
		t.Fatalf("stylesheet not zoomed:\n%s", b.Stylesheet)
	}
}

func TestStyleDedup(t *testing.T) {
	red := run("a", 10, 10, 12)
	red.Color = layout.RGB{R: 1}
	plain := run("b", 10, 30, 12)
	other := run("c", 10, 50, 12)

	b := assemble(DefaultOptions(),
		PageInput{Number: 1, Width: 100, Height: 100, Runs: []layout.TextRun{red, plain}},
		PageInput{Number: 2, Width: 100, Height: 100, Runs: []layout.TextRun{other}},
	)
	p1 := classRE.FindAllString(b.Pages[0].HTML, -1)
	p2 := classRE.FindAllString(b.Pages[1].HTML, -1)
	if len(p1) != 2 || len(p2) != 1 {
		t.Fatalf("classes %v %v", p1, p2)
	}
	if p1[0] == p1[1] {
		t.Fatal("different colours share a class")
	}
	if p1[1] != p2[0] {
		t.Fatal("identical styles on different pages got different classes")
	}
	if got := len(classRE.FindAllString(b.Stylesheet, -1)); got != 2 {
		t.Fatalf("stylesheet has %d style rules, want 2", got)
	}

	// class names do not depend on registration order
	reversed := NewStyleTable()
	forward := NewStyleTable()
	s1, s2 := styleFor(&red, 1), styleFor(&plain, 1)
	a1, a2 := forward.Class(s1), forward.Class(s2)
	b2, b1 := reversed.Class(s2), reversed.Class(s1)
	if a1 != b1 || a2 != b2 {
		t.Fatalf("order-dependent class names: %s %s vs %s %s", a1, a2, b1, b2)
	}
}

func TestStyleFor(t *testing.T) {
	rotated := run("r", 0, 0, 10)
	rotated.Matrix = coords.Matrix{0, 10, -10, 0, 50, 50}
	sub := run("s", 0, 0, 10)
	sub.Font = &fonts.ExtractedFont{Family: "'Garamond'", Generic: "serif", Substituted: true, Bold: true}
	scaled := run("h", 0, 0, 10)
	scaled.Matrix = coords.Matrix{5, 0, 0, 10, 0, 0}
	translucent := run("t", 0, 0, 10)
	translucent.Color = layout.RGB{G: 1}
	translucent.Alpha = 0.5

	tests := []struct {
		name string
		run  layout.TextRun
		want []string
	}{
		{"upright default family", run("u", 0, 0, 10), []string{"font-family:sans-serif;", "color:#000000;", "transform:translateY(-0.8em);"}},
		{"rotated", rotated, []string{"transform:matrix(0,-1,1,0,0,0) translateY(-0.8em);"}},
		{"horizontally scaled", scaled, []string{"transform:matrix(0.5,0,0,1,0,0) translateY(-0.8em);"}},
		{"substituted bold", sub, []string{"font-family:'Garamond', serif;", "font-weight:bold;"}},
		{"translucent", translucent, []string{"color:rgba(0,255,0,0.5);"}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			css := styleFor(&tt.run, 1).CSS()
			for _, want := range tt.want {
				if !strings.Contains(css, want) {
					t.Errorf("css %q lacks %q", css, want)
				}
			}
		})
	}
}

func TestLetterSpacing(t *testing.T) {
	spaced := run("abc", 10, 10, 12)
	spaced.Glyphs = []layout.RunGlyph{
		{Text: "a", Offset: 0, Advance: 6},
		{Text: "b", Offset: 8, Advance: 6},
		{Text: "c", Offset: 16, Advance: 6},
	}
	spaced.Width = 22
	opts := DefaultOptions()
	opts.Zoom = 1.5
	b := assemble(opts, PageInput{Number: 1, Width: 100, Height: 100, Runs: []layout.TextRun{spaced}})
	if frag := b.Pages[0].HTML; !strings.Contains(frag, `style="left:15px;top:15px;letter-spacing:3px">abc</span>`) {
		t.Fatalf("fragment:\n%s", frag)
	}
}

func TestTransparentRuns(t *testing.T) {
	hidden := run("h", 10, 10, 12)
	hidden.Visibility = layout.Occluded
	b := assemble(DefaultOptions(), PageInput{Number: 1, Width: 100, Height: 100, Runs: []layout.TextRun{hidden, run("v", 10, 30, 12)}})
	frag := b.Pages[0].HTML
	if !regexp.MustCompile(`class="t s[0-9a-f]{12} tr"[^>]*>h<`).MatchString(frag) {
		t.Errorf("occluded run not transparent:\n%s", frag)
	}
	if !regexp.MustCompile(`class="t s[0-9a-f]{12}"[^>]*>v<`).MatchString(frag) {
		t.Errorf("visible run marked transparent:\n%s", frag)
	}
}

func TestFailedPage(t *testing.T) {
	b := assemble(DefaultOptions(), PageInput{Number: 3, Width: 100, Height: 100, Status: StatusFailed, Diagnostics: []string{"boom"}})
	p := b.Pages[0]
	if !strings.Contains(p.HTML, `class="pf pf-failed"`) || !strings.Contains(p.HTML, "Page 3 could not be converted.") {
		t.Fatalf("placeholder fragment:\n%s", p.HTML)
	}
	if p.Status != StatusFailed || p.Status.String() != "failed" || !cmp.Equal(p.Diagnostics, []string{"boom"}) {
		t.Fatalf("page = %+v", p)
	}
}

func testLayer() *background.Layer {
	return &background.Layer{Kind: background.KindVector, Data: []byte("<svg/>"), Hash: "0123456789abcdef0123456789abcdef"}
}

func testFont() *fonts.ExtractedFont {
	return &fonts.ExtractedFont{Kind: fonts.ProgramTrueType, Family: "fabc", Hash: "abc", WOFF: []byte("wOFF")}
}

func TestEmbedOptions(t *testing.T) {
	inputs := []PageInput{
		{Number: 1, Width: 100, Height: 100, Background: testLayer()},
		{Number: 2, Width: 100, Height: 100, Background: testLayer()},
	}
	faces := []*fonts.ExtractedFont{testFont(), testFont(), {Family: "Helvetica", Substituted: true}}

	t.Run("embedded", func(t *testing.T) {
		a := New(DefaultOptions(), nil)
		b := a.Bundle([]Page{a.Page(inputs[0]), a.Page(inputs[1])}, inputs, faces)
		if !strings.Contains(b.Pages[0].HTML, `src="data:image/svg+xml;base64,`) || b.Pages[0].Background != "" {
			t.Errorf("background not inlined: %s", b.Pages[0].HTML)
		}
		if len(b.Fonts) != 1 || !strings.Contains(b.Stylesheet, "url(data:font/woff;base64,") {
			t.Errorf("fonts = %d, stylesheet:\n%s", len(b.Fonts), b.Stylesheet)
		}
		if len(b.Artefacts()) != 0 {
			t.Errorf("artefacts = %v", b.Artefacts())
		}
		if doc := b.HTML(); !strings.Contains(doc, "<style>") || strings.Contains(doc, `rel="stylesheet"`) {
			t.Errorf("stylesheet not inlined")
		}
	})

	t.Run("separate", func(t *testing.T) {
		opts := Options{Zoom: 1}
		a := New(opts, nil)
		b := a.Bundle([]Page{a.Page(inputs[1]), a.Page(inputs[0])}, inputs, faces)
		name := testLayer().Name()
		if b.Pages[0].Number != 1 || b.Pages[0].Background != name {
			t.Fatalf("pages = %+v", b.Pages)
		}
		if !strings.Contains(b.Pages[0].HTML, `src="`+name+`"`) {
			t.Errorf("background not referenced by name: %s", b.Pages[0].HTML)
		}
		if !strings.Contains(b.Stylesheet, `src:url("fabc.woff") format("woff")`) {
			t.Errorf("font not referenced by name:\n%s", b.Stylesheet)
		}
		var names []string
		for _, art := range b.Artefacts() {
			names = append(names, art.Name)
		}
		if diff := cmp.Diff([]string{StylesheetName, "fabc.woff", name}, names); diff != "" {
			t.Errorf("artefacts (-want +got):\n%s", diff)
		}
		if doc := b.HTML(); !strings.Contains(doc, `<link rel="stylesheet" href="style.css"/>`) {
			t.Errorf("stylesheet not linked:\n%s", doc)
		}
	})
}

func TestBundleHTML(t *testing.T) {
	opts := DefaultOptions()
	opts.Title = "Report & Summary"
	inputs := []PageInput{
		{Number: 1, Width: 100, Height: 100, Runs: []layout.TextRun{run("a < b", 10, 10, 12)}},
		{Number: 2, Width: 100, Height: 100, Runs: []layout.TextRun{run("c", 10, 10, 12)}},
	}
	doc := assemble(opts, inputs...).HTML()
	if again := assemble(opts, inputs...).HTML(); again != doc {
		t.Fatal("identical input produced different documents")
	}
	if !strings.HasPrefix(doc, "<!DOCTYPE html>") {
		t.Fatalf("document starts %q", doc[:20])
	}
	root, err := html.Parse(strings.NewReader(doc))
	if err != nil {
		t.Fatal(err)
	}
	var pages, spans []string
	var title string
	var walk func(*html.Node)
	walk = func(n *html.Node) {
		if n.Type == html.ElementNode {
			switch n.Data {
			case "div":
				for _, a := range n.Attr {
					if a.Key == "data-page-no" {
						pages = append(pages, a.Val)
					}
				}
			case "span":
				spans = append(spans, n.FirstChild.Data)
			case "title":
				title = n.FirstChild.Data
			}
		}
		for c := n.FirstChild; c != nil; c = c.NextSibling {
			walk(c)
		}
	}
	walk(root)
	if diff := cmp.Diff([]string{"1", "2"}, pages); diff != "" {
		t.Errorf("pages (-want +got):\n%s", diff)
	}
	if diff := cmp.Diff([]string{"a < b", "c"}, spans); diff != "" {
		t.Errorf("spans (-want +got):\n%s", diff)
	}
	if title != "Report & Summary" {
		t.Errorf("title = %q", title)
	}
}
