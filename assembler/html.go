package assembler

import (
	"bytes"
	"encoding/base64"
	"strconv"
	"strings"

	"golang.org/x/net/html"
	"golang.org/x/net/html/atom"
	"golang.org/x/text/unicode/norm"

	"github.com/wudi/pdf2html/layout"
)

func element(a atom.Atom, attrs ...string) *html.Node {
	n := &html.Node{Type: html.ElementNode, DataAtom: a, Data: a.String()}
	for i := 0; i+1 < len(attrs); i += 2 {
		n.Attr = append(n.Attr, html.Attribute{Key: attrs[i], Val: attrs[i+1]})
	}
	return n
}

func text(s string) *html.Node {
	return &html.Node{Type: html.TextNode, Data: s}
}

func renderNode(n *html.Node) string {
	var buf bytes.Buffer
	if err := html.Render(&buf, n); err != nil {
		return ""
	}
	return buf.String()
}

func px(v float64) string { return num(v) + "px" }

// pageNode builds the fragment for one page: a sized container holding
// the background image and one absolutely positioned span per run.
func (a *Assembler) pageNode(in PageInput) *html.Node {
	zoom := a.opts.Zoom
	n := strconv.Itoa(in.Number)
	class := "pf"
	if in.Status == StatusFailed {
		class += " pf-failed"
	}
	page := element(atom.Div,
		"id", "pf"+n,
		"class", class,
		"data-page-no", n,
		"style", "width:"+px(in.Width*zoom)+";height:"+px(in.Height*zoom),
	)
	if in.Status == StatusFailed {
		msg := element(atom.P, "class", "pe")
		msg.AppendChild(text("Page " + n + " could not be converted."))
		page.AppendChild(msg)
		return page
	}
	if l := in.Background; l != nil {
		src := l.Name()
		if a.opts.EmbedImages {
			src = "data:" + l.MediaType() + ";base64," + base64.StdEncoding.EncodeToString(l.Data)
		}
		page.AppendChild(element(atom.Img, "class", "bi", "alt", "", "src", src))
	}
	for i := range in.Runs {
		run := &in.Runs[i]
		if run.Text == "" {
			continue
		}
		cls := "t " + a.styles.Class(styleFor(run, zoom))
		if run.Visibility.Transparent() {
			cls += " tr"
		}
		style := "left:" + px(run.X*zoom) + ";top:" + px(run.Y*zoom)
		if ls := round(run.Spacing()*zoom, 3); ls != 0 {
			style += ";letter-spacing:" + px(ls)
		}
		span := element(atom.Span, "class", cls, "style", style)
		span.AppendChild(text(displayText(run)))
		page.AppendChild(span)
	}
	return page
}

// displayText is the text written for a visible run. Glyphs whose
// text cannot select them in the embedded web font are written as the
// private use code points the font maps to them.
func displayText(run *layout.TextRun) string {
	if run.Font == nil || run.Font.WOFF == nil || run.Visibility.Transparent() {
		return run.Text
	}
	var sb strings.Builder
	remapped := false
	for _, g := range run.Glyphs {
		d := run.Font.Display(g.GID, g.Text)
		remapped = remapped || d != g.Text
		sb.WriteString(d)
	}
	if !remapped {
		return run.Text
	}
	return norm.NFC.String(sb.String())
}

// HTML renders a standalone document holding every page.
func (b *Bundle) HTML() string {
	doc := &html.Node{Type: html.DocumentNode}
	doc.AppendChild(&html.Node{Type: html.DoctypeNode, Data: "html"})
	root := element(atom.Html)
	doc.AppendChild(root)

	head := element(atom.Head)
	head.AppendChild(element(atom.Meta, "charset", "utf-8"))
	head.AppendChild(element(atom.Meta, "name", "generator", "content", "pdf2html"))
	if b.Options.Title != "" {
		title := element(atom.Title)
		title.AppendChild(text(b.Options.Title))
		head.AppendChild(title)
	}
	if b.Options.EmbedCSS {
		style := element(atom.Style)
		style.AppendChild(text(b.Stylesheet))
		head.AppendChild(style)
	} else {
		head.AppendChild(element(atom.Link, "rel", "stylesheet", "href", StylesheetName))
	}
	root.AppendChild(head)

	body := element(atom.Body, "class", "pc")
	container := element(atom.Div, "id", "page-container")
	for _, p := range b.Pages {
		nodes, err := html.ParseFragment(bytes.NewReader([]byte(p.HTML)), container)
		if err != nil {
			continue
		}
		for _, n := range nodes {
			container.AppendChild(n)
		}
	}
	body.AppendChild(container)
	root.AppendChild(body)
	return renderNode(doc)
}
