// Package assembler turns per-page text runs, backgrounds and the font
// manifest into an HTML bundle. It performs no I/O: artefacts that are
// not embedded are returned by name for the caller to store.
package assembler

import (
	"encoding/base64"
	"fmt"
	"sort"
	"strings"

	"github.com/wudi/pdf2html/background"
	"github.com/wudi/pdf2html/fonts"
	"github.com/wudi/pdf2html/layout"
	"github.com/wudi/pdf2html/observability"
)

// Options selects inline data versus separate artefacts.
type Options struct {
	EmbedFonts  bool
	EmbedImages bool
	EmbedCSS    bool
	Zoom        float64
	Title       string
}

func DefaultOptions() Options {
	return Options{EmbedFonts: true, EmbedImages: true, EmbedCSS: true, Zoom: 1}
}

// Status is the outcome of converting one page.
type Status int

const (
	StatusOK Status = iota
	// StatusDegraded pages were converted with recoverable problems.
	StatusDegraded
	// StatusFailed pages carry a placeholder fragment.
	StatusFailed
)

func (s Status) String() string {
	switch s {
	case StatusDegraded:
		return "degraded"
	case StatusFailed:
		return "failed"
	}
	return "ok"
}

// MarshalText lets manifests record the status by name.
func (s Status) MarshalText() ([]byte, error) { return []byte(s.String()), nil }

func (s *Status) UnmarshalText(b []byte) error {
	switch string(b) {
	case "ok":
		*s = StatusOK
	case "degraded":
		*s = StatusDegraded
	case "failed":
		*s = StatusFailed
	default:
		return fmt.Errorf("unknown page status %q", b)
	}
	return nil
}

// PageInput is everything the conversion produced for one page.
type PageInput struct {
	// Number is the 1-based page number in the source document.
	Number        int
	Width, Height float64
	Runs          []layout.TextRun
	Background    *background.Layer
	Status        Status
	Diagnostics   []string
}

// Page is one assembled page.
type Page struct {
	Number        int
	Width, Height float64
	// HTML is the page fragment: one positioned div.
	HTML string
	// Background is the artefact name of the page background, "" when
	// the page has none or it is embedded.
	Background  string
	Status      Status
	Diagnostics []string
}

// FontFace is one web font of the manifest.
type FontFace struct {
	Hash   string
	Family string
	Kind   string
	Name   string
	Data   []byte
	// CSS is the @font-face rule.
	CSS string
}

// Artefact is a named file referenced from the HTML.
type Artefact struct {
	Name      string
	MediaType string
	Data      []byte
}

// Bundle is the conversion output.
type Bundle struct {
	Pages       []Page
	Stylesheet  string
	Fonts       []FontFace
	Backgrounds []Artefact
	Options     Options
}

// StylesheetName is the artefact name of the stylesheet when it is not
// embedded.
const StylesheetName = "style.css"

// Artefacts lists the files the HTML refers to by name.
func (b *Bundle) Artefacts() []Artefact {
	var out []Artefact
	if !b.Options.EmbedCSS {
		out = append(out, Artefact{Name: StylesheetName, MediaType: "text/css", Data: []byte(b.Stylesheet)})
	}
	if !b.Options.EmbedFonts {
		for _, f := range b.Fonts {
			out = append(out, Artefact{Name: f.Name, MediaType: "font/woff", Data: f.Data})
		}
	}
	if !b.Options.EmbedImages {
		out = append(out, b.Backgrounds...)
	}
	return out
}

// Assembler renders pages against a shared style table. Page may be
// called concurrently.
type Assembler struct {
	opts   Options
	styles *StyleTable
	logger observability.Logger
}

func New(opts Options, logger observability.Logger) *Assembler {
	if opts.Zoom <= 0 {
		opts.Zoom = 1
	}
	return &Assembler{opts: opts, styles: NewStyleTable(), logger: observability.OrNop(logger)}
}

// Styles exposes the table shared by the assembler's pages.
func (a *Assembler) Styles() *StyleTable { return a.styles }

// Page renders one page fragment.
func (a *Assembler) Page(in PageInput) Page {
	p := Page{
		Number:      in.Number,
		Width:       in.Width,
		Height:      in.Height,
		Status:      in.Status,
		Diagnostics: in.Diagnostics,
	}
	if in.Background != nil && !a.opts.EmbedImages {
		p.Background = in.Background.Name()
	}
	p.HTML = renderNode(a.pageNode(in))
	return p
}

// Bundle merges rendered pages with the font manifest and the
// backgrounds they reference. Pages are ordered by number.
func (a *Assembler) Bundle(pages []Page, inputs []PageInput, faces []*fonts.ExtractedFont) *Bundle {
	sort.SliceStable(pages, func(i, j int) bool { return pages[i].Number < pages[j].Number })
	b := &Bundle{Pages: pages, Options: a.opts}
	b.Fonts = a.fontFaces(faces)

	seen := map[string]bool{}
	for _, in := range inputs {
		l := in.Background
		if l == nil || seen[l.Name()] {
			continue
		}
		seen[l.Name()] = true
		b.Backgrounds = append(b.Backgrounds, Artefact{Name: l.Name(), MediaType: l.MediaType(), Data: l.Data})
	}
	sort.Slice(b.Backgrounds, func(i, j int) bool { return b.Backgrounds[i].Name < b.Backgrounds[j].Name })

	var sb strings.Builder
	sb.WriteString(baseCSS)
	for _, f := range b.Fonts {
		sb.WriteString(f.CSS)
	}
	sb.WriteString(a.styles.CSS())
	b.Stylesheet = sb.String()
	a.logger.Debug("bundle assembled",
		observability.Int(observability.MetricPageCount, len(pages)),
		observability.Int("styles", a.styles.Len()),
		observability.Int("fonts", len(b.Fonts)),
		observability.Int("backgrounds", len(b.Backgrounds)),
	)
	return b
}

// fontFaces builds the manifest from finalized fonts: one entry per
// distinct program hash.
func (a *Assembler) fontFaces(list []*fonts.ExtractedFont) []FontFace {
	byHash := map[string]FontFace{}
	for _, f := range list {
		if f.Substituted || len(f.WOFF) == 0 || f.Hash == "" {
			continue
		}
		if _, ok := byHash[f.Hash]; ok {
			continue
		}
		face := FontFace{Hash: f.Hash, Family: f.Family, Kind: f.Kind.String(), Name: f.Family + ".woff", Data: f.WOFF}
		src := `url("` + face.Name + `")`
		if a.opts.EmbedFonts {
			src = "url(data:font/woff;base64," + base64.StdEncoding.EncodeToString(f.WOFF) + ")"
		}
		face.CSS = fmt.Sprintf("@font-face{font-family:%s;src:%s format(\"woff\");}\n", f.Family, src)
		byHash[f.Hash] = face
	}
	out := make([]FontFace, 0, len(byHash))
	for _, face := range byHash {
		out = append(out, face)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Hash < out[j].Hash })
	return out
}

// baseCSS positions page containers, backgrounds and text spans.
const baseCSS = `.pc{margin:0;padding:0;}
.pf{position:relative;overflow:hidden;margin:0 auto 8px;background:#fff;}
.bi{position:absolute;left:0;top:0;width:100%;height:100%;pointer-events:none;user-select:none;}
.t{position:absolute;white-space:pre;line-height:1;transform-origin:0 0;}
.tr{color:transparent!important;}
.pe{position:absolute;left:0;right:0;top:45%;text-align:center;font-family:sans-serif;color:#888;}
`
