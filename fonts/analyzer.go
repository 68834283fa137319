package fonts

import "github.com/wudi/pdf2html/contentstream"

// Analyzer is a paint sink that records the glyphs each font actually
// painted and the text they stand for, the input of subsetting and of
// the web font cmap. Text in render mode 7 (clip only)
// still counts: its glyphs end up in the selectable text layer.
type Analyzer struct{}

// NewAnalyzer returns a usage-recording sink.
func NewAnalyzer() *Analyzer { return &Analyzer{} }

func (a *Analyzer) Paint(ev *contentstream.PaintEvent) {
	if ev.Kind != contentstream.EventText || len(ev.Glyphs) == 0 {
		return
	}
	f := Unwrap(ev.State.Text.Font)
	if f == nil || !f.Kind.Embeddable() || f.Substituted {
		return
	}
	for _, g := range ev.Glyphs {
		f.UseText(g.Glyph.GID, g.Glyph.Text)
	}
}

func (a *Analyzer) Diagnose(contentstream.Diagnostic) {}
