package fonts

import (
	"fmt"

	xfont "golang.org/x/image/font"
	"golang.org/x/image/font/sfnt"
	"golang.org/x/image/math/fixed"
)

// programMetrics are the vertical metrics and name of an embedded
// TrueType or OpenType program, in 1/1000 em.
type programMetrics struct {
	PostScriptName string
	Family         string
	Ascent         float64
	Descent        float64
	NumGlyphs      int
	ItalicAngle    float64
}

// readMetrics validates program with the sfnt parser and extracts its
// metrics. A program that fails here is not worth wrapping.
func readMetrics(program []byte) (*programMetrics, error) {
	f, err := sfnt.Parse(program)
	if err != nil {
		return nil, fmt.Errorf("parse sfnt: %w", err)
	}
	upem := f.UnitsPerEm()
	if upem == 0 {
		return nil, fmt.Errorf("unitsPerEm is zero")
	}
	var buf sfnt.Buffer
	ppem := fixed.Int26_6(upem) << 6
	m := &programMetrics{NumGlyphs: f.NumGlyphs()}
	if name, err := f.Name(&buf, sfnt.NameIDPostScript); err == nil {
		m.PostScriptName = name
	}
	if name, err := f.Name(&buf, sfnt.NameIDFamily); err == nil {
		m.Family = name
	}
	if vm, err := f.Metrics(&buf, ppem, xfont.HintingNone); err == nil {
		m.Ascent = toEm(vm.Ascent, upem)
		m.Descent = -toEm(vm.Descent, upem)
	}
	if post := f.PostTable(); post != nil {
		m.ItalicAngle = post.ItalicAngle
	}
	return m, nil
}

func toEm(v fixed.Int26_6, upem sfnt.Units) float64 {
	return float64(v) * 1000 / (64 * float64(upem))
}
