package fonts

import "strings"

type substitution struct {
	family  string
	generic string
	width   float64
}

// standardFamilies maps the base names of the standard 14 fonts and their
// common aliases to CSS families. width is an average advance used when
// the font dictionary carries no /Widths.
var standardFamilies = map[string]substitution{
	"Helvetica":       {"Helvetica, Arial", "sans-serif", 556},
	"Arial":           {"Arial, Helvetica", "sans-serif", 556},
	"ArialMT":         {"Arial, Helvetica", "sans-serif", 556},
	"Times":           {"'Times New Roman', Times", "serif", 500},
	"TimesNewRoman":   {"'Times New Roman', Times", "serif", 500},
	"TimesNewRomanPS": {"'Times New Roman', Times", "serif", 500},
	"Courier":         {"'Courier New', Courier", "monospace", 600},
	"CourierNew":      {"'Courier New', Courier", "monospace", 600},
	"CourierNewPS":    {"'Courier New', Courier", "monospace", 600},
	"Symbol":          {"Symbol", "serif", 500},
	"ZapfDingbats":    {"'Zapf Dingbats', Dingbats", "fantasy", 800},
}

// baseName strips the subset tag and the style suffix:
// "ABCDEF+Times-BoldItalic" becomes "Times".
func baseName(name string) string {
	name = stripSubsetTag(name)
	if i := strings.IndexAny(name, "-,"); i > 0 {
		name = name[:i]
	}
	return strings.TrimSuffix(name, "MT")
}

func lookupStandard(name string) (substitution, bool) {
	s, ok := standardFamilies[baseName(name)]
	if !ok {
		s, ok = standardFamilies[stripSubsetTag(name)]
	}
	return s, ok
}

// substituteFamily picks a CSS family for a font rendered without its
// program: a standard font's own family, otherwise the font name with a
// generic fallback chosen from the descriptor flags.
func substituteFamily(name string, flags int) (family, generic string) {
	if s, ok := lookupStandard(name); ok {
		return s.family, s.generic
	}
	generic = "sans-serif"
	switch {
	case flags&flagFixedPitch != 0:
		generic = "monospace"
	case flags&flagSerif != 0:
		generic = "serif"
	}
	base := baseName(name)
	if base == "" {
		return "", generic
	}
	return "'" + strings.ReplaceAll(base, "'", "") + "'", generic
}

func standardWidth(name string) (float64, bool) {
	s, ok := lookupStandard(name)
	return s.width, ok
}
