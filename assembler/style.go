package assembler

import (
	"fmt"
	"math"
	"sort"
	"strconv"
	"strings"
	"sync"

	"github.com/cespare/xxhash/v2"

	"github.com/wudi/pdf2html/fonts"
	"github.com/wudi/pdf2html/layout"
)

// Style is the shared presentation of a text run: everything except its
// position and text.
type Style struct {
	Family string
	Size   float64
	Color  string
	Alpha  float64
	Bold   bool
	Italic bool
	// Matrix is the CSS transform of the run without translation; the
	// zero value means upright text.
	Matrix [4]float64
	// Baseline is the distance in em from the top of the line box to the
	// baseline.
	Baseline float64
}

// defaultBaseline matches an ascent of 0.8 em and a descent of 0.2 em.
const defaultBaseline = 0.8

func styleFor(run *layout.TextRun, zoom float64) Style {
	s := Style{
		Family:   cssFamily(run.Font),
		Size:     round(run.Size*zoom, 3),
		Color:    hexRGB(run.Color),
		Alpha:    round(run.Alpha, 3),
		Baseline: defaultBaseline,
	}
	if f := run.Font; f != nil {
		if f.Substituted {
			s.Bold, s.Italic = f.Bold, f.Italic
		}
		a, d := f.Ascent()/1000, -f.Descent()/1000
		if a > 0 {
			s.Baseline = round((1-(a+d))/2+a, 4)
		}
	}
	if !run.Upright() {
		// PDF space is y-up, CSS is y-down
		t := run.Transform()
		s.Matrix = [4]float64{round(t[0], 4), round(-t[1], 4), round(-t[2], 4), round(t[3], 4)}
	}
	return s
}

func cssFamily(f *fonts.ExtractedFont) string {
	if f == nil {
		return "sans-serif"
	}
	var parts []string
	if f.Family != "" {
		parts = append(parts, f.Family)
	}
	if f.Generic != "" {
		parts = append(parts, f.Generic)
	}
	if len(parts) == 0 {
		return "sans-serif"
	}
	return strings.Join(parts, ", ")
}

// canonical is the stable encoding hashed into the class name.
func (s Style) canonical() string {
	var sb strings.Builder
	sb.WriteString("ff=" + s.Family)
	sb.WriteString(";fs=" + num(s.Size))
	sb.WriteString(";c=" + s.Color)
	sb.WriteString(";a=" + num(s.Alpha))
	sb.WriteString(";b=" + strconv.FormatBool(s.Bold))
	sb.WriteString(";i=" + strconv.FormatBool(s.Italic))
	sb.WriteString(";bl=" + num(s.Baseline))
	if s.Matrix != ([4]float64{}) {
		sb.WriteString(";m=" + num(s.Matrix[0]) + "," + num(s.Matrix[1]) + "," + num(s.Matrix[2]) + "," + num(s.Matrix[3]))
	}
	return sb.String()
}

// CSS is the declaration block of the style.
func (s Style) CSS() string {
	var sb strings.Builder
	sb.WriteString("font-family:" + s.Family + ";")
	sb.WriteString("font-size:" + num(s.Size) + "px;")
	if s.Alpha < 1 {
		r, _ := strconv.ParseUint(s.Color[1:3], 16, 8)
		g, _ := strconv.ParseUint(s.Color[3:5], 16, 8)
		b, _ := strconv.ParseUint(s.Color[5:7], 16, 8)
		fmt.Fprintf(&sb, "color:rgba(%d,%d,%d,%s);", r, g, b, num(s.Alpha))
	} else {
		sb.WriteString("color:" + s.Color + ";")
	}
	if s.Bold {
		sb.WriteString("font-weight:bold;")
	}
	if s.Italic {
		sb.WriteString("font-style:italic;")
	}
	shift := "translateY(-" + num(s.Baseline) + "em)"
	if s.Matrix != ([4]float64{}) {
		m := s.Matrix
		sb.WriteString("transform:matrix(" + num(m[0]) + "," + num(m[1]) + "," + num(m[2]) + "," + num(m[3]) + ",0,0) " + shift + ";")
	} else {
		sb.WriteString("transform:" + shift + ";")
	}
	return sb.String()
}

// StyleTable deduplicates styles across pages. Class names derive from
// a hash of the style, so they do not depend on the order pages are
// assembled in. It is safe for concurrent use.
type StyleTable struct {
	mu      sync.Mutex
	classes map[string]Style
	byKey   map[string]string
}

func NewStyleTable() *StyleTable {
	return &StyleTable{classes: map[string]Style{}, byKey: map[string]string{}}
}

// Class returns the class name for s, registering it on first use.
func (t *StyleTable) Class(s Style) string {
	key := s.canonical()
	t.mu.Lock()
	defer t.mu.Unlock()
	if name, ok := t.byKey[key]; ok {
		return name
	}
	name := className(key)
	for salt := 1; ; salt++ {
		prev, taken := t.classes[name]
		if !taken || prev.canonical() == key {
			break
		}
		name = className(key + "#" + strconv.Itoa(salt))
	}
	t.classes[name] = s
	t.byKey[key] = name
	return name
}

func className(key string) string {
	return fmt.Sprintf("s%012x", xxhash.Sum64String(key)&0xFFFFFFFFFFFF)
}

// Len is the number of distinct styles.
func (t *StyleTable) Len() int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return len(t.classes)
}

// CSS renders one rule per class, sorted by class name.
func (t *StyleTable) CSS() string {
	t.mu.Lock()
	defer t.mu.Unlock()
	names := make([]string, 0, len(t.classes))
	for name := range t.classes {
		names = append(names, name)
	}
	sort.Strings(names)
	var sb strings.Builder
	for _, name := range names {
		sb.WriteString("." + name + "{" + t.classes[name].CSS() + "}\n")
	}
	return sb.String()
}

func hexRGB(c layout.RGB) string {
	return fmt.Sprintf("#%02x%02x%02x", to8(c.R), to8(c.G), to8(c.B))
}

func to8(v float64) uint8 {
	switch {
	case v <= 0:
		return 0
	case v >= 1:
		return 0xFF
	}
	return uint8(v*255 + 0.5)
}

func round(v float64, digits int) float64 {
	p := math.Pow(10, float64(digits))
	return math.Round(v*p) / p
}

// num formats v without trailing zeros, at most four decimals.
func num(v float64) string {
	v = round(v, 4)
	if v == 0 {
		return "0"
	}
	return strconv.FormatFloat(v, 'f', -1, 64)
}
