package fonts

import (
	"encoding/binary"
	"sort"
	"unicode/utf8"
)

// glyphText is a glyph painted for a piece of text.
type glyphText struct {
	gid  uint16
	text string
}

// Private use code points handed to glyphs whose text cannot select
// them.
const (
	puaFirst      = 0xE000
	puaLast       = 0xF8FF
	puaPlaneFirst = 0xF0000
	puaPlaneLast  = 0xFFFFD
)

// unicodeMap is the cmap of a web font. A glyph is selected by its own
// text when that is one code point no other glyph claimed first;
// otherwise (ligatures, conflicts, codes without Unicode) it gets a
// private use code point, recorded in remap.
type unicodeMap struct {
	runes map[rune]uint16
	remap map[glyphText]rune
}

func buildUnicodeMap(used []glyphText) *unicodeMap {
	sort.Slice(used, func(i, j int) bool {
		if used[i].gid != used[j].gid {
			return used[i].gid < used[j].gid
		}
		return used[i].text < used[j].text
	})
	m := &unicodeMap{runes: make(map[rune]uint16), remap: make(map[glyphText]rune)}
	var rest []glyphText
	for _, u := range used {
		if u.gid == 0 {
			continue
		}
		if r, ok := selectingRune(u.text); ok {
			gid, taken := m.runes[r]
			if !taken {
				m.runes[r] = u.gid
				continue
			}
			if gid == u.gid {
				continue
			}
		}
		rest = append(rest, u)
	}
	next := rune(puaFirst)
	for _, u := range rest {
		for {
			if next == puaLast+1 {
				next = puaPlaneFirst
			}
			if _, taken := m.runes[next]; !taken {
				break
			}
			next++
		}
		if next > puaPlaneLast {
			break
		}
		m.runes[next] = u.gid
		m.remap[u] = next
		next++
	}
	return m
}

// selectingRune returns the code point of text when text is a single
// printable code point.
func selectingRune(text string) (rune, bool) {
	if text == Placeholder || utf8.RuneCountInString(text) != 1 {
		return 0, false
	}
	r, _ := utf8.DecodeRuneInString(text)
	if r == utf8.RuneError || r < 0x20 || (r >= 0x7f && r < 0xa0) || r == 0xffff {
		return 0, false
	}
	return r, true
}

// bmpRange returns the lowest and highest mapped BMP code points.
func (m *unicodeMap) bmpRange() (first, last uint16) {
	first = 0xffff
	for r := range m.runes {
		if r > 0xffff {
			continue
		}
		first, last = min(first, uint16(r)), max(last, uint16(r))
	}
	if first > last {
		return 0, 0
	}
	return first, last
}

// cmapGroup is a run of consecutive code points mapped to consecutive
// glyph ids.
type cmapGroup struct {
	start, end rune
	gid        uint16
}

func (m *unicodeMap) groups() []cmapGroup {
	runes := make([]rune, 0, len(m.runes))
	for r := range m.runes {
		runes = append(runes, r)
	}
	sort.Slice(runes, func(i, j int) bool { return runes[i] < runes[j] })
	var out []cmapGroup
	for _, r := range runes {
		gid := m.runes[r]
		if n := len(out); n > 0 {
			g := &out[n-1]
			if g.end+1 == r && int(g.gid)+int(r-g.start) == int(gid) && (r <= 0xffff) == (g.end <= 0xffff) {
				g.end = r
				continue
			}
		}
		out = append(out, cmapGroup{start: r, end: r, gid: gid})
	}
	return out
}

// table encodes the map as a cmap table: a (3,1) format 4 subtable for
// the BMP and a (3,10) format 12 subtable when code points lie beyond
// it or the BMP does not fit format 4.
func (m *unicodeMap) table() []byte {
	groups := m.groups()
	var bmp []cmapGroup
	wide := false
	for _, g := range groups {
		if g.end <= 0xffff {
			bmp = append(bmp, g)
		} else {
			wide = true
		}
	}
	fmt4 := cmapFormat4(bmp)
	if fmt4 == nil {
		wide = true
	}

	type subtable struct {
		encoding uint16
		data     []byte
	}
	var subs []subtable
	if fmt4 != nil {
		subs = append(subs, subtable{1, fmt4})
	}
	if wide {
		subs = append(subs, subtable{10, cmapFormat12(groups)})
	}
	out := binary.BigEndian.AppendUint16(nil, 0)
	out = binary.BigEndian.AppendUint16(out, uint16(len(subs)))
	offset := 4 + 8*len(subs)
	for _, s := range subs {
		out = binary.BigEndian.AppendUint16(out, 3)
		out = binary.BigEndian.AppendUint16(out, s.encoding)
		out = binary.BigEndian.AppendUint32(out, uint32(offset))
		offset += len(s.data)
	}
	for _, s := range subs {
		out = append(out, s.data...)
	}
	return out
}

// cmapFormat4 returns nil when the groups do not fit the 16-bit length.
func cmapFormat4(groups []cmapGroup) []byte {
	segs := append(groups[:len(groups):len(groups)], cmapGroup{start: 0xffff, end: 0xffff, gid: 0})
	n := len(segs)
	length := 16 + 8*n
	if length > 0xffff {
		return nil
	}
	sel := 0
	for 1<<(sel+1) <= n {
		sel++
	}
	searchRange := 2 << sel
	out := make([]byte, 0, length)
	for _, v := range []int{4, length, 0, 2 * n, searchRange, sel, 2*n - searchRange} {
		out = binary.BigEndian.AppendUint16(out, uint16(v))
	}
	for _, s := range segs {
		out = binary.BigEndian.AppendUint16(out, uint16(s.end))
	}
	out = binary.BigEndian.AppendUint16(out, 0)
	for _, s := range segs {
		out = binary.BigEndian.AppendUint16(out, uint16(s.start))
	}
	for i, s := range segs {
		delta := uint16(int(s.gid) - int(s.start))
		if i == n-1 {
			delta = 1
		}
		out = binary.BigEndian.AppendUint16(out, delta)
	}
	for range segs {
		out = binary.BigEndian.AppendUint16(out, 0)
	}
	return out
}

func cmapFormat12(groups []cmapGroup) []byte {
	out := binary.BigEndian.AppendUint16(nil, 12)
	out = binary.BigEndian.AppendUint16(out, 0)
	out = binary.BigEndian.AppendUint32(out, uint32(16+12*len(groups)))
	out = binary.BigEndian.AppendUint32(out, 0)
	out = binary.BigEndian.AppendUint32(out, uint32(len(groups)))
	for _, g := range groups {
		out = binary.BigEndian.AppendUint32(out, uint32(g.start))
		out = binary.BigEndian.AppendUint32(out, uint32(g.end))
		out = binary.BigEndian.AppendUint32(out, uint32(g.gid))
	}
	return out
}

// replaceTable returns program with one table swapped.
func replaceTable(program []byte, tag string, data []byte) ([]byte, error) {
	f, err := parseSFNT(program)
	if err != nil {
		return nil, err
	}
	b := newSFNTBuilder(f.version)
	for _, t := range f.order {
		table, err := f.table(t)
		if err != nil {
			return nil, err
		}
		b.set(t, table)
	}
	b.set(tag, data)
	return b.bytes(), nil
}
