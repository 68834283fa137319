package fonts

import (
	"encoding/binary"
	"math"
	"unicode/utf16"
)

// sfntOTTO is the sfnt version of fonts with CFF outlines.
const sfntOTTO = 0x4F54544F

// openTypeFromCFF wraps the bare CFF program of f into an OpenType
// container. Metrics tables are generated from the PDF widths and
// descriptor; cmap is the Unicode map built from painted glyphs.
func (f *ExtractedFont) openTypeFromCFF(u *unicodeMap) []byte {
	info := f.cff
	upem := info.UnitsPerEm
	scale := float64(upem) / 1000

	advances := make([]uint16, info.NumGlyphs)
	for gid, w := range f.glyphWidths(info) {
		advances[gid] = clampU16(w * scale)
	}
	var maxAdvance uint16
	for _, a := range advances {
		maxAdvance = max(maxAdvance, a)
	}
	ascent := clampI16(f.ascent * scale)
	descent := clampI16(f.descent * scale)
	bbox := [4]int16{0, descent, clampI16(float64(maxAdvance)), ascent}
	if b := info.BBox; b[2] > b[0] && b[3] > b[1] {
		bbox = [4]int16{clampI16(b[0]), clampI16(b[1]), clampI16(b[2]), clampI16(b[3])}
	}

	b := newSFNTBuilder(sfntOTTO)
	b.set("CFF ", f.program)
	b.set("cmap", u.table())
	b.set("head", f.headTable(upem, bbox))
	b.set("hhea", hheaTable(ascent, descent, maxAdvance, bbox, len(advances)))
	b.set("maxp", binary.BigEndian.AppendUint16(be32(0x00005000), uint16(info.NumGlyphs)))
	b.set("OS/2", f.os2Table(ascent, descent, advances, u))
	b.set("post", f.postTable())
	b.set("name", nameTable(f.cff.Name))

	hmtx := make([]byte, 0, 4*len(advances))
	for _, a := range advances {
		hmtx = binary.BigEndian.AppendUint16(hmtx, a)
		hmtx = binary.BigEndian.AppendUint16(hmtx, 0)
	}
	b.set("hmtx", hmtx)
	return b.bytes()
}

// glyphWidths maps glyph ids to PDF widths in 1/1000 em.
func (f *ExtractedFont) glyphWidths(info *cffInfo) []float64 {
	out := make([]float64, info.NumGlyphs)
	for gid := range out {
		out[gid] = f.defaultWidth
	}
	switch {
	case f.Composite && info.cids != nil:
		for gid, cid := range info.cids {
			out[gid] = f.width(uint32(cid))
		}
	case f.Composite:
		for gid := range out {
			out[gid] = f.width(uint32(gid))
		}
	case f.codeToGID != nil:
		seen := make([]bool, len(out))
		for code, gid := range f.codeToGID {
			if gid == 0 || int(gid) >= len(out) || seen[gid] {
				continue
			}
			seen[gid] = true
			out[gid] = f.width(uint32(code))
		}
	}
	return out
}

func be32(v uint32) []byte { return binary.BigEndian.AppendUint32(nil, v) }

func clampU16(v float64) uint16 {
	return uint16(max(0, min(math.Round(v), math.MaxUint16)))
}

func clampI16(v float64) int16 {
	return int16(max(math.MinInt16, min(math.Round(v), math.MaxInt16)))
}

func (f *ExtractedFont) headTable(upem int, bbox [4]int16) []byte {
	head := make([]byte, 54)
	binary.BigEndian.PutUint32(head[0:], 0x00010000)
	binary.BigEndian.PutUint32(head[4:], 0x00010000)
	binary.BigEndian.PutUint32(head[12:], 0x5F0F3CF5)
	binary.BigEndian.PutUint16(head[16:], 0x000B)
	binary.BigEndian.PutUint16(head[18:], uint16(upem))
	for i, v := range bbox {
		binary.BigEndian.PutUint16(head[36+2*i:], uint16(v))
	}
	var style uint16
	if f.Bold {
		style |= 1
	}
	if f.Italic {
		style |= 2
	}
	binary.BigEndian.PutUint16(head[44:], style)
	binary.BigEndian.PutUint16(head[46:], 8)
	binary.BigEndian.PutUint16(head[48:], 2)
	return head
}

func hheaTable(ascent, descent int16, maxAdvance uint16, bbox [4]int16, numMetrics int) []byte {
	hhea := make([]byte, 36)
	binary.BigEndian.PutUint32(hhea[0:], 0x00010000)
	binary.BigEndian.PutUint16(hhea[4:], uint16(ascent))
	binary.BigEndian.PutUint16(hhea[6:], uint16(descent))
	binary.BigEndian.PutUint16(hhea[10:], maxAdvance)
	binary.BigEndian.PutUint16(hhea[12:], uint16(bbox[0]))
	binary.BigEndian.PutUint16(hhea[16:], uint16(bbox[2]))
	binary.BigEndian.PutUint16(hhea[18:], 1) // caretSlopeRise
	binary.BigEndian.PutUint16(hhea[34:], uint16(numMetrics))
	return hhea
}

// os2Table writes a version 4 OS/2 table.
func (f *ExtractedFont) os2Table(ascent, descent int16, advances []uint16, u *unicodeMap) []byte {
	os2 := make([]byte, 96)
	binary.BigEndian.PutUint16(os2[0:], 4)
	var sum, n int
	for _, a := range advances {
		if a > 0 {
			sum += int(a)
			n++
		}
	}
	if n > 0 {
		binary.BigEndian.PutUint16(os2[2:], uint16(sum/n))
	}
	weight, selection := uint16(400), uint16(0)
	if f.Bold {
		weight, selection = 700, selection|0x20
	}
	if f.Italic {
		selection |= 0x01
	}
	if selection == 0 {
		selection = 0x40
	}
	binary.BigEndian.PutUint16(os2[4:], weight)
	binary.BigEndian.PutUint16(os2[6:], 5)
	copy(os2[58:], "PDFH")
	binary.BigEndian.PutUint16(os2[62:], selection)
	first, last := u.bmpRange()
	binary.BigEndian.PutUint16(os2[64:], first)
	binary.BigEndian.PutUint16(os2[66:], last)
	binary.BigEndian.PutUint16(os2[68:], uint16(ascent))
	binary.BigEndian.PutUint16(os2[70:], uint16(descent))
	binary.BigEndian.PutUint16(os2[74:], uint16(max(ascent, 0)))
	binary.BigEndian.PutUint16(os2[76:], uint16(max(-descent, 0)))
	binary.BigEndian.PutUint32(os2[78:], 1) // Latin 1
	binary.BigEndian.PutUint16(os2[92:], 0x20)
	return os2
}

// postTable writes a version 3 post table: no glyph names.
func (f *ExtractedFont) postTable() []byte {
	post := make([]byte, 32)
	binary.BigEndian.PutUint32(post[0:], 0x00030000)
	if f.Italic {
		binary.BigEndian.PutUint32(post[4:], 0xFFF40000) // -12.0
	}
	binary.BigEndian.PutUint16(post[8:], 0xFF9C) // -100
	binary.BigEndian.PutUint16(post[10:], 50)
	return post
}

// nameTable carries the family and PostScript names as Windows
// Unicode records.
func nameTable(psName string) []byte {
	psName = stripSubsetTag(psName)
	if psName == "" {
		psName = "Embedded"
	}
	ids := []uint16{1, 2, 4, 6}
	values := []string{psName, "Regular", psName, psName}
	var storage []byte
	out := binary.BigEndian.AppendUint16(nil, 0)
	out = binary.BigEndian.AppendUint16(out, uint16(len(ids)))
	out = binary.BigEndian.AppendUint16(out, uint16(6+12*len(ids)))
	for i, id := range ids {
		var s []byte
		for _, u := range utf16.Encode([]rune(values[i])) {
			s = binary.BigEndian.AppendUint16(s, u)
		}
		for _, v := range []uint16{3, 1, 0x409, id, uint16(len(s)), uint16(len(storage))} {
			out = binary.BigEndian.AppendUint16(out, v)
		}
		storage = append(storage, s...)
	}
	return append(out, storage...)
}
