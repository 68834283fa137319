package fonts

import "encoding/binary"

// testGlyphs are the outlines of the fixture font: .notdef and two
// simple glyphs, a composite of glyph 1, and an unused simple glyph.
var testGlyphs = [][]byte{
	nil,
	simpleGlyph(0, 0, 500, 700),
	simpleGlyph(0, 0, 400, 600),
	compositeGlyph(1, 100),
	simpleGlyph(0, 0, 300, 300),
}

func be16(v ...int) []byte {
	var b []byte
	for _, x := range v {
		b = binary.BigEndian.AppendUint16(b, uint16(int16(x)))
	}
	return b
}

// simpleGlyph is a one-contour triangle with on-curve word coordinates.
func simpleGlyph(x0, y0, x1, y1 int) []byte {
	b := be16(1, x0, y0, x1, y1)
	b = append(b, be16(2, 0)...)    // endPtsOfContours, instructionLength
	b = append(b, 0x01, 0x01, 0x01) // flags: on curve
	b = append(b, be16(x0, x1-x0, x0-x1)...)
	b = append(b, be16(y0, 0, y1-y0)...)
	return b
}

func compositeGlyph(component, dx int) []byte {
	b := be16(-1, 0, 0, 500+dx, 700)
	return append(b, be16(0x0003, component, dx, 0)...)
}

// buildTestFont assembles a minimal TrueType program mapping 'A', 'B'
// and 'C' to glyphs 1 to 3.
func buildTestFont() []byte {
	n := len(testGlyphs)
	var glyf, loca []byte
	for _, g := range testGlyphs {
		loca = binary.BigEndian.AppendUint32(loca, uint32(len(glyf)))
		glyf = append(glyf, g...)
		for len(glyf)%4 != 0 {
			glyf = append(glyf, 0)
		}
	}
	loca = binary.BigEndian.AppendUint32(loca, uint32(len(glyf)))

	head := make([]byte, 54)
	binary.BigEndian.PutUint32(head[0:], 0x00010000)
	binary.BigEndian.PutUint32(head[12:], 0x5F0F3CF5)
	binary.BigEndian.PutUint16(head[18:], 1000)
	copy(head[36:], be16(0, -200, 600, 800))
	binary.BigEndian.PutUint16(head[50:], 1)

	hhea := make([]byte, 36)
	binary.BigEndian.PutUint32(hhea[0:], 0x00010000)
	copy(hhea[4:], be16(800, -200, 0, 600))
	binary.BigEndian.PutUint16(hhea[34:], uint16(n))

	maxp := make([]byte, 32)
	binary.BigEndian.PutUint32(maxp[0:], 0x00010000)
	binary.BigEndian.PutUint16(maxp[4:], uint16(n))

	var hmtx []byte
	for gid := 0; gid < n; gid++ {
		hmtx = append(hmtx, be16(500+10*gid, 0)...)
	}

	// cmap: one (3,1) format 4 subtable, segments A-C and the 0xFFFF end.
	sub := be16(4, 0, 0, 4, 4, 1, 0)
	sub = append(sub, be16(0x43, 0xFFFF, 0, 0x41, 0xFFFF, 1-0x41, 1, 0, 0)...)
	binary.BigEndian.PutUint16(sub[2:], uint16(len(sub)))
	cmap := append(be16(0, 1, 3, 1), 0, 0, 0, 12)
	cmap = append(cmap, sub...)

	post := make([]byte, 32)
	binary.BigEndian.PutUint32(post[0:], 0x00030000)

	b := newSFNTBuilder(0x00010000)
	b.set("head", head)
	b.set("hhea", hhea)
	b.set("maxp", maxp)
	b.set("hmtx", hmtx)
	b.set("loca", loca)
	b.set("glyf", glyf)
	b.set("cmap", cmap)
	b.set("post", post)
	b.set("name", be16(0, 0, 6))
	return b.bytes()
}

// cffIndex encodes items as a CFF INDEX with one-byte offsets.
func cffIndex(items ...[]byte) []byte {
	out := be16(len(items))
	if len(items) == 0 {
		return out
	}
	out = append(out, 1, 1)
	off := 1
	for _, it := range items {
		off += len(it)
		out = append(out, byte(off))
	}
	for _, it := range items {
		out = append(out, it...)
	}
	return out
}

// cffInt encodes v as a five-byte DICT integer.
func cffInt(v int) []byte {
	return binary.BigEndian.AppendUint32([]byte{29}, uint32(v))
}

// buildTestCFF assembles a name-keyed CFF program: .notdef followed by
// one glyph per standard string id in sids, every charstring endchar.
func buildTestCFF(name string, sids ...int) []byte {
	header := []byte{1, 0, 4, 1}
	nameIndex := cffIndex([]byte(name))
	const topLen = 12 // two five-byte integers and two operators
	topIndexLen := 2 + 1 + 2 + topLen
	charsetAt := len(header) + len(nameIndex) + topIndexLen + 2 + 2
	charset := append([]byte{0}, be16(sids...)...)
	charStringsAt := charsetAt + len(charset)

	top := append(cffInt(charsetAt), 15)
	top = append(top, cffInt(charStringsAt)...)
	top = append(top, 17)
	glyphs := make([][]byte, len(sids)+1)
	for i := range glyphs {
		glyphs[i] = []byte{14}
	}

	out := append(header, nameIndex...)
	out = append(out, cffIndex(top)...)
	out = append(out, cffIndex()...) // String INDEX
	out = append(out, cffIndex()...) // Global Subr INDEX
	out = append(out, charset...)
	return append(out, cffIndex(glyphs...)...)
}
