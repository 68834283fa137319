package fonts

import (
	"bytes"
	"encoding/binary"
	"testing"

	"github.com/google/go-cmp/cmp"
)

func newGlyphSet(gids ...uint16) glyphSet {
	s := make(glyphSet)
	for _, g := range gids {
		s.add(g)
	}
	return s
}

func TestReadMetrics(t *testing.T) {
	m, err := readMetrics(buildTestFont())
	if err != nil {
		t.Fatalf("readMetrics: %v", err)
	}
	if m.NumGlyphs != 5 {
		t.Fatalf("NumGlyphs = %d, want 5", m.NumGlyphs)
	}
	if m.Ascent != 800 || m.Descent != -200 {
		t.Fatalf("ascent/descent = %v/%v, want 800/-200", m.Ascent, m.Descent)
	}
	if _, err := readMetrics([]byte("not a font")); err == nil {
		t.Fatalf("expected error for garbage program")
	}
}

func TestSubsetTrueTypeKeepsComponents(t *testing.T) {
	program := buildTestFont()
	out, err := SubsetTrueType(program, newGlyphSet(3))
	if err != nil {
		t.Fatalf("SubsetTrueType: %v", err)
	}
	f, err := parseSFNT(out)
	if err != nil {
		t.Fatalf("parse subset: %v", err)
	}
	maxp, _ := f.table("maxp")
	if n := binary.BigEndian.Uint16(maxp[4:]); n != 4 {
		t.Fatalf("numGlyphs = %d, want 4 (glyph 4 dropped)", n)
	}
	head, _ := f.table("head")
	if binary.BigEndian.Uint16(head[50:]) != 1 {
		t.Fatalf("loca not long")
	}
	glyf, _ := f.table("glyf")
	loca, _ := f.table("loca")
	loc := glyphLocator{glyf: glyf, loca: loca, long: true, count: 4}
	var kept []int
	for gid := 0; gid < 4; gid++ {
		if _, _, ok := loc.span(gid); ok {
			kept = append(kept, gid)
		}
	}
	if diff := cmp.Diff([]int{1, 3}, kept); diff != "" {
		t.Fatalf("glyphs with outlines (-want +got):\n%s", diff)
	}
	start, end, _ := loc.span(1)
	if !bytes.HasPrefix(glyf[start:end], testGlyphs[1]) {
		t.Fatalf("component outline changed")
	}
	hmtx, _ := f.table("hmtx")
	if len(hmtx) != 16 || binary.BigEndian.Uint16(hmtx[12:]) != 530 {
		t.Fatalf("hmtx = %x", hmtx)
	}
	if len(out) >= len(program) {
		t.Fatalf("subset not smaller: %d >= %d", len(out), len(program))
	}
	if _, err := readMetrics(out); err != nil {
		t.Fatalf("subset does not parse: %v", err)
	}
}

func TestSubsetTrueTypeNotdefOnly(t *testing.T) {
	out, err := SubsetTrueType(buildTestFont(), nil)
	if err != nil {
		t.Fatalf("SubsetTrueType: %v", err)
	}
	f, _ := parseSFNT(out)
	maxp, _ := f.table("maxp")
	if n := binary.BigEndian.Uint16(maxp[4:]); n != 1 {
		t.Fatalf("numGlyphs = %d, want 1", n)
	}
}

func TestSubsetTrueTypeRejectsGarbage(t *testing.T) {
	if _, err := SubsetTrueType([]byte{0, 1, 0, 0, 0}, nil); err == nil {
		t.Fatalf("expected error")
	}
}

func TestSFNTChecksumAdjustment(t *testing.T) {
	data := buildTestFont()
	if got := checksum(data); got != 0xB1B0AFBA {
		t.Fatalf("whole-font checksum = %#x, want 0xB1B0AFBA", got)
	}
}

func TestExpandHmtx(t *testing.T) {
	// Two long metrics then one left side bearing.
	hmtx := append(be16(500, 1, 600, 2), be16(3)...)
	out, err := expandHmtx(hmtx, 2, 4)
	if err != nil {
		t.Fatalf("expandHmtx: %v", err)
	}
	want := be16(500, 1, 600, 2, 600, 3, 600, 0)
	if !bytes.Equal(out, want) {
		t.Fatalf("expandHmtx = %v, want %v", out, want)
	}
	if _, err := expandHmtx(nil, 1, 1); err == nil {
		t.Fatalf("expected error for short hmtx")
	}
}
