package fonts

import (
	"testing"

	"github.com/google/go-cmp/cmp"
)

const toUnicodeCMap = `/CIDInit /ProcSet findresource begin
12 dict begin
begincmap
/CMapName /Adobe-Identity-UCS def
/CMapType 2 def
1 begincodespacerange
<0000> <FFFF>
endcodespacerange
2 beginbfchar
<0003> <0020>
<0011> <D835DC00>
endbfchar
2 beginbfrange
<0024> <0026> <0041>
<0030> <0031> [<0066006C> <0078>]
endbfrange
endcmap
CMapName currentdict /CMap defineresource pop
end
end`

func TestParseToUnicode(t *testing.T) {
	m, err := ParseCMap([]byte(toUnicodeCMap))
	if err != nil {
		t.Fatalf("ParseCMap: %v", err)
	}
	if m.Name != "Adobe-Identity-UCS" {
		t.Fatalf("Name = %q", m.Name)
	}
	tests := []struct {
		code uint32
		want string
		ok   bool
	}{
		{0x0003, " ", true},
		{0x0011, "𝐀", true},
		{0x0024, "A", true},
		{0x0026, "C", true},
		{0x0030, "fl", true},
		{0x0027, "", false},
	}
	for _, tt := range tests {
		got, ok := m.Text(tt.code, 2)
		if got != tt.want || ok != tt.ok {
			t.Errorf("Text(%#x) = %q, %v; want %q, %v", tt.code, got, ok, tt.want, tt.ok)
		}
	}
	if m.Empty() {
		t.Fatalf("Empty() = true")
	}
}

func TestCMapMixedWidthCodespace(t *testing.T) {
	m, err := ParseCMap([]byte(`2 begincodespacerange
<00> <80>
<8140> <9FFC>
endcodespacerange
1 begincidrange
<8140> <8142> 633
endcidrange
1 begincidchar
<41> 34
endcidchar`))
	if err != nil {
		t.Fatalf("ParseCMap: %v", err)
	}
	type code struct {
		Code uint32
		N    int
		CID  int
	}
	var got []code
	s := []byte{0x41, 0x81, 0x41, 0x81, 0x42}
	for len(s) > 0 {
		c, n := m.Next(s)
		cid, _ := m.CID(c, n)
		got = append(got, code{c, n, cid})
		s = s[n:]
	}
	want := []code{{0x41, 1, 34}, {0x8141, 2, 634}, {0x8142, 2, 635}}
	if diff := cmp.Diff(want, got); diff != "" {
		t.Fatalf("codes (-want +got):\n%s", diff)
	}
}

func TestIdentityCMap(t *testing.T) {
	m := IdentityCMap("Identity-H")
	c, n := m.Next([]byte{0x01, 0x02, 0x03})
	if c != 0x0102 || n != 2 {
		t.Fatalf("Next = %#x, %d", c, n)
	}
	if cid, ok := m.CID(c, n); !ok || cid != 0x0102 {
		t.Fatalf("CID = %d, %v", cid, ok)
	}
	c, n = m.Next([]byte{0x03})
	if c != 0x03 || n != 1 {
		t.Fatalf("odd trailing byte: Next = %#x, %d", c, n)
	}
}

func TestParseCMapStopsAtGarbage(t *testing.T) {
	m, err := ParseCMap([]byte("1 beginbfchar <01> <0041> endbfchar ) ((("))
	if err != nil {
		t.Fatalf("ParseCMap: %v", err)
	}
	if s, ok := m.Text(1, 1); !ok || s != "A" {
		t.Fatalf("Text(1) = %q, %v", s, ok)
	}
}
