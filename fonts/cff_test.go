package fonts

import (
	"testing"

	"github.com/google/go-cmp/cmp"
)

func cffFixture(name string, topDict []byte) []byte {
	out := []byte{1, 0, 4, 1}
	out = append(out, 0, 1, 1, 1, byte(1+len(name)))
	out = append(out, name...)
	out = append(out, 0, 1, 1, 1, byte(1+len(topDict)))
	out = append(out, topDict...)
	return append(out, 0, 0) // empty String INDEX
}

func TestReadCFF(t *testing.T) {
	info, err := readCFF(cffFixture("Minion", []byte{239, 14}))
	if err != nil {
		t.Fatal(err)
	}
	if info.Name != "Minion" || info.CIDKeyed {
		t.Errorf("info = %+v", info)
	}
}

func TestReadCFFDetectsCIDKeyed(t *testing.T) {
	// ROS: three SIDs then 12 30; a real operand between to exercise nibbles.
	top := []byte{139, 140, 141, 12, 30, 30, 0x1a, 0x5f, 15}
	info, err := readCFF(cffFixture("KozMin", top))
	if err != nil {
		t.Fatal(err)
	}
	if !info.CIDKeyed {
		t.Error("ROS not detected")
	}
}

func TestReadCFFTruncated(t *testing.T) {
	if _, err := readCFF([]byte{1, 0, 4, 1, 0, 3}); err == nil {
		t.Error("truncated INDEX accepted")
	}
}

func TestLoadCFF(t *testing.T) {
	info, err := loadCFF(buildTestCFF("ABCDEF+Minion", 34, 35))
	if err != nil {
		t.Fatal(err)
	}
	if info.NumGlyphs != 3 || info.UnitsPerEm != 1000 || info.CIDKeyed {
		t.Fatalf("info = %+v", info)
	}
	if diff := cmp.Diff([]string{".notdef", "A", "B"}, info.names); diff != "" {
		t.Errorf("names (-want +got):\n%s", diff)
	}
}

func TestLoadCFFRejectsHeaderOnly(t *testing.T) {
	if _, err := loadCFF(cffFixture("Minion", []byte{239, 14})); err == nil {
		t.Error("CFF without CharStrings accepted")
	}
}

func TestCFFCharset(t *testing.T) {
	tests := []struct {
		name   string
		data   []byte
		offset int
		want   []uint16
	}{
		{"predefined", nil, 0, []uint16{0, 1, 2, 3}},
		{"format 0", []byte{0, 0, 9, 0, 7, 0, 8}, 0x10, []uint16{0, 9, 7, 8}},
		{"format 1", []byte{1, 0, 100, 1, 0, 5, 0}, 0x10, []uint16{0, 100, 101, 5}},
		{"format 2", []byte{2, 0, 200, 0, 2}, 0x10, []uint16{0, 200, 201, 202}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			data := append(make([]byte, 0x10), tt.data...)
			got, err := cffCharset(data, tt.offset, 4)
			if err != nil {
				t.Fatal(err)
			}
			if diff := cmp.Diff(tt.want, got); diff != "" {
				t.Errorf("cids (-want +got):\n%s", diff)
			}
		})
	}
	if _, err := cffCharset(make([]byte, 0x11), 0x10, 4); err == nil {
		t.Error("truncated charset accepted")
	}
}

func TestCFFDictReal(t *testing.T) {
	// FontMatrix [0.0005 0 0 0.0005 0 0]: upem 2000.
	top := []byte{30, 0xa0, 0x00, 0x5f, 139, 139, 30, 0xa0, 0x00, 0x5f, 139, 139, 12, 7}
	info, err := readCFF(cffFixture("Big", top))
	if err != nil {
		t.Fatal(err)
	}
	if info.UnitsPerEm != 2000 {
		t.Errorf("units per em = %d", info.UnitsPerEm)
	}
}
