package fonts

import (
	"bytes"
	"encoding/binary"
	"testing"
)

const type1Clear = `%!PS-AdobeFont-1.0: TestFont 1.0
%%Title: TestFont
/FontName /TestFont def
/ItalicAngle -12 def
/FontBBox {-50 -200 1000 900} readonly def
currentdict end
currentfile eexec
`

func TestReadType1Embedded(t *testing.T) {
	data := append([]byte(type1Clear), 0xDE, 0xAD, 0xBE, 0xEF)
	info, err := readType1(data)
	if err != nil {
		t.Fatal(err)
	}
	want := type1Info{FontName: "TestFont", ItalicAngle: -12, FontBBox: [4]float64{-50, -200, 1000, 900}}
	if *info != want {
		t.Errorf("info = %+v", info)
	}
}

func TestReadType1PFB(t *testing.T) {
	var buf bytes.Buffer
	buf.Write([]byte{0x80, 0x01})
	_ = binary.Write(&buf, binary.LittleEndian, uint32(len(type1Clear)))
	buf.WriteString(type1Clear)
	buf.Write([]byte{0x80, 0x02, 4, 0, 0, 0, 0xDE, 0xAD, 0xBE, 0xEF, 0x80, 0x03})

	info, err := readType1(buf.Bytes())
	if err != nil {
		t.Fatal(err)
	}
	if info.FontName != "TestFont" {
		t.Errorf("FontName = %q", info.FontName)
	}
}

func TestReadType1Garbage(t *testing.T) {
	if _, err := readType1([]byte("not a font")); err == nil {
		t.Error("garbage accepted")
	}
}
