package writer

import (
	"bytes"
	"testing"

	"github.com/wudi/pdf2html/ir/raw"
)

func TestSerialize(t *testing.T) {
	d := raw.Dict()
	d.Set("Type", raw.Name("Font"))
	d.Set("Widths", raw.NewArray(raw.Int(500), raw.Real(250.5)))
	d.Set("Name", raw.Name("A B"))
	d.Set("Text", raw.Str([]byte("a(b)\\")))
	d.Set("Ref", raw.Ref(3, 0))
	got := string(Serialize(d))
	want := `<</Name /A#20B /Ref 3 0 R /Text (a\(b\)\\) /Type /Font /Widths [500 250.5]>>`
	if got != want {
		t.Fatalf("Serialize\n got %s\nwant %s", got, want)
	}
}

func TestBytesClassicLayout(t *testing.T) {
	data, err := Build(Config{}, Page{Content: "BT ET"})
	if err != nil {
		t.Fatal(err)
	}
	for _, want := range []string{"%PDF-1.7", "xref\n0 ", "trailer\n", "startxref\n", "%%EOF"} {
		if !bytes.Contains(data, []byte(want)) {
			t.Errorf("output lacks %q", want)
		}
	}
}

func TestBytesObjectStreams(t *testing.T) {
	data, err := Build(Config{ObjectStreams: true, Compress: true}, Page{Content: "BT ET"})
	if err != nil {
		t.Fatal(err)
	}
	if bytes.Contains(data, []byte("trailer")) {
		t.Error("xref stream output should not contain a trailer keyword")
	}
	if !bytes.Contains(data, []byte("/ObjStm")) {
		t.Error("object stream missing")
	}
}
