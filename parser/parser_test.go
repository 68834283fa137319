package parser

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"testing"

	"github.com/wudi/pdf2html/ir/raw"
	"github.com/wudi/pdf2html/pdferr"
	"github.com/wudi/pdf2html/recovery"
	"github.com/wudi/pdf2html/writer"
)

func mustBuild(t *testing.T, cfg writer.Config, pages ...writer.Page) []byte {
	t.Helper()
	data, err := writer.Build(cfg, pages...)
	if err != nil {
		t.Fatalf("build fixture: %v", err)
	}
	return data
}

func firstPageContent(t *testing.T, doc *raw.Document) []byte {
	t.Helper()
	cat, err := doc.Catalog()
	if err != nil {
		t.Fatalf("Catalog: %v", err)
	}
	pagesObj, _ := doc.Lookup(cat, "Pages")
	pages, err := doc.Dict(pagesObj)
	if err != nil {
		t.Fatalf("Pages: %v", err)
	}
	kidsObj, _ := doc.Lookup(pages, "Kids")
	kids, err := doc.Array(kidsObj)
	if err != nil || kids.Len() == 0 {
		t.Fatalf("Kids: %v", err)
	}
	first, _ := kids.Get(0)
	page, err := doc.Dict(first)
	if err != nil {
		t.Fatalf("page: %v", err)
	}
	contents, _ := doc.Lookup(page, "Contents")
	st, err := doc.Stream(contents)
	if err != nil {
		t.Fatalf("Contents: %v", err)
	}
	data, err := doc.DecodeStream(context.Background(), st)
	if err != nil {
		t.Fatalf("DecodeStream: %v", err)
	}
	return data
}

func TestParseClassic(t *testing.T) {
	data := mustBuild(t, writer.Config{Version: "1.4"}, writer.Page{Content: "0 0 m 10 10 l S"})
	doc, err := Parse(context.Background(), data, Config{})
	if err != nil {
		t.Fatalf("Parse: %v", err)
	}
	if doc.Version != "1.4" {
		t.Errorf("Version = %q, want 1.4", doc.Version)
	}
	if doc.Repaired || doc.Encrypted {
		t.Errorf("unexpected flags repaired=%v encrypted=%v", doc.Repaired, doc.Encrypted)
	}
	if got := string(firstPageContent(t, doc)); got != "0 0 m 10 10 l S" {
		t.Errorf("content = %q", got)
	}
}

func TestParseCompressedObjectStreams(t *testing.T) {
	data := mustBuild(t, writer.Config{Compress: true, ObjectStreams: true}, writer.Page{Content: "BT /F1 12 Tf (Hi) Tj ET"})
	doc, err := Parse(context.Background(), data, Config{})
	if err != nil {
		t.Fatalf("Parse: %v", err)
	}
	if got := string(firstPageContent(t, doc)); got != "BT /F1 12 Tf (Hi) Tj ET" {
		t.Errorf("content = %q", got)
	}
}

func TestParseRejectsMissingHeader(t *testing.T) {
	_, err := Parse(context.Background(), []byte("hello world"), Config{})
	if !errors.Is(err, pdferr.ErrInvalidFormat) {
		t.Fatalf("expected InvalidFormat, got %v", err)
	}
	if !pdferr.KindOf(err).Fatal() {
		t.Error("InvalidFormat must be fatal")
	}
}

func TestParseHeaderAfterJunk(t *testing.T) {
	data := mustBuild(t, writer.Config{}, writer.Page{Content: "q Q"})
	shifted := append([]byte("junk-prefix\n"), data...)
	// offsets are now wrong by the prefix length, forcing a repair
	doc, err := Parse(context.Background(), shifted, Config{})
	if err != nil {
		t.Fatalf("Parse: %v", err)
	}
	if !doc.Repaired {
		t.Error("expected a repaired document")
	}
	if got := string(firstPageContent(t, doc)); got != "q Q" {
		t.Errorf("content = %q", got)
	}
}

func TestParseRepairFindsObjectStreams(t *testing.T) {
	data := mustBuild(t, writer.Config{ObjectStreams: true, Compress: true}, writer.Page{Content: "q Q"})
	idx := bytes.LastIndex(data, []byte("startxref"))
	broken := append(append([]byte{}, data[:idx]...), []byte("startxref\n999999\n%%EOF\n")...)
	doc, err := Parse(context.Background(), broken, Config{})
	if err != nil {
		t.Fatalf("Parse: %v", err)
	}
	if !doc.Repaired {
		t.Error("expected a repaired document")
	}
	if got := string(firstPageContent(t, doc)); got != "q Q" {
		t.Errorf("content = %q", got)
	}
}

func TestParseStrictRefusesRepair(t *testing.T) {
	data := mustBuild(t, writer.Config{}, writer.Page{Content: "q Q"})
	shifted := append([]byte("junk\n"), data...)
	_, err := Parse(context.Background(), shifted, Config{Recovery: recovery.NewStrictStrategy()})
	if !errors.Is(err, pdferr.ErrCorruptStructure) {
		t.Fatalf("expected CorruptStructure, got %v", err)
	}
}

func TestParseIndirectLength(t *testing.T) {
	w := writer.New(writer.Config{})
	root := w.Document(writer.Page{Content: "placeholder"})
	lengthRef := w.Add(raw.Int(11))
	data, err := w.Bytes(root)
	if err != nil {
		t.Fatal(err)
	}
	data = bytes.Replace(data, []byte("/Length 11"), []byte(fmt.Sprintf("/Length %d 0 R", lengthRef.R.Num)), 1)
	doc, err := Parse(context.Background(), data, Config{})
	if err != nil {
		t.Fatalf("Parse: %v", err)
	}
	if got := string(firstPageContent(t, doc)); got != "placeholder" {
		t.Errorf("content = %q", got)
	}
}

func TestParseEncryptedWithoutPassword(t *testing.T) {
	w := writer.New(writer.Config{})
	root := w.Document(writer.Page{Content: "q Q"})
	enc := raw.Dict()
	enc.Set("Filter", raw.Name("Standard"))
	enc.Set("V", raw.Int(1))
	enc.Set("R", raw.Int(2))
	enc.Set("P", raw.Int(-4))
	enc.Set("O", raw.Str(bytes.Repeat([]byte{1}, 32)))
	enc.Set("U", raw.Str(bytes.Repeat([]byte{2}, 32)))
	w.SetTrailer("Encrypt", w.Add(enc))
	w.SetTrailer("ID", raw.NewArray(raw.Str([]byte("0123456789abcdef")), raw.Str([]byte("0123456789abcdef"))))
	data, err := w.Bytes(root)
	if err != nil {
		t.Fatal(err)
	}
	_, err = Parse(context.Background(), data, Config{})
	if !errors.Is(err, pdferr.ErrEncryptionRequired) {
		t.Fatalf("expected EncryptionRequired, got %v", err)
	}
}

func TestParseMissingCatalog(t *testing.T) {
	w := writer.New(writer.Config{})
	w.Add(raw.Dict())
	data, err := w.Bytes(raw.Ref(40, 0))
	if err != nil {
		t.Fatal(err)
	}
	if _, err := Parse(context.Background(), data, Config{}); err == nil {
		t.Fatal("a dangling /Root must fail the parse")
	}
}

func TestHeaderVersion(t *testing.T) {
	cases := map[string]string{
		"%PDF-1.7\n":       "1.7",
		"%PDF-2.0\r":       "2.0",
		"\x00\x00%PDF-1.3": "1.3",
	}
	for in, want := range cases {
		got, err := headerVersion([]byte(in))
		if err != nil || got != want {
			t.Errorf("headerVersion(%q) = %q, %v; want %q", in, got, err, want)
		}
	}
	if _, err := headerVersion([]byte("%PDF-x")); err == nil {
		t.Error("malformed version accepted")
	}
}

func FuzzParse(f *testing.F) {
	seed, _ := writer.Build(writer.Config{}, writer.Page{Content: "BT (x) Tj ET"})
	f.Add(seed)
	f.Add([]byte("%PDF-1.4\n1 0 obj << /Type /Catalog >> endobj"))
	f.Fuzz(func(t *testing.T, data []byte) {
		doc, err := Parse(context.Background(), data, Config{})
		if err != nil {
			return
		}
		for _, ref := range doc.Refs() {
			_, _ = doc.Object(ref)
		}
	})
}
