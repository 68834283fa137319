package filters

import (
	"bytes"
	"compress/lzw"
	"context"
	"errors"
	"testing"

	"github.com/klauspost/compress/zlib"

	"github.com/wudi/pdf2html/ir/raw"
	"github.com/wudi/pdf2html/pdferr"
	"github.com/wudi/pdf2html/security"
)

func deflate(t *testing.T, data []byte) []byte {
	t.Helper()
	var buf bytes.Buffer
	w := zlib.NewWriter(&buf)
	if _, err := w.Write(data); err != nil {
		t.Fatal(err)
	}
	if err := w.Close(); err != nil {
		t.Fatal(err)
	}
	return buf.Bytes()
}

func TestFlateDecode(t *testing.T) {
	out, err := NewFlateDecoder().Decode(context.Background(), deflate(t, []byte("hello world")), nil, 0)
	if err != nil {
		t.Fatalf("decode error: %v", err)
	}
	if string(out) != "hello world" {
		t.Fatalf("unexpected output: %q", out)
	}
}

func TestFlateDecodeWithPredictor(t *testing.T) {
	params := raw.Dict()
	params.Set("Predictor", raw.Int(12))
	params.Set("Colors", raw.Int(1))
	params.Set("BitsPerComponent", raw.Int(8))
	params.Set("Columns", raw.Int(3))

	// row 1 uses Sub, row 2 uses Up
	comp := deflate(t, []byte{1, 10, 12, 20, 2, 1, 1, 1})
	out, err := NewFlateDecoder().Decode(context.Background(), comp, params, 0)
	if err != nil {
		t.Fatalf("decode error: %v", err)
	}
	want := []byte{10, 22, 42, 11, 23, 43}
	if !bytes.Equal(out, want) {
		t.Fatalf("predictor output mismatch: got %v want %v", out, want)
	}
}

func TestLZWDecodeEarlyChangeZero(t *testing.T) {
	var buf bytes.Buffer
	w := lzw.NewWriter(&buf, lzw.MSB, 8)
	w.Write([]byte("ABABABABABAB"))
	w.Close()
	params := raw.Dict()
	params.Set("EarlyChange", raw.Int(0))
	out, err := NewLZWDecoder().Decode(context.Background(), buf.Bytes(), params, 0)
	if err != nil || string(out) != "ABABABABABAB" {
		t.Fatalf("got %q, %v", out, err)
	}
}

func TestLZWDecodeEarlyChange(t *testing.T) {
	// "-----A---B" encoded with EarlyChange=1, from the PDF reference example.
	in := []byte{0x80, 0x0B, 0x60, 0x50, 0x22, 0x0C, 0x0C, 0x85, 0x01}
	out, err := NewLZWDecoder().Decode(context.Background(), in, nil, 0)
	if err != nil || string(out) != "-----A---B" {
		t.Fatalf("got %q, %v", out, err)
	}
}

func TestASCIIDecoders(t *testing.T) {
	tests := []struct {
		name string
		dec  Decoder
		in   string
		want string
	}{
		{"hex", NewASCIIHexDecoder(), "48 65 6c 6C 6f>", "Hello"},
		{"hex odd", NewASCIIHexDecoder(), "414>", "A@"},
		{"a85", NewASCII85Decoder(), "<~87cURD]i,\"Ebo80~>", "Hello World"},
		{"a85 zero group", NewASCII85Decoder(), "z~>", "\x00\x00\x00\x00"},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			out, err := tc.dec.Decode(context.Background(), []byte(tc.in), nil, 0)
			if err != nil || string(out) != tc.want {
				t.Fatalf("got %q, %v; want %q", out, err, tc.want)
			}
		})
	}
}

func TestRunLengthDecode(t *testing.T) {
	in := []byte{2, 'a', 'b', 'c', 254, 'x', 128, 'z'}
	out, err := NewRunLengthDecoder().Decode(context.Background(), in, nil, 0)
	if err != nil || string(out) != "abcxxx" {
		t.Fatalf("got %q, %v", out, err)
	}
}

func TestPipelineRejectsCompressionBomb(t *testing.T) {
	bomb := deflate(t, make([]byte, 1<<20))
	p := NewDefaultPipeline(security.DefaultLimits())
	_, _, err := p.Decode(context.Background(), bomb, []string{"FlateDecode"}, nil)
	if !errors.Is(err, pdferr.ErrCompressionBombDetected) {
		t.Fatalf("expected CompressionBombDetected, got %v", err)
	}
}

func TestPipelineWithinRatio(t *testing.T) {
	payload := bytes.Repeat([]byte("BT /F1 12 Tf (abc) Tj ET\n"), 40)
	p := NewDefaultPipeline(security.DefaultLimits())
	out, pending, err := p.Decode(context.Background(), deflate(t, payload), []string{"FlateDecode"}, nil)
	if err != nil || pending != "" || !bytes.Equal(out, payload) {
		t.Fatalf("got %d bytes, pending %q, err %v", len(out), pending, err)
	}
}

func TestPipelineStopsAtImageCodec(t *testing.T) {
	p := NewDefaultPipeline(security.DefaultLimits())
	out, pending, err := p.Decode(context.Background(), []byte("FFD8>"), []string{"AHx", "DCT"}, nil)
	if err != nil {
		t.Fatal(err)
	}
	if pending != "DCTDecode" || !bytes.Equal(out, []byte{0xFF, 0xD8}) {
		t.Fatalf("got %x pending %q", out, pending)
	}
}

func TestPipelineUnknownFilter(t *testing.T) {
	p := NewDefaultPipeline(security.DefaultLimits())
	_, _, err := p.Decode(context.Background(), []byte("x"), []string{"BogusDecode"}, nil)
	if !errors.Is(err, pdferr.ErrCorruptStructure) {
		t.Fatalf("expected CorruptStructure, got %v", err)
	}
}

func TestExtractFilters(t *testing.T) {
	d := raw.Dict()
	d.Set("Filter", raw.NewArray(raw.Name("ASCII85Decode"), raw.Name("FlateDecode")))
	parms := raw.Dict()
	parms.Set("Predictor", raw.Int(12))
	d.Set("DecodeParms", raw.NewArray(raw.NullObj{}, parms))
	names, params := ExtractFilters(d, nil)
	if len(names) != 2 || params[0] != nil || params[1] != parms {
		t.Fatalf("names %v params %v", names, params)
	}
}

func FuzzPipeline(f *testing.F) {
	f.Add([]byte("48656c6c6f>"), "ASCIIHexDecode")
	f.Add([]byte{2, 'a', 'b', 'c', 128}, "RunLengthDecode")
	f.Fuzz(func(t *testing.T, data []byte, name string) {
		p := NewDefaultPipeline(security.DefaultLimits())
		_, _, _ = p.Decode(context.Background(), data, []string{name}, nil)
	})
}
