package filters

import (
	"bytes"
	"compress/lzw"
	"context"
	stdascii85 "encoding/ascii85"
	"io"

	"github.com/klauspost/compress/flate"
	"github.com/klauspost/compress/zlib"
	"golang.org/x/image/ccitt"
	tifflzw "golang.org/x/image/tiff/lzw"

	"github.com/wudi/pdf2html/ir/raw"
)

type flateDecoder struct{}

func (flateDecoder) Name() string { return "FlateDecode" }
func NewFlateDecoder() Decoder    { return flateDecoder{} }

func (flateDecoder) Decode(ctx context.Context, in []byte, params *raw.DictObj, budget int64) ([]byte, error) {
	var r io.ReadCloser
	zr, err := zlib.NewReader(bytes.NewReader(in))
	if err == nil {
		r = zr
	} else {
		// some producers omit the zlib header
		r = flate.NewReader(bytes.NewReader(in))
	}
	defer r.Close()
	out, err := copyBounded(ctx, r, budget, len(in)*4)
	if err != nil {
		return nil, err
	}
	return applyPredictor(out, params, budget)
}

type lzwDecoder struct{}

func (lzwDecoder) Name() string { return "LZWDecode" }
func NewLZWDecoder() Decoder    { return lzwDecoder{} }

func (lzwDecoder) Decode(ctx context.Context, in []byte, params *raw.DictObj, budget int64) ([]byte, error) {
	var r io.ReadCloser
	if intParam(params, "EarlyChange", 1) == 1 {
		// the TIFF variant switches code width one code early, as PDF does
		r = tifflzw.NewReader(bytes.NewReader(in), tifflzw.MSB, 8)
	} else {
		r = lzw.NewReader(bytes.NewReader(in), lzw.MSB, 8)
	}
	defer r.Close()
	out, err := copyBounded(ctx, r, budget, len(in)*3)
	if err != nil {
		return nil, err
	}
	return applyPredictor(out, params, budget)
}

type ascii85Decoder struct{}

func (ascii85Decoder) Name() string { return "ASCII85Decode" }
func NewASCII85Decoder() Decoder    { return ascii85Decoder{} }

func (ascii85Decoder) Decode(ctx context.Context, in []byte, _ *raw.DictObj, budget int64) ([]byte, error) {
	trimmed := bytes.TrimSpace(in)
	trimmed = bytes.TrimPrefix(trimmed, []byte("<~"))
	if i := bytes.Index(trimmed, []byte("~>")); i >= 0 {
		trimmed = trimmed[:i]
	} else if n := len(trimmed); n > 0 && trimmed[n-1] == '~' {
		trimmed = trimmed[:n-1]
	}
	if budget > 0 && int64(len(trimmed))*4/5 > budget+4 {
		return nil, bombError(budget)
	}
	out := make([]byte, len(trimmed)*4/5+4)
	n, _, err := stdascii85.Decode(out, trimmed, true)
	if err != nil {
		if n == 0 {
			return nil, err
		}
	}
	return out[:n], nil
}

type asciiHexDecoder struct{}

func (asciiHexDecoder) Name() string { return "ASCIIHexDecode" }
func NewASCIIHexDecoder() Decoder    { return asciiHexDecoder{} }

func (asciiHexDecoder) Decode(ctx context.Context, in []byte, _ *raw.DictObj, budget int64) ([]byte, error) {
	out := newBoundedBuffer(ctx, budget, len(in)/2)
	var hi byte
	half := false
	for _, c := range in {
		if c == '>' {
			break
		}
		var v byte
		switch {
		case c >= '0' && c <= '9':
			v = c - '0'
		case c >= 'a' && c <= 'f':
			v = c - 'a' + 10
		case c >= 'A' && c <= 'F':
			v = c - 'A' + 10
		case c == ' ' || c == '\t' || c == '\r' || c == '\n' || c == '\f' || c == 0:
			continue
		default:
			return nil, errorf("invalid hex digit %q", c)
		}
		if half {
			if err := out.WriteByte(hi<<4 | v); err != nil {
				return nil, err
			}
		} else {
			hi = v
		}
		half = !half
	}
	if half {
		if err := out.WriteByte(hi << 4); err != nil {
			return nil, err
		}
	}
	return out.Bytes(), nil
}

type runLengthDecoder struct{}

func (runLengthDecoder) Name() string { return "RunLengthDecode" }
func NewRunLengthDecoder() Decoder    { return runLengthDecoder{} }

func (runLengthDecoder) Decode(ctx context.Context, in []byte, _ *raw.DictObj, budget int64) ([]byte, error) {
	out := newBoundedBuffer(ctx, budget, len(in)*2)
	for i := 0; i < len(in); {
		n := int(in[i])
		i++
		switch {
		case n == 128:
			return out.Bytes(), nil
		case n < 128:
			end := i + n + 1
			if end > len(in) {
				end = len(in)
			}
			if _, err := out.Write(in[i:end]); err != nil {
				return nil, err
			}
			i = end
		default:
			if i >= len(in) {
				return out.Bytes(), nil
			}
			if _, err := out.Write(bytes.Repeat(in[i:i+1], 257-n)); err != nil {
				return nil, err
			}
			i++
		}
	}
	return out.Bytes(), nil
}

type ccittFaxDecoder struct{}

func (ccittFaxDecoder) Name() string { return "CCITTFaxDecode" }
func NewCCITTFaxDecoder() Decoder    { return ccittFaxDecoder{} }

// Decode produces 1 bit per pixel rows where 0 is black, matching the
// default DeviceGray interpretation of an image with /Decode [0 1].
func (ccittFaxDecoder) Decode(ctx context.Context, in []byte, params *raw.DictObj, budget int64) ([]byte, error) {
	k := intParam(params, "K", 0)
	cols := intParam(params, "Columns", 1728)
	rows := intParam(params, "Rows", 0)
	height := ccitt.AutoDetectHeight
	if rows > 0 {
		height = rows
		if err := ValidateImageBounds(cols, rows); err != nil {
			return nil, err
		}
	}
	sf := ccitt.Group3
	if k < 0 {
		sf = ccitt.Group4
	}
	opts := &ccitt.Options{
		Align:  boolParam(params, "EncodedByteAlign", false),
		Invert: boolParam(params, "BlackIs1", false),
	}
	r := ccitt.NewReader(bytes.NewReader(in), ccitt.MSB, sf, cols, height, opts)
	return copyBounded(ctx, r, budget, (cols+7)/8*max(rows, 1))
}
