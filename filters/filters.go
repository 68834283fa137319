// Package filters decodes PDF stream payloads. Every decoder writes into a
// bounded buffer so that expansion beyond the configured decode budget is
// rejected as soon as it happens.
package filters

import (
	"context"
	"fmt"
	"io"

	"github.com/wudi/pdf2html/ir/raw"
	"github.com/wudi/pdf2html/pdferr"
	"github.com/wudi/pdf2html/security"
)

type Decoder interface {
	Name() string
	// Decode reads the encoded input and writes at most budget bytes of
	// output (budget <= 0 is unbounded).
	Decode(ctx context.Context, input []byte, params *raw.DictObj, budget int64) ([]byte, error)
}

// Image codecs are left encoded; the image layer decodes them.
var imageCodecs = map[string]bool{
	"DCTDecode":   true,
	"JPXDecode":   true,
	"JBIG2Decode": true,
}

// IsImageCodec reports whether name is a filter whose output is an image
// format rather than a byte stream.
func IsImageCodec(name string) bool { return imageCodecs[name] }

var abbreviations = map[string]string{
	"AHx": "ASCIIHexDecode",
	"A85": "ASCII85Decode",
	"LZW": "LZWDecode",
	"Fl":  "FlateDecode",
	"RL":  "RunLengthDecode",
	"CCF": "CCITTFaxDecode",
	"DCT": "DCTDecode",
}

// CanonicalName expands the abbreviated filter names allowed in inline
// images.
func CanonicalName(name string) string {
	if full, ok := abbreviations[name]; ok {
		return full
	}
	return name
}

type Pipeline struct {
	decoders map[string]Decoder
	limits   security.Limits
}

// NewPipeline constructs a pipeline with provided decoders and limits.
func NewPipeline(decoders []Decoder, limits security.Limits) *Pipeline {
	p := &Pipeline{decoders: make(map[string]Decoder, len(decoders)), limits: limits}
	for _, d := range decoders {
		p.decoders[d.Name()] = d
	}
	return p
}

// NewDefaultPipeline registers every decoder this package implements.
func NewDefaultPipeline(limits security.Limits) *Pipeline {
	return NewPipeline([]Decoder{
		NewFlateDecoder(),
		NewLZWDecoder(),
		NewASCIIHexDecoder(),
		NewASCII85Decoder(),
		NewRunLengthDecoder(),
		NewCCITTFaxDecoder(),
		identityDecoder{name: "Crypt"},
	}, limits)
}

func (p *Pipeline) Limits() security.Limits { return p.limits }

// Decode applies the filters in order. It stops before the first image
// codec and returns its name in pending; pending is "" when the payload
// was fully decoded.
func (p *Pipeline) Decode(ctx context.Context, input []byte, filterNames []string, params []*raw.DictObj) (data []byte, pending string, err error) {
	budget := p.limits.DecodeBudget(int64(len(input)))
	if p.limits.MaxDecodeTime > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, p.limits.MaxDecodeTime)
		defer cancel()
	}
	data = input
	for i, name := range filterNames {
		name = CanonicalName(name)
		if IsImageCodec(name) {
			return data, name, nil
		}
		dec, ok := p.decoders[name]
		if !ok {
			return nil, "", pdferr.Errorf(pdferr.KindCorruptStructure, "decode", "unknown filter %s", name)
		}
		var param *raw.DictObj
		if i < len(params) {
			param = params[i]
		}
		out, err := dec.Decode(ctx, data, param, budget)
		if err != nil {
			if pdferr.KindOf(err) != pdferr.KindUnknown {
				return nil, "", err
			}
			if ctx.Err() != nil {
				return nil, "", pdferr.New(pdferr.KindTimeout, name, ctx.Err())
			}
			return nil, "", pdferr.New(pdferr.KindCorruptStructure, name, err)
		}
		data = out
	}
	return data, "", nil
}

// boundedBuffer collects decoder output and fails once more than limit
// bytes are written.
type boundedBuffer struct {
	buf   []byte
	limit int64
	ctx   context.Context
}

func newBoundedBuffer(ctx context.Context, limit int64, sizeHint int) *boundedBuffer {
	if limit > 0 && int64(sizeHint) > limit {
		sizeHint = int(limit)
	}
	return &boundedBuffer{buf: make([]byte, 0, sizeHint), limit: limit, ctx: ctx}
}

func (b *boundedBuffer) Write(p []byte) (int, error) {
	if b.ctx != nil {
		if err := b.ctx.Err(); err != nil {
			return 0, err
		}
	}
	if b.limit > 0 && int64(len(b.buf))+int64(len(p)) > b.limit {
		return 0, bombError(b.limit)
	}
	b.buf = append(b.buf, p...)
	return len(p), nil
}

func (b *boundedBuffer) WriteByte(c byte) error {
	_, err := b.Write([]byte{c})
	return err
}

func (b *boundedBuffer) Bytes() []byte { return b.buf }

func bombError(limit int64) error {
	return pdferr.Errorf(pdferr.KindCompressionBombDetected, "decode", "decoded size exceeds budget of %d bytes", limit)
}

// copyBounded streams r into a bounded buffer. Truncated compressed data
// is tolerated: whatever was decoded before the damage is returned.
func copyBounded(ctx context.Context, r io.Reader, budget int64, sizeHint int) ([]byte, error) {
	out := newBoundedBuffer(ctx, budget, sizeHint)
	_, err := io.Copy(out, r)
	if err != nil {
		if pdferr.KindOf(err) == pdferr.KindCompressionBombDetected || ctx.Err() != nil {
			return nil, err
		}
		if len(out.Bytes()) == 0 {
			return nil, err
		}
	}
	return out.Bytes(), nil
}

type identityDecoder struct{ name string }

func (d identityDecoder) Name() string { return d.name }
func (d identityDecoder) Decode(_ context.Context, in []byte, _ *raw.DictObj, _ int64) ([]byte, error) {
	return in, nil
}

func intParam(d *raw.DictObj, key string, def int) int {
	o, ok := d.Get(key)
	if !ok {
		return def
	}
	if n, ok := o.(raw.NumberObj); ok {
		return int(n.Int())
	}
	return def
}

func boolParam(d *raw.DictObj, key string, def bool) bool {
	o, ok := d.Get(key)
	if !ok {
		return def
	}
	if b, ok := o.(raw.BoolObj); ok {
		return b.V
	}
	return def
}

func errorf(format string, args ...any) error { return fmt.Errorf(format, args...) }
