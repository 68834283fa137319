package background

import (
	"bytes"
	"context"
	"fmt"
	"image"
	"image/color"
	"image/jpeg"

	"github.com/wudi/pdf2html/contentstream"
	"github.com/wudi/pdf2html/filters"
	"github.com/wudi/pdf2html/ir/raw"
	"github.com/wudi/pdf2html/pdferr"
)

// imageSource decodes an image XObject or inline image into pixels.
// Image masks are painted in fill; soft masks become the alpha channel.
type imageSource struct {
	doc *raw.Document
}

func (s imageSource) decode(ctx context.Context, img *contentstream.Image, fill color.NRGBA) (image.Image, error) {
	st := img.Stream
	if st == nil {
		return nil, pdferr.Errorf(pdferr.KindCorruptStructure, "image", "missing image stream")
	}
	w, h := img.Width, img.Height
	if err := filters.ValidateImageBounds(w, h); err != nil {
		return nil, pdferr.New(pdferr.KindCorruptStructure, "image", err)
	}
	data, err := s.doc.DecodeStream(ctx, st)
	if err != nil {
		return nil, fmt.Errorf("decode image: %w", err)
	}
	codec := s.codec(st.Dict)
	decode, _ := s.doc.Numbers(s.lookup(st.Dict, "Decode"))

	if img.ImageMask {
		return stencil(data, w, h, decode, fill), nil
	}

	var out *image.NRGBA
	switch codec {
	case "DCTDecode":
		out, err = decodeJPEG(data)
	case "":
		cs, ok := contentstream.ResolveColorSpace(s.doc, s.lookup(st.Dict, "ColorSpace"), img.Resources)
		if !ok {
			cs = contentstream.DeviceGray
		}
		bpc := 8
		if n, ok := s.doc.Number(s.lookup(st.Dict, "BitsPerComponent")); ok {
			bpc = int(n)
		}
		out, err = samples(data, w, h, bpc, cs, decode)
	default:
		err = pdferr.Errorf(pdferr.KindCorruptStructure, "image", "%s images are not supported", codec)
	}
	if err != nil {
		return nil, err
	}
	if img.HasSMask {
		s.applySoftMask(ctx, st.Dict, out)
	}
	return out, nil
}

func (s imageSource) lookup(d *raw.DictObj, key string) raw.Object {
	o, err := s.doc.Lookup(d, key)
	if err != nil {
		return nil
	}
	return o
}

// codec returns the image codec left undecoded at the end of the filter
// chain, or "" for raw samples.
func (s imageSource) codec(d *raw.DictObj) string {
	names, _ := filters.ExtractFilters(d, func(o raw.Object) raw.Object {
		r, err := s.doc.Resolve(o)
		if err != nil {
			return raw.NullObj{}
		}
		return r
	})
	for _, n := range names {
		if n = filters.CanonicalName(n); filters.IsImageCodec(n) {
			return n
		}
	}
	return ""
}

// applySoftMask replaces the alpha channel of out with the luminosity
// of the SMask image, resampled nearest-neighbour when sizes differ.
func (s imageSource) applySoftMask(ctx context.Context, d *raw.DictObj, out *image.NRGBA) {
	st, err := s.doc.Stream(s.lookup(d, "SMask"))
	if err != nil || st == nil {
		return
	}
	mask, err := s.decode(ctx, &contentstream.Image{
		Stream: st,
		Width:  s.intValue(st.Dict, "Width"),
		Height: s.intValue(st.Dict, "Height"),
	}, color.NRGBA{})
	if err != nil {
		return
	}
	mb, ob := mask.Bounds(), out.Bounds()
	for y := 0; y < ob.Dy(); y++ {
		my := mb.Min.Y + y*mb.Dy()/ob.Dy()
		for x := 0; x < ob.Dx(); x++ {
			mx := mb.Min.X + x*mb.Dx()/ob.Dx()
			g := color.GrayModel.Convert(mask.At(mx, my)).(color.Gray)
			out.Pix[out.PixOffset(x, y)+3] = g.Y
		}
	}
}

func (s imageSource) intValue(d *raw.DictObj, key string) int {
	n, _ := s.doc.Number(s.lookup(d, key))
	return int(n)
}

func decodeJPEG(data []byte) (*image.NRGBA, error) {
	src, err := jpeg.Decode(bytes.NewReader(data))
	if err != nil {
		return nil, pdferr.New(pdferr.KindCorruptStructure, "image", fmt.Errorf("jpeg: %w", err))
	}
	b := src.Bounds()
	out := image.NewNRGBA(image.Rect(0, 0, b.Dx(), b.Dy()))
	for y := 0; y < b.Dy(); y++ {
		for x := 0; x < b.Dx(); x++ {
			out.Set(x, y, src.At(b.Min.X+x, b.Min.Y+y))
		}
	}
	return out, nil
}

// bitReader walks packed samples row by row; rows start on byte
// boundaries.
type bitReader struct {
	data []byte
	pos  int
	bit  uint
}

func (r *bitReader) read(bits int) (uint32, bool) {
	var v uint32
	for i := 0; i < bits; i++ {
		if r.pos >= len(r.data) {
			return 0, false
		}
		b := r.data[r.pos] >> (7 - r.bit) & 1
		v = v<<1 | uint32(b)
		r.bit++
		if r.bit == 8 {
			r.bit = 0
			r.pos++
		}
	}
	return v, true
}

func (r *bitReader) align() {
	if r.bit != 0 {
		r.bit = 0
		r.pos++
	}
}

func samples(data []byte, w, h, bpc int, cs *contentstream.ColorSpace, decode []float64) (*image.NRGBA, error) {
	switch bpc {
	case 1, 2, 4, 8, 16:
	default:
		return nil, pdferr.Errorf(pdferr.KindCorruptStructure, "image", "unsupported BitsPerComponent %d", bpc)
	}
	n := cs.N
	if n == 0 {
		n = 1
	}
	if cs.Family == contentstream.FamilyIndexed {
		n = 1
	}
	maxv := float64(uint32(1)<<uint(bpc) - 1)
	out := image.NewNRGBA(image.Rect(0, 0, w, h))
	r := &bitReader{data: data}
	vals := make([]float64, n)
	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			for i := 0; i < n; i++ {
				v, ok := r.read(bpc)
				if !ok {
					return out, nil
				}
				vals[i] = decodeSample(float64(v), maxv, i, cs, decode)
			}
			c := contentstream.Color{Space: cs, Values: vals}
			cr, cg, cb := c.RGB()
			off := out.PixOffset(x, y)
			out.Pix[off] = to8(cr)
			out.Pix[off+1] = to8(cg)
			out.Pix[off+2] = to8(cb)
			out.Pix[off+3] = 0xFF
		}
		r.align()
	}
	return out, nil
}

// decodeSample maps a raw sample through the Decode array. Indexed
// spaces keep integer indices.
func decodeSample(v, maxv float64, i int, cs *contentstream.ColorSpace, decode []float64) float64 {
	lo, hi := 0.0, 1.0
	switch {
	case cs.Family == contentstream.FamilyIndexed:
		hi = maxv
	case cs.Family == contentstream.FamilyLab && i == 0:
		hi = 100
	case cs.Family == contentstream.FamilyLab:
		lo, hi = -100, 100
	}
	if len(decode) >= 2*i+2 {
		lo, hi = decode[2*i], decode[2*i+1]
	}
	return lo + v*(hi-lo)/maxv
}

// stencil paints fill where a sample is 0 (1 with a [1 0] Decode array).
func stencil(data []byte, w, h int, decode []float64, fill color.NRGBA) *image.NRGBA {
	paint := uint32(0)
	if len(decode) >= 2 && decode[0] == 1 {
		paint = 1
	}
	out := image.NewNRGBA(image.Rect(0, 0, w, h))
	r := &bitReader{data: data}
	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			v, ok := r.read(1)
			if !ok {
				return out
			}
			if v == paint {
				out.SetNRGBA(x, y, fill)
			}
		}
		r.align()
	}
	return out
}

func to8(v float64) uint8 {
	switch {
	case v <= 0:
		return 0
	case v >= 1:
		return 0xFF
	}
	return uint8(v*255 + 0.5)
}
