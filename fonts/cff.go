package fonts

import (
	"encoding/binary"
	"fmt"
	"math"
	"strconv"
	"strings"

	"github.com/go-text/typesetting/font/cff"
	"github.com/go-text/typesetting/font/opentype"
)

// cffInfo is what wrapping a bare CFF program needs from it.
type cffInfo struct {
	Name string
	// CIDKeyed is set when the top DICT carries a ROS operator.
	CIDKeyed   bool
	NumGlyphs  int
	UnitsPerEm int
	// BBox is the FontBBox in font units.
	BBox [4]float64

	charset int
	// names holds the glyph names of a name-keyed font by glyph id, cids
	// the CID of each glyph of a CID-keyed font.
	names []string
	cids  []uint16
}

// Top DICT operators; two-byte operators are keyed 1200+b1.
const (
	cffOpFontBBox   = 5
	cffOpCharset    = 15
	cffOpFontMatrix = 1200 + 7
	cffOpROS        = 1200 + 30
)

// readCFF reads the header, Name INDEX and first top DICT of a CFF
// program.
func readCFF(data []byte) (*cffInfo, error) {
	if len(data) < 4 {
		return nil, fmt.Errorf("CFF header truncated")
	}
	if data[0] != 1 {
		return nil, fmt.Errorf("CFF major version %d", data[0])
	}
	r := &cffReader{data: data, pos: int(data[2])}
	names, err := r.index()
	if err != nil {
		return nil, fmt.Errorf("name INDEX: %w", err)
	}
	tops, err := r.index()
	if err != nil {
		return nil, fmt.Errorf("top DICT INDEX: %w", err)
	}
	info := &cffInfo{UnitsPerEm: 1000}
	if len(names) > 0 {
		info.Name = string(names[0])
	}
	if len(tops) > 0 {
		ops, err := cffDictOperators(tops[0])
		if err != nil {
			return nil, fmt.Errorf("top DICT: %w", err)
		}
		_, info.CIDKeyed = ops[cffOpROS]
		if v := ops[cffOpCharset]; len(v) == 1 {
			info.charset = int(v[0])
		}
		if v := ops[cffOpFontBBox]; len(v) == 4 {
			copy(info.BBox[:], v)
		}
		if v := ops[cffOpFontMatrix]; len(v) == 6 && v[0] > 0 {
			if upem := int(math.Round(1 / v[0])); upem >= 16 && upem <= 16384 {
				info.UnitsPerEm = upem
			}
		}
	}
	return info, nil
}

// loadCFF validates a whole CFF program and reads its glyph count and
// the identity (name or CID) of every glyph.
func loadCFF(data []byte) (*cffInfo, error) {
	info, err := readCFF(data)
	if err != nil {
		return nil, err
	}
	prog, err := cff.Parse(data)
	if err != nil {
		return nil, fmt.Errorf("parse CFF: %w", err)
	}
	info.NumGlyphs = len(prog.Charstrings)
	if info.NumGlyphs == 0 || info.NumGlyphs > 0xffff {
		return nil, fmt.Errorf("CFF has %d glyphs", info.NumGlyphs)
	}
	if info.CIDKeyed {
		info.cids, err = cffCharset(data, info.charset, info.NumGlyphs)
		if err != nil {
			return nil, fmt.Errorf("charset: %w", err)
		}
		return info, nil
	}
	info.names = make([]string, info.NumGlyphs)
	for gid := range info.names {
		info.names[gid] = prog.GlyphName(opentype.GID(gid))
	}
	return info, nil
}

// cffCharset reads the charset of a CID-keyed font: the CID of each
// glyph. Offsets 0 to 2 name predefined charsets, read as identity.
func cffCharset(data []byte, offset, numGlyphs int) ([]uint16, error) {
	cids := make([]uint16, numGlyphs)
	if offset <= 2 {
		for gid := range cids {
			cids[gid] = uint16(gid)
		}
		return cids, nil
	}
	r := &cffReader{data: data, pos: offset}
	if err := r.need(1); err != nil {
		return nil, err
	}
	format := data[r.pos]
	r.pos++
	gid := 1
	switch format {
	case 0:
		if err := r.need(2 * (numGlyphs - 1)); err != nil {
			return nil, err
		}
		for ; gid < numGlyphs; gid++ {
			cids[gid] = binary.BigEndian.Uint16(data[r.pos:])
			r.pos += 2
		}
	case 1, 2:
		size := 3
		if format == 2 {
			size = 4
		}
		for gid < numGlyphs {
			if err := r.need(size); err != nil {
				return nil, err
			}
			first := int(binary.BigEndian.Uint16(data[r.pos:]))
			left := int(data[r.pos+2])
			if format == 2 {
				left = int(binary.BigEndian.Uint16(data[r.pos+2:]))
			}
			r.pos += size
			for j := 0; j <= left && gid < numGlyphs; j++ {
				cids[gid] = uint16(first + j)
				gid++
			}
		}
	default:
		return nil, fmt.Errorf("charset format %d", format)
	}
	return cids, nil
}

type cffReader struct {
	data []byte
	pos  int
}

func (r *cffReader) need(n int) error {
	if r.pos < 0 || n < 0 || r.pos+n > len(r.data) {
		return fmt.Errorf("offset %d: truncated", r.pos)
	}
	return nil
}

func (r *cffReader) index() ([][]byte, error) {
	if err := r.need(2); err != nil {
		return nil, err
	}
	count := int(binary.BigEndian.Uint16(r.data[r.pos:]))
	r.pos += 2
	if count == 0 {
		return nil, nil
	}
	if err := r.need(1); err != nil {
		return nil, err
	}
	offSize := int(r.data[r.pos])
	r.pos++
	if offSize < 1 || offSize > 4 {
		return nil, fmt.Errorf("offset size %d", offSize)
	}
	if err := r.need((count + 1) * offSize); err != nil {
		return nil, err
	}
	offsets := make([]int, count+1)
	for i := range offsets {
		v := 0
		for _, b := range r.data[r.pos : r.pos+offSize] {
			v = v<<8 | int(b)
		}
		offsets[i] = v
		r.pos += offSize
	}
	base := r.pos - 1
	items := make([][]byte, count)
	for i := 0; i < count; i++ {
		start, end := base+offsets[i], base+offsets[i+1]
		if start < r.pos || start > end || end > len(r.data) {
			return nil, fmt.Errorf("INDEX item %d out of range", i)
		}
		items[i] = r.data[start:end]
	}
	r.pos = base + offsets[count]
	return items, nil
}

// cffDictOperators returns the operands given to each operator of a
// DICT.
func cffDictOperators(d []byte) (map[int][]float64, error) {
	ops := make(map[int][]float64)
	var operands []float64
	for i := 0; i < len(d); {
		b := d[i]
		switch {
		case b <= 21:
			op := int(b)
			i++
			if b == 12 {
				if i >= len(d) {
					return nil, fmt.Errorf("escape at end of DICT")
				}
				op = 1200 + int(d[i])
				i++
			}
			ops[op] = operands
			operands = nil
			continue
		case b == 28:
			if i+3 > len(d) {
				return nil, fmt.Errorf("short integer truncated")
			}
			operands = append(operands, float64(int16(binary.BigEndian.Uint16(d[i+1:]))))
			i += 3
		case b == 29:
			if i+5 > len(d) {
				return nil, fmt.Errorf("long integer truncated")
			}
			operands = append(operands, float64(int32(binary.BigEndian.Uint32(d[i+1:]))))
			i += 5
		case b == 30:
			v, n, err := cffReal(d[i+1:])
			if err != nil {
				return nil, err
			}
			operands = append(operands, v)
			i += 1 + n
		case b >= 32 && b <= 246:
			operands = append(operands, float64(int(b)-139))
			i++
		case b >= 247 && b <= 254:
			if i+2 > len(d) {
				return nil, fmt.Errorf("integer truncated")
			}
			v := (int(b)-247)*256 + int(d[i+1]) + 108
			if b >= 251 {
				v = -(int(b)-251)*256 - int(d[i+1]) - 108
			}
			operands = append(operands, float64(v))
			i += 2
		default:
			return nil, fmt.Errorf("reserved DICT byte %d", b)
		}
	}
	return ops, nil
}

// cffReal decodes a nibble-packed real, returning it and the bytes read.
func cffReal(d []byte) (float64, int, error) {
	var sb strings.Builder
	for i, b := range d {
		for _, nib := range [2]byte{b >> 4, b & 0x0f} {
			switch {
			case nib <= 9:
				sb.WriteByte('0' + nib)
			case nib == 0xa:
				sb.WriteByte('.')
			case nib == 0xb:
				sb.WriteByte('E')
			case nib == 0xc:
				sb.WriteString("E-")
			case nib == 0xe:
				sb.WriteByte('-')
			case nib == 0xf:
				v, err := strconv.ParseFloat(sb.String(), 64)
				if err != nil {
					return 0, 0, fmt.Errorf("real %q: %w", sb.String(), err)
				}
				return v, i + 1, nil
			}
		}
	}
	return 0, 0, fmt.Errorf("unterminated real")
}
