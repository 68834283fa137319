package fonts

import (
	"bytes"
	"encoding/binary"
	"fmt"
	"io"
	"sort"

	"github.com/klauspost/compress/zlib"
)

const (
	woffSignature    = 0x774F4646 // 'wOFF'
	woffHeaderSize   = 44
	woffDirEntrySize = 20
)

// WrapWOFF packages an sfnt program as WOFF 1.0, zlib-compressing each
// table when that makes it smaller.
func WrapWOFF(program []byte) ([]byte, error) {
	f, err := parseSFNT(program)
	if err != nil {
		return nil, err
	}
	tags := append([]string(nil), f.order...)
	sort.Strings(tags)

	type packed struct {
		entry tableEntry
		data  []byte
	}
	tables := make([]packed, 0, len(tags))
	sfntSize := 12 + 16*len(tags)
	for _, tag := range tags {
		e := f.tables[tag]
		orig, _ := f.table(tag)
		data, err := deflateTable(orig)
		if err != nil {
			return nil, fmt.Errorf("compress %q: %w", tag, err)
		}
		if len(data) >= len(orig) {
			data = orig
		}
		tables = append(tables, packed{entry: e, data: data})
		sfntSize += pad4(len(orig))
	}

	offset := woffHeaderSize + woffDirEntrySize*len(tables)
	var dir, body bytes.Buffer
	for _, t := range tables {
		_ = binary.Write(&dir, binary.BigEndian, struct {
			Tag                            [4]byte
			Offset, CompLength, OrigLength uint32
			OrigChecksum                   uint32
		}{
			Tag:          [4]byte([]byte(t.entry.tag)),
			Offset:       uint32(offset + body.Len()),
			CompLength:   uint32(len(t.data)),
			OrigLength:   t.entry.length,
			OrigChecksum: t.entry.checksum,
		})
		body.Write(t.data)
		body.Write(make([]byte, pad4(len(t.data))-len(t.data)))
	}

	var out bytes.Buffer
	_ = binary.Write(&out, binary.BigEndian, struct {
		Signature, Flavor, Length uint32
		NumTables, Reserved       uint16
		TotalSfntSize             uint32
		Major, Minor              uint16
		MetaOffset, MetaLength    uint32
		MetaOrigLength            uint32
		PrivOffset, PrivLength    uint32
	}{
		Signature:     woffSignature,
		Flavor:        f.version,
		Length:        uint32(offset + body.Len()),
		NumTables:     uint16(len(tables)),
		TotalSfntSize: uint32(sfntSize),
		Major:         1,
	})
	out.Write(dir.Bytes())
	out.Write(body.Bytes())
	return out.Bytes(), nil
}

func deflateTable(data []byte) ([]byte, error) {
	var buf bytes.Buffer
	zw, err := zlib.NewWriterLevel(&buf, zlib.BestCompression)
	if err != nil {
		return nil, err
	}
	if _, err := zw.Write(data); err != nil {
		return nil, err
	}
	if err := zw.Close(); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

// UnwrapWOFF restores the sfnt program from a WOFF 1.0 file.
func UnwrapWOFF(woff []byte) ([]byte, error) {
	if len(woff) < woffHeaderSize || binary.BigEndian.Uint32(woff) != woffSignature {
		return nil, fmt.Errorf("not a WOFF file")
	}
	b := newSFNTBuilder(binary.BigEndian.Uint32(woff[4:]))
	n := int(binary.BigEndian.Uint16(woff[12:]))
	for i := 0; i < n; i++ {
		p := woffHeaderSize + woffDirEntrySize*i
		if p+woffDirEntrySize > len(woff) {
			return nil, fmt.Errorf("WOFF directory truncated")
		}
		tag := string(woff[p : p+4])
		off := int(binary.BigEndian.Uint32(woff[p+4:]))
		comp := int(binary.BigEndian.Uint32(woff[p+8:]))
		orig := int(binary.BigEndian.Uint32(woff[p+12:]))
		if off+comp > len(woff) {
			return nil, fmt.Errorf("WOFF table %q out of bounds", tag)
		}
		data := woff[off : off+comp]
		if comp < orig {
			zr, err := zlib.NewReader(bytes.NewReader(data))
			if err != nil {
				return nil, fmt.Errorf("WOFF table %q: %w", tag, err)
			}
			inflated, err := io.ReadAll(io.LimitReader(zr, int64(orig)))
			if err != nil {
				return nil, fmt.Errorf("WOFF table %q: %w", tag, err)
			}
			data = inflated
		}
		b.set(tag, data)
	}
	return b.bytes(), nil
}
