package fonts

import (
	"bytes"
	"encoding/binary"
	"fmt"
	"sort"
)

// sfnt table directory access shared by subsetting and WOFF wrapping.

type tableEntry struct {
	tag      string
	checksum uint32
	offset   uint32
	length   uint32
}

type sfntFile struct {
	data    []byte
	version uint32
	tables  map[string]tableEntry
	order   []string
}

func parseSFNT(data []byte) (*sfntFile, error) {
	if len(data) < 12 {
		return nil, fmt.Errorf("sfnt header truncated")
	}
	f := &sfntFile{
		data:    data,
		version: binary.BigEndian.Uint32(data),
		tables:  make(map[string]tableEntry),
	}
	switch f.version {
	case 0x00010000, 0x4F54544F, 0x74727565: // 1.0, 'OTTO', 'true'
	default:
		return nil, fmt.Errorf("unknown sfnt version %#08x", f.version)
	}
	n := int(binary.BigEndian.Uint16(data[4:]))
	for i := 0; i < n; i++ {
		p := 12 + 16*i
		if p+16 > len(data) {
			return nil, fmt.Errorf("table directory truncated at entry %d", i)
		}
		e := tableEntry{
			tag:      string(data[p : p+4]),
			checksum: binary.BigEndian.Uint32(data[p+4:]),
			offset:   binary.BigEndian.Uint32(data[p+8:]),
			length:   binary.BigEndian.Uint32(data[p+12:]),
		}
		if uint64(e.offset)+uint64(e.length) > uint64(len(data)) {
			return nil, fmt.Errorf("table %q out of bounds", e.tag)
		}
		f.tables[e.tag] = e
		f.order = append(f.order, e.tag)
	}
	return f, nil
}

func (f *sfntFile) has(tag string) bool {
	_, ok := f.tables[tag]
	return ok
}

func (f *sfntFile) table(tag string) ([]byte, error) {
	e, ok := f.tables[tag]
	if !ok {
		return nil, fmt.Errorf("table %q not found", tag)
	}
	return f.data[e.offset : e.offset+e.length], nil
}

// isCFF reports whether the outlines are CFF rather than glyf.
func (f *sfntFile) isCFF() bool { return f.has("CFF ") || f.has("CFF2") }

// sfntBuilder assembles a font from tables, sorting the directory and
// fixing checksums and head.checkSumAdjustment.
type sfntBuilder struct {
	version uint32
	tables  map[string][]byte
}

func newSFNTBuilder(version uint32) *sfntBuilder {
	return &sfntBuilder{version: version, tables: make(map[string][]byte)}
}

func (b *sfntBuilder) set(tag string, data []byte) { b.tables[tag] = data }

func pad4(n int) int { return (n + 3) &^ 3 }

func (b *sfntBuilder) bytes() []byte {
	tags := make([]string, 0, len(b.tables))
	for tag := range b.tables {
		tags = append(tags, tag)
	}
	sort.Strings(tags)

	n := len(tags)
	sel := 0
	for 1<<(sel+1) <= n {
		sel++
	}
	searchRange := (1 << sel) * 16

	var buf bytes.Buffer
	_ = binary.Write(&buf, binary.BigEndian, b.version)
	_ = binary.Write(&buf, binary.BigEndian, [4]uint16{uint16(n), uint16(searchRange), uint16(sel), uint16(n*16 - searchRange)})

	offset := 12 + 16*n
	headAt := -1
	for _, tag := range tags {
		data := b.tables[tag]
		if tag == "head" && len(data) >= 12 {
			data = append([]byte(nil), data...)
			binary.BigEndian.PutUint32(data[8:], 0)
			b.tables[tag] = data
			headAt = offset
		}
		buf.WriteString(tag)
		_ = binary.Write(&buf, binary.BigEndian, [3]uint32{checksum(data), uint32(offset), uint32(len(data))})
		offset += pad4(len(data))
	}
	for _, tag := range tags {
		data := b.tables[tag]
		buf.Write(data)
		buf.Write(make([]byte, pad4(len(data))-len(data)))
	}
	out := buf.Bytes()
	if headAt >= 0 {
		binary.BigEndian.PutUint32(out[headAt+8:], 0xB1B0AFBA-checksum(out))
	}
	return out
}

func checksum(data []byte) uint32 {
	var sum uint32
	for i := 0; i < len(data); i += 4 {
		var word [4]byte
		copy(word[:], data[i:])
		sum += binary.BigEndian.Uint32(word[:])
	}
	return sum
}
