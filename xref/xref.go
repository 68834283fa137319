// Package xref locates and reads cross-reference information: classic
// tables, cross-reference streams, /Prev chains and hybrid files, plus a
// linear repair scan for files whose tables are missing or wrong.
package xref

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"sort"
	"strconv"

	"github.com/wudi/pdf2html/ir/raw"
	"github.com/wudi/pdf2html/pdferr"
	"github.com/wudi/pdf2html/recovery"
	"github.com/wudi/pdf2html/scanner"
)

type EntryKind int

const (
	EntryFree EntryKind = iota
	EntryInUse
	// EntryCompressed objects live inside an object stream.
	EntryCompressed
)

// Entry locates one object. For compressed entries Stream is the object
// stream's number and Index the position inside it.
type Entry struct {
	Kind   EntryKind
	Offset int64
	Gen    int
	Stream int
	Index  int
}

// Table is the merged view of every cross-reference section.
type Table struct {
	Entries  map[int]Entry
	Trailer  *raw.DictObj
	Repaired bool
}

func newTable() *Table { return &Table{Entries: make(map[int]Entry)} }

func (t *Table) Lookup(num int) (Entry, bool) {
	e, ok := t.Entries[num]
	if !ok || e.Kind == EntryFree {
		return Entry{}, false
	}
	return e, true
}

// Objects returns the numbers of all in-use objects in ascending order.
func (t *Table) Objects() []int {
	out := make([]int, 0, len(t.Entries))
	for n, e := range t.Entries {
		if e.Kind != EntryFree {
			out = append(out, n)
		}
	}
	sort.Ints(out)
	return out
}

// addIfAbsent records e unless a newer section already defined num.
func (t *Table) addIfAbsent(num int, e Entry) {
	if _, ok := t.Entries[num]; !ok {
		t.Entries[num] = e
	}
}

// StreamDecoder decodes the payload of a cross-reference stream.
type StreamDecoder func(ctx context.Context, s *raw.StreamObj) ([]byte, error)

type Config struct {
	MaxXRefDepth int
	Recovery     recovery.Strategy
	Decode       StreamDecoder
}

// Load follows startxref and the /Prev chain. It returns an error when
// the chain cannot be read; callers then fall back to Repair.
func Load(ctx context.Context, data []byte, cfg Config) (*Table, error) {
	start, err := findStartXRef(data)
	if err != nil {
		return nil, err
	}
	if cfg.MaxXRefDepth <= 0 {
		cfg.MaxXRefDepth = 50
	}
	t := newTable()
	seen := make(map[int64]bool)
	offset := start
	for depth := 0; ; depth++ {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		if depth >= cfg.MaxXRefDepth {
			return nil, fmt.Errorf("xref chain deeper than %d", cfg.MaxXRefDepth)
		}
		if seen[offset] {
			break
		}
		seen[offset] = true
		trailer, err := readSection(ctx, data, offset, t, cfg)
		if err != nil {
			return nil, err
		}
		if t.Trailer == nil {
			t.Trailer = trailer
		}
		// hybrid files: the stream named by /XRefStm supplements this section
		if stmOff, ok := intEntry(trailer, "XRefStm"); ok && !seen[stmOff] {
			seen[stmOff] = true
			if _, err := readSection(ctx, data, stmOff, t, cfg); err != nil {
				if act := onError(ctx, cfg, err, stmOff); !act.Continue() {
					return nil, err
				}
			}
		}
		prev, ok := intEntry(trailer, "Prev")
		if !ok {
			break
		}
		offset = prev
	}
	if t.Trailer == nil {
		return nil, errors.New("no trailer found")
	}
	return t, nil
}

func onError(ctx context.Context, cfg Config, err error, off int64) recovery.Action {
	if cfg.Recovery == nil {
		return recovery.ActionFail
	}
	return cfg.Recovery.OnError(ctx, err, recovery.Location{ByteOffset: off, Component: "xref"})
}

func intEntry(d *raw.DictObj, key string) (int64, bool) {
	o, ok := d.Get(key)
	if !ok {
		return 0, false
	}
	n, ok := o.(raw.NumberObj)
	if !ok {
		return 0, false
	}
	return n.Int(), true
}

func findStartXRef(data []byte) (int64, error) {
	tail := data
	if len(tail) > 4096 {
		tail = tail[len(tail)-4096:]
	}
	idx := bytes.LastIndex(tail, []byte("startxref"))
	if idx < 0 {
		idx = bytes.LastIndex(data, []byte("startxref"))
		if idx < 0 {
			return 0, errors.New("startxref not found")
		}
		tail = data
	}
	s := scanner.New(tail[idx+len("startxref"):], scanner.Config{})
	tok, err := s.Next()
	if err != nil {
		return 0, fmt.Errorf("parse startxref: %w", err)
	}
	off, ok := tok.Value.(int64)
	if tok.Type != scanner.TokenNumber || !ok {
		return 0, fmt.Errorf("parse startxref: unexpected %s", tok.Type)
	}
	if off <= 0 || off >= int64(len(data)) {
		return 0, fmt.Errorf("xref offset out of range: %d", off)
	}
	return off, nil
}

// readSection reads the classic table or xref stream at offset into t and
// returns the section's trailer dictionary.
func readSection(ctx context.Context, data []byte, offset int64, t *Table, cfg Config) (*raw.DictObj, error) {
	if offset < 0 || offset >= int64(len(data)) {
		return nil, fmt.Errorf("xref offset out of range: %d", offset)
	}
	s := scanner.New(data, scanner.Config{})
	if err := s.Seek(offset); err != nil {
		return nil, err
	}
	tok, err := s.Next()
	if err != nil {
		return nil, fmt.Errorf("read xref at %d: %w", offset, err)
	}
	if tok.Keyword() == "xref" {
		return readClassic(s, t)
	}
	if tok.Type == scanner.TokenNumber {
		return readStreamSection(ctx, s, t, cfg)
	}
	return nil, fmt.Errorf("no xref at offset %d", offset)
}

func readClassic(s *scanner.Scanner, t *Table) (*raw.DictObj, error) {
	for {
		tok, err := s.Next()
		if err != nil {
			return nil, fmt.Errorf("xref table: %w", err)
		}
		if tok.Keyword() == "trailer" {
			obj, err := s.ReadObject()
			if err != nil {
				return nil, fmt.Errorf("trailer: %w", err)
			}
			trailer, ok := obj.(*raw.DictObj)
			if !ok {
				return nil, errors.New("trailer is not a dictionary")
			}
			return trailer, nil
		}
		first, ok1 := tok.Int()
		countTok, err := s.Next()
		if err != nil {
			return nil, fmt.Errorf("xref subsection: %w", err)
		}
		count, ok2 := countTok.Int()
		if !ok1 || !ok2 || count < 0 {
			return nil, fmt.Errorf("invalid xref subsection header at %d", tok.Pos)
		}
		if err := readClassicEntries(s, t, int(first), int(count)); err != nil {
			return nil, err
		}
	}
}

func readClassicEntries(s *scanner.Scanner, t *Table, first, count int) error {
	data := s.Data()
	pos := s.Position()
	for i := 0; i < count; i++ {
		for pos < int64(len(data)) && scanner.IsWhitespace(data[pos]) {
			pos++
		}
		// nnnnnnnnnn ggggg n
		fields := make([][]byte, 0, 3)
		for len(fields) < 3 && pos < int64(len(data)) {
			for pos < int64(len(data)) && (data[pos] == ' ' || data[pos] == '\t') {
				pos++
			}
			st := pos
			for pos < int64(len(data)) && !scanner.IsWhitespace(data[pos]) {
				pos++
			}
			if st == pos {
				break
			}
			fields = append(fields, data[st:pos])
		}
		if len(fields) != 3 {
			return fmt.Errorf("invalid xref entry %d", first+i)
		}
		off, err1 := strconv.ParseInt(string(fields[0]), 10, 64)
		gen, err2 := strconv.Atoi(string(fields[1]))
		if err1 != nil || err2 != nil {
			return fmt.Errorf("invalid xref entry %d", first+i)
		}
		num := first + i
		switch fields[2][0] {
		case 'n':
			t.addIfAbsent(num, Entry{Kind: EntryInUse, Offset: off, Gen: gen})
		case 'f':
			t.addIfAbsent(num, Entry{Kind: EntryFree, Gen: gen})
		default:
			return fmt.Errorf("invalid xref entry type %q", fields[2])
		}
	}
	return s.Seek(pos)
}

func readStreamSection(ctx context.Context, s *scanner.Scanner, t *Table, cfg Config) (*raw.DictObj, error) {
	if tok, err := s.Next(); err != nil || tok.Type != scanner.TokenNumber {
		return nil, errors.New("xref stream: bad object header")
	}
	if tok, err := s.Next(); err != nil || tok.Keyword() != "obj" {
		return nil, errors.New("xref stream: bad object header")
	}
	obj, err := s.ReadObject()
	if err != nil {
		return nil, fmt.Errorf("xref stream: %w", err)
	}
	dict, ok := obj.(*raw.DictObj)
	if !ok || dict.NameValue("Type") != "XRef" {
		return nil, errors.New("xref stream: not an XRef dictionary")
	}
	if tok, err := s.Next(); err != nil || tok.Keyword() != "stream" {
		return nil, errors.New("xref stream: missing stream keyword")
	}
	length := int64(-1)
	if n, ok := intEntry(dict, "Length"); ok {
		length = n
	}
	payload, err := s.StreamData(length)
	if err != nil {
		return nil, fmt.Errorf("xref stream: %w", err)
	}
	if cfg.Decode == nil {
		return nil, errors.New("xref stream: no decoder configured")
	}
	decoded, err := cfg.Decode(ctx, raw.NewStream(dict, payload))
	if err != nil {
		return nil, fmt.Errorf("xref stream: %w", err)
	}
	if err := parseStreamEntries(dict, decoded, t); err != nil {
		return nil, err
	}
	return dict, nil
}

func parseStreamEntries(dict *raw.DictObj, data []byte, t *Table) error {
	wObj, _ := dict.Get("W")
	w, ok := raw.Numbers(wObj)
	if !ok || len(w) != 3 {
		return pdferr.Errorf(pdferr.KindCorruptStructure, "xref stream", "invalid /W")
	}
	widths := [3]int{int(w[0]), int(w[1]), int(w[2])}
	rowLen := 0
	for _, x := range widths {
		if x < 0 || x > 8 {
			return pdferr.Errorf(pdferr.KindCorruptStructure, "xref stream", "invalid /W width %d", x)
		}
		rowLen += x
	}
	if rowLen == 0 {
		return pdferr.Errorf(pdferr.KindCorruptStructure, "xref stream", "empty /W")
	}
	size, _ := intEntry(dict, "Size")
	index := []float64{0, float64(size)}
	if idxObj, ok := dict.Get("Index"); ok {
		if v, ok := raw.Numbers(idxObj); ok && len(v)%2 == 0 {
			index = v
		}
	}
	pos := 0
	for i := 0; i+1 < len(index); i += 2 {
		first, count := int(index[i]), int(index[i+1])
		for j := 0; j < count; j++ {
			if pos+rowLen > len(data) {
				return nil
			}
			row := data[pos : pos+rowLen]
			pos += rowLen
			typ := int64(1)
			if widths[0] > 0 {
				typ = readField(row[:widths[0]])
			}
			f2 := readField(row[widths[0] : widths[0]+widths[1]])
			f3 := readField(row[widths[0]+widths[1]:])
			num := first + j
			switch typ {
			case 0:
				t.addIfAbsent(num, Entry{Kind: EntryFree})
			case 1:
				t.addIfAbsent(num, Entry{Kind: EntryInUse, Offset: f2, Gen: int(f3)})
			case 2:
				t.addIfAbsent(num, Entry{Kind: EntryCompressed, Stream: int(f2), Index: int(f3)})
			}
		}
	}
	return nil
}

func readField(b []byte) int64 {
	var v int64
	for _, c := range b {
		v = v<<8 | int64(c)
	}
	return v
}

// Validate reports whether every in-use entry points at a matching
// "N G obj" header. A single bad offset invalidates the table.
func Validate(data []byte, t *Table) bool {
	for num, e := range t.Entries {
		if e.Kind != EntryInUse || num == 0 {
			continue
		}
		if !headerAt(data, e.Offset, num) {
			return false
		}
	}
	return true
}

func headerAt(data []byte, off int64, num int) bool {
	if off < 0 || off >= int64(len(data)) {
		return false
	}
	s := scanner.New(data, scanner.Config{})
	if s.Seek(off) != nil {
		return false
	}
	tok, err := s.Next()
	if err != nil {
		return false
	}
	n, ok := tok.Int()
	if !ok || int(n) != num {
		return false
	}
	if tok, err = s.Next(); err != nil || tok.Type != scanner.TokenNumber {
		return false
	}
	tok, err = s.Next()
	return err == nil && tok.Keyword() == "obj"
}
