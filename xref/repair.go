package xref

import (
	"bytes"
	"context"

	"github.com/wudi/pdf2html/ir/raw"
	"github.com/wudi/pdf2html/pdferr"
	"github.com/wudi/pdf2html/scanner"
)

var (
	objKW     = []byte("obj")
	trailerKW = []byte("trailer")
)

// Repair rebuilds a table by scanning the whole file for "N G obj"
// headers. Later definitions of the same object win, as they would in an
// incrementally updated file. The trailer is the last "trailer"
// dictionary that names a /Root, or the dictionary of the last xref
// stream, or one synthesised around the first /Catalog object found.
func Repair(ctx context.Context, data []byte) (*Table, error) {
	t := newTable()
	t.Repaired = true
	var (
		trailer  *raw.DictObj
		xrefDict *raw.DictObj
	)
	for i := 0; i < len(data); {
		if i&0xffff == 0 {
			if err := ctx.Err(); err != nil {
				return nil, err
			}
		}
		switch {
		case bytes.HasPrefix(data[i:], objKW) && keywordBoundary(data, i, len(objKW)):
			if num, gen, start, ok := headerBefore(data, i); ok {
				t.Entries[num] = Entry{Kind: EntryInUse, Offset: start, Gen: gen}
				if d := peekDict(data, int64(i+len(objKW))); d != nil && d.NameValue("Type") == "XRef" {
					xrefDict = d
				}
			}
			i += len(objKW)
		case bytes.HasPrefix(data[i:], trailerKW) && keywordBoundary(data, i, len(trailerKW)):
			if d := peekDict(data, int64(i+len(trailerKW))); d != nil {
				if _, ok := d.Get("Root"); ok {
					trailer = d
				}
			}
			i += len(trailerKW)
		default:
			i++
		}
	}
	if len(t.Entries) == 0 {
		return nil, pdferr.Errorf(pdferr.KindCorruptStructure, "xref repair", "no objects found")
	}
	switch {
	case trailer != nil:
		t.Trailer = trailer
	case xrefDict != nil && hasKey(xrefDict, "Root"):
		t.Trailer = xrefDict
	default:
		root, ok := findCatalog(data, t)
		if !ok {
			return nil, pdferr.Errorf(pdferr.KindCorruptStructure, "xref repair", "no trailer and no catalog")
		}
		t.Trailer = raw.Dict()
		t.Trailer.Set("Root", raw.Ref(root.Num, root.Gen))
		if xrefDict != nil {
			if enc, ok := xrefDict.Get("Encrypt"); ok {
				t.Trailer.Set("Encrypt", enc)
			}
			if id, ok := xrefDict.Get("ID"); ok {
				t.Trailer.Set("ID", id)
			}
		}
	}
	return t, nil
}

func hasKey(d *raw.DictObj, k string) bool {
	_, ok := d.Get(k)
	return ok
}

func keywordBoundary(data []byte, i, n int) bool {
	if i > 0 && !scanner.IsWhitespace(data[i-1]) && !scanner.IsDelimiter(data[i-1]) {
		return false
	}
	return i+n == len(data) || scanner.IsWhitespace(data[i+n]) || scanner.IsDelimiter(data[i+n])
}

// headerBefore parses the "N G" preceding an obj keyword at i.
func headerBefore(data []byte, i int) (num, gen int, start int64, ok bool) {
	p := i - 1
	skipWS := func() {
		for p >= 0 && scanner.IsWhitespace(data[p]) {
			p--
		}
	}
	digits := func() (int, bool) {
		end := p
		for p >= 0 && data[p] >= '0' && data[p] <= '9' {
			p--
		}
		if p == end || end-p > 10 {
			return 0, false
		}
		v := 0
		for _, c := range data[p+1 : end+1] {
			v = v*10 + int(c-'0')
		}
		return v, true
	}
	skipWS()
	gen, ok = digits()
	if !ok || p < 0 || !scanner.IsWhitespace(data[p]) {
		return 0, 0, 0, false
	}
	skipWS()
	num, ok = digits()
	if !ok || num <= 0 {
		return 0, 0, 0, false
	}
	if p >= 0 && !scanner.IsWhitespace(data[p]) && !scanner.IsDelimiter(data[p]) {
		return 0, 0, 0, false
	}
	return num, gen, int64(p + 1), true
}

func peekDict(data []byte, off int64) *raw.DictObj {
	s := scanner.New(data, scanner.Config{})
	if s.Seek(off) != nil {
		return nil
	}
	tok, err := s.Next()
	if err != nil || tok.Type != scanner.TokenDict {
		return nil
	}
	s.Unread(tok)
	obj, err := s.ReadObject()
	if err != nil {
		return nil
	}
	d, _ := obj.(*raw.DictObj)
	return d
}

func findCatalog(data []byte, t *Table) (raw.ObjectRef, bool) {
	for _, num := range t.Objects() {
		e := t.Entries[num]
		s := scanner.New(data, scanner.Config{})
		if s.Seek(e.Offset) != nil {
			continue
		}
		// skip "N G obj"
		ok := true
		for k := 0; k < 3 && ok; k++ {
			_, err := s.Next()
			ok = err == nil
		}
		if !ok {
			continue
		}
		if d := peekDict(data, s.Position()); d != nil && d.NameValue("Type") == "Catalog" {
			return raw.ObjectRef{Num: num, Gen: e.Gen}, true
		}
	}
	return raw.ObjectRef{}, false
}
