package parser

import (
	"context"
	"fmt"
	"sort"
	"sync"

	"github.com/wudi/pdf2html/filters"
	"github.com/wudi/pdf2html/ir/raw"
	"github.com/wudi/pdf2html/pdferr"
	"github.com/wudi/pdf2html/recovery"
	"github.com/wudi/pdf2html/scanner"
	"github.com/wudi/pdf2html/security"
	"github.com/wudi/pdf2html/xref"
)

// objectLoader resolves indirect objects straight out of the file buffer.
// Each load uses its own scanner, so concurrent loads only contend on the
// object stream cache.
type objectLoader struct {
	data       []byte
	table      *xref.Table
	security   security.Handler
	encryptRef raw.ObjectRef
	pipeline   *filters.Pipeline
	limits     security.Limits
	recovery   recovery.Strategy
	ctx        context.Context

	mu     sync.Mutex
	objstm map[int]*objectStream
}

// objectStream is a decoded /ObjStm container.
type objectStream struct {
	nums    []int
	offsets []int
	body    []byte
	err     error
	once    sync.Once
}

func (o *objectLoader) Refs() []raw.ObjectRef {
	nums := o.table.Objects()
	refs := make([]raw.ObjectRef, 0, len(nums))
	for _, n := range nums {
		if n == 0 {
			continue
		}
		e := o.table.Entries[n]
		refs = append(refs, raw.ObjectRef{Num: n, Gen: e.Gen})
	}
	return refs
}

func (o *objectLoader) Load(ref raw.ObjectRef) (raw.Object, error) {
	e, ok := o.table.Lookup(ref.Num)
	if !ok {
		return nil, pdferr.Errorf(pdferr.KindCorruptStructure, "load "+ref.String(), "object not in cross-reference table")
	}
	switch e.Kind {
	case xref.EntryCompressed:
		return o.loadCompressed(ref.Num, e)
	default:
		obj, err := o.loadAt(ref.Num, e, true)
		if err != nil {
			return nil, err
		}
		return o.decrypt(raw.ObjectRef{Num: ref.Num, Gen: e.Gen}, obj)
	}
}

func (o *objectLoader) scannerConfig() scanner.Config {
	return scanner.Config{
		MaxStringLength: o.limits.MaxStringLength,
		MaxNesting:      o.limits.MaxNesting,
		Recovery:        o.recovery,
		Context:         o.ctx,
	}
}

// loadAt parses "N G obj" at the entry's offset. Stream lengths given as
// references are only followed when followLength is set, which keeps a
// /Length that points back at its own stream from recursing.
func (o *objectLoader) loadAt(num int, e xref.Entry, followLength bool) (raw.Object, error) {
	op := fmt.Sprintf("load object %d", num)
	s := scanner.New(o.data, o.scannerConfig())
	if err := s.Seek(e.Offset); err != nil {
		return nil, pdferr.New(pdferr.KindCorruptStructure, op, err)
	}
	numTok, err := s.Next()
	if err != nil {
		return nil, pdferr.New(pdferr.KindCorruptStructure, op, err)
	}
	if n, ok := numTok.Int(); !ok || int(n) != num {
		return nil, pdferr.Errorf(pdferr.KindCorruptStructure, op, "header does not match object number")
	}
	if tok, err := s.Next(); err != nil || tok.Type != scanner.TokenNumber {
		return nil, pdferr.Errorf(pdferr.KindCorruptStructure, op, "missing generation")
	}
	if tok, err := s.Next(); err != nil || tok.Keyword() != "obj" {
		return nil, pdferr.Errorf(pdferr.KindCorruptStructure, op, "missing obj keyword")
	}
	obj, err := s.ReadObject()
	if err != nil {
		return nil, pdferr.New(pdferr.KindCorruptStructure, op, err)
	}
	dict, ok := obj.(*raw.DictObj)
	if !ok {
		return obj, nil
	}
	tok, err := s.Next()
	if err != nil || tok.Keyword() != "stream" {
		return dict, nil
	}
	length := o.streamLength(num, dict, followLength)
	payload, err := s.StreamData(length)
	if err != nil {
		return nil, pdferr.New(pdferr.KindCorruptStructure, op, err)
	}
	return &raw.StreamObj{Dict: dict, Data: payload, Ref: raw.ObjectRef{Num: num, Gen: e.Gen}}, nil
}

func (o *objectLoader) streamLength(num int, dict *raw.DictObj, follow bool) int64 {
	v, ok := dict.Get("Length")
	if !ok {
		return -1
	}
	if ref, isRef := v.(raw.RefObj); isRef {
		if !follow || ref.R.Num == num {
			return -1
		}
		e, ok := o.table.Lookup(ref.R.Num)
		if !ok || e.Kind != xref.EntryInUse {
			return -1
		}
		obj, err := o.loadAt(ref.R.Num, e, false)
		if err != nil {
			return -1
		}
		v = obj
	}
	if n, ok := v.(raw.NumberObj); ok && n.Int() >= 0 {
		return n.Int()
	}
	return -1
}

func (o *objectLoader) container(num int) (*objectStream, error) {
	o.mu.Lock()
	if o.objstm == nil {
		o.objstm = make(map[int]*objectStream)
	}
	c, ok := o.objstm[num]
	if !ok {
		c = &objectStream{}
		o.objstm[num] = c
	}
	o.mu.Unlock()
	c.once.Do(func() { c.err = o.readContainer(num, c) })
	return c, c.err
}

func (o *objectLoader) readContainer(num int, c *objectStream) error {
	op := fmt.Sprintf("object stream %d", num)
	e, ok := o.table.Lookup(num)
	if !ok || e.Kind != xref.EntryInUse {
		return pdferr.Errorf(pdferr.KindCorruptStructure, op, "container not found")
	}
	obj, err := o.loadAt(num, e, true)
	if err != nil {
		return err
	}
	obj, err = o.decrypt(raw.ObjectRef{Num: num, Gen: e.Gen}, obj)
	if err != nil {
		return err
	}
	st, ok := obj.(*raw.StreamObj)
	if !ok {
		return pdferr.Errorf(pdferr.KindCorruptStructure, op, "container is not a stream")
	}
	data, err := o.Decode(o.ctx, st)
	if err != nil {
		return err
	}
	n := intValue(st.Dict, "N")
	first := intValue(st.Dict, "First")
	if n < 0 || n > o.limits.MaxObjectStreamSize {
		return pdferr.Errorf(pdferr.KindCorruptStructure, op, "invalid /N %d", n)
	}
	if first < 0 || first > len(data) {
		return pdferr.Errorf(pdferr.KindCorruptStructure, op, "invalid /First %d", first)
	}
	s := scanner.New(data[:first], scanner.Config{ContentStream: true})
	for i := 0; i < n; i++ {
		numTok, err1 := s.Next()
		offTok, err2 := s.Next()
		if err1 != nil || err2 != nil {
			break
		}
		objNum, ok1 := numTok.Int()
		off, ok2 := offTok.Int()
		if !ok1 || !ok2 || off < 0 || int(off) > len(data)-first {
			break
		}
		c.nums = append(c.nums, int(objNum))
		c.offsets = append(c.offsets, int(off))
	}
	c.body = data[first:]
	return nil
}

func (o *objectLoader) loadCompressed(num int, e xref.Entry) (raw.Object, error) {
	c, err := o.container(e.Stream)
	if err != nil {
		return nil, err
	}
	idx := e.Index
	if idx < 0 || idx >= len(c.nums) || c.nums[idx] != num {
		idx = -1
		for i, n := range c.nums {
			if n == num {
				idx = i
				break
			}
		}
	}
	if idx < 0 {
		return nil, pdferr.Errorf(pdferr.KindCorruptStructure, fmt.Sprintf("load object %d", num), "not found in object stream %d", e.Stream)
	}
	s := scanner.New(c.body, o.scannerConfig())
	if err := s.Seek(int64(c.offsets[idx])); err != nil {
		return nil, pdferr.New(pdferr.KindCorruptStructure, "object stream", err)
	}
	obj, err := s.ReadObject()
	if err != nil {
		return nil, pdferr.New(pdferr.KindCorruptStructure, fmt.Sprintf("load object %d", num), err)
	}
	// strings inside object streams were decrypted with the container
	return obj, nil
}

// Decode runs the stream's filter chain. Decoding stops before an image
// codec such as DCTDecode, leaving that layer for the image decoder.
func (o *objectLoader) Decode(ctx context.Context, s *raw.StreamObj) ([]byte, error) {
	if ctx == nil {
		ctx = o.ctx
	}
	names, params := filters.ExtractFilters(s.Dict, o.resolveDirect)
	data, _, err := o.pipeline.Decode(ctx, s.Data, names, params)
	if err != nil {
		return nil, err
	}
	return data, nil
}

func (o *objectLoader) resolveDirect(obj raw.Object) raw.Object {
	for i := 0; i < raw.MaxReferenceChain; i++ {
		ref, ok := obj.(raw.RefObj)
		if !ok {
			return obj
		}
		next, err := o.Load(ref.R)
		if err != nil {
			return raw.NullObj{}
		}
		obj = next
	}
	return raw.NullObj{}
}

func (o *objectLoader) decrypt(ref raw.ObjectRef, obj raw.Object) (raw.Object, error) {
	if o.security == nil || ref == o.encryptRef {
		return obj, nil
	}
	switch v := obj.(type) {
	case raw.StringObj:
		dec, err := o.security.Decrypt(ref, v.Bytes, security.DataClassString, "")
		if err != nil {
			return nil, err
		}
		return raw.StringObj{Bytes: dec, Hex: v.Hex}, nil
	case *raw.ArrayObj:
		for i, item := range v.Items {
			dec, err := o.decrypt(ref, item)
			if err != nil {
				return nil, err
			}
			v.Items[i] = dec
		}
		return v, nil
	case *raw.DictObj:
		for _, key := range v.Keys() {
			item, _ := v.Get(key)
			dec, err := o.decrypt(ref, item)
			if err != nil {
				return nil, err
			}
			v.Set(key, dec)
		}
		return v, nil
	case *raw.StreamObj:
		if _, err := o.decrypt(ref, v.Dict); err != nil {
			return nil, err
		}
		switch v.Dict.NameValue("Type") {
		case "XRef":
			return v, nil
		case "Metadata":
			if !o.security.EncryptMetadata() {
				return v, nil
			}
		}
		cf, hasCrypt := cryptFilter(v.Dict)
		if hasCrypt && cf == "Identity" {
			return v, nil
		}
		dec, err := o.security.Decrypt(ref, v.Data, security.DataClassStream, cf)
		if err != nil {
			return nil, err
		}
		v.Data = dec
		return v, nil
	}
	return obj, nil
}

// cryptFilter returns the /Name parameter of a /Crypt filter entry.
func cryptFilter(d *raw.DictObj) (string, bool) {
	names, params := filters.ExtractFilters(d, nil)
	for i, n := range names {
		if n != "Crypt" {
			continue
		}
		if params[i] != nil {
			if name := params[i].NameValue("Name"); name != "" {
				return name, true
			}
		}
		return "Identity", true
	}
	return "", false
}

func intValue(d *raw.DictObj, key string) int {
	v, ok := d.Get(key)
	if !ok {
		return -1
	}
	n, ok := v.(raw.NumberObj)
	if !ok {
		return -1
	}
	return int(n.Int())
}

// registerObjectStreams adds entries for objects packed in object streams
// that a repair scan cannot see directly.
func (o *objectLoader) registerObjectStreams() {
	var containers []int
	for _, num := range o.table.Objects() {
		e := o.table.Entries[num]
		if e.Kind != xref.EntryInUse {
			continue
		}
		obj, err := o.loadAt(num, e, true)
		if err != nil {
			continue
		}
		if st, ok := obj.(*raw.StreamObj); ok && st.Dict.NameValue("Type") == "ObjStm" {
			containers = append(containers, num)
		}
	}
	sort.Ints(containers)
	for _, num := range containers {
		c, err := o.container(num)
		if err != nil {
			continue
		}
		for i, n := range c.nums {
			if _, exists := o.table.Entries[n]; !exists {
				o.table.Entries[n] = xref.Entry{Kind: xref.EntryCompressed, Stream: num, Index: i}
			}
		}
	}
}
