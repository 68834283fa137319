package raw

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"

	"github.com/wudi/pdf2html/pdferr"
)

// MaxReferenceChain bounds how many references Resolve will follow.
const MaxReferenceChain = 32

// Loader loads indirect objects and decodes stream payloads on demand.
type Loader interface {
	Load(ref ObjectRef) (Object, error)
	Decode(ctx context.Context, s *StreamObj) ([]byte, error)
	Refs() []ObjectRef
}

// Document owns the cross-reference table and trailer of a parsed file.
// Its logical content is immutable after parse; the object and decode
// memos are filled lazily and are safe for concurrent use.
type Document struct {
	Version   string
	Trailer   *DictObj
	Encrypted bool
	// Repaired is set when the cross-reference table had to be rebuilt
	// from a linear scan.
	Repaired bool

	loader  Loader
	mu      sync.Mutex
	objects map[ObjectRef]Object
	decoded map[*StreamObj]*decodeMemo
	// decodedBytes totals the payload of every stream decoded so far.
	decodedBytes atomic.Int64
}

type decodeMemo struct {
	once sync.Once
	data []byte
	err  error
}

func NewDocument(version string, trailer *DictObj, loader Loader) *Document {
	return &Document{
		Version: version,
		Trailer: trailer,
		loader:  loader,
		objects: make(map[ObjectRef]Object),
		decoded: make(map[*StreamObj]*decodeMemo),
	}
}

// DecodedBytes reports the total size of the streams decoded so far.
// A memoized stream counts once.
func (d *Document) DecodedBytes() int64 { return d.decodedBytes.Load() }

// ObjectCount reports how many object ids the cross-reference table knows.
func (d *Document) ObjectCount() int {
	if d.loader == nil {
		return 0
	}
	return len(d.loader.Refs())
}

// Refs lists every in-use object id in ascending order.
func (d *Document) Refs() []ObjectRef {
	if d.loader == nil {
		return nil
	}
	return d.loader.Refs()
}

// Object loads the indirect object ref, memoizing the result.
func (d *Document) Object(ref ObjectRef) (Object, error) {
	d.mu.Lock()
	if o, ok := d.objects[ref]; ok {
		d.mu.Unlock()
		return o, nil
	}
	d.mu.Unlock()
	if d.loader == nil {
		return nil, pdferr.Errorf(pdferr.KindCorruptStructure, "resolve "+ref.String(), "no loader")
	}
	o, err := d.loader.Load(ref)
	if err != nil {
		if pdferr.KindOf(err) == pdferr.KindUnknown {
			err = pdferr.New(pdferr.KindCorruptStructure, "resolve "+ref.String(), err)
		}
		return nil, err
	}
	d.mu.Lock()
	if prev, ok := d.objects[ref]; ok {
		o = prev
	} else {
		d.objects[ref] = o
	}
	d.mu.Unlock()
	return o, nil
}

// Resolve follows references until a direct object is reached. A
// dangling reference is an error, never null.
func (d *Document) Resolve(o Object) (Object, error) {
	for i := 0; i < MaxReferenceChain; i++ {
		ref, ok := o.(RefObj)
		if !ok {
			return o, nil
		}
		next, err := d.Object(ref.R)
		if err != nil {
			return nil, err
		}
		o = next
	}
	return nil, pdferr.Errorf(pdferr.KindCorruptStructure, "resolve", "reference chain longer than %d", MaxReferenceChain)
}

// Lookup resolves dict[key]. A missing key yields (nil, nil).
func (d *Document) Lookup(dict *DictObj, key string) (Object, error) {
	o, ok := dict.Get(key)
	if !ok {
		return nil, nil
	}
	return d.Resolve(o)
}

func isAbsent(o Object) bool {
	if o == nil {
		return true
	}
	_, null := o.(NullObj)
	return null
}

func typeError(want string, o Object) error {
	return pdferr.Errorf(pdferr.KindCorruptStructure, "resolve", "expected %s, got %s", want, o.Type())
}

// Dict resolves o as a dictionary; a stream yields its dictionary. Absent
// objects yield (nil, nil).
func (d *Document) Dict(o Object) (*DictObj, error) {
	o, err := d.Resolve(o)
	if err != nil || isAbsent(o) {
		return nil, err
	}
	switch v := o.(type) {
	case *DictObj:
		return v, nil
	case *StreamObj:
		return v.Dict, nil
	}
	return nil, typeError(TypeDict, o)
}

// Array resolves o as an array. Absent objects yield (nil, nil).
func (d *Document) Array(o Object) (*ArrayObj, error) {
	o, err := d.Resolve(o)
	if err != nil || isAbsent(o) {
		return nil, err
	}
	if a, ok := o.(*ArrayObj); ok {
		return a, nil
	}
	return nil, typeError(TypeArray, o)
}

// Stream resolves o as a stream. Absent objects yield (nil, nil).
func (d *Document) Stream(o Object) (*StreamObj, error) {
	o, err := d.Resolve(o)
	if err != nil || isAbsent(o) {
		return nil, err
	}
	if s, ok := o.(*StreamObj); ok {
		return s, nil
	}
	return nil, typeError(TypeStream, o)
}

// Number resolves o as a number; ok is false when absent or mistyped.
func (d *Document) Number(o Object) (float64, bool) {
	o, err := d.Resolve(o)
	if err != nil {
		return 0, false
	}
	return Number(o)
}

// Numbers resolves o as an array of numbers, resolving each element.
func (d *Document) Numbers(o Object) ([]float64, bool) {
	arr, err := d.Array(o)
	if err != nil || arr == nil {
		return nil, false
	}
	out := make([]float64, len(arr.Items))
	for i, it := range arr.Items {
		v, ok := d.Number(it)
		if !ok {
			return nil, false
		}
		out[i] = v
	}
	return out, true
}

// Name resolves o as a name; the empty string means absent or mistyped.
func (d *Document) Name(o Object) string {
	o, err := d.Resolve(o)
	if err != nil {
		return ""
	}
	n, _ := o.(NameObj)
	return n.Val
}

// String resolves o as a string.
func (d *Document) String(o Object) ([]byte, bool) {
	o, err := d.Resolve(o)
	if err != nil {
		return nil, false
	}
	s, ok := o.(StringObj)
	return s.Bytes, ok
}

// Catalog returns the document catalog named by the trailer's /Root.
func (d *Document) Catalog() (*DictObj, error) {
	root, ok := d.Trailer.Get("Root")
	if !ok {
		return nil, pdferr.Errorf(pdferr.KindCorruptStructure, "catalog", "trailer has no /Root")
	}
	cat, err := d.Dict(root)
	if err != nil {
		return nil, fmt.Errorf("catalog: %w", err)
	}
	if cat == nil {
		return nil, pdferr.Errorf(pdferr.KindCorruptStructure, "catalog", "/Root is null")
	}
	return cat, nil
}

// DecodeStream returns the fully decoded payload of s, decoding at most
// once per stream.
func (d *Document) DecodeStream(ctx context.Context, s *StreamObj) ([]byte, error) {
	if s == nil {
		return nil, nil
	}
	d.mu.Lock()
	m, ok := d.decoded[s]
	if !ok {
		m = &decodeMemo{}
		d.decoded[s] = m
	}
	d.mu.Unlock()
	m.once.Do(func() {
		if d.loader == nil {
			m.data = s.Data
			return
		}
		m.data, m.err = d.loader.Decode(ctx, s)
		d.decodedBytes.Add(int64(len(m.data)))
	})
	return m.data, m.err
}
