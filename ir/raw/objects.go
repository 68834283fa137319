package raw

import (
	"sort"
	"strings"
)

// NameObj is a PDF name without the leading slash.
type NameObj struct{ Val string }

func (n NameObj) Type() string   { return TypeName }
func (n NameObj) String() string { return "/" + n.Val }

// NumberObj is an integer or real number.
type NumberObj struct {
	I     int64
	F     float64
	IsInt bool
}

func (n NumberObj) Type() string { return TypeNumber }
func (n NumberObj) Int() int64 {
	if n.IsInt {
		return n.I
	}
	return int64(n.F)
}
func (n NumberObj) Float() float64 {
	if n.IsInt {
		return float64(n.I)
	}
	return n.F
}

type BoolObj struct{ V bool }

func (b BoolObj) Type() string { return TypeBool }

type NullObj struct{}

func (NullObj) Type() string { return TypeNull }

// StringObj holds the decoded bytes of a literal or hex string.
type StringObj struct {
	Bytes []byte
	Hex   bool
}

func (s StringObj) Type() string { return TypeString }

type ArrayObj struct{ Items []Object }

func (a *ArrayObj) Type() string { return TypeArray }
func (a *ArrayObj) Len() int     { return len(a.Items) }
func (a *ArrayObj) Get(i int) (Object, bool) {
	if a == nil || i < 0 || i >= len(a.Items) {
		return nil, false
	}
	return a.Items[i], true
}

type DictObj struct{ KV map[string]Object }

func (d *DictObj) Type() string { return TypeDict }

func (d *DictObj) Get(key string) (Object, bool) {
	if d == nil {
		return nil, false
	}
	o, ok := d.KV[key]
	return o, ok
}

func (d *DictObj) Set(key string, value Object) {
	if d.KV == nil {
		d.KV = make(map[string]Object)
	}
	d.KV[key] = value
}

func (d *DictObj) Len() int {
	if d == nil {
		return 0
	}
	return len(d.KV)
}

// Keys returns the dictionary keys in sorted order.
func (d *DictObj) Keys() []string {
	if d == nil {
		return nil
	}
	keys := make([]string, 0, len(d.KV))
	for k := range d.KV {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

// NameValue returns the name stored under key, without resolving references.
func (d *DictObj) NameValue(key string) string {
	o, _ := d.Get(key)
	n, _ := o.(NameObj)
	return n.Val
}

// StreamObj is a stream dictionary plus its still-encoded payload. Ref is
// the indirect object that owns the stream; it keys decryption and the
// decode memo.
type StreamObj struct {
	Dict *DictObj
	Data []byte
	Ref  ObjectRef
}

func (s *StreamObj) Type() string { return TypeStream }

// Filters lists the stream's filter names in application order.
func (s *StreamObj) Filters() []string {
	o, ok := s.Dict.Get("Filter")
	if !ok {
		return nil
	}
	switch v := o.(type) {
	case NameObj:
		return []string{v.Val}
	case *ArrayObj:
		out := make([]string, 0, len(v.Items))
		for _, it := range v.Items {
			if n, ok := it.(NameObj); ok {
				out = append(out, n.Val)
			}
		}
		return out
	}
	return nil
}

type RefObj struct{ R ObjectRef }

func (r RefObj) Type() string { return TypeRef }

// Helpers
func Name(v string) NameObj                     { return NameObj{Val: v} }
func Int(i int64) NumberObj                     { return NumberObj{I: i, IsInt: true} }
func Real(f float64) NumberObj                  { return NumberObj{F: f} }
func Bool(v bool) BoolObj                       { return BoolObj{V: v} }
func Str(b []byte) StringObj                    { return StringObj{Bytes: b} }
func NewArray(items ...Object) *ArrayObj        { return &ArrayObj{Items: items} }
func Dict() *DictObj                            { return &DictObj{KV: make(map[string]Object)} }
func Ref(num, gen int) RefObj                   { return RefObj{R: ObjectRef{Num: num, Gen: gen}} }
func NewStream(d *DictObj, b []byte) *StreamObj { return &StreamObj{Dict: d, Data: b} }

// Number extracts a numeric value from a direct object.
func Number(o Object) (float64, bool) {
	n, ok := o.(NumberObj)
	if !ok {
		return 0, false
	}
	return n.Float(), true
}

// Numbers extracts all numbers from a direct array. It fails if any item
// is not a number.
func Numbers(o Object) ([]float64, bool) {
	arr, ok := o.(*ArrayObj)
	if !ok {
		return nil, false
	}
	out := make([]float64, len(arr.Items))
	for i, it := range arr.Items {
		v, ok := Number(it)
		if !ok {
			return nil, false
		}
		out[i] = v
	}
	return out, true
}

// Describe renders a short human readable form of o for diagnostics.
func Describe(o Object) string {
	switch v := o.(type) {
	case nil:
		return "<nil>"
	case NameObj:
		return v.String()
	case RefObj:
		return v.R.String()
	case *ArrayObj:
		parts := make([]string, 0, len(v.Items))
		for _, it := range v.Items {
			parts = append(parts, Describe(it))
		}
		return "[" + strings.Join(parts, " ") + "]"
	case *DictObj:
		return "<<" + strings.Join(v.Keys(), " ") + ">>"
	}
	return o.Type()
}
