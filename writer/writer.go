// Package writer builds PDF files in memory from raw objects. It is the
// fixture builder of the converter's tests and is not used by the
// conversion path. It produces classic or stream cross-reference
// sections and can pack objects into object streams.
package writer

import (
	"bytes"
	"encoding/hex"
	"fmt"
	"sort"
	"strconv"

	"github.com/klauspost/compress/zlib"

	"github.com/wudi/pdf2html/ir/raw"
)

type Config struct {
	Version string
	// Compress flate-encodes streams that have no /Filter yet.
	Compress bool
	// XRefStream writes a cross-reference stream instead of a table.
	XRefStream bool
	// ObjectStreams packs non-stream objects into one object stream;
	// implies XRefStream.
	ObjectStreams bool
}

// Writer accumulates numbered objects and renders them with Bytes.
type Writer struct {
	cfg     Config
	objects map[int]raw.Object
	next    int
	trailer *raw.DictObj
}

func New(cfg Config) *Writer {
	if cfg.Version == "" {
		cfg.Version = "1.7"
	}
	if cfg.ObjectStreams {
		cfg.XRefStream = true
	}
	return &Writer{cfg: cfg, objects: make(map[int]raw.Object), next: 1, trailer: raw.Dict()}
}

// Add stores obj under the next free number and returns its reference.
func (w *Writer) Add(obj raw.Object) raw.RefObj {
	ref := w.Reserve()
	w.Set(ref, obj)
	return ref
}

// Reserve allocates a number for an object supplied later with Set.
func (w *Writer) Reserve() raw.RefObj {
	ref := raw.Ref(w.next, 0)
	w.next++
	return ref
}

func (w *Writer) Set(ref raw.RefObj, obj raw.Object) { w.objects[ref.R.Num] = obj }

// SetTrailer adds key to the trailer dictionary. /Size and /Root are
// filled in by Bytes when missing.
func (w *Writer) SetTrailer(key string, v raw.Object) { w.trailer.Set(key, v) }

// Bytes renders the file. root is the catalog reference.
func (w *Writer) Bytes(root raw.RefObj) ([]byte, error) {
	var buf bytes.Buffer
	fmt.Fprintf(&buf, "%%PDF-%s\n%%\xe2\xe3\xcf\xd3\n", w.cfg.Version)

	nums := make([]int, 0, len(w.objects))
	for n := range w.objects {
		nums = append(nums, n)
	}
	sort.Ints(nums)

	type location struct {
		offset int64
		stream int
		index  int
	}
	locs := make(map[int]location, len(nums))

	var packed []int
	if w.cfg.ObjectStreams {
		for _, n := range nums {
			if _, isStream := w.objects[n].(*raw.StreamObj); !isStream {
				packed = append(packed, n)
			}
		}
	}
	isPacked := make(map[int]bool, len(packed))
	for _, n := range packed {
		isPacked[n] = true
	}

	for _, n := range nums {
		if isPacked[n] {
			continue
		}
		obj, err := w.prepare(w.objects[n])
		if err != nil {
			return nil, fmt.Errorf("object %d: %w", n, err)
		}
		locs[n] = location{offset: int64(buf.Len())}
		writeIndirect(&buf, n, obj)
	}

	size := w.next
	if len(packed) > 0 {
		container := size
		size++
		var header, body bytes.Buffer
		for i, n := range packed {
			fmt.Fprintf(&header, "%d %d ", n, body.Len())
			body.Write(Serialize(w.objects[n]))
			body.WriteByte('\n')
			locs[n] = location{stream: container, index: i}
		}
		d := raw.Dict()
		d.Set("Type", raw.Name("ObjStm"))
		d.Set("N", raw.Int(int64(len(packed))))
		d.Set("First", raw.Int(int64(header.Len())))
		st, err := w.prepare(raw.NewStream(d, append(header.Bytes(), body.Bytes()...)))
		if err != nil {
			return nil, err
		}
		locs[container] = location{offset: int64(buf.Len())}
		writeIndirect(&buf, container, st)
	}

	trailer := raw.Dict()
	for _, k := range w.trailer.Keys() {
		v, _ := w.trailer.Get(k)
		trailer.Set(k, v)
	}
	if _, ok := trailer.Get("Root"); !ok {
		trailer.Set("Root", root)
	}

	if !w.cfg.XRefStream {
		xrefAt := buf.Len()
		fmt.Fprintf(&buf, "xref\n0 %d\n0000000000 65535 f \n", size)
		for n := 1; n < size; n++ {
			if l, ok := locs[n]; ok {
				fmt.Fprintf(&buf, "%010d 00000 n \n", l.offset)
			} else {
				buf.WriteString("0000000000 65535 f \n")
			}
		}
		trailer.Set("Size", raw.Int(int64(size)))
		buf.WriteString("trailer\n")
		buf.Write(Serialize(trailer))
		fmt.Fprintf(&buf, "\nstartxref\n%d\n%%%%EOF\n", xrefAt)
		return buf.Bytes(), nil
	}

	xrefNum := size
	size++
	locs[xrefNum] = location{offset: int64(buf.Len())}
	var rows []byte
	for n := 0; n < size; n++ {
		l, ok := locs[n]
		switch {
		case !ok:
			rows = append(rows, 0, 0, 0, 0, 0, 0)
		case l.stream != 0:
			rows = append(rows, 2, byte(l.stream>>24), byte(l.stream>>16), byte(l.stream>>8), byte(l.stream), byte(l.index))
		default:
			o := uint32(l.offset)
			rows = append(rows, 1, byte(o>>24), byte(o>>16), byte(o>>8), byte(o), 0)
		}
	}
	trailer.Set("Type", raw.Name("XRef"))
	trailer.Set("Size", raw.Int(int64(size)))
	trailer.Set("W", raw.NewArray(raw.Int(1), raw.Int(4), raw.Int(1)))
	st, err := w.prepare(raw.NewStream(trailer, rows))
	if err != nil {
		return nil, err
	}
	xrefAt := locs[xrefNum].offset
	writeIndirect(&buf, xrefNum, st)
	fmt.Fprintf(&buf, "startxref\n%d\n%%%%EOF\n", xrefAt)
	return buf.Bytes(), nil
}

// prepare compresses unfiltered streams when configured and fixes /Length.
func (w *Writer) prepare(obj raw.Object) (raw.Object, error) {
	st, ok := obj.(*raw.StreamObj)
	if !ok {
		return obj, nil
	}
	d := raw.Dict()
	for _, k := range st.Dict.Keys() {
		v, _ := st.Dict.Get(k)
		d.Set(k, v)
	}
	data := st.Data
	if _, filtered := d.Get("Filter"); w.cfg.Compress && !filtered {
		enc, err := FlateEncode(data)
		if err != nil {
			return nil, err
		}
		data = enc
		d.Set("Filter", raw.Name("FlateDecode"))
	}
	d.Set("Length", raw.Int(int64(len(data))))
	return raw.NewStream(d, data), nil
}

func writeIndirect(buf *bytes.Buffer, num int, obj raw.Object) {
	fmt.Fprintf(buf, "%d 0 obj\n", num)
	buf.Write(Serialize(obj))
	buf.WriteString("\nendobj\n")
}

// FlateEncode compresses data as a zlib stream.
func FlateEncode(data []byte) ([]byte, error) {
	var buf bytes.Buffer
	zw := zlib.NewWriter(&buf)
	if _, err := zw.Write(data); err != nil {
		return nil, err
	}
	if err := zw.Close(); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

// Serialize renders one direct object in PDF syntax.
func Serialize(o raw.Object) []byte {
	var b bytes.Buffer
	serializeTo(&b, o)
	return b.Bytes()
}

func serializeTo(b *bytes.Buffer, o raw.Object) {
	switch v := o.(type) {
	case raw.NameObj:
		b.WriteString("/" + nameLiteral(v.Val))
	case raw.NumberObj:
		if v.IsInt {
			b.WriteString(strconv.FormatInt(v.I, 10))
		} else {
			b.WriteString(strconv.FormatFloat(v.F, 'f', -1, 64))
		}
	case raw.BoolObj:
		b.WriteString(strconv.FormatBool(v.V))
	case raw.StringObj:
		if v.Hex {
			b.WriteByte('<')
			b.WriteString(hex.EncodeToString(v.Bytes))
			b.WriteByte('>')
			return
		}
		b.Write(escapeLiteralString(v.Bytes))
	case *raw.ArrayObj:
		b.WriteByte('[')
		for i, it := range v.Items {
			if i > 0 {
				b.WriteByte(' ')
			}
			serializeTo(b, it)
		}
		b.WriteByte(']')
	case *raw.DictObj:
		b.WriteString("<<")
		for _, k := range v.Keys() {
			val, _ := v.Get(k)
			b.WriteString("/" + nameLiteral(k) + " ")
			serializeTo(b, val)
		}
		b.WriteString(">>")
	case *raw.StreamObj:
		serializeTo(b, v.Dict)
		b.WriteString("\nstream\n")
		b.Write(v.Data)
		b.WriteString("\nendstream")
	case raw.RefObj:
		fmt.Fprintf(b, "%d %d R", v.R.Num, v.R.Gen)
	default:
		b.WriteString("null")
	}
}

func escapeLiteralString(s []byte) []byte {
	out := make([]byte, 0, len(s)+2)
	out = append(out, '(')
	for _, c := range s {
		switch c {
		case '(', ')', '\\':
			out = append(out, '\\', c)
		case '\r':
			out = append(out, '\\', 'r')
		default:
			out = append(out, c)
		}
	}
	return append(out, ')')
}

func nameLiteral(value string) string {
	var b bytes.Buffer
	for i := 0; i < len(value); i++ {
		ch := value[i]
		if ch > ' ' && ch < 0x7f && ch != '#' && !isDelimiter(ch) {
			b.WriteByte(ch)
			continue
		}
		fmt.Fprintf(&b, "#%02X", ch)
	}
	return b.String()
}

func isDelimiter(c byte) bool {
	switch c {
	case '(', ')', '<', '>', '[', ']', '{', '}', '/', '%':
		return true
	}
	return false
}
