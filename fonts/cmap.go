package fonts

import (
	"errors"
	"io"
	"unicode/utf8"

	"golang.org/x/text/encoding/unicode"

	"github.com/wudi/pdf2html/ir/raw"
	"github.com/wudi/pdf2html/scanner"
)

// CMap maps character codes to Unicode text (ToUnicode) or to CIDs
// (embedded encoding CMaps). Codes are split according to the codespace
// ranges, so multi-byte and mixed-width encodings are supported.
type CMap struct {
	Name      string
	codespace []codeRange
	text      map[charCode]string
	textRange []textRange
	cid       map[charCode]int
	cidRange  []cidRange
	// identity marks Identity-H/V: two-byte codes equal to CIDs.
	identity bool
}

type charCode struct {
	code uint32
	n    int
}

type codeRange struct {
	lo, hi []byte
}

type textRange struct {
	lo, hi uint32
	n      int
	// base is the text for lo; later codes increment its last rune.
	base string
	// list holds one entry per code when the range maps to an array.
	list []string
}

type cidRange struct {
	lo, hi uint32
	n      int
	cid    int
}

func newCMap() *CMap {
	return &CMap{text: make(map[charCode]string), cid: make(map[charCode]int)}
}

// IdentityCMap returns the predefined Identity-H/V encoding.
func IdentityCMap(name string) *CMap {
	m := newCMap()
	m.Name = name
	m.identity = true
	m.codespace = []codeRange{{lo: []byte{0, 0}, hi: []byte{0xff, 0xff}}}
	return m
}

var utf16be = unicode.UTF16(unicode.BigEndian, unicode.IgnoreBOM)

// decodeUTF16 decodes a ToUnicode destination string.
func decodeUTF16(b []byte) string {
	if len(b)%2 == 1 {
		return string(b)
	}
	s, err := utf16be.NewDecoder().Bytes(b)
	if err != nil {
		return ""
	}
	return string(s)
}

func bytesToCode(b []byte) uint32 {
	var v uint32
	for _, c := range b {
		v = v<<8 | uint32(c)
	}
	return v
}

// ParseCMap reads a CMap program. Unknown operators are ignored and
// parsing stops quietly at the first token error, keeping what was read.
func ParseCMap(data []byte) (*CMap, error) {
	m := newCMap()
	s := scanner.New(data, scanner.Config{ContentStream: true})
	var operands []raw.Object
	for {
		tok, err := s.Next()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			break
		}
		if tok.Type != scanner.TokenKeyword {
			obj, err := s.ObjectFrom(tok)
			if err != nil {
				operands = operands[:0]
				continue
			}
			operands = append(operands, obj)
			continue
		}
		switch tok.Keyword() {
		case "def":
			if len(operands) == 2 {
				if key, ok := operands[0].(raw.NameObj); ok && key.Val == "CMapName" {
					if v, ok := operands[1].(raw.NameObj); ok {
						m.Name = v.Val
					}
				}
			}
		case "endcodespacerange":
			for i := 0; i+1 < len(operands); i += 2 {
				lo, ok1 := operands[i].(raw.StringObj)
				hi, ok2 := operands[i+1].(raw.StringObj)
				if ok1 && ok2 && len(lo.Bytes) == len(hi.Bytes) && len(lo.Bytes) > 0 && len(lo.Bytes) <= 4 {
					m.codespace = append(m.codespace, codeRange{lo: lo.Bytes, hi: hi.Bytes})
				}
			}
		case "endbfchar":
			for i := 0; i+1 < len(operands); i += 2 {
				src, ok := operands[i].(raw.StringObj)
				if !ok || len(src.Bytes) == 0 || len(src.Bytes) > 4 {
					continue
				}
				key := charCode{bytesToCode(src.Bytes), len(src.Bytes)}
				switch dst := operands[i+1].(type) {
				case raw.StringObj:
					m.text[key] = decodeUTF16(dst.Bytes)
				case raw.NameObj:
					if r, ok := runesForGlyphName(dst.Val); ok {
						m.text[key] = r
					}
				}
			}
		case "endbfrange":
			for i := 0; i+2 < len(operands); i += 3 {
				lo, ok1 := operands[i].(raw.StringObj)
				hi, ok2 := operands[i+1].(raw.StringObj)
				if !ok1 || !ok2 || len(lo.Bytes) != len(hi.Bytes) || len(lo.Bytes) == 0 || len(lo.Bytes) > 4 {
					continue
				}
				r := textRange{lo: bytesToCode(lo.Bytes), hi: bytesToCode(hi.Bytes), n: len(lo.Bytes)}
				if r.hi < r.lo {
					continue
				}
				switch dst := operands[i+2].(type) {
				case raw.StringObj:
					r.base = decodeUTF16(dst.Bytes)
				case *raw.ArrayObj:
					for _, item := range dst.Items {
						str, _ := item.(raw.StringObj)
						r.list = append(r.list, decodeUTF16(str.Bytes))
					}
				default:
					continue
				}
				m.textRange = append(m.textRange, r)
			}
		case "endcidchar":
			for i := 0; i+1 < len(operands); i += 2 {
				src, ok := operands[i].(raw.StringObj)
				cid, ok2 := raw.Number(operands[i+1])
				if ok && ok2 && len(src.Bytes) > 0 && len(src.Bytes) <= 4 {
					m.cid[charCode{bytesToCode(src.Bytes), len(src.Bytes)}] = int(cid)
				}
			}
		case "endcidrange":
			for i := 0; i+2 < len(operands); i += 3 {
				lo, ok1 := operands[i].(raw.StringObj)
				hi, ok2 := operands[i+1].(raw.StringObj)
				cid, ok3 := raw.Number(operands[i+2])
				if ok1 && ok2 && ok3 && len(lo.Bytes) == len(hi.Bytes) && len(lo.Bytes) > 0 && len(lo.Bytes) <= 4 {
					m.cidRange = append(m.cidRange, cidRange{lo: bytesToCode(lo.Bytes), hi: bytesToCode(hi.Bytes), n: len(lo.Bytes), cid: int(cid)})
				}
			}
		}
		operands = operands[:0]
	}
	return m, nil
}

// Next splits the first character code off s, returning the code and its
// byte length. Bytes matching no codespace are consumed singly.
func (m *CMap) Next(s []byte) (code uint32, n int) {
	if len(s) == 0 {
		return 0, 0
	}
	if len(m.codespace) == 0 {
		return uint32(s[0]), 1
	}
	for width := 1; width <= 4 && width <= len(s); width++ {
		for _, r := range m.codespace {
			if len(r.lo) == width && r.contains(s[:width]) {
				return bytesToCode(s[:width]), width
			}
		}
	}
	// Unmatched: consume the width of the shortest codespace.
	width := 4
	for _, r := range m.codespace {
		if len(r.lo) < width {
			width = len(r.lo)
		}
	}
	if width > len(s) {
		width = len(s)
	}
	return bytesToCode(s[:width]), width
}

func (r codeRange) contains(b []byte) bool {
	for i, c := range b {
		if c < r.lo[i] || c > r.hi[i] {
			return false
		}
	}
	return true
}

// Text returns the Unicode text for a code.
func (m *CMap) Text(code uint32, n int) (string, bool) {
	if s, ok := m.text[charCode{code, n}]; ok {
		return s, true
	}
	for _, r := range m.textRange {
		if r.n != n || code < r.lo || code > r.hi {
			continue
		}
		off := int(code - r.lo)
		if r.list != nil {
			if off < len(r.list) {
				return r.list[off], true
			}
			return "", false
		}
		return incrementLast(r.base, off), true
	}
	return "", false
}

func incrementLast(s string, off int) string {
	if off == 0 || s == "" {
		return s
	}
	last, size := utf8.DecodeLastRuneInString(s)
	return s[:len(s)-size] + string(last+rune(off))
}

// CID returns the CID for a code.
func (m *CMap) CID(code uint32, n int) (int, bool) {
	if m.identity {
		return int(code), true
	}
	if cid, ok := m.cid[charCode{code, n}]; ok {
		return cid, true
	}
	for _, r := range m.cidRange {
		if r.n == n && code >= r.lo && code <= r.hi {
			return r.cid + int(code-r.lo), true
		}
	}
	return 0, false
}

// Empty reports whether the CMap maps nothing to text.
func (m *CMap) Empty() bool { return len(m.text) == 0 && len(m.textRange) == 0 }
