package fonts

import (
	"golang.org/x/text/encoding/charmap"

	"github.com/wudi/pdf2html/ir/raw"
)

// simpleEncoding maps single-byte codes to text and, where known, glyph
// names. Zero entries are unmapped.
type simpleEncoding struct {
	text  [256]string
	names [256]string
}

// standardHigh lists StandardEncoding where it differs from ASCII.
var standardHigh = map[byte]string{
	0x27: "quoteright", 0x60: "quoteleft",
	0xa1: "exclamdown", 0xa2: "cent", 0xa3: "sterling", 0xa4: "fraction",
	0xa5: "yen", 0xa6: "florin", 0xa7: "section", 0xa8: "currency",
	0xa9: "quotesingle", 0xaa: "quotedblleft", 0xab: "guillemotleft",
	0xac: "guilsinglleft", 0xad: "guilsinglright", 0xae: "fi", 0xaf: "fl",
	0xb1: "endash", 0xb2: "dagger", 0xb3: "daggerdbl", 0xb4: "periodcentered",
	0xb6: "paragraph", 0xb7: "bullet", 0xb8: "quotesinglbase",
	0xb9: "quotedblbase", 0xba: "quotedblright", 0xbb: "guillemotright",
	0xbc: "ellipsis", 0xbd: "perthousand", 0xbf: "questiondown",
	0xc1: "grave", 0xc2: "acute", 0xc3: "circumflex", 0xc4: "tilde",
	0xc5: "macron", 0xc6: "breve", 0xc7: "dotaccent", 0xc8: "dieresis",
	0xca: "ring", 0xcb: "cedilla", 0xcd: "hungarumlaut", 0xce: "ogonek",
	0xcf: "caron", 0xd0: "emdash", 0xe1: "AE", 0xe3: "ordfeminine",
	0xe8: "Lslash", 0xe9: "Oslash", 0xea: "OE", 0xeb: "ordmasculine",
	0xf1: "ae", 0xf5: "dotlessi", 0xf8: "lslash", 0xf9: "oslash",
	0xfa: "oe", 0xfb: "germandbls",
}

// symbolGreek maps the Symbol font's Latin letter positions to Greek.
const symbolGreek = "ΑΒΧΔΕΦΓΗΙϑΚΛΜΝΟΠΘΡΣΤΥςΩΞΨΖ" + "αβχδεφγηιϕκλμνοπθρστυϖωξψζ"

var zapfExceptions = map[byte]rune{
	0x25: '☎', 0x2a: '☛', 0x2b: '☞', 0x48: '★', 0x6c: '●', 0x6e: '■',
	0x73: '▲', 0x74: '▼', 0x75: '◆', 0x77: '◗',
}

func standardEncoding() *simpleEncoding {
	e := &simpleEncoding{}
	for c := 0x20; c < 0x7f; c++ {
		e.text[c] = string(rune(c))
	}
	for c, name := range standardHigh {
		e.setName(c, name)
	}
	return e
}

func charmapEncoding(cm *charmap.Charmap) *simpleEncoding {
	e := &simpleEncoding{}
	for c := 0x20; c < 0x100; c++ {
		if r := cm.DecodeByte(byte(c)); r != '�' {
			e.text[c] = string(r)
		}
	}
	return e
}

func symbolEncoding() *simpleEncoding {
	e := standardEncoding()
	greek := []rune(symbolGreek)
	for i := 0; i < 26; i++ {
		e.text['A'+i] = string(greek[i])
		e.text['a'+i] = string(greek[26+i])
	}
	return e
}

func zapfDingbatsEncoding() *simpleEncoding {
	e := &simpleEncoding{}
	e.text[0x20] = " "
	for c := 0x21; c < 0x7f; c++ {
		r, ok := zapfExceptions[byte(c)]
		if !ok {
			r = rune(0x2700 + c - 0x20)
		}
		e.text[c] = string(r)
	}
	return e
}

func (e *simpleEncoding) setName(code byte, name string) {
	e.names[code] = name
	s, _ := runesForGlyphName(name)
	e.text[code] = s
}

// baseEncoding returns the named encoding, or StandardEncoding. The
// font's BaseFont selects Symbol and ZapfDingbats built-ins.
func baseEncoding(name, baseFont string) *simpleEncoding {
	switch name {
	case "WinAnsiEncoding":
		return charmapEncoding(charmap.Windows1252)
	case "MacRomanEncoding":
		return charmapEncoding(charmap.Macintosh)
	case "StandardEncoding":
		return standardEncoding()
	}
	switch stripSubsetTag(baseFont) {
	case "Symbol":
		return symbolEncoding()
	case "ZapfDingbats":
		return zapfDingbatsEncoding()
	}
	return standardEncoding()
}

// fontEncoding builds the encoding of a simple font from /Encoding,
// applying /Differences.
func fontEncoding(doc *raw.Document, dict *raw.DictObj, baseFont string, symbolic bool) *simpleEncoding {
	encObj, _ := doc.Lookup(dict, "Encoding")
	if encObj == nil && symbolic && baseFont != "" {
		return baseEncoding("", baseFont)
	}
	if name := doc.Name(encObj); name != "" {
		return baseEncoding(name, baseFont)
	}
	encDict, _ := doc.Dict(encObj)
	if encDict == nil {
		return baseEncoding("", baseFont)
	}
	baseName, _ := doc.Lookup(encDict, "BaseEncoding")
	e := baseEncoding(doc.Name(baseName), baseFont)
	diffs, _ := doc.Lookup(encDict, "Differences")
	arr, _ := doc.Array(diffs)
	if arr == nil {
		return e
	}
	code := -1
	for _, item := range arr.Items {
		item, _ = doc.Resolve(item)
		switch v := item.(type) {
		case raw.NumberObj:
			code = int(v.Int())
		case raw.NameObj:
			if code >= 0 && code < 256 {
				e.setName(byte(code), v.Val)
				code++
			}
		}
	}
	return e
}

// stripSubsetTag removes a "ABCDEF+" subset prefix.
func stripSubsetTag(name string) string {
	if len(name) > 7 && name[6] == '+' {
		for i := 0; i < 6; i++ {
			if name[i] < 'A' || name[i] > 'Z' {
				return name
			}
		}
		return name[7:]
	}
	return name
}
