package fonts

import (
	"strconv"
	"strings"
)

// glyphNames maps common Adobe glyph list names to their code points.
// Single-letter names and the uniXXXX / uXXXX[XX] forms are handled in
// code.
var glyphNames = map[string]rune{
	"space": ' ', "exclam": '!', "quotedbl": '"', "numbersign": '#',
	"dollar": '$', "percent": '%', "ampersand": '&', "quotesingle": '\'',
	"parenleft": '(', "parenright": ')', "asterisk": '*', "plus": '+',
	"comma": ',', "hyphen": '-', "period": '.', "slash": '/',
	"zero": '0', "one": '1', "two": '2', "three": '3', "four": '4',
	"five": '5', "six": '6', "seven": '7', "eight": '8', "nine": '9',
	"colon": ':', "semicolon": ';', "less": '<', "equal": '=',
	"greater": '>', "question": '?', "at": '@', "bracketleft": '[',
	"backslash": '\\', "bracketright": ']', "asciicircum": '^',
	"underscore": '_', "grave": '`', "braceleft": '{', "bar": '|',
	"braceright": '}', "asciitilde": '~',

	"quoteleft": '‘', "quoteright": '’', "quotedblleft": '“',
	"quotedblright": '”', "quotesinglbase": '‚', "quotedblbase": '„',
	"guilsinglleft": '‹', "guilsinglright": '›', "guillemotleft": '«',
	"guillemotright": '»', "endash": '–', "emdash": '—', "bullet": '•',
	"ellipsis": '…', "dagger": '†', "daggerdbl": '‡', "perthousand": '‰',
	"trademark": '™', "Euro": '€', "florin": 'ƒ', "fraction": '⁄',
	"minus": '−', "periodcentered": '·', "middot": '·', "nbspace": '\u00a0',
	"sfthyphen": '\u00ad', "softhyphen": '\u00ad',

	"exclamdown": '¡', "cent": '¢', "sterling": '£', "currency": '¤',
	"yen": '¥', "brokenbar": '¦', "section": '§', "dieresis": '¨',
	"copyright": '©', "ordfeminine": 'ª', "logicalnot": '¬',
	"registered": '®', "macron": '¯', "degree": '°', "plusminus": '±',
	"twosuperior": '²', "threesuperior": '³', "acute": '´', "mu": 'µ',
	"paragraph": '¶', "cedilla": '¸', "onesuperior": '¹',
	"ordmasculine": 'º', "onequarter": '¼', "onehalf": '½',
	"threequarters": '¾', "questiondown": '¿', "multiply": '×',
	"divide": '÷', "circumflex": 'ˆ', "tilde": '˜', "breve": '˘',
	"dotaccent": '˙', "ring": '˚', "ogonek": '˛', "hungarumlaut": '˝',
	"caron": 'ˇ', "dotlessi": 'ı', "germandbls": 'ß',

	"Agrave": 'À', "Aacute": 'Á', "Acircumflex": 'Â', "Atilde": 'Ã',
	"Adieresis": 'Ä', "Aring": 'Å', "AE": 'Æ', "Ccedilla": 'Ç',
	"Egrave": 'È', "Eacute": 'É', "Ecircumflex": 'Ê', "Edieresis": 'Ë',
	"Igrave": 'Ì', "Iacute": 'Í', "Icircumflex": 'Î', "Idieresis": 'Ï',
	"Eth": 'Ð', "Ntilde": 'Ñ', "Ograve": 'Ò', "Oacute": 'Ó',
	"Ocircumflex": 'Ô', "Otilde": 'Õ', "Odieresis": 'Ö', "Oslash": 'Ø',
	"Ugrave": 'Ù', "Uacute": 'Ú', "Ucircumflex": 'Û', "Udieresis": 'Ü',
	"Yacute": 'Ý', "Thorn": 'Þ', "Ydieresis": 'Ÿ', "OE": 'Œ',
	"Scaron": 'Š', "Zcaron": 'Ž', "Lslash": 'Ł',
	"agrave": 'à', "aacute": 'á', "acircumflex": 'â', "atilde": 'ã',
	"adieresis": 'ä', "aring": 'å', "ae": 'æ', "ccedilla": 'ç',
	"egrave": 'è', "eacute": 'é', "ecircumflex": 'ê', "edieresis": 'ë',
	"igrave": 'ì', "iacute": 'í', "icircumflex": 'î', "idieresis": 'ï',
	"eth": 'ð', "ntilde": 'ñ', "ograve": 'ò', "oacute": 'ó',
	"ocircumflex": 'ô', "otilde": 'õ', "odieresis": 'ö', "oslash": 'ø',
	"ugrave": 'ù', "uacute": 'ú', "ucircumflex": 'û', "udieresis": 'ü',
	"yacute": 'ý', "thorn": 'þ', "ydieresis": 'ÿ', "oe": 'œ',
	"scaron": 'š', "zcaron": 'ž', "lslash": 'ł',

	"Alpha": 'Α', "Beta": 'Β', "Gamma": 'Γ', "Delta": 'Δ', "Epsilon": 'Ε',
	"Zeta": 'Ζ', "Eta": 'Η', "Theta": 'Θ', "Iota": 'Ι', "Kappa": 'Κ',
	"Lambda": 'Λ', "Mu": 'Μ', "Nu": 'Ν', "Xi": 'Ξ', "Omicron": 'Ο',
	"Pi": 'Π', "Rho": 'Ρ', "Sigma": 'Σ', "Tau": 'Τ', "Upsilon": 'Υ',
	"Phi": 'Φ', "Chi": 'Χ', "Psi": 'Ψ', "Omega": 'Ω',
	"alpha": 'α', "beta": 'β', "gamma": 'γ', "delta": 'δ', "epsilon": 'ε',
	"zeta": 'ζ', "eta": 'η', "theta": 'θ', "iota": 'ι', "kappa": 'κ',
	"lambda": 'λ', "nu": 'ν', "xi": 'ξ', "omicron": 'ο', "pi": 'π',
	"rho": 'ρ', "sigma": 'σ', "sigma1": 'ς', "tau": 'τ', "upsilon": 'υ',
	"phi": 'φ', "chi": 'χ', "psi": 'ψ', "omega": 'ω',

	"arrowleft": '←', "arrowup": '↑', "arrowright": '→', "arrowdown": '↓',
	"arrowboth": '↔', "infinity": '∞', "partialdiff": '∂', "summation": '∑',
	"product": '∏', "radical": '√', "integral": '∫', "approxequal": '≈',
	"notequal": '≠', "lessequal": '≤', "greaterequal": '≥', "element": '∈',
	"lozenge": '◊', "club": '♣', "diamond": '♦', "heart": '♥', "spade": '♠',
	"checkmark": '✓',
}

// ligatures expand to more than one character.
var ligatures = map[string]string{
	"ff": "ff", "fi": "fi", "fl": "fl", "ffi": "ffi", "ffl": "ffl", "st": "st",
}

// runesForGlyphName returns the text a glyph name stands for.
func runesForGlyphName(name string) (string, bool) {
	if i := strings.IndexByte(name, '.'); i > 0 {
		name = name[:i]
	}
	if name == "" {
		return "", false
	}
	if strings.Contains(name, "_") {
		var b strings.Builder
		for _, part := range strings.Split(name, "_") {
			s, ok := runesForGlyphName(part)
			if !ok {
				return "", false
			}
			b.WriteString(s)
		}
		return b.String(), true
	}
	if s, ok := ligatures[name]; ok {
		return s, true
	}
	if r, ok := glyphNames[name]; ok {
		return string(r), true
	}
	if len(name) == 1 && (name[0] >= 'A' && name[0] <= 'Z' || name[0] >= 'a' && name[0] <= 'z') {
		return name, true
	}
	if strings.HasPrefix(name, "uni") && len(name) >= 7 && (len(name)-3)%4 == 0 {
		var b strings.Builder
		for i := 3; i < len(name); i += 4 {
			v, err := strconv.ParseUint(name[i:i+4], 16, 32)
			if err != nil {
				return "", false
			}
			b.WriteRune(rune(v))
		}
		return b.String(), true
	}
	if name[0] == 'u' && len(name) >= 5 && len(name) <= 7 {
		if v, err := strconv.ParseUint(name[1:], 16, 32); err == nil && v <= 0x10FFFF {
			return string(rune(v)), true
		}
	}
	return "", false
}
