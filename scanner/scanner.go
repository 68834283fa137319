// Package scanner tokenizes PDF syntax, both at file level (indirect
// objects, references, streams) and inside content streams.
package scanner

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"strconv"

	"github.com/wudi/pdf2html/recovery"
)

type TokenType int

const (
	TokenDict     TokenType = iota // '<<'
	TokenDictEnd                   // '>>'
	TokenArray                     // '['
	TokenArrayEnd                  // ']'
	TokenName                      // '/Name'
	TokenString                    // literal or hex string
	TokenNumber                    // numeric value
	TokenBoolean                   // true/false
	TokenNull                      // null
	TokenRef                       // indirect ref '5 0 R' (file mode only)
	TokenKeyword                   // obj, endobj, stream, operators, ...
)

func (t TokenType) String() string {
	switch t {
	case TokenDict:
		return "<<"
	case TokenDictEnd:
		return ">>"
	case TokenArray:
		return "["
	case TokenArrayEnd:
		return "]"
	case TokenName:
		return "name"
	case TokenString:
		return "string"
	case TokenNumber:
		return "number"
	case TokenBoolean:
		return "boolean"
	case TokenNull:
		return "null"
	case TokenRef:
		return "ref"
	case TokenKeyword:
		return "keyword"
	}
	return "unknown"
}

// Token is one lexical unit. Value holds a string for names and keywords,
// []byte for strings, int64 or float64 for numbers, bool for booleans and
// a [2]int{num, gen} for references.
type Token struct {
	Type  TokenType
	Value interface{}
	Pos   int64
	Hex   bool
}

// Keyword returns the keyword text, or "" for non-keyword tokens.
func (t Token) Keyword() string {
	if t.Type != TokenKeyword {
		return ""
	}
	s, _ := t.Value.(string)
	return s
}

// Int returns the integer value of a number token.
func (t Token) Int() (int64, bool) {
	switch v := t.Value.(type) {
	case int64:
		return v, true
	case float64:
		return int64(v), t.Type == TokenNumber
	}
	return 0, false
}

type Config struct {
	// ContentStream disables reference folding; content streams have no
	// indirect references.
	ContentStream   bool
	MaxStringLength int64
	MaxNesting      int
	Recovery        recovery.Strategy
	Context         context.Context
}

// Scanner reads tokens from an in-memory buffer.
type Scanner struct {
	data       []byte
	pos        int64
	cfg        Config
	lastAction recovery.Action
	pending    []Token
}

func New(data []byte, cfg Config) *Scanner {
	if cfg.MaxNesting <= 0 {
		cfg.MaxNesting = 256
	}
	if cfg.Context == nil {
		cfg.Context = context.Background()
	}
	return &Scanner{data: data, cfg: cfg}
}

func (s *Scanner) Position() int64 { return s.pos }
func (s *Scanner) Len() int64      { return int64(len(s.data)) }
func (s *Scanner) Data() []byte    { return s.data }

func (s *Scanner) Seek(offset int64) error {
	if offset < 0 || offset > int64(len(s.data)) {
		return fmt.Errorf("seek %d out of range", offset)
	}
	s.pos = offset
	s.pending = s.pending[:0]
	return nil
}

// Unread pushes tok back so the next call to Next returns it.
func (s *Scanner) Unread(tok Token) { s.pending = append(s.pending, tok) }

func (s *Scanner) Next() (Token, error) {
	if n := len(s.pending); n > 0 {
		tok := s.pending[n-1]
		s.pending = s.pending[:n-1]
		return tok, nil
	}
	return s.scan()
}

func (s *Scanner) scan() (Token, error) {
	s.skipWSAndComments()
	if s.pos >= int64(len(s.data)) {
		return Token{}, io.EOF
	}
	start := s.pos
	c := s.data[s.pos]
	switch c {
	case '<':
		if s.peekAhead(1) == '<' {
			s.pos += 2
			return Token{Type: TokenDict, Value: "<<", Pos: start}, nil
		}
		return s.scanHexString()
	case '>':
		if s.peekAhead(1) == '>' {
			s.pos += 2
			return Token{Type: TokenDictEnd, Value: ">>", Pos: start}, nil
		}
		s.pos++
		return Token{Type: TokenKeyword, Value: ">", Pos: start}, nil
	case '[':
		s.pos++
		return Token{Type: TokenArray, Value: "[", Pos: start}, nil
	case ']':
		s.pos++
		return Token{Type: TokenArrayEnd, Value: "]", Pos: start}, nil
	case '{', '}':
		s.pos++
		return Token{Type: TokenKeyword, Value: string(c), Pos: start}, nil
	case '(':
		return s.scanLiteralString()
	case '/':
		return s.scanName(), nil
	case ')':
		s.pos++
		if err := s.recover(errors.New("unbalanced ')'"), start); err != nil {
			return Token{}, err
		}
		return s.scan()
	}
	if isDigitStart(c) {
		return s.scanNumberOrRef()
	}
	return s.scanKeyword(), nil
}

func (s *Scanner) recover(err error, at int64) error {
	if s.cfg.Recovery == nil {
		return fmt.Errorf("offset %d: %w", at, err)
	}
	s.lastAction = s.cfg.Recovery.OnError(s.cfg.Context, err, recovery.Location{ByteOffset: at, Component: "scanner"})
	if s.lastAction == recovery.ActionFail {
		return fmt.Errorf("offset %d: %w", at, err)
	}
	return nil
}

func (s *Scanner) peekAhead(n int64) byte {
	if s.pos+n >= int64(len(s.data)) {
		return 0
	}
	return s.data[s.pos+n]
}

func (s *Scanner) skipWSAndComments() {
	for s.pos < int64(len(s.data)) {
		c := s.data[s.pos]
		if IsWhitespace(c) {
			s.pos++
			continue
		}
		if c == '%' {
			for s.pos < int64(len(s.data)) && s.data[s.pos] != '\n' && s.data[s.pos] != '\r' {
				s.pos++
			}
			continue
		}
		return
	}
}

// IsWhitespace reports PDF whitespace: NUL, TAB, LF, FF, CR and space.
func IsWhitespace(c byte) bool {
	return c == 0x00 || c == 0x09 || c == 0x0A || c == 0x0C || c == 0x0D || c == 0x20
}

// IsDelimiter reports PDF delimiters and whitespace.
func IsDelimiter(c byte) bool {
	switch c {
	case '(', ')', '<', '>', '[', ']', '{', '}', '/', '%':
		return true
	}
	return IsWhitespace(c)
}

func isDigitStart(c byte) bool { return c == '+' || c == '-' || c == '.' || (c >= '0' && c <= '9') }

func (s *Scanner) scanKeyword() Token {
	start := s.pos
	for s.pos < int64(len(s.data)) && !IsDelimiter(s.data[s.pos]) {
		s.pos++
	}
	if s.pos == start {
		// lone delimiter we do not otherwise handle
		s.pos++
	}
	word := string(s.data[start:s.pos])
	switch word {
	case "true":
		return Token{Type: TokenBoolean, Value: true, Pos: start}
	case "false":
		return Token{Type: TokenBoolean, Value: false, Pos: start}
	case "null":
		return Token{Type: TokenNull, Pos: start}
	}
	return Token{Type: TokenKeyword, Value: word, Pos: start}
}

func (s *Scanner) scanName() Token {
	start := s.pos
	s.pos++ // skip '/'
	var out bytes.Buffer
	for s.pos < int64(len(s.data)) {
		c := s.data[s.pos]
		if IsDelimiter(c) {
			break
		}
		if c == '#' && s.pos+2 < int64(len(s.data)) && isHex(s.data[s.pos+1]) && isHex(s.data[s.pos+2]) {
			out.WriteByte(unhex(s.data[s.pos+1])<<4 | unhex(s.data[s.pos+2]))
			s.pos += 3
			continue
		}
		out.WriteByte(c)
		s.pos++
	}
	return Token{Type: TokenName, Value: out.String(), Pos: start}
}

func isHex(c byte) bool {
	return (c >= '0' && c <= '9') || (c >= 'a' && c <= 'f') || (c >= 'A' && c <= 'F')
}

func unhex(c byte) byte {
	switch {
	case c >= '0' && c <= '9':
		return c - '0'
	case c >= 'a' && c <= 'f':
		return c - 'a' + 10
	case c >= 'A' && c <= 'F':
		return c - 'A' + 10
	}
	return 0
}

func (s *Scanner) scanLiteralString() (Token, error) {
	start := s.pos
	s.pos++ // skip '('
	var buf bytes.Buffer
	depth := 1
	for s.pos < int64(len(s.data)) && depth > 0 {
		c := s.data[s.pos]
		s.pos++
		switch c {
		case '\\':
			if s.pos >= int64(len(s.data)) {
				continue
			}
			esc := s.data[s.pos]
			s.pos++
			switch esc {
			case 'n':
				buf.WriteByte('\n')
			case 'r':
				buf.WriteByte('\r')
			case 't':
				buf.WriteByte('\t')
			case 'b':
				buf.WriteByte('\b')
			case 'f':
				buf.WriteByte('\f')
			case '\r':
				if s.pos < int64(len(s.data)) && s.data[s.pos] == '\n' {
					s.pos++
				}
			case '\n':
			default:
				if esc >= '0' && esc <= '7' {
					val := int(esc - '0')
					for k := 0; k < 2 && s.pos < int64(len(s.data)); k++ {
						d := s.data[s.pos]
						if d < '0' || d > '7' {
							break
						}
						val = val<<3 + int(d-'0')
						s.pos++
					}
					buf.WriteByte(byte(val))
					continue
				}
				buf.WriteByte(esc)
			}
		case '(':
			depth++
			buf.WriteByte(c)
		case ')':
			depth--
			if depth > 0 {
				buf.WriteByte(c)
			}
		case '\r':
			// EOL inside a string is normalised to LF
			if s.pos < int64(len(s.data)) && s.data[s.pos] == '\n' {
				s.pos++
			}
			buf.WriteByte('\n')
		default:
			buf.WriteByte(c)
		}
		if s.cfg.MaxStringLength > 0 && int64(buf.Len()) > s.cfg.MaxStringLength {
			return Token{}, fmt.Errorf("offset %d: literal string exceeds %d bytes", start, s.cfg.MaxStringLength)
		}
	}
	if depth != 0 {
		if err := s.recover(errors.New("unterminated literal string"), start); err != nil {
			return Token{}, err
		}
	}
	return Token{Type: TokenString, Value: buf.Bytes(), Pos: start}, nil
}

func (s *Scanner) scanHexString() (Token, error) {
	start := s.pos
	s.pos++ // skip '<'
	var out []byte
	var hi byte
	half := false
	closed := false
	for s.pos < int64(len(s.data)) {
		c := s.data[s.pos]
		s.pos++
		if c == '>' {
			closed = true
			break
		}
		if IsWhitespace(c) {
			continue
		}
		if !isHex(c) {
			if err := s.recover(fmt.Errorf("invalid hex digit %q", c), s.pos-1); err != nil {
				return Token{}, err
			}
			continue
		}
		if half {
			out = append(out, hi<<4|unhex(c))
		} else {
			hi = unhex(c)
		}
		half = !half
	}
	if half {
		out = append(out, hi<<4)
	}
	if !closed {
		if err := s.recover(errors.New("unterminated hex string"), start); err != nil {
			return Token{}, err
		}
	}
	return Token{Type: TokenString, Value: out, Pos: start, Hex: true}, nil
}

func (s *Scanner) scanNumber() (Token, bool) {
	start := s.pos
	i := s.pos
	if i < int64(len(s.data)) && (s.data[i] == '+' || s.data[i] == '-') {
		i++
	}
	// producers sometimes emit "--5"
	for i < int64(len(s.data)) && s.data[i] == '-' {
		i++
	}
	digits, dot := 0, false
	for i < int64(len(s.data)) {
		c := s.data[i]
		if c >= '0' && c <= '9' {
			digits++
		} else if c == '.' && !dot {
			dot = true
		} else {
			break
		}
		i++
	}
	if digits == 0 {
		return Token{}, false
	}
	text := string(s.data[start:i])
	neg := false
	for len(text) > 0 && (text[0] == '-' || text[0] == '+') {
		if text[0] == '-' {
			neg = true
		}
		text = text[1:]
	}
	s.pos = i
	// skip trailing junk glued to a number, e.g. "1.5.3"
	for s.pos < int64(len(s.data)) && !IsDelimiter(s.data[s.pos]) && (s.data[s.pos] == '.' || (s.data[s.pos] >= '0' && s.data[s.pos] <= '9')) {
		s.pos++
	}
	if !dot {
		v, err := strconv.ParseInt(text, 10, 64)
		if err == nil {
			if neg {
				v = -v
			}
			return Token{Type: TokenNumber, Value: v, Pos: start}, true
		}
	}
	f, err := strconv.ParseFloat(text, 64)
	if err != nil {
		return Token{}, false
	}
	if neg {
		f = -f
	}
	return Token{Type: TokenNumber, Value: f, Pos: start}, true
}

func (s *Scanner) scanNumberOrRef() (Token, error) {
	start := s.pos
	tok, ok := s.scanNumber()
	if !ok {
		s.pos = start
		return s.scanKeyword(), nil
	}
	num, isInt := tok.Value.(int64)
	if s.cfg.ContentStream || !isInt || num < 0 {
		return tok, nil
	}
	// Look ahead for "G R".
	save := s.pos
	s.skipWSAndComments()
	if s.pos < int64(len(s.data)) && s.data[s.pos] >= '0' && s.data[s.pos] <= '9' {
		genTok, ok := s.scanNumber()
		if gen, isGen := genTok.Value.(int64); ok && isGen && gen >= 0 {
			s.skipWSAndComments()
			if s.pos < int64(len(s.data)) && s.data[s.pos] == 'R' &&
				(s.pos+1 >= int64(len(s.data)) || IsDelimiter(s.data[s.pos+1])) {
				s.pos++
				return Token{Type: TokenRef, Value: [2]int{int(num), int(gen)}, Pos: start}, nil
			}
		}
	}
	s.pos = save
	return tok, nil
}
