package scanner

import (
	"bytes"
	"errors"
	"fmt"
	"io"

	"github.com/wudi/pdf2html/ir/raw"
)

// ErrUnexpectedKeyword is returned when a keyword appears where an object
// was expected. The keyword token is pushed back.
var ErrUnexpectedKeyword = errors.New("unexpected keyword")

// ReadObject reads one complete direct object.
func (s *Scanner) ReadObject() (raw.Object, error) {
	tok, err := s.Next()
	if err != nil {
		return nil, err
	}
	return s.ObjectFrom(tok)
}

// ObjectFrom builds the object that starts with tok, reading further
// tokens for arrays and dictionaries.
func (s *Scanner) ObjectFrom(tok Token) (raw.Object, error) {
	return s.objectFrom(tok, 0)
}

func (s *Scanner) objectFrom(tok Token, depth int) (raw.Object, error) {
	if depth > s.cfg.MaxNesting {
		return nil, fmt.Errorf("offset %d: nesting deeper than %d", tok.Pos, s.cfg.MaxNesting)
	}
	switch tok.Type {
	case TokenName:
		return raw.Name(tok.Value.(string)), nil
	case TokenNumber:
		if i, ok := tok.Value.(int64); ok {
			return raw.Int(i), nil
		}
		return raw.Real(tok.Value.(float64)), nil
	case TokenString:
		return raw.StringObj{Bytes: tok.Value.([]byte), Hex: tok.Hex}, nil
	case TokenBoolean:
		return raw.Bool(tok.Value.(bool)), nil
	case TokenNull:
		return raw.NullObj{}, nil
	case TokenRef:
		r := tok.Value.([2]int)
		return raw.Ref(r[0], r[1]), nil
	case TokenArray:
		return s.readArray(tok, depth)
	case TokenDict:
		return s.readDict(tok, depth)
	}
	s.Unread(tok)
	return nil, fmt.Errorf("offset %d: %w %q", tok.Pos, ErrUnexpectedKeyword, tok.Value)
}

func (s *Scanner) readArray(open Token, depth int) (raw.Object, error) {
	arr := &raw.ArrayObj{}
	for {
		tok, err := s.Next()
		if err == io.EOF {
			if rerr := s.recover(errors.New("unterminated array"), open.Pos); rerr != nil {
				return nil, rerr
			}
			return arr, nil
		}
		if err != nil {
			return nil, err
		}
		if tok.Type == TokenArrayEnd {
			return arr, nil
		}
		if tok.Type == TokenDictEnd || (tok.Type == TokenKeyword && isObjectTerminator(tok.Keyword())) {
			s.Unread(tok)
			if rerr := s.recover(errors.New("unterminated array"), open.Pos); rerr != nil {
				return nil, rerr
			}
			return arr, nil
		}
		obj, err := s.objectFrom(tok, depth+1)
		if err != nil {
			if errors.Is(err, ErrUnexpectedKeyword) {
				// stray keywords inside arrays are dropped
				s.Next()
				continue
			}
			return nil, err
		}
		arr.Items = append(arr.Items, obj)
	}
}

func (s *Scanner) readDict(open Token, depth int) (raw.Object, error) {
	dict := raw.Dict()
	for {
		tok, err := s.Next()
		if err == io.EOF {
			if rerr := s.recover(errors.New("unterminated dictionary"), open.Pos); rerr != nil {
				return nil, rerr
			}
			return dict, nil
		}
		if err != nil {
			return nil, err
		}
		if tok.Type == TokenDictEnd {
			return dict, nil
		}
		if tok.Type != TokenName {
			if tok.Type == TokenKeyword && isObjectTerminator(tok.Keyword()) {
				s.Unread(tok)
				if rerr := s.recover(errors.New("unterminated dictionary"), open.Pos); rerr != nil {
					return nil, rerr
				}
				return dict, nil
			}
			if rerr := s.recover(fmt.Errorf("dictionary key is %s", tok.Type), tok.Pos); rerr != nil {
				return nil, rerr
			}
			continue
		}
		key := tok.Value.(string)
		valTok, err := s.Next()
		if err != nil {
			if err == io.EOF {
				return dict, s.recover(errors.New("unterminated dictionary"), open.Pos)
			}
			return nil, err
		}
		if valTok.Type == TokenDictEnd {
			// key without value
			dict.Set(key, raw.NullObj{})
			return dict, nil
		}
		val, err := s.objectFrom(valTok, depth+1)
		if err != nil {
			if errors.Is(err, ErrUnexpectedKeyword) {
				s.Next()
				if rerr := s.recover(err, valTok.Pos); rerr != nil {
					return nil, rerr
				}
				continue
			}
			return nil, err
		}
		dict.Set(key, val)
	}
}

func isObjectTerminator(kw string) bool {
	switch kw {
	case "endobj", "stream", "endstream", "obj", "xref", "trailer", "startxref":
		return true
	}
	return false
}

var endstreamKW = []byte("endstream")

// StreamData reads the payload that follows a "stream" keyword. When
// length is non-negative and points at "endstream" it is trusted;
// otherwise the data is delimited by searching for "endstream". The
// scanner is left after the "endstream" keyword.
func (s *Scanner) StreamData(length int64) ([]byte, error) {
	// "stream" must be followed by CRLF or LF; accept a lone CR too.
	if s.pos < int64(len(s.data)) && s.data[s.pos] == '\r' {
		s.pos++
	}
	if s.pos < int64(len(s.data)) && s.data[s.pos] == '\n' {
		s.pos++
	}
	start := s.pos
	if length >= 0 && start+length <= int64(len(s.data)) {
		end := start + length
		p := end
		for p < int64(len(s.data)) && IsWhitespace(s.data[p]) {
			p++
		}
		if bytes.HasPrefix(s.data[p:], endstreamKW) {
			s.pos = p + int64(len(endstreamKW))
			return s.data[start:end], nil
		}
	}
	idx := bytes.Index(s.data[start:], endstreamKW)
	if idx < 0 {
		if err := s.recover(errors.New("stream without endstream"), start); err != nil {
			return nil, err
		}
		s.pos = int64(len(s.data))
		return s.data[start:], nil
	}
	if length >= 0 {
		if err := s.recover(fmt.Errorf("stream /Length %d does not match data", length), start); err != nil {
			return nil, err
		}
	}
	end := start + int64(idx)
	s.pos = end + int64(len(endstreamKW))
	// trim the EOL that precedes endstream
	if end > start && s.data[end-1] == '\n' {
		end--
	}
	if end > start && s.data[end-1] == '\r' {
		end--
	}
	return s.data[start:end], nil
}

// InlineImageData reads the sample bytes after an "ID" operator up to the
// matching "EI", leaving the scanner after "EI". When size is positive and
// the bytes at that offset close the image, size is trusted.
func (s *Scanner) InlineImageData(size int64) ([]byte, error) {
	// exactly one whitespace byte follows ID
	if s.pos < int64(len(s.data)) && IsWhitespace(s.data[s.pos]) {
		s.pos++
	}
	start := s.pos
	if size > 0 && start+size <= int64(len(s.data)) {
		p := start + size
		for p < int64(len(s.data)) && IsWhitespace(s.data[p]) {
			p++
		}
		if isEI(s.data, p) {
			s.pos = p + 2
			return s.data[start : start+size], nil
		}
	}
	for p := start; p+1 < int64(len(s.data)); p++ {
		if p > start && !IsWhitespace(s.data[p-1]) {
			continue
		}
		if isEI(s.data, p) {
			end := p
			if end > start {
				end-- // the whitespace before EI
			}
			s.pos = p + 2
			return s.data[start:end], nil
		}
	}
	if err := s.recover(errors.New("inline image without EI"), start); err != nil {
		return nil, err
	}
	s.pos = int64(len(s.data))
	return s.data[start:], nil
}

func isEI(data []byte, p int64) bool {
	if p+2 > int64(len(data)) || data[p] != 'E' || data[p+1] != 'I' {
		return false
	}
	return p+2 == int64(len(data)) || IsDelimiter(data[p+2])
}
