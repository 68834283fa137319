// Package pdferr defines the error taxonomy shared by every conversion stage.
package pdferr

import (
	"errors"
	"fmt"
)

// Kind classifies a conversion failure.
type Kind int

const (
	KindUnknown Kind = iota
	// KindInvalidFormat is fatal and non-retryable.
	KindInvalidFormat
	// KindCorruptStructure allows partial continuation.
	KindCorruptStructure
	// KindEncryptionRequired asks the caller to resupply credentials.
	KindEncryptionRequired
	KindCompressionBombDetected
	// KindRecursionLimitExceeded is scoped to the form subtree that overflowed.
	KindRecursionLimitExceeded
	// KindFontError is non-fatal; the font is substituted.
	KindFontError
	KindTimeout
	// KindInternalInvariantViolation is downgraded to a per-page warning.
	KindInternalInvariantViolation
)

var kindNames = map[Kind]string{
	KindUnknown:                    "unknown",
	KindInvalidFormat:              "invalid format",
	KindCorruptStructure:           "corrupt structure",
	KindEncryptionRequired:         "encryption required",
	KindCompressionBombDetected:    "compression bomb detected",
	KindRecursionLimitExceeded:     "recursion limit exceeded",
	KindFontError:                  "font error",
	KindTimeout:                    "timeout",
	KindInternalInvariantViolation: "internal invariant violation",
}

func (k Kind) String() string {
	if s, ok := kindNames[k]; ok {
		return s
	}
	return fmt.Sprintf("kind(%d)", int(k))
}

// Fatal reports whether an error of this kind aborts the whole document.
func (k Kind) Fatal() bool {
	switch k {
	case KindInvalidFormat, KindEncryptionRequired, KindTimeout:
		return true
	}
	return false
}

// Error carries a Kind, the operation that failed and the underlying cause.
type Error struct {
	Kind Kind
	Op   string
	Err  error
}

func (e *Error) Error() string {
	switch {
	case e.Op != "" && e.Err != nil:
		return fmt.Sprintf("%s: %s: %v", e.Kind, e.Op, e.Err)
	case e.Err != nil:
		return fmt.Sprintf("%s: %v", e.Kind, e.Err)
	case e.Op != "":
		return fmt.Sprintf("%s: %s", e.Kind, e.Op)
	}
	return e.Kind.String()
}

func (e *Error) Unwrap() error { return e.Err }

// Is matches any *Error of the same Kind, so sentinels work with errors.Is.
func (e *Error) Is(target error) bool {
	t, ok := target.(*Error)
	if !ok {
		return false
	}
	return t.Kind == e.Kind && t.Op == "" && t.Err == nil
}

// New builds an *Error.
func New(kind Kind, op string, err error) *Error {
	return &Error{Kind: kind, Op: op, Err: err}
}

// Errorf builds an *Error with a formatted cause.
func Errorf(kind Kind, op, format string, args ...any) *Error {
	return &Error{Kind: kind, Op: op, Err: fmt.Errorf(format, args...)}
}

// Sentinels for errors.Is.
var (
	ErrInvalidFormat              = &Error{Kind: KindInvalidFormat}
	ErrCorruptStructure           = &Error{Kind: KindCorruptStructure}
	ErrEncryptionRequired         = &Error{Kind: KindEncryptionRequired}
	ErrCompressionBombDetected    = &Error{Kind: KindCompressionBombDetected}
	ErrRecursionLimitExceeded     = &Error{Kind: KindRecursionLimitExceeded}
	ErrFontError                  = &Error{Kind: KindFontError}
	ErrTimeout                    = &Error{Kind: KindTimeout}
	ErrInternalInvariantViolation = &Error{Kind: KindInternalInvariantViolation}
)

// KindOf returns the Kind of the first *Error in err's chain.
func KindOf(err error) Kind {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	return KindUnknown
}
