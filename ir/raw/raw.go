// Package raw is the object model of a parsed PDF: the tagged object union
// and the lazily resolved Document that owns them.
package raw

import "fmt"

// ObjectRef uniquely identifies an indirect PDF object.
type ObjectRef struct {
	Num int
	Gen int
}

func (r ObjectRef) String() string { return fmt.Sprintf("%d %d R", r.Num, r.Gen) }

// IsZero reports whether r is the zero reference (object 0 is never valid).
func (r ObjectRef) IsZero() bool { return r.Num == 0 }

// Object is the base interface for all raw PDF objects.
type Object interface {
	Type() string
}

// Kinds returned by Object.Type.
const (
	TypeNull   = "null"
	TypeBool   = "boolean"
	TypeNumber = "number"
	TypeString = "string"
	TypeName   = "name"
	TypeArray  = "array"
	TypeDict   = "dict"
	TypeStream = "stream"
	TypeRef    = "ref"
)
