// Package recovery decides how the parser and interpreter react to damaged
// input.
package recovery

import (
	"context"
	"fmt"
)

type Strategy interface {
	OnError(ctx context.Context, err error, location Location) Action
}

// Location identifies where in the document an error was found.
type Location struct {
	ByteOffset int64
	ObjectNum  int
	ObjectGen  int
	Page       int
	Component  string
}

func (l Location) String() string {
	switch {
	case l.ObjectNum > 0:
		return fmt.Sprintf("%s obj %d %d", l.Component, l.ObjectNum, l.ObjectGen)
	case l.Page > 0:
		return fmt.Sprintf("%s page %d", l.Component, l.Page)
	}
	return fmt.Sprintf("%s offset %d", l.Component, l.ByteOffset)
}

type Action int

const (
	ActionFail Action = iota
	ActionSkip
	ActionFix
	ActionWarn
)

func (a Action) String() string {
	switch a {
	case ActionFail:
		return "fail"
	case ActionSkip:
		return "skip"
	case ActionFix:
		return "fix"
	case ActionWarn:
		return "warn"
	}
	return "unknown"
}

// Continue reports whether processing may proceed after the action.
func (a Action) Continue() bool { return a != ActionFail }
