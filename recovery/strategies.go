package recovery

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/wudi/pdf2html/observability"
	"github.com/wudi/pdf2html/pdferr"
)

// StrictStrategy implements a fail-fast recovery strategy.
type StrictStrategy struct{}

func NewStrictStrategy() *StrictStrategy {
	return &StrictStrategy{}
}

func (s *StrictStrategy) OnError(ctx context.Context, err error, location Location) Action {
	return ActionFail
}

// LenientStrategy records every error and keeps going unless the error is
// one that can never be recovered from.
type LenientStrategy struct {
	Logger observability.Logger

	mu     sync.Mutex
	errors []error
}

func NewLenientStrategy(logger observability.Logger) *LenientStrategy {
	return &LenientStrategy{Logger: observability.OrNop(logger)}
}

func (s *LenientStrategy) OnError(ctx context.Context, err error, location Location) Action {
	if ctx != nil && ctx.Err() != nil {
		return ActionFail
	}
	kind := pdferr.KindOf(err)
	if kind.Fatal() || errors.Is(err, pdferr.ErrCompressionBombDetected) {
		return ActionFail
	}
	s.mu.Lock()
	s.errors = append(s.errors, fmt.Errorf("[%s]: %w", location, err))
	s.mu.Unlock()
	observability.OrNop(s.Logger).Warn("recovered from damaged input",
		observability.String("component", location.Component),
		observability.Int64("offset", location.ByteOffset),
		observability.Int("object", location.ObjectNum),
		observability.Err(err))
	if kind == pdferr.KindCorruptStructure {
		return ActionSkip
	}
	return ActionWarn
}

// Errors returns a copy of the recorded errors.
func (s *LenientStrategy) Errors() []error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]error(nil), s.errors...)
}
