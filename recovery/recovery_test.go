package recovery

import (
	"context"
	"errors"
	"testing"

	"github.com/wudi/pdf2html/pdferr"
)

func TestStrictStrategyFails(t *testing.T) {
	s := NewStrictStrategy()
	if got := s.OnError(context.Background(), errors.New("boom"), Location{Component: "scanner"}); got != ActionFail {
		t.Fatalf("action = %v, want fail", got)
	}
}

func TestLenientStrategy(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want Action
	}{
		{"corrupt object skipped", pdferr.New(pdferr.KindCorruptStructure, "obj 4", nil), ActionSkip},
		{"plain error warned", errors.New("odd token"), ActionWarn},
		{"bomb is fatal", pdferr.New(pdferr.KindCompressionBombDetected, "obj 9", nil), ActionFail},
		{"format is fatal", pdferr.New(pdferr.KindInvalidFormat, "header", nil), ActionFail},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			s := NewLenientStrategy(nil)
			if got := s.OnError(context.Background(), tc.err, Location{ObjectNum: 4, Component: "parser"}); got != tc.want {
				t.Fatalf("action = %v, want %v", got, tc.want)
			}
		})
	}
}

func TestLenientStrategyRecordsErrors(t *testing.T) {
	s := NewLenientStrategy(nil)
	s.OnError(context.Background(), errors.New("first"), Location{ByteOffset: 10, Component: "xref"})
	s.OnError(context.Background(), errors.New("second"), Location{Page: 2, Component: "page"})
	errs := s.Errors()
	if len(errs) != 2 {
		t.Fatalf("recorded %d errors", len(errs))
	}
	if errs[0].Error() != "[xref offset 10]: first" {
		t.Fatalf("unexpected message %q", errs[0].Error())
	}
}

func TestLenientStrategyCancelled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	if got := NewLenientStrategy(nil).OnError(ctx, errors.New("x"), Location{}); got != ActionFail {
		t.Fatalf("action = %v, want fail", got)
	}
}
