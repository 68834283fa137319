package pdferr

import (
	"errors"
	"fmt"
	"io"
	"testing"
)

func TestErrorMatchesSentinelByKind(t *testing.T) {
	err := fmt.Errorf("load page 3: %w", New(KindCorruptStructure, "resolve 12 0 R", io.ErrUnexpectedEOF))
	if !errors.Is(err, ErrCorruptStructure) {
		t.Fatalf("expected %v to match ErrCorruptStructure", err)
	}
	if errors.Is(err, ErrInvalidFormat) {
		t.Fatalf("did not expect %v to match ErrInvalidFormat", err)
	}
	if !errors.Is(err, io.ErrUnexpectedEOF) {
		t.Fatalf("expected cause to unwrap")
	}
	if got := KindOf(err); got != KindCorruptStructure {
		t.Fatalf("KindOf = %v", got)
	}
}

func TestErrorMessage(t *testing.T) {
	tests := []struct {
		err  *Error
		want string
	}{
		{New(KindTimeout, "", nil), "timeout"},
		{New(KindFontError, "extract F1", nil), "font error: extract F1"},
		{Errorf(KindInvalidFormat, "header", "missing %s", "%PDF-"), "invalid format: header: missing %PDF-"},
	}
	for _, tc := range tests {
		if got := tc.err.Error(); got != tc.want {
			t.Errorf("Error() = %q, want %q", got, tc.want)
		}
	}
}

func TestFatalKinds(t *testing.T) {
	if !KindInvalidFormat.Fatal() || KindCorruptStructure.Fatal() || KindFontError.Fatal() {
		t.Fatal("unexpected fatal classification")
	}
}
