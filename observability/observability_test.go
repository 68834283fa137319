package observability

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"strings"
	"testing"
)

func TestZerologLoggerWritesFields(t *testing.T) {
	var buf bytes.Buffer
	log := NewZerologLogger(LogConfig{Level: "debug", Format: "json", Output: &buf})
	log.With(String("doc", "a.pdf")).Warn("font substituted",
		Int("page", 3), Float64("size", 12.5), Bool("embedded", false), Err(errors.New("bad cmap")))

	var rec map[string]interface{}
	if err := json.Unmarshal(bytes.TrimSpace(buf.Bytes()), &rec); err != nil {
		t.Fatalf("decode log line %q: %v", buf.String(), err)
	}
	checks := map[string]interface{}{
		"level":    "warn",
		"message":  "font substituted",
		"doc":      "a.pdf",
		"page":     float64(3),
		"size":     12.5,
		"embedded": false,
		"error":    "bad cmap",
	}
	for k, want := range checks {
		if rec[k] != want {
			t.Errorf("field %s = %v, want %v", k, rec[k], want)
		}
	}
}

func TestZerologLoggerLevelFilter(t *testing.T) {
	var buf bytes.Buffer
	log := NewZerologLogger(LogConfig{Level: "warn", Output: &buf})
	log.Debug("hidden")
	log.Info("hidden")
	log.Error("shown")
	if strings.Contains(buf.String(), "hidden") || !strings.Contains(buf.String(), "shown") {
		t.Fatalf("unexpected output %q", buf.String())
	}
}

func TestOrNop(t *testing.T) {
	if _, ok := OrNop(nil).(NopLogger); !ok {
		t.Fatal("expected NopLogger for nil")
	}
	l := NewZerologLogger(LogConfig{})
	if OrNop(l) != l {
		t.Fatal("expected passthrough")
	}
}

func TestOrNopTracer(t *testing.T) {
	tr := OrNopTracer(nil)
	ctx := context.Background()
	got, span := tr.StartSpan(ctx, "pdf.parse")
	if got != ctx {
		t.Fatal("nop tracer replaced the context")
	}
	span.SetTag("page", 1)
	span.SetError(nil)
	span.Finish()
	if OrNopTracer(tr) != tr {
		t.Fatal("expected passthrough")
	}
}
