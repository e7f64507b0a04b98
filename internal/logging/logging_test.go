package logging

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"strings"
	"testing"
)

func TestJSONLoggerWritesFields(t *testing.T) {
	var buf bytes.Buffer
	log := New(Config{Level: "debug", Format: "json", Output: &buf})

	log.With(Uint32("catalog_number", 25544)).Info(context.Background(), "track ready",
		Int("samples", 180),
		Err(errors.New("boom")),
	)

	var rec map[string]any
	if err := json.Unmarshal(buf.Bytes(), &rec); err != nil {
		t.Fatalf("decode log line %q: %v", buf.String(), err)
	}
	if rec["msg"] != "track ready" {
		t.Fatalf("msg = %v", rec["msg"])
	}
	if rec["catalog_number"] != float64(25544) || rec["samples"] != float64(180) || rec["error"] != "boom" {
		t.Fatalf("unexpected fields: %v", rec)
	}
}

func TestLevelFiltering(t *testing.T) {
	var buf bytes.Buffer
	log := New(Config{Level: "warn", Output: &buf})

	log.Info(context.Background(), "hidden")
	log.Warn(context.Background(), "shown")

	out := buf.String()
	if strings.Contains(out, "hidden") || !strings.Contains(out, "shown") {
		t.Fatalf("unexpected output: %q", out)
	}
}

func TestParseLevel(t *testing.T) {
	for in, want := range map[string]slog.Level{
		"":        slog.LevelInfo,
		"DEBUG":   slog.LevelDebug,
		"warning": slog.LevelWarn,
		"error":   slog.LevelError,
		"bogus":   slog.LevelInfo,
	} {
		if got := ParseLevel(in); got != want {
			t.Errorf("ParseLevel(%q) = %v, want %v", in, got, want)
		}
	}
}

func TestWithRequestLoggerKeepsIncomingID(t *testing.T) {
	var buf bytes.Buffer
	base := New(Config{Format: "json", Output: &buf})

	ctx := ContextWithRequestID(context.Background(), "abc123")
	ctx, l := WithRequestLogger(ctx, base)
	if RequestIDFromContext(ctx) != "abc123" {
		t.Fatalf("request id changed to %q", RequestIDFromContext(ctx))
	}
	if FromContext(ctx, nil) != l {
		t.Fatalf("logger not stored on context")
	}

	l.Info(ctx, "hello")
	if !strings.Contains(buf.String(), `"request_id":"abc123"`) {
		t.Fatalf("request_id missing from %q", buf.String())
	}
}

func TestEnsureRequestIDGenerates(t *testing.T) {
	ctx, id := EnsureRequestID(context.Background())
	if len(id) != 16 {
		t.Fatalf("generated id %q, want 16 hex chars", id)
	}
	if _, again := EnsureRequestID(ctx); again != id {
		t.Fatalf("EnsureRequestID regenerated id: %q != %q", again, id)
	}
}

func TestFromContextFallback(t *testing.T) {
	fallback := Noop()
	if got := FromContext(context.Background(), fallback); got != fallback {
		t.Fatalf("expected fallback logger")
	}
	if got := FromContext(context.Background(), nil); got == nil {
		t.Fatalf("expected noop logger when fallback is nil")
	}
}
