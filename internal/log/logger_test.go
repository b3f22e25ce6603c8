package log

import (
	"bytes"
	"context"
	"log/slog"
	"strings"
	"testing"
)

func TestLoggerAddsComponent(t *testing.T) {
	var buf bytes.Buffer
	l := New(Config{Level: slog.LevelInfo, Component: ComponentMatrix, Output: &buf})

	l.Info("reconciled", FieldCount, 3)
	out := buf.String()
	if !strings.Contains(out, "component=matrix") || !strings.Contains(out, "count=3") {
		t.Fatalf("unexpected log line: %s", out)
	}

	buf.Reset()
	l.WithComponent(ComponentHTTP).Warn("slow")
	if !strings.Contains(buf.String(), "component=http") {
		t.Fatalf("expected http component, got: %s", buf.String())
	}
}

func TestLoggerLevelFilters(t *testing.T) {
	var buf bytes.Buffer
	l := New(Config{Level: slog.LevelWarn, Component: ComponentApp, Output: &buf})
	l.Info("hidden")
	if buf.Len() != 0 {
		t.Fatalf("info should be filtered at warn level: %s", buf.String())
	}
}

func TestParseLevel(t *testing.T) {
	cases := map[string]slog.Level{
		"debug":   slog.LevelDebug,
		"WARN":    slog.LevelWarn,
		"error":   slog.LevelError,
		"":        slog.LevelInfo,
		"verbose": slog.LevelInfo,
	}
	for in, want := range cases {
		if got := ParseLevel(in); got != want {
			t.Fatalf("ParseLevel(%q) = %v, want %v", in, got, want)
		}
	}
}

func TestFromContext(t *testing.T) {
	l := New(Config{Component: ComponentLedger, Output: &bytes.Buffer{}})
	ctx := WithContext(context.Background(), l)
	if got := FromContext(ctx); got != l {
		t.Fatalf("expected stored logger")
	}
	if got := FromContext(context.Background()); got.Component() != "unknown" {
		t.Fatalf("expected fallback logger, got %q", got.Component())
	}
}
