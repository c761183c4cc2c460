package logging

import (
	"bytes"
	"context"
	"encoding/json"
	"log/slog"
	"strings"
	"testing"
)

func TestParseLevel(t *testing.T) {
	tests := map[string]slog.Level{
		"trace": LevelTrace,
		"DEBUG": slog.LevelDebug,
		"":      slog.LevelInfo,
		"warn":  slog.LevelWarn,
		"error": slog.LevelError,
	}
	for in, want := range tests {
		got, err := ParseLevel(in)
		if err != nil {
			t.Fatalf("parse %q: %v", in, err)
		}
		if want != got {
			t.Fatalf("parse %q: want %s got %s", in, want, got)
		}
	}
	if _, err := ParseLevel("loud"); err == nil {
		t.Fatalf("expected error for unknown level")
	}
}

func TestParseFormat(t *testing.T) {
	if f, err := ParseFormat("JSON"); err != nil || f != FormatJSON {
		t.Fatalf("unexpected result: %q %v", f, err)
	}
	if _, err := ParseFormat("xml"); err == nil {
		t.Fatalf("expected error for unknown format")
	}
}

func TestNewJSON(t *testing.T) {
	var buf bytes.Buffer
	log := New(Options{Writer: &buf, Format: FormatJSON, Level: LevelTrace})
	log.Log(context.Background(), LevelTrace, "queue.drain")

	var rec map[string]any
	if err := json.Unmarshal(buf.Bytes(), &rec); err != nil {
		t.Fatalf("unmarshal: %v\n%s", err, buf.String())
	}
	if want, got := "TRACE", rec["level"]; want != got {
		t.Fatalf("unexpected level: want %v got %v", want, got)
	}
}

func TestNewRespectsLevel(t *testing.T) {
	var buf bytes.Buffer
	log := New(Options{Writer: &buf, Format: FormatText, Level: slog.LevelWarn})
	log.Info("hidden")
	log.Warn("shown")
	if strings.Contains(buf.String(), "hidden") {
		t.Fatalf("info record emitted at warn level: %s", buf.String())
	}
	if !strings.Contains(buf.String(), "shown") {
		t.Fatalf("warn record missing: %s", buf.String())
	}
}

func TestNewWrap(t *testing.T) {
	var buf bytes.Buffer
	wrapped := false
	log := New(Options{Writer: &buf, Format: FormatDev, Wrap: func(h slog.Handler) slog.Handler {
		wrapped = true
		return h
	}})
	log.Info("hello")
	if !wrapped {
		t.Fatalf("wrap hook not applied")
	}
	if !strings.Contains(buf.String(), "hello") {
		t.Fatalf("dev handler wrote nothing: %q", buf.String())
	}
}
