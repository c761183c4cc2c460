package consolelog

import (
	"bytes"
	"context"
	"errors"
	"log/slog"
	"strings"
	"testing"
)

func TestCaptureClassifiesRecords(t *testing.T) {
	store := NewMemoryStore(10)
	var out bytes.Buffer
	log := slog.New(NewCapture(slog.NewTextHandler(&out, nil), store, slog.LevelInfo))

	log.Debug("too quiet")
	log.Info("hello", slog.String("who", "world"))
	log.Warn("careful")
	log.Error("broken", slog.String("err", "disk full"))
	log.Error("dispatch.task.panic", slog.String("stack", "goroutine 1 [running]"))

	entries, err := store.Entries(context.Background())
	if err != nil {
		t.Fatalf("entries: %v", err)
	}
	if want, got := 4, len(entries); want != got {
		t.Fatalf("unexpected entry count: want %d got %d", want, got)
	}

	wantTypes := []LogType{TypeLog, TypeWarning, TypeError, TypeException}
	for i, want := range wantTypes {
		if got := entries[i].Type; want != got {
			t.Fatalf("entry %d: want type %s got %s", i, want, got)
		}
	}
	if want, got := "hello who=world", entries[0].Message; want != got {
		t.Fatalf("unexpected message: want %q got %q", want, got)
	}
	if want, got := "goroutine 1 [running]", entries[3].StackTrace; want != got {
		t.Fatalf("unexpected stack trace: want %q got %q", want, got)
	}
	if strings.Contains(entries[3].Message, "goroutine") {
		t.Fatalf("stack leaked into the message: %q", entries[3].Message)
	}
	if entries[0].Timestamp.IsZero() {
		t.Fatalf("missing timestamp")
	}

	if !strings.Contains(out.String(), "msg=hello") {
		t.Fatalf("record was not forwarded: %s", out.String())
	}
}

func TestCaptureKeepsAttrsAndGroups(t *testing.T) {
	store := NewMemoryStore(10)
	log := slog.New(NewCapture(slog.NewTextHandler(&bytes.Buffer{}, nil), store, slog.LevelInfo))

	log.With(slog.String("component", "gotest")).WithGroup("run").Info("finished", slog.Int("failed", 2), slog.Group("pkg", slog.String("path", "./x")))

	entries, _ := store.Entries(context.Background())
	if want, got := 1, len(entries); want != got {
		t.Fatalf("unexpected entry count: want %d got %d", want, got)
	}
	if want, got := "finished component=gotest run.failed=2 run.pkg.path=./x", entries[0].Message; want != got {
		t.Fatalf("unexpected message:\nwant %q\ngot  %q", want, got)
	}
}

type failingStore struct{ MemoryStore }

func (f *failingStore) Append(context.Context, LogEntry) error { return errors.New("store down") }

func TestCaptureSurvivesStoreFailures(t *testing.T) {
	var out bytes.Buffer
	log := slog.New(NewCapture(slog.NewTextHandler(&out, nil), &failingStore{}, slog.LevelInfo))

	log.Info("still logged")
	if !strings.Contains(out.String(), "still logged") {
		t.Fatalf("record was not forwarded: %s", out.String())
	}
}

func TestCaptureLevelIndependentOfNext(t *testing.T) {
	store := NewMemoryStore(10)
	next := slog.NewTextHandler(&bytes.Buffer{}, &slog.HandlerOptions{Level: slog.LevelError})
	log := slog.New(NewCapture(next, store, slog.LevelInfo))

	log.Info("captured but not printed")

	entries, _ := store.Entries(context.Background())
	if want, got := 1, len(entries); want != got {
		t.Fatalf("unexpected entry count: want %d got %d", want, got)
	}
}
