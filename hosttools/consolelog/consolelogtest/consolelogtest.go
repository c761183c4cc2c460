// Package consolelogtest holds the conformance suite every consolelog.Store
// implementation must pass.
package consolelogtest

import (
	"context"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/ggoodman/mcp-bridge-go/hosttools/consolelog"
)

// StoreFactory creates an empty Store holding at most capacity entries.
type StoreFactory func(t *testing.T, capacity int) consolelog.Store

// RunStoreTests runs the complete Store test suite against the provided factory.
func RunStoreTests(t *testing.T, factory StoreFactory) {
	t.Run("EmptyStoreHasNoEntries", func(t *testing.T) { testEmpty(t, factory) })
	t.Run("EntriesAreOldestFirst", func(t *testing.T) { testOrder(t, factory) })
	t.Run("CapacityDropsOldest", func(t *testing.T) { testCapacity(t, factory) })
	t.Run("ClearRemovesEverything", func(t *testing.T) { testClear(t, factory) })
	t.Run("FieldsRoundTrip", func(t *testing.T) { testFields(t, factory) })
	t.Run("ConcurrentAppends", func(t *testing.T) { testConcurrentAppends(t, factory) })
}

func entry(i int) consolelog.LogEntry {
	return consolelog.LogEntry{Type: consolelog.TypeLog, Message: fmt.Sprintf("message %d", i)}
}

func mustAppend(t *testing.T, s consolelog.Store, e consolelog.LogEntry) {
	t.Helper()
	if err := s.Append(context.Background(), e); err != nil {
		t.Fatalf("append: %v", err)
	}
}

func mustEntries(t *testing.T, s consolelog.Store) []consolelog.LogEntry {
	t.Helper()
	entries, err := s.Entries(context.Background())
	if err != nil {
		t.Fatalf("entries: %v", err)
	}
	return entries
}

func testEmpty(t *testing.T, factory StoreFactory) {
	s := factory(t, 10)
	if want, got := 0, len(mustEntries(t, s)); want != got {
		t.Fatalf("unexpected entry count: want %d got %d", want, got)
	}
}

func testOrder(t *testing.T, factory StoreFactory) {
	s := factory(t, 10)
	for i := 0; i < 5; i++ {
		mustAppend(t, s, entry(i))
	}
	entries := mustEntries(t, s)
	if want, got := 5, len(entries); want != got {
		t.Fatalf("unexpected entry count: want %d got %d", want, got)
	}
	for i, e := range entries {
		if want, got := fmt.Sprintf("message %d", i), e.Message; want != got {
			t.Fatalf("unexpected entry %d: want %q got %q", i, want, got)
		}
	}
}

func testCapacity(t *testing.T, factory StoreFactory) {
	s := factory(t, 3)
	for i := 0; i < 7; i++ {
		mustAppend(t, s, entry(i))
	}
	entries := mustEntries(t, s)
	if want, got := 3, len(entries); want != got {
		t.Fatalf("unexpected entry count: want %d got %d", want, got)
	}
	for i, e := range entries {
		if want, got := fmt.Sprintf("message %d", i+4), e.Message; want != got {
			t.Fatalf("unexpected entry %d: want %q got %q", i, want, got)
		}
	}
}

func testClear(t *testing.T, factory StoreFactory) {
	s := factory(t, 3)
	for i := 0; i < 5; i++ {
		mustAppend(t, s, entry(i))
	}
	if err := s.Clear(context.Background()); err != nil {
		t.Fatalf("clear: %v", err)
	}
	if want, got := 0, len(mustEntries(t, s)); want != got {
		t.Fatalf("unexpected entry count after clear: want %d got %d", want, got)
	}

	mustAppend(t, s, entry(42))
	entries := mustEntries(t, s)
	if len(entries) != 1 || entries[0].Message != "message 42" {
		t.Fatalf("unexpected entries after clear and append: %+v", entries)
	}
}

func testFields(t *testing.T, factory StoreFactory) {
	s := factory(t, 3)
	ts := time.Date(2025, 3, 26, 12, 30, 0, 0, time.UTC)
	in := consolelog.LogEntry{Type: consolelog.TypeException, Message: "boom", StackTrace: "main.go:12", Timestamp: ts}
	mustAppend(t, s, in)

	entries := mustEntries(t, s)
	if want, got := 1, len(entries); want != got {
		t.Fatalf("unexpected entry count: want %d got %d", want, got)
	}
	out := entries[0]
	if out.Type != in.Type || out.Message != in.Message || out.StackTrace != in.StackTrace {
		t.Fatalf("entry changed: want %+v got %+v", in, out)
	}
	if !out.Timestamp.Equal(in.Timestamp) {
		t.Fatalf("timestamp changed: want %s got %s", in.Timestamp, out.Timestamp)
	}
}

func testConcurrentAppends(t *testing.T, factory StoreFactory) {
	const producers, perProducer = 8, 25
	s := factory(t, producers*perProducer)

	var wg sync.WaitGroup
	for p := 0; p < producers; p++ {
		wg.Add(1)
		go func(p int) {
			defer wg.Done()
			for i := 0; i < perProducer; i++ {
				if err := s.Append(context.Background(), entry(p*perProducer+i)); err != nil {
					t.Errorf("append: %v", err)
					return
				}
			}
		}(p)
	}
	wg.Wait()

	if want, got := producers*perProducer, len(mustEntries(t, s)); want != got {
		t.Fatalf("unexpected entry count: want %d got %d", want, got)
	}
}
