package consolelog

import (
	"context"
	"sync"
)

// Store keeps the most recent entries up to a fixed capacity, dropping the
// oldest entry when full. Entries are returned oldest first.
type Store interface {
	Append(ctx context.Context, e LogEntry) error
	Entries(ctx context.Context) ([]LogEntry, error)
	Clear(ctx context.Context) error
}

var _ Store = (*MemoryStore)(nil)

// MemoryStore is a Store backed by a ring buffer.
type MemoryStore struct {
	mu    sync.Mutex
	buf   []LogEntry
	start int
	n     int
}

// NewMemoryStore returns a ring buffer holding up to capacity entries. A
// non-positive capacity selects DefaultCapacity.
func NewMemoryStore(capacity int) *MemoryStore {
	if capacity <= 0 {
		capacity = DefaultCapacity
	}
	return &MemoryStore{buf: make([]LogEntry, capacity)}
}

func (s *MemoryStore) Append(_ context.Context, e LogEntry) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.n < len(s.buf) {
		s.buf[(s.start+s.n)%len(s.buf)] = e
		s.n++
		return nil
	}
	s.buf[s.start] = e
	s.start = (s.start + 1) % len(s.buf)
	return nil
}

func (s *MemoryStore) Entries(_ context.Context) ([]LogEntry, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	out := make([]LogEntry, s.n)
	for i := 0; i < s.n; i++ {
		out[i] = s.buf[(s.start+i)%len(s.buf)]
	}
	return out, nil
}

func (s *MemoryStore) Clear(_ context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	clear(s.buf)
	s.start, s.n = 0, 0
	return nil
}
