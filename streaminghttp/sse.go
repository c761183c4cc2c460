package streaminghttp

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"sync"
	"sync/atomic"
)

// lockedWriteFlusher wraps an io.Writer + http.Flusher with a mutex and an optional context.
// It serializes concurrent writes/flushes and avoids writing after ctx is canceled.
type lockedWriteFlusher struct {
	io.Writer
	http.Flusher
	mu  sync.Mutex
	ctx context.Context
}

func (l *lockedWriteFlusher) Write(p []byte) (int, error) {
	if l.ctx != nil && l.ctx.Err() != nil {
		return 0, l.ctx.Err()
	}
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.ctx != nil && l.ctx.Err() != nil {
		return 0, l.ctx.Err()
	}
	return l.Writer.Write(p)
}

func (l *lockedWriteFlusher) Flush() {
	if l.ctx != nil && l.ctx.Err() != nil {
		return
	}
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.ctx != nil && l.ctx.Err() != nil {
		return
	}
	l.Flusher.Flush()
}

// sseWriter frames payloads as Server-Sent Events of type "message". Event
// ids start at 1 and increase by one per event written through the writer.
type sseWriter struct {
	wf   *lockedWriteFlusher
	next atomic.Int64
}

func newSSEWriter(wf *lockedWriteFlusher) *sseWriter {
	return &sseWriter{wf: wf}
}

// WriteEvent writes one event carrying payload and flushes it.
func (s *sseWriter) WriteEvent(payload []byte) error {
	id := s.next.Add(1)
	if _, err := fmt.Fprintf(s.wf, "event: message\nid: %s\n", strconv.FormatInt(id, 10)); err != nil {
		return fmt.Errorf("failed to write SSE event header: %w", err)
	}
	if _, err := s.wf.Write([]byte("data: ")); err != nil {
		return fmt.Errorf("failed to write SSE data prefix: %w", err)
	}
	if _, err := s.wf.Write(payload); err != nil {
		return fmt.Errorf("failed to write SSE payload: %w", err)
	}
	if _, err := s.wf.Write([]byte("\n\n")); err != nil {
		return fmt.Errorf("failed to write SSE frame terminator: %w", err)
	}
	s.wf.Flush()
	return nil
}

func setSSEHeaders(h http.Header) {
	h.Set("Content-Type", eventStreamMediaType.String())
	h.Set("Cache-Control", "no-cache")
	h.Set("Connection", "keep-alive")
	h.Set("X-Accel-Buffering", "no")
}
