// Package dispatch bridges work from any goroutine onto one serialized
// execution context.
//
// Producers call Enqueue from anywhere. A single consumer calls Drain on its
// own schedule, typically through Run with a ticker supplied by the embedding
// application, and every task executes on that consumer in FIFO order.
package dispatch

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"runtime/debug"
	"sync"
	"time"

	"github.com/ggoodman/mcp-bridge-go/internal/metrics"
	"github.com/jonboulle/clockwork"
)

// Task is a unit of deferred work.
type Task func()

// Queue is a multi-producer, single-consumer FIFO of tasks.
type Queue struct {
	log     *slog.Logger
	metrics *metrics.Metrics

	mu      sync.Mutex
	pending []Task
}

// Option configures a Queue.
type Option func(*Queue)

// WithLogger sets the logger used to report panicking tasks.
func WithLogger(log *slog.Logger) Option {
	return func(q *Queue) { q.log = log }
}

// WithMetrics records queue depth and drain statistics.
func WithMetrics(m *metrics.Metrics) Option {
	return func(q *Queue) { q.metrics = m }
}

// New creates an empty queue.
func New(opts ...Option) *Queue {
	q := &Queue{log: slog.New(slog.NewTextHandler(io.Discard, nil))}
	for _, opt := range opts {
		opt(q)
	}
	return q
}

// Enqueue appends task to the queue. It never blocks on the consumer.
func (q *Queue) Enqueue(task Task) {
	if task == nil {
		return
	}
	q.mu.Lock()
	q.pending = append(q.pending, task)
	n := len(q.pending)
	q.mu.Unlock()

	q.metrics.SetQueueDepth(n)
}

// Len returns the number of tasks waiting for the next Drain.
func (q *Queue) Len() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.pending)
}

// Drain executes every task that was queued when it was called, oldest first,
// on the calling goroutine. Tasks enqueued while Drain runs wait for the next
// call. A panicking task is recovered and logged and the remaining tasks still
// run. Drain returns the number of tasks executed.
//
// Drain must only be called from one goroutine at a time.
func (q *Queue) Drain() int {
	q.mu.Lock()
	batch := q.pending
	q.pending = nil
	q.mu.Unlock()

	if len(batch) == 0 {
		return 0
	}

	start := time.Now()
	panics := 0
	for i, task := range batch {
		if !q.run(task) {
			panics++
		}
		batch[i] = nil
	}

	q.metrics.ObserveDrain(len(batch), panics, time.Since(start))
	q.metrics.SetQueueDepth(q.Len())
	return len(batch)
}

func (q *Queue) run(task Task) (ok bool) {
	defer func() {
		if r := recover(); r != nil {
			ok = false
			q.log.Error("dispatch.task.panic",
				slog.String("err", fmt.Sprint(r)),
				slog.String("stack", string(debug.Stack())),
			)
		}
	}()
	task()
	return true
}

// Run drains the queue on every tick until ctx is done. It drains one last
// time before returning ctx.Err() so tasks queued before shutdown still run.
// Run stops the ticker on return.
func (q *Queue) Run(ctx context.Context, ticker clockwork.Ticker) error {
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			q.Drain()
			return ctx.Err()
		case <-ticker.Chan():
			q.Drain()
		}
	}
}

// Submit enqueues fn and waits for it to run on the consumer, returning its
// result. If ctx ends first, Submit returns ctx.Err(); fn may still run later
// and its result is discarded.
func Submit[T any](ctx context.Context, q *Queue, fn func() T) (T, error) {
	ch := make(chan T, 1)
	q.Enqueue(func() { ch <- fn() })

	select {
	case v := <-ch:
		return v, nil
	case <-ctx.Done():
		var zero T
		return zero, ctx.Err()
	}
}
