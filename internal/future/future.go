// Package future provides a one-shot result cell that is settled exactly
// once, plus a helper that races a long-running operation against a timeout
// on a shared cancellation context.
package future

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/jonboulle/clockwork"
)

var (
	// ErrAlreadySettled is returned by Resolve and Reject once the future
	// holds a value or an error.
	ErrAlreadySettled = errors.New("future already settled")
	// ErrTimeout is matched by every TimeoutError.
	ErrTimeout = errors.New("timed out")
)

// TimeoutError rejects a future that lost the race against its deadline.
type TimeoutError struct {
	After time.Duration
}

func (e *TimeoutError) Error() string {
	return fmt.Sprintf("task timed out (%s)", e.After)
}

func (e *TimeoutError) Is(target error) bool { return target == ErrTimeout }

// Future is a single-assignment result cell. The first call to Resolve or
// Reject wins; later calls report ErrAlreadySettled and change nothing.
type Future[T any] struct {
	mu      sync.Mutex
	done    chan struct{}
	settled bool
	val     T
	err     error
}

// New returns an unsettled future.
func New[T any]() *Future[T] {
	return &Future[T]{done: make(chan struct{})}
}

// Resolve settles the future with v.
func (f *Future[T]) Resolve(v T) error {
	return f.settle(v, nil)
}

// Reject settles the future with err. A nil err is replaced with a generic
// error so a rejected future never looks successful.
func (f *Future[T]) Reject(err error) error {
	if err == nil {
		err = errors.New("future rejected")
	}
	var zero T
	return f.settle(zero, err)
}

func (f *Future[T]) settle(v T, err error) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.settled {
		return ErrAlreadySettled
	}
	f.settled = true
	f.val = v
	f.err = err
	close(f.done)
	return nil
}

// Done is closed once the future is settled.
func (f *Future[T]) Done() <-chan struct{} { return f.done }

// Settled reports whether Resolve or Reject has already won.
func (f *Future[T]) Settled() bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.settled
}

// Wait blocks until the future settles or ctx ends.
func (f *Future[T]) Wait(ctx context.Context) (T, error) {
	select {
	case <-f.done:
		f.mu.Lock()
		defer f.mu.Unlock()
		return f.val, f.err
	case <-ctx.Done():
		var zero T
		return zero, ctx.Err()
	}
}

// Race starts op with a context derived from ctx and returns the future op is
// expected to settle. A timer on clock rejects the future with a
// *TimeoutError after d, and cancellation of ctx rejects it with ctx.Err().
// Whichever settles first wins. Once the future settles, the context handed to
// op is cancelled so the losing side can stop its work.
func Race[T any](ctx context.Context, clock clockwork.Clock, d time.Duration, op func(ctx context.Context, f *Future[T])) *Future[T] {
	f := New[T]()
	opCtx, cancel := context.WithCancel(ctx)
	timer := clock.NewTimer(d)

	go func() {
		defer cancel()
		defer timer.Stop()
		select {
		case <-f.done:
		case <-timer.Chan():
			_ = f.Reject(&TimeoutError{After: d})
		case <-ctx.Done():
			_ = f.Reject(ctx.Err())
		}
	}()

	op(opCtx, f)
	return f
}
