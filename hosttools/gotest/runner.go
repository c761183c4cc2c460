package gotest

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os/exec"
	"strings"
	"sync"
)

// Request selects the tests of one run.
type Request struct {
	// Packages are go package patterns. Empty means ./...
	Packages []string
	// Run is passed to -run when not empty.
	Run   string
	Short bool
}

func (r Request) args() []string {
	args := []string{"test", "-json"}
	if r.Short {
		args = append(args, "-short")
	}
	if r.Run != "" {
		args = append(args, "-run="+r.Run)
	}
	if len(r.Packages) == 0 {
		return append(args, "./...")
	}
	return append(args, r.Packages...)
}

func (r Request) validate() error {
	for _, p := range r.Packages {
		if p == "" || strings.HasPrefix(p, "-") {
			return fmt.Errorf("invalid package pattern %q", p)
		}
	}
	return nil
}

// Callbacks receive the progress of a run. TestFinished is called once per
// finished test or package, RunFinished exactly once after the last result.
// A run whose tests fail still finishes with a nil error.
type Callbacks struct {
	TestFinished func(TestResult)
	RunFinished  func(error)
}

// Runner starts test runs. Start returns once the run is under way; results
// arrive on the callbacks, possibly on another goroutine. Cancelling ctx
// aborts the run.
type Runner interface {
	Start(ctx context.Context, req Request, cb Callbacks) error
}

var _ Runner = (*CommandRunner)(nil)

// CommandRunner runs `go test -json` in Dir.
type CommandRunner struct {
	Dir string
	// GoBin defaults to "go" from PATH.
	GoBin string
	Log   *slog.Logger
}

func (r *CommandRunner) Start(ctx context.Context, req Request, cb Callbacks) error {
	if err := req.validate(); err != nil {
		return err
	}
	bin := r.GoBin
	if bin == "" {
		bin = "go"
	}
	log := r.Log
	if log == nil {
		log = slog.New(slog.DiscardHandler)
	}

	cmd := exec.CommandContext(ctx, bin, req.args()...)
	cmd.Dir = r.Dir
	stdout, err := cmd.StdoutPipe()
	if err != nil {
		return fmt.Errorf("go test stdout: %w", err)
	}
	stderr := &tailBuffer{limit: 8 * 1024}
	cmd.Stderr = stderr

	if err := cmd.Start(); err != nil {
		return fmt.Errorf("start go test: %w", err)
	}
	log.InfoContext(ctx, "gotest.run.start", slog.Any("args", cmd.Args[1:]))

	go func() {
		var packages int
		parseErr := Parse(stdout, func(res TestResult) {
			if res.Test == "" {
				packages++
			}
			if cb.TestFinished != nil {
				cb.TestFinished(res)
			}
		})
		waitErr := cmd.Wait()

		err := runError(ctx, packages, parseErr, waitErr, stderr.String())
		if err != nil {
			log.ErrorContext(ctx, "gotest.run.err", slog.String("err", err.Error()))
		} else {
			log.InfoContext(ctx, "gotest.run.ok", slog.Int("packages", packages))
		}
		if cb.RunFinished != nil {
			cb.RunFinished(err)
		}
	}()
	return nil
}

// runError decides whether a finished go test process failed as a run. A
// non-zero exit after package results only means some tests failed.
func runError(ctx context.Context, packages int, parseErr, waitErr error, stderr string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if parseErr != nil {
		return parseErr
	}
	if waitErr == nil {
		return nil
	}
	var exitErr *exec.ExitError
	if errors.As(waitErr, &exitErr) && packages > 0 {
		return nil
	}
	if msg := strings.TrimSpace(stderr); msg != "" {
		return fmt.Errorf("go test: %w: %s", waitErr, msg)
	}
	return fmt.Errorf("go test: %w", waitErr)
}

// tailBuffer keeps the last limit bytes written to it.
type tailBuffer struct {
	mu    sync.Mutex
	buf   bytes.Buffer
	limit int
}

func (t *tailBuffer) Write(p []byte) (int, error) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.buf.Write(p)
	if over := t.buf.Len() - t.limit; over > 0 {
		t.buf.Next(over)
	}
	return len(p), nil
}

func (t *tailBuffer) String() string {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.buf.String()
}
