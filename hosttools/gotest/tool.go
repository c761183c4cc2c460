package gotest

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/ggoodman/mcp-bridge-go/internal/future"
	"github.com/ggoodman/mcp-bridge-go/mcpservice"
	"github.com/jonboulle/clockwork"
)

const (
	RunTestsToolName      = "run_tests"
	RunShortTestsToolName = "run_short_tests"

	// DefaultTimeout bounds a single run.
	DefaultTimeout = 5 * time.Minute
)

// Args are the arguments of run_tests and run_short_tests.
type Args struct {
	Packages []string `json:"packages,omitempty" jsonschema:"description=Go package patterns to test (default: ./...)"`
	Run      string   `json:"run,omitempty" jsonschema:"description=Only run tests matching this regular expression (go test -run)"`
}

type toolConfig struct {
	clock   clockwork.Clock
	timeout time.Duration
}

// Option configures the test tools.
type Option func(*toolConfig)

// WithClock sets the clock driving the run timeout.
func WithClock(c clockwork.Clock) Option {
	return func(cfg *toolConfig) { cfg.clock = c }
}

// WithTimeout overrides DefaultTimeout.
func WithTimeout(d time.Duration) Option {
	return func(cfg *toolConfig) { cfg.timeout = d }
}

// NewTools returns run_tests and run_short_tests. Runs are bound to ctx, the
// server lifetime: when it ends every pending run is cancelled.
func NewTools(ctx context.Context, runner Runner, opts ...Option) []mcpservice.Tool {
	cfg := toolConfig{clock: clockwork.NewRealClock(), timeout: DefaultTimeout}
	for _, opt := range opts {
		opt(&cfg)
	}
	return []mcpservice.Tool{
		newTool(ctx, runner, cfg, RunTestsToolName,
			"Run every Go test of the workspace and return a summary with pass/fail/skip counts and details of each failure.",
			false),
		newTool(ctx, runner, cfg, RunShortTestsToolName,
			"Run the Go tests of the workspace in -short mode and return a summary with pass/fail/skip counts and details of each failure.",
			true),
	}
}

func newTool(ctx context.Context, runner Runner, cfg toolConfig, name, description string, short bool) mcpservice.Tool {
	return mcpservice.NewTool(name, func(_ context.Context, args Args) (any, error) {
		req := Request{Packages: args.Packages, Run: args.Run, Short: short}
		if err := req.validate(); err != nil {
			return nil, err
		}
		f := start(ctx, runner, cfg, req)
		return timeoutMessage{Deferred: mcpservice.Defer(f), timeout: cfg.timeout}, nil
	}, mcpservice.WithDescription(description))
}

// start races the run against cfg.timeout. The run's context is cancelled as
// soon as the future settles, which stops go test after a timeout.
func start(ctx context.Context, runner Runner, cfg toolConfig, req Request) *future.Future[*TestResultSummary] {
	return future.Race(ctx, cfg.clock, cfg.timeout, func(runCtx context.Context, f *future.Future[*TestResultSummary]) {
		var (
			mu      sync.Mutex
			results []TestResult
		)
		err := runner.Start(runCtx, req, Callbacks{
			TestFinished: func(r TestResult) {
				mu.Lock()
				results = append(results, r)
				mu.Unlock()
			},
			RunFinished: func(err error) {
				if err != nil {
					_ = f.Reject(err)
					return
				}
				mu.Lock()
				summary := Summarize(results)
				mu.Unlock()
				_ = f.Resolve(summary)
			},
		})
		if err != nil {
			_ = f.Reject(err)
		}
	})
}

// timeoutMessage rewrites a lost race into the message clients expect.
type timeoutMessage struct {
	mcpservice.Deferred
	timeout time.Duration
}

func (t timeoutMessage) Await(ctx context.Context) (any, error) {
	v, err := t.Deferred.Await(ctx)
	if errors.Is(err, future.ErrTimeout) {
		return nil, fmt.Errorf("Task was timeout (%s)", describe(t.timeout))
	}
	return v, err
}

func describe(d time.Duration) string {
	if d >= time.Minute && d%time.Minute == 0 {
		n := int(d / time.Minute)
		if n == 1 {
			return "1 minute"
		}
		return fmt.Sprintf("%d minutes", n)
	}
	return d.String()
}
