package diagnostics

import (
	"context"
	"time"

	"github.com/ggoodman/mcp-bridge-go/internal/future"
	"github.com/ggoodman/mcp-bridge-go/mcpservice"
	"github.com/jonboulle/clockwork"
)

// ToolName is the name the diagnostics tool registers under.
const ToolName = "get_compile_errors"

// DefaultTimeout bounds a single refresh.
const DefaultTimeout = 5 * time.Minute

// Args are the arguments of get_compile_errors.
type Args struct {
	IncludeWarnings *bool `json:"includeWarnings,omitempty" jsonschema:"description=Include warnings in addition to errors (default: true),default=true"`
}

// Result is returned by get_compile_errors.
type Result struct {
	HasErrors    bool             `json:"hasErrors"`
	ErrorCount   int              `json:"errorCount"`
	WarningCount int              `json:"warningCount"`
	Messages     []CompileMessage `json:"messages"`
}

// NewResult counts msgs, dropping warnings unless includeWarnings is set.
func NewResult(msgs []CompileMessage, includeWarnings bool) *Result {
	r := &Result{Messages: []CompileMessage{}}
	for _, m := range msgs {
		if m.Type != TypeError && !includeWarnings {
			continue
		}
		r.Messages = append(r.Messages, m)
		switch m.Type {
		case TypeError:
			r.ErrorCount++
		case TypeWarning:
			r.WarningCount++
		}
	}
	r.HasErrors = r.ErrorCount > 0
	return r
}

type toolConfig struct {
	clock   clockwork.Clock
	timeout time.Duration
}

// Option configures the tool.
type Option func(*toolConfig)

// WithClock sets the clock driving the refresh timeout.
func WithClock(c clockwork.Clock) Option {
	return func(cfg *toolConfig) { cfg.clock = c }
}

// WithTimeout overrides DefaultTimeout.
func WithTimeout(d time.Duration) Option {
	return func(cfg *toolConfig) { cfg.timeout = d }
}

// NewTool returns get_compile_errors. Each call refreshes cache on its own
// goroutine; refreshes are bound to ctx, the server lifetime.
func NewTool(ctx context.Context, cache *Cache, opts ...Option) mcpservice.Tool {
	cfg := toolConfig{clock: clockwork.NewRealClock(), timeout: DefaultTimeout}
	for _, opt := range opts {
		opt(&cfg)
	}
	return mcpservice.NewTool(ToolName, func(_ context.Context, args Args) (any, error) {
		includeWarnings := args.IncludeWarnings == nil || *args.IncludeWarnings
		f := future.Race(ctx, cfg.clock, cfg.timeout, func(runCtx context.Context, f *future.Future[*Result]) {
			go func() {
				if err := cache.Refresh(runCtx); err != nil {
					_ = f.Reject(err)
					return
				}
				_ = f.Resolve(NewResult(cache.Messages(), includeWarnings))
			}()
		})
		return mcpservice.Defer(f), nil
	}, mcpservice.WithDescription(
		"Build and vet the workspace and return compile errors and warnings. "+
			"Returns error/warning counts and detailed messages with file paths and line numbers. "+
			"Call this after modifying Go sources to check for compilation issues.",
	))
}
