// Package hosttools assembles the tools the bridge exposes for its host
// workspace.
package hosttools

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/ggoodman/mcp-bridge-go/hosttools/consolelog"
	"github.com/ggoodman/mcp-bridge-go/hosttools/diagnostics"
	"github.com/ggoodman/mcp-bridge-go/hosttools/gotest"
	"github.com/ggoodman/mcp-bridge-go/hosttools/workspace"
	"github.com/ggoodman/mcp-bridge-go/mcpservice"
	"github.com/jonboulle/clockwork"
)

// CheckStatusToolName is the name of the liveness tool.
const CheckStatusToolName = "check_status"

// NewCheckStatusTool returns a tool that always reports true. Clients call it
// to confirm the bridge is reachable and initialized.
func NewCheckStatusTool() mcpservice.Tool {
	return mcpservice.NewTool(CheckStatusToolName, func(context.Context, struct{}) (any, error) {
		return true, nil
	}, mcpservice.WithDescription("Check whether the MCP bridge is running. Always returns true."))
}

// Deps are the collaborators of the host tools. Nil members leave the
// corresponding tools unregistered.
type Deps struct {
	// Ctx bounds every long-running tool. It should end when the server stops.
	Ctx context.Context

	Console     consolelog.Store
	Workspace   *workspace.Index
	Tests       gotest.Runner
	Diagnostics *diagnostics.Cache

	// Clock drives tool timeouts. Defaults to the real clock.
	Clock clockwork.Clock
	// ToolTimeout bounds test runs and diagnostics refreshes. Zero selects
	// each tool's default.
	ToolTimeout time.Duration
	Log         *slog.Logger
}

// Register adds check_status and every tool whose dependency is set to reg.
// A name that is already taken is an error.
func Register(reg *mcpservice.Registry, deps Deps) error {
	ctx := deps.Ctx
	if ctx == nil {
		ctx = context.Background()
	}
	clock := deps.Clock
	if clock == nil {
		clock = clockwork.NewRealClock()
	}

	tools := []mcpservice.Tool{NewCheckStatusTool()}
	if deps.Console != nil {
		tools = append(tools, consolelog.NewTool(deps.Console))
	}
	if deps.Workspace != nil {
		tools = append(tools, workspace.NewTool(deps.Workspace))
	}
	if deps.Tests != nil {
		opts := []gotest.Option{gotest.WithClock(clock)}
		if deps.ToolTimeout > 0 {
			opts = append(opts, gotest.WithTimeout(deps.ToolTimeout))
		}
		tools = append(tools, gotest.NewTools(ctx, deps.Tests, opts...)...)
	}
	if deps.Diagnostics != nil {
		opts := []diagnostics.Option{diagnostics.WithClock(clock)}
		if deps.ToolTimeout > 0 {
			opts = append(opts, diagnostics.WithTimeout(deps.ToolTimeout))
		}
		tools = append(tools, diagnostics.NewTool(ctx, deps.Diagnostics, opts...))
	}

	for _, t := range tools {
		if !reg.Register(t) {
			return fmt.Errorf("tool %q is already registered", t.Name())
		}
		if deps.Log != nil {
			deps.Log.Debug("hosttools.register", slog.String("tool", t.Name()))
		}
	}
	return nil
}
