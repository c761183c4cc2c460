package consolelog

import (
	"context"
	"fmt"
	"slices"
	"strings"

	"github.com/ggoodman/mcp-bridge-go/mcpservice"
)

// ToolName is the name the console log tool registers under.
const ToolName = "get_console_logs"

const defaultMaxCount = 100

// Args are the arguments of get_console_logs.
type Args struct {
	LogTypes []LogType `json:"logTypes,omitempty" jsonschema:"description=Log types to include. If omitted all types are returned."`
	MaxCount *int      `json:"maxCount,omitempty" jsonschema:"description=Maximum number of entries to return taken from the most recent (default: 100),default=100"`
	Filter   string    `json:"filter,omitempty" jsonschema:"description=Return only entries whose message contains this string."`
}

// Result is returned by get_console_logs. TotalCount counts every stored
// entry before filtering.
type Result struct {
	TotalCount    int        `json:"totalCount"`
	ReturnedCount int        `json:"returnedCount"`
	Logs          []LogEntry `json:"logs"`
}

// NewTool returns the get_console_logs tool reading from store.
func NewTool(store Store) mcpservice.Tool {
	return mcpservice.NewTool(ToolName, func(ctx context.Context, args Args) (any, error) {
		return Query(ctx, store, args)
	}, mcpservice.WithDescription(
		"Get log messages captured from the bridge (errors, warnings and logs). "+
			"Returns cached entries since the bridge started. "+
			"Supports filtering by log type and message content.",
	))
}

// Query applies args to the entries of store.
func Query(ctx context.Context, store Store, args Args) (*Result, error) {
	for _, lt := range args.LogTypes {
		if !slices.Contains(LogTypes, lt) {
			return nil, fmt.Errorf("unknown log type %q", lt)
		}
	}
	maxCount := defaultMaxCount
	if args.MaxCount != nil {
		maxCount = *args.MaxCount
	}
	if maxCount < 0 {
		return nil, fmt.Errorf("maxCount must not be negative, got %d", maxCount)
	}

	all, err := store.Entries(ctx)
	if err != nil {
		return nil, fmt.Errorf("read console logs: %w", err)
	}

	filtered := make([]LogEntry, 0, len(all))
	for _, e := range all {
		if len(args.LogTypes) > 0 && !slices.Contains(args.LogTypes, e.Type) {
			continue
		}
		if args.Filter != "" && !strings.Contains(e.Message, args.Filter) {
			continue
		}
		filtered = append(filtered, e)
	}
	if len(filtered) > maxCount {
		filtered = filtered[len(filtered)-maxCount:]
	}

	return &Result{TotalCount: len(all), ReturnedCount: len(filtered), Logs: filtered}, nil
}
