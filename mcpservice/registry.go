package mcpservice

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sort"
	"sync"

	"github.com/ggoodman/mcp-bridge-go/mcp"
)

// ErrUnknownTool is matched by every *UnknownToolError.
var ErrUnknownTool = errors.New("unknown tool")

// UnknownToolError reports a tools/call for a name that was never registered.
type UnknownToolError struct {
	Name string
}

func (e *UnknownToolError) Error() string { return "Unknown tool: " + e.Name }

func (e *UnknownToolError) Is(target error) bool { return target == ErrUnknownTool }

// Registry maps unique tool names to tools. It is safe for concurrent use.
type Registry struct {
	mu    sync.RWMutex
	tools map[string]Tool
}

// NewRegistry returns a registry holding tools. Duplicates after the first
// occurrence of a name are dropped.
func NewRegistry(tools ...Tool) *Registry {
	r := &Registry{tools: make(map[string]Tool, len(tools))}
	for _, t := range tools {
		r.Register(t)
	}
	return r
}

// Register adds t. It returns false, keeping the existing tool, when the name
// is already taken.
func (r *Registry) Register(t Tool) bool {
	if t == nil {
		return false
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, exists := r.tools[t.Name()]; exists {
		return false
	}
	r.tools[t.Name()] = t
	return true
}

// Lookup returns the tool registered under name.
func (r *Registry) Lookup(name string) (Tool, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	t, ok := r.tools[name]
	return t, ok
}

// Len returns the number of registered tools.
func (r *Registry) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.tools)
}

// Tools returns every registered tool ordered by name.
func (r *Registry) Tools() []Tool {
	r.mu.RLock()
	out := make([]Tool, 0, len(r.tools))
	for _, t := range r.tools {
		out = append(out, t)
	}
	r.mu.RUnlock()

	sort.Slice(out, func(i, j int) bool { return out[i].Name() < out[j].Name() })
	return out
}

// Descriptors returns the tools/list view of the registry.
func (r *Registry) Descriptors() []mcp.Tool {
	tools := r.Tools()
	out := make([]mcp.Tool, 0, len(tools))
	for _, t := range tools {
		out = append(out, mcp.Tool{
			Name:        t.Name(),
			Description: t.Description(),
			InputSchema: t.InputSchema(),
		})
	}
	return out
}

// Execute runs the tool registered under name with args. An unknown name
// fails with *UnknownToolError. A panic inside the tool is returned as an
// error.
func (r *Registry) Execute(ctx context.Context, name string, args json.RawMessage) (res any, err error) {
	t, ok := r.Lookup(name)
	if !ok {
		return nil, &UnknownToolError{Name: name}
	}

	defer func() {
		if p := recover(); p != nil {
			res = nil
			err = fmt.Errorf("tool %s panicked: %v", name, p)
		}
	}()
	return t.Execute(ctx, args)
}
