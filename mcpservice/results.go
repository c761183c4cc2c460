package mcpservice

import (
	"encoding/json"
	"fmt"

	"github.com/ggoodman/mcp-bridge-go/mcp"
)

// TextResult returns a CallToolResult with a single text block.
func TextResult(s string) *mcp.CallToolResult {
	return &mcp.CallToolResult{Content: []mcp.ContentBlock{{Type: mcp.ContentTypeText, Text: s}}}
}

// Errorf returns an error CallToolResult with a single text block and IsError=true.
func Errorf(format string, a ...any) *mcp.CallToolResult {
	msg := fmt.Sprintf(format, a...)
	return &mcp.CallToolResult{Content: []mcp.ContentBlock{{Type: mcp.ContentTypeText, Text: msg}}, IsError: true}
}

// ErrorResult reports err as a failed tool invocation.
func ErrorResult(err error) *mcp.CallToolResult {
	return Errorf("%s", err.Error())
}

// ValueResult serializes v as JSON into a single text block. A value that
// cannot be serialized becomes an error result.
func ValueResult(v any) *mcp.CallToolResult {
	b, err := json.Marshal(v)
	if err != nil {
		return Errorf("failed to serialize tool result: %v", err)
	}
	return TextResult(string(b))
}

// Outcome converts the result of Registry.Execute into a tool result.
func Outcome(v any, err error) *mcp.CallToolResult {
	if err != nil {
		return ErrorResult(err)
	}
	return ValueResult(v)
}
