package engine

import (
	"context"
	"encoding/json"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/ggoodman/mcp-bridge-go/internal/future"
	"github.com/ggoodman/mcp-bridge-go/internal/jsonrpc"
	"github.com/ggoodman/mcp-bridge-go/mcp"
	"github.com/ggoodman/mcp-bridge-go/mcpservice"
	"github.com/ggoodman/mcp-bridge-go/sessions"
)

func newTestRouter(t *testing.T, tools ...mcpservice.Tool) *Router {
	t.Helper()
	return NewRouter(sessions.New(), mcpservice.NewRegistry(tools...))
}

func request(id any, method string, params any) *jsonrpc.Request {
	req := &jsonrpc.Request{JSONRPCVersion: jsonrpc.ProtocolVersion, Method: method}
	if id != nil {
		req.ID = jsonrpc.NewRequestID(id)
	}
	if params != nil {
		b, _ := json.Marshal(params)
		req.Params = b
	}
	return req
}

func mustRoute(t *testing.T, r *Router, req *jsonrpc.Request) *jsonrpc.Response {
	t.Helper()
	rep := r.Route(context.Background(), req)
	if rep == nil {
		t.Fatalf("expected a reply for %s", req.Method)
	}
	resp := rep.Wait(context.Background())
	if resp == nil {
		t.Fatalf("expected a response for %s", req.Method)
	}
	return resp
}

func handshake(t *testing.T, r *Router) {
	t.Helper()
	resp := mustRoute(t, r, request(0, "initialize", map[string]any{
		"protocolVersion": "2025-03-26",
		"clientInfo":      map[string]any{"name": "test-client", "version": "0.0.1"},
	}))
	if resp.Error != nil {
		t.Fatalf("initialize failed: %+v", resp.Error)
	}
	if rep := r.Route(context.Background(), request(nil, "notifications/initialized", nil)); rep != nil {
		t.Fatalf("initialized notification produced a reply")
	}
}

func TestGatingBeforeInitialize(t *testing.T) {
	for _, method := range []string{"tools/list", "tools/call", "resources/list", "notifications/initialized"} {
		t.Run(method, func(t *testing.T) {
			r := newTestRouter(t)
			rep := r.Route(context.Background(), request(2, method, nil))
			if rep == nil {
				t.Fatalf("expected a reply")
			}
			resp := rep.Wait(context.Background())
			if resp.Error == nil {
				t.Fatalf("expected an error, got result %s", resp.Result)
			}
			if want, got := jsonrpc.ErrorCodeInvalidRequest, resp.Error.Code; want != got {
				t.Fatalf("unexpected code: want %d got %d", want, got)
			}
			if want, got := "Server not initialized. Send 'initialize' first.", resp.Error.Message; want != got {
				t.Fatalf("unexpected message: want %q got %q", want, got)
			}
			if want, got := sessions.StateUninitialized, r.Session().State(); want != got {
				t.Fatalf("session state changed: want %s got %s", want, got)
			}
		})
	}
}

func TestPingBeforeInitialize(t *testing.T) {
	r := newTestRouter(t)
	resp := mustRoute(t, r, request(1, "ping", nil))
	b, err := json.Marshal(resp)
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}
	if want, got := `{"jsonrpc":"2.0","id":1,"result":{}}`, string(b); want != got {
		t.Fatalf("unexpected response:\nwant %s\ngot  %s", want, got)
	}
}

func TestHandshake(t *testing.T) {
	r := newTestRouter(t)
	resp := mustRoute(t, r, request(1, "initialize", map[string]any{
		"protocolVersion": "2024-11-05",
		"clientInfo":      map[string]any{"name": "c", "version": "1"},
		"capabilities":    map[string]any{},
	}))
	if resp.Error != nil {
		t.Fatalf("initialize failed: %+v", resp.Error)
	}
	var res mcp.InitializeResult
	if err := json.Unmarshal(resp.Result, &res); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if want, got := "2024-11-05", res.ProtocolVersion; want != got {
		t.Fatalf("unexpected protocol version: want %q got %q", want, got)
	}
	if want, got := DefaultServerInfo, res.ServerInfo; want != got {
		t.Fatalf("unexpected server info: want %+v got %+v", want, got)
	}
	if res.Capabilities.Tools == nil || res.Capabilities.Tools.ListChanged {
		t.Fatalf("unexpected tools capability: %+v", res.Capabilities.Tools)
	}
	if want, got := sessions.StateInitializing, r.Session().State(); want != got {
		t.Fatalf("unexpected state: want %s got %s", want, got)
	}

	if rep := r.Route(context.Background(), request(nil, "notifications/initialized", nil)); rep != nil {
		t.Fatalf("notification produced a reply")
	}
	if want, got := sessions.StateReady, r.Session().State(); want != got {
		t.Fatalf("unexpected state: want %s got %s", want, got)
	}
}

func TestInitializeUnknownVersionFallsBack(t *testing.T) {
	r := newTestRouter(t)
	resp := mustRoute(t, r, request(1, "initialize", map[string]any{"protocolVersion": "1999-01-01"}))
	var res mcp.InitializeResult
	if err := json.Unmarshal(resp.Result, &res); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if want, got := mcp.DefaultProtocolVersion, res.ProtocolVersion; want != got {
		t.Fatalf("unexpected protocol version: want %q got %q", want, got)
	}
}

func TestInitializeInvalidParams(t *testing.T) {
	r := newTestRouter(t)
	req := request(1, "initialize", nil)
	req.Params = json.RawMessage(`{"protocolVersion":12}`)
	resp := mustRoute(t, r, req)
	if resp.Error == nil || resp.Error.Code != jsonrpc.ErrorCodeInvalidParams {
		t.Fatalf("expected InvalidParams, got %+v", resp)
	}
	if want, got := sessions.StateUninitialized, r.Session().State(); want != got {
		t.Fatalf("unexpected state: want %s got %s", want, got)
	}
}

func TestReinitializeRejectedByRouter(t *testing.T) {
	r := newTestRouter(t)
	handshake(t, r)
	resp := mustRoute(t, r, request(9, "initialize", map[string]any{"protocolVersion": "2025-03-26"}))
	if resp.Error == nil || resp.Error.Code != jsonrpc.ErrorCodeInvalidRequest {
		t.Fatalf("expected InvalidRequest, got %+v", resp)
	}
	if want, got := sessions.StateReady, r.Session().State(); want != got {
		t.Fatalf("state reverted: want %s got %s", want, got)
	}
}

func TestMethodNotFound(t *testing.T) {
	r := newTestRouter(t)
	handshake(t, r)
	resp := mustRoute(t, r, request(3, "resources/list", nil))
	if resp.Error == nil {
		t.Fatalf("expected error")
	}
	if want, got := jsonrpc.ErrorCodeMethodNotFound, resp.Error.Code; want != got {
		t.Fatalf("unexpected code: want %d got %d", want, got)
	}
	if !strings.Contains(resp.Error.Message, "resources/list") {
		t.Fatalf("message does not name the method: %q", resp.Error.Message)
	}
}

func TestNotificationsNeverReply(t *testing.T) {
	r := newTestRouter(t)
	if rep := r.Route(context.Background(), request(nil, "tools/list", nil)); rep != nil {
		t.Fatalf("gated notification produced a reply")
	}
	handshake(t, r)
	if rep := r.Route(context.Background(), request(nil, "nope", nil)); rep != nil {
		t.Fatalf("unknown notification produced a reply")
	}
	if rep := r.Route(context.Background(), request(nil, "ping", nil)); rep != nil {
		t.Fatalf("ping notification produced a reply")
	}
}

func TestToolsList(t *testing.T) {
	r := newTestRouter(t,
		mcpservice.NewRawTool("b_tool", "second", nil, nil),
		mcpservice.NewRawTool("a_tool", "first", json.RawMessage(`{"type":"object","properties":{"x":{"type":"string"}}}`), nil),
	)
	handshake(t, r)

	resp := mustRoute(t, r, request(4, "tools/list", nil))
	var res struct {
		Tools []struct {
			Name        string          `json:"name"`
			Description string          `json:"description"`
			InputSchema json.RawMessage `json:"inputSchema"`
		} `json:"tools"`
	}
	if err := json.Unmarshal(resp.Result, &res); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if want, got := 2, len(res.Tools); want != got {
		t.Fatalf("unexpected tool count: want %d got %d", want, got)
	}
	if want, got := "a_tool", res.Tools[0].Name; want != got {
		t.Fatalf("unexpected first tool: want %q got %q", want, got)
	}
	if want, got := "first", res.Tools[0].Description; want != got {
		t.Fatalf("unexpected description: want %q got %q", want, got)
	}
	if !strings.Contains(string(res.Tools[0].InputSchema), `"x"`) {
		t.Fatalf("schema not passed through: %s", res.Tools[0].InputSchema)
	}
}

func decodeToolResult(t *testing.T, resp *jsonrpc.Response) mcp.CallToolResult {
	t.Helper()
	if resp.Error != nil {
		t.Fatalf("tool call produced a protocol error: %+v", resp.Error)
	}
	var res mcp.CallToolResult
	if err := json.Unmarshal(resp.Result, &res); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if want, got := 1, len(res.Content); want != got {
		t.Fatalf("unexpected content blocks: want %d got %d", want, got)
	}
	return res
}

func TestToolsCall(t *testing.T) {
	var gotArgs string
	r := newTestRouter(t,
		mcpservice.NewRawTool("check_status", "", nil, func(ctx context.Context, args json.RawMessage) (any, error) {
			gotArgs = string(args)
			return true, nil
		}),
		mcpservice.NewRawTool("broken", "", nil, func(ctx context.Context, args json.RawMessage) (any, error) {
			return nil, errors.New("the tool broke")
		}),
	)
	handshake(t, r)

	t.Run("success", func(t *testing.T) {
		res := decodeToolResult(t, mustRoute(t, r, request(5, "tools/call", map[string]any{"name": "check_status"})))
		if res.IsError {
			t.Fatalf("unexpected isError")
		}
		if want, got := "true", res.Content[0].Text; want != got {
			t.Fatalf("unexpected text: want %q got %q", want, got)
		}
		if want := "{}"; want != gotArgs {
			t.Fatalf("arguments did not default to {}: %q", gotArgs)
		}
	})

	t.Run("tool failure", func(t *testing.T) {
		res := decodeToolResult(t, mustRoute(t, r, request(6, "tools/call", map[string]any{"name": "broken", "arguments": map[string]any{}})))
		if !res.IsError {
			t.Fatalf("expected isError")
		}
		if want, got := "the tool broke", res.Content[0].Text; want != got {
			t.Fatalf("unexpected text: want %q got %q", want, got)
		}
	})

	t.Run("unknown tool", func(t *testing.T) {
		res := decodeToolResult(t, mustRoute(t, r, request(7, "tools/call", map[string]any{"name": "does_not_exist"})))
		if !res.IsError {
			t.Fatalf("expected isError")
		}
		if !strings.Contains(res.Content[0].Text, "does_not_exist") {
			t.Fatalf("message does not name the tool: %q", res.Content[0].Text)
		}
	})

	t.Run("missing name", func(t *testing.T) {
		resp := mustRoute(t, r, request(8, "tools/call", map[string]any{"arguments": map[string]any{}}))
		if resp.Error == nil || resp.Error.Code != jsonrpc.ErrorCodeInvalidParams {
			t.Fatalf("expected InvalidParams, got %+v", resp)
		}
	})

	t.Run("arguments not an object", func(t *testing.T) {
		resp := mustRoute(t, r, request(9, "tools/call", map[string]any{"name": "check_status", "arguments": "x"}))
		if resp.Error == nil || resp.Error.Code != jsonrpc.ErrorCodeInvalidParams {
			t.Fatalf("expected InvalidParams, got %+v", resp)
		}
	})
}

func TestToolsCallDeferred(t *testing.T) {
	f := future.New[string]()
	r := newTestRouter(t, mcpservice.NewRawTool("slow", "", nil, func(ctx context.Context, args json.RawMessage) (any, error) {
		return mcpservice.Defer(f), nil
	}))
	handshake(t, r)

	rep := r.Route(context.Background(), request(10, "tools/call", map[string]any{"name": "slow"}))
	if rep == nil {
		t.Fatalf("expected a reply")
	}
	if !IsDeferred(rep) {
		t.Fatalf("expected a deferred reply")
	}

	go func() {
		time.Sleep(10 * time.Millisecond)
		_ = f.Resolve("done")
	}()

	res := decodeToolResult(t, rep.Wait(context.Background()))
	if res.IsError {
		t.Fatalf("unexpected isError")
	}
	if want, got := `"done"`, res.Content[0].Text; want != got {
		t.Fatalf("unexpected text: want %q got %q", want, got)
	}
}

func TestToolsCallDeferredFailure(t *testing.T) {
	f := future.New[string]()
	_ = f.Reject(&future.TimeoutError{After: 5 * time.Minute})
	r := newTestRouter(t, mcpservice.NewRawTool("slow", "", nil, func(ctx context.Context, args json.RawMessage) (any, error) {
		return mcpservice.Defer(f), nil
	}))
	handshake(t, r)

	res := decodeToolResult(t, r.Route(context.Background(), request(11, "tools/call", map[string]any{"name": "slow"})).Wait(context.Background()))
	if !res.IsError {
		t.Fatalf("expected isError")
	}
	if !strings.Contains(res.Content[0].Text, "timed out") {
		t.Fatalf("unexpected text: %q", res.Content[0].Text)
	}
}
