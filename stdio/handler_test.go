package stdio

import (
	"bufio"
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/ggoodman/mcp-bridge-go/internal/dispatch"
	"github.com/ggoodman/mcp-bridge-go/internal/future"
	"github.com/ggoodman/mcp-bridge-go/internal/jsonrpc"
	"github.com/ggoodman/mcp-bridge-go/mcp"
	"github.com/ggoodman/mcp-bridge-go/mcpservice"
	"github.com/jonboulle/clockwork"
)

// testHarness encapsulates pipes and collected output for stdio handler tests.
type testHarness struct {
	t      *testing.T
	cancel context.CancelFunc
	stdinW *io.PipeWriter
	done   chan error

	outMu sync.Mutex
	lines []string
	added chan struct{}
}

func newHarness(t *testing.T, tools ...mcpservice.Tool) *testHarness {
	t.Helper()

	inR, inW := io.Pipe()
	outR, outW := io.Pipe()

	ctx, cancel := context.WithCancel(context.Background())
	q := dispatch.New()
	go func() { _ = q.Run(ctx, clockwork.NewRealClock().NewTicker(time.Millisecond)) }()

	h := New(q, mcpservice.NewRegistry(tools...),
		WithIO(inR, outW),
		WithLogger(slog.New(slog.NewTextHandler(io.Discard, nil))),
		WithServerInfo(mcp.ImplementationInfo{Name: "stdio-test", Version: "0.0.1"}),
	)

	th := &testHarness{t: t, cancel: cancel, stdinW: inW, done: make(chan error, 1), added: make(chan struct{}, 64)}
	go func() { th.done <- h.Serve(ctx) }()

	go func() {
		sc := bufio.NewScanner(outR)
		for sc.Scan() {
			th.outMu.Lock()
			th.lines = append(th.lines, strings.TrimSpace(sc.Text()))
			th.outMu.Unlock()
			th.added <- struct{}{}
		}
	}()

	t.Cleanup(func() {
		cancel()
		_ = inW.Close()
		_ = outW.Close()
	})
	return th
}

func (th *testHarness) send(line string) {
	th.t.Helper()
	if _, err := io.WriteString(th.stdinW, line+"\n"); err != nil {
		th.t.Fatalf("write stdin: %v", err)
	}
}

// next waits for the next output line and decodes it.
func (th *testHarness) next() map[string]any {
	th.t.Helper()
	select {
	case <-th.added:
	case <-time.After(5 * time.Second):
		th.t.Fatalf("timed out waiting for output")
	}
	th.outMu.Lock()
	line := th.lines[0]
	th.lines = th.lines[1:]
	th.outMu.Unlock()

	var msg map[string]any
	if err := json.Unmarshal([]byte(line), &msg); err != nil {
		th.t.Fatalf("invalid output line %q: %v", line, err)
	}
	return msg
}

func (th *testHarness) handshake() {
	th.t.Helper()
	th.send(`{"jsonrpc":"2.0","id":1,"method":"initialize","params":{"protocolVersion":"2025-06-18","capabilities":{},"clientInfo":{"name":"c","version":"1"}}}`)
	msg := th.next()
	result, _ := msg["result"].(map[string]any)
	if want, got := "2025-06-18", result["protocolVersion"]; want != got {
		th.t.Fatalf("unexpected protocol version: want %v got %v", want, got)
	}
	th.send(`{"jsonrpc":"2.0","method":"notifications/initialized"}`)
}

func TestHandshakeAndToolCall(t *testing.T) {
	th := newHarness(t, mcpservice.NewRawTool("check_status", "", nil, func(context.Context, json.RawMessage) (any, error) {
		return true, nil
	}))
	th.handshake()

	th.send(`{"jsonrpc":"2.0","id":2,"method":"tools/call","params":{"name":"check_status"}}`)
	msg := th.next()
	if want, got := float64(2), msg["id"]; want != got {
		t.Fatalf("unexpected id: want %v got %v", want, got)
	}
	result := msg["result"].(map[string]any)
	content := result["content"].([]any)[0].(map[string]any)
	if want, got := "true", content["text"]; want != got {
		t.Fatalf("unexpected text: want %v got %v", want, got)
	}
}

func TestGatingAndNotifications(t *testing.T) {
	th := newHarness(t)

	th.send(`{"jsonrpc":"2.0","id":"a","method":"tools/list"}`)
	msg := th.next()
	errObj := msg["error"].(map[string]any)
	if want, got := float64(jsonrpc.ErrorCodeInvalidRequest), errObj["code"]; want != got {
		t.Fatalf("unexpected code: want %v got %v", want, got)
	}

	// A notification never produces output; the ping answer is next.
	th.send(`{"jsonrpc":"2.0","method":"tools/list"}`)
	th.send(`{"jsonrpc":"2.0","id":"b","method":"ping"}`)
	msg = th.next()
	if want, got := "b", msg["id"]; want != got {
		t.Fatalf("unexpected id: want %v got %v", want, got)
	}
}

func TestParseErrorHasNullID(t *testing.T) {
	th := newHarness(t)

	th.send(`{"jsonrpc":"2.0","id":1,`)
	msg := th.next()
	if id, ok := msg["id"]; !ok || id != nil {
		t.Fatalf("expected a null id, got %v", msg)
	}
	errObj := msg["error"].(map[string]any)
	if want, got := float64(jsonrpc.ErrorCodeParseError), errObj["code"]; want != got {
		t.Fatalf("unexpected code: want %v got %v", want, got)
	}
}

func TestDeferredResultDoesNotBlockLaterRequests(t *testing.T) {
	f := future.New[string]()
	th := newHarness(t, mcpservice.NewRawTool("slow", "", nil, func(context.Context, json.RawMessage) (any, error) {
		return mcpservice.Defer(f), nil
	}))
	th.handshake()

	th.send(`{"jsonrpc":"2.0","id":10,"method":"tools/call","params":{"name":"slow"}}`)
	th.send(`{"jsonrpc":"2.0","id":11,"method":"ping"}`)
	if want, got := float64(11), th.next()["id"]; want != got {
		t.Fatalf("unexpected first response: want %v got %v", want, got)
	}

	_ = f.Resolve("finished")
	msg := th.next()
	if want, got := float64(10), msg["id"]; want != got {
		t.Fatalf("unexpected second response: want %v got %v", want, got)
	}
	content := msg["result"].(map[string]any)["content"].([]any)[0].(map[string]any)
	if want, got := `"finished"`, content["text"]; want != got {
		t.Fatalf("unexpected text: want %v got %v", want, got)
	}
}

func TestServeReturnsOnEOF(t *testing.T) {
	th := newHarness(t)
	_ = th.stdinW.Close()

	select {
	case err := <-th.done:
		if err != nil {
			t.Fatalf("Serve: %v", err)
		}
	case <-time.After(5 * time.Second):
		t.Fatalf("Serve did not return after EOF")
	}
}
