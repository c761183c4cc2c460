package stdio

import (
	"bufio"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"runtime/debug"
	"sync"

	"github.com/ggoodman/mcp-bridge-go/internal/dispatch"
	"github.com/ggoodman/mcp-bridge-go/internal/engine"
	"github.com/ggoodman/mcp-bridge-go/internal/jsonrpc"
	"github.com/ggoodman/mcp-bridge-go/internal/logctx"
	"github.com/ggoodman/mcp-bridge-go/internal/metrics"
	"github.com/ggoodman/mcp-bridge-go/mcpservice"
	"github.com/ggoodman/mcp-bridge-go/sessions"
)

const maxLineBytes = 4 << 20

// Handler is a single-connection stdio transport. By default it reads from
// os.Stdin and writes to os.Stdout.
type Handler struct {
	r          io.Reader
	w          io.Writer
	log        *slog.Logger
	metrics    *metrics.Metrics
	queue      *dispatch.Queue
	tools      *mcpservice.Registry
	routerOpts []engine.Option

	writeMu sync.Mutex
	served  bool
}

// New returns a handler routing requests through queue to tools.
func New(queue *dispatch.Queue, tools *mcpservice.Registry, opts ...Option) *Handler {
	h := &Handler{r: os.Stdin, w: os.Stdout, queue: queue, tools: tools}
	for _, opt := range opts {
		opt(h)
	}
	if h.log == nil {
		h.log = slog.New(slog.DiscardHandler)
	}
	if _, ok := h.log.Handler().(logctx.Handler); !ok {
		h.log = slog.New(logctx.Handler{Handler: h.log.Handler()})
	}
	h.routerOpts = append([]engine.Option{engine.WithLogger(h.log)}, h.routerOpts...)
	return h
}

// Serve runs the read loop until EOF on the reader or until ctx ends. It may
// be called once per Handler. Pending deferred responses are awaited, or
// abandoned when ctx ends, before Serve returns.
func (h *Handler) Serve(ctx context.Context) error {
	if h.served {
		return errors.New("stdio: Serve called twice")
	}
	h.served = true

	sess := sessions.New()
	router := engine.NewRouter(sess, h.tools, h.routerOpts...)
	ctx = logctx.WithSessionData(ctx, logctx.SessionDataFrom(sess))
	h.log.InfoContext(ctx, "stdio.serve.start")

	lines := make(chan []byte)
	readErr := make(chan error, 1)
	go func() {
		sc := bufio.NewScanner(h.r)
		sc.Buffer(make([]byte, 0, 64*1024), maxLineBytes)
		for sc.Scan() {
			line := append([]byte(nil), sc.Bytes()...)
			select {
			case lines <- line:
			case <-ctx.Done():
				return
			}
		}
		readErr <- sc.Err()
	}()

	var pending sync.WaitGroup
	defer pending.Wait()

	for {
		select {
		case <-ctx.Done():
			h.log.InfoContext(ctx, "stdio.serve.end", slog.String("reason", "context"))
			return nil
		case err := <-readErr:
			if err != nil {
				h.log.ErrorContext(ctx, "stdio.read.fail", slog.String("err", err.Error()))
				return fmt.Errorf("stdio: read: %w", err)
			}
			h.log.InfoContext(ctx, "stdio.serve.end", slog.String("reason", "eof"))
			return nil
		case line := <-lines:
			if len(line) == 0 {
				continue
			}
			h.handleLine(ctx, router, line, &pending)
		}
	}
}

func (h *Handler) handleLine(ctx context.Context, router *engine.Router, line []byte, pending *sync.WaitGroup) {
	req, id, err := jsonrpc.DecodeRequest(line)
	if err != nil {
		code := jsonrpc.ErrorCodeInvalidRequest
		if errors.Is(err, jsonrpc.ErrParse) {
			code = jsonrpc.ErrorCodeParseError
			id = nil
		}
		h.log.WarnContext(ctx, "jsonrpc.message.invalid", slog.String("code", code.String()), slog.String("err", err.Error()))
		h.metrics.ObserveRPC("unknown", "malformed")
		h.write(ctx, jsonrpc.NewErrorResponse(id, code, err.Error(), nil))
		return
	}
	msgType := "request"
	if req.IsNotification() {
		msgType = "notification"
	}
	ctx = logctx.WithRPCMessage(ctx, &logctx.RPCMessage{Method: req.Method, ID: req.ID.String(), Type: msgType})

	reply, err := dispatch.Submit(ctx, h.queue, func() engine.Reply { return h.route(ctx, router, req) })
	if err != nil || reply == nil {
		return
	}
	if !engine.IsDeferred(reply) {
		if resp := reply.Wait(ctx); resp != nil {
			h.write(ctx, resp)
		}
		return
	}

	pending.Add(1)
	go func() {
		defer pending.Done()
		if resp := reply.Wait(ctx); resp != nil {
			h.write(ctx, resp)
		}
	}()
}

// route runs on the queue consumer.
func (h *Handler) route(ctx context.Context, router *engine.Router, req *jsonrpc.Request) (rep engine.Reply) {
	defer func() {
		if rec := recover(); rec != nil {
			h.log.ErrorContext(ctx, "rpc.inbound.panic",
				slog.String("err", fmt.Sprint(rec)),
				slog.String("stack", string(debug.Stack())),
			)
			rep = nil
			if !req.IsNotification() {
				rep = engine.Respond(jsonrpc.NewErrorResponse(req.ID, jsonrpc.ErrorCodeInternalError, "internal error", nil))
			}
		}
	}()
	return router.Route(ctx, req)
}

func (h *Handler) write(ctx context.Context, resp *jsonrpc.Response) {
	b, err := json.Marshal(resp)
	if err != nil {
		h.log.ErrorContext(ctx, "rpc.response.marshal.fail", slog.String("err", err.Error()))
		b, _ = json.Marshal(jsonrpc.NewErrorResponse(resp.ID, jsonrpc.ErrorCodeInternalError, "internal error", nil))
	}
	b = append(b, '\n')

	h.writeMu.Lock()
	defer h.writeMu.Unlock()
	if _, err := h.w.Write(b); err != nil {
		h.log.ErrorContext(ctx, "stdio.write.fail", slog.String("err", err.Error()))
	}
}
