// Package engine routes parsed JSON-RPC requests to the handlers of the
// bridge. A Router is bound to exactly one session and is only ever used from
// the serialized execution context.
package engine

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"time"

	"github.com/ggoodman/mcp-bridge-go/internal/jsonrpc"
	"github.com/ggoodman/mcp-bridge-go/internal/logctx"
	"github.com/ggoodman/mcp-bridge-go/internal/metrics"
	"github.com/ggoodman/mcp-bridge-go/mcp"
	"github.com/ggoodman/mcp-bridge-go/mcpservice"
	"github.com/ggoodman/mcp-bridge-go/sessions"
)

const notInitializedMessage = "Server not initialized. Send 'initialize' first."

// DefaultServerInfo identifies the bridge during initialize.
var DefaultServerInfo = mcp.ImplementationInfo{Name: "mcp-bridge", Version: "1.0.0"}

type handlerFunc func(ctx context.Context, req *jsonrpc.Request) Reply

// Router gates and dispatches requests for one session.
type Router struct {
	sess         *sessions.Session
	tools        *mcpservice.Registry
	log          *slog.Logger
	metrics      *metrics.Metrics
	serverInfo   mcp.ImplementationInfo
	instructions string

	handlers map[mcp.Method]handlerFunc
}

// Option configures a Router.
type Option func(*Router)

// WithLogger sets the router logger.
func WithLogger(l *slog.Logger) Option {
	return func(r *Router) { r.log = l }
}

// WithServerInfo overrides the identity reported by initialize.
func WithServerInfo(info mcp.ImplementationInfo) Option {
	return func(r *Router) { r.serverInfo = info }
}

// WithInstructions sets the optional instructions string of initialize.
func WithInstructions(s string) Option {
	return func(r *Router) { r.instructions = s }
}

// WithMetrics records routing and tool call outcomes.
func WithMetrics(m *metrics.Metrics) Option {
	return func(r *Router) { r.metrics = m }
}

// NewRouter binds a router to sess and tools.
func NewRouter(sess *sessions.Session, tools *mcpservice.Registry, opts ...Option) *Router {
	r := &Router{
		sess:       sess,
		tools:      tools,
		log:        slog.New(slog.NewTextHandler(io.Discard, nil)),
		serverInfo: DefaultServerInfo,
	}
	for _, opt := range opts {
		opt(r)
	}

	r.handlers = map[mcp.Method]handlerFunc{
		mcp.InitializeMethod:              r.handleInitialize,
		mcp.InitializedNotificationMethod: r.handleInitialized,
		mcp.PingMethod:                    r.handlePing,
		mcp.ToolsListMethod:               r.handleToolsList,
		mcp.ToolsCallMethod:               r.handleToolsCall,
	}
	return r
}

// Session returns the session the router is bound to.
func (r *Router) Session() *sessions.Session { return r.sess }

// Route handles req and returns the reply to send, or nil when req is a
// notification. Route must be called from the serialized execution context.
func (r *Router) Route(ctx context.Context, req *jsonrpc.Request) Reply {
	ctx = logctx.WithSessionData(ctx, logctx.SessionDataFrom(r.sess))
	ctx = logctx.WithRPCMessage(ctx, &logctx.RPCMessage{
		Method: req.Method,
		ID:     req.ID.String(),
		Type:   messageType(req),
	})

	method := mcp.Method(req.Method)
	if r.sess.State() == sessions.StateUninitialized && method != mcp.InitializeMethod && method != mcp.PingMethod {
		r.log.InfoContext(ctx, "engine.handle_request.uninitialized")
		r.metrics.ObserveRPC(req.Method, "uninitialized")
		return r.reply(req, jsonrpc.NewErrorResponse(req.ID, jsonrpc.ErrorCodeInvalidRequest, notInitializedMessage, nil))
	}

	h, ok := r.handlers[method]
	if !ok {
		r.log.InfoContext(ctx, "engine.handle_request.not_found")
		r.metrics.ObserveRPC("unknown", "not_found")
		return r.reply(req, jsonrpc.NewErrorResponse(req.ID, jsonrpc.ErrorCodeMethodNotFound, "Method not found: "+req.Method, nil))
	}

	return h(ctx, req)
}

func messageType(req *jsonrpc.Request) string {
	if req.IsNotification() {
		return "notification"
	}
	return "request"
}

// reply drops the response of a notification.
func (r *Router) reply(req *jsonrpc.Request, resp *jsonrpc.Response) Reply {
	if req.IsNotification() {
		return nil
	}
	return Respond(resp)
}

func (r *Router) result(ctx context.Context, req *jsonrpc.Request, result any) Reply {
	resp, err := jsonrpc.NewResultResponse(req.ID, result)
	if err != nil {
		r.log.ErrorContext(ctx, "engine.handle_request.fail", slog.String("err", err.Error()))
		r.metrics.ObserveRPC(req.Method, "error")
		return r.reply(req, jsonrpc.NewErrorResponse(req.ID, jsonrpc.ErrorCodeInternalError, "internal error", nil))
	}
	r.metrics.ObserveRPC(req.Method, "ok")
	return r.reply(req, resp)
}

func (r *Router) invalidParams(ctx context.Context, req *jsonrpc.Request, start time.Time, err error) Reply {
	r.log.InfoContext(ctx, "engine.handle_request.invalid", slog.String("err", err.Error()), slog.Int64("dur_ms", time.Since(start).Milliseconds()))
	r.metrics.ObserveRPC(req.Method, "invalid")
	return r.reply(req, jsonrpc.NewErrorResponse(req.ID, jsonrpc.ErrorCodeInvalidParams, err.Error(), nil))
}

func (r *Router) handleInitialize(ctx context.Context, req *jsonrpc.Request) Reply {
	start := time.Now()

	var params mcp.InitializeRequest
	if err := jsonrpc.DecodeParams(req.Params, &params); err != nil {
		return r.invalidParams(ctx, req, start, err)
	}

	version := mcp.NegotiateProtocolVersion(params.ProtocolVersion)
	if err := r.sess.MarkInitializing(version, params.ClientInfo); err != nil {
		if errors.Is(err, sessions.ErrAlreadyInitialized) {
			r.log.InfoContext(ctx, "engine.handle_request.invalid", slog.String("err", err.Error()))
			r.metrics.ObserveRPC(req.Method, "invalid")
			return r.reply(req, jsonrpc.NewErrorResponse(req.ID, jsonrpc.ErrorCodeInvalidRequest, "Session already initialized", nil))
		}
		r.log.ErrorContext(ctx, "engine.handle_request.fail", slog.String("err", err.Error()))
		return r.reply(req, jsonrpc.NewErrorResponse(req.ID, jsonrpc.ErrorCodeInternalError, "internal error", nil))
	}

	result := &mcp.InitializeResult{
		ProtocolVersion: version,
		ServerInfo:      r.serverInfo,
		Capabilities: mcp.ServerCapabilities{
			Tools: &mcp.ToolsCapability{ListChanged: false},
		},
		Instructions: r.instructions,
	}

	r.log.InfoContext(ctx, "engine.handle_request.ok",
		slog.String("protocol_version", version),
		slog.String("client", params.ClientInfo.Name),
		slog.Int64("dur_ms", time.Since(start).Milliseconds()),
	)
	return r.result(ctx, req, result)
}

func (r *Router) handleInitialized(ctx context.Context, req *jsonrpc.Request) Reply {
	r.sess.MarkReady()
	r.log.InfoContext(ctx, "session.ready")
	r.metrics.ObserveRPC(req.Method, "ok")
	return nil
}

func (r *Router) handlePing(ctx context.Context, req *jsonrpc.Request) Reply {
	return r.result(ctx, req, mcp.EmptyResult{})
}

func (r *Router) handleToolsList(ctx context.Context, req *jsonrpc.Request) Reply {
	start := time.Now()
	tools := r.tools.Descriptors()
	r.log.InfoContext(ctx, "engine.handle_request.ok", slog.Int("tool_count", len(tools)), slog.Int64("dur_ms", time.Since(start).Milliseconds()))
	return r.result(ctx, req, &mcp.ListToolsResult{Tools: tools})
}

var emptyArguments = []byte("{}")

func (r *Router) handleToolsCall(ctx context.Context, req *jsonrpc.Request) Reply {
	start := time.Now()

	name, err := jsonrpc.RequiredString(req.Params, "name")
	if err != nil {
		return r.invalidParams(ctx, req, start, err)
	}
	args, err := jsonrpc.OptionalObject(req.Params, emptyArguments, "arguments")
	if err != nil {
		return r.invalidParams(ctx, req, start, err)
	}

	ctx = logctx.WithToolCallData(ctx, &logctx.ToolCallData{ToolName: name})

	v, err := r.tools.Execute(ctx, name, args)
	if d, ok := v.(mcpservice.Deferred); ok && err == nil {
		ctx = logctx.WithToolCallData(ctx, &logctx.ToolCallData{ToolName: name, Deferred: true})
		r.log.InfoContext(ctx, "engine.tool_call.deferred", slog.Int64("dur_ms", time.Since(start).Milliseconds()))
		if req.IsNotification() {
			return nil
		}
		return &deferredReply{
			build: func(waitCtx context.Context) *jsonrpc.Response {
				v, err := d.Await(waitCtx)
				return r.toolResponse(ctx, req, name, start, v, err)
			},
		}
	}

	return r.reply(req, r.toolResponse(ctx, req, name, start, v, err))
}

// toolResponse wraps a tool outcome. Tool failures are results with
// isError=true, never JSON-RPC errors.
func (r *Router) toolResponse(ctx context.Context, req *jsonrpc.Request, name string, start time.Time, v any, err error) *jsonrpc.Response {
	res := mcpservice.Outcome(v, err)
	if err != nil {
		r.log.InfoContext(ctx, "engine.tool_call.fail", slog.String("err", err.Error()), slog.Int64("dur_ms", time.Since(start).Milliseconds()))
	} else {
		r.log.InfoContext(ctx, "engine.tool_call.ok", slog.Int64("dur_ms", time.Since(start).Milliseconds()))
	}
	r.metrics.ObserveToolCall(name, res.IsError)

	resp, merr := jsonrpc.NewResultResponse(req.ID, res)
	if merr != nil {
		r.log.ErrorContext(ctx, "engine.handle_request.fail", slog.String("err", merr.Error()))
		r.metrics.ObserveRPC(req.Method, "error")
		return jsonrpc.NewErrorResponse(req.ID, jsonrpc.ErrorCodeInternalError, "internal error", nil)
	}
	r.metrics.ObserveRPC(req.Method, "ok")
	return resp
}
