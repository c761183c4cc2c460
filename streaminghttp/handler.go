package streaminghttp

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"runtime/debug"
	"strings"
	"sync/atomic"
	"time"

	"github.com/elnormous/contenttype"
	"github.com/ggoodman/mcp-bridge-go/internal/dispatch"
	"github.com/ggoodman/mcp-bridge-go/internal/engine"
	"github.com/ggoodman/mcp-bridge-go/internal/jsonrpc"
	"github.com/ggoodman/mcp-bridge-go/internal/logctx"
	"github.com/ggoodman/mcp-bridge-go/internal/metrics"
	"github.com/ggoodman/mcp-bridge-go/mcp"
	"github.com/ggoodman/mcp-bridge-go/mcpservice"
	"github.com/ggoodman/mcp-bridge-go/sessions"
	"github.com/google/uuid"
	"github.com/jonboulle/clockwork"
)

var (
	_ http.Handler = (*StreamingHTTPHandler)(nil)
)

var (
	jsonMediaType        = contenttype.NewMediaType("application/json")
	eventStreamMediaType = contenttype.NewMediaType("text/event-stream")
)

const (
	mcpSessionIDHeader = "Mcp-Session-Id"
	allowedMethods     = "GET, POST, DELETE"
	maxBodyBytes       = 4 << 20

	defaultStreamPollInterval = time.Second
)

// writeJSONError emits a minimal JSON body for HTTP-layer rejections that
// cannot be expressed as a JSON-RPC exchange.
// Shape: {"error":{"code":<httpStatus>,"message":"<reason>"}}
func writeJSONError(w http.ResponseWriter, status int, msg string) {
	w.Header().Set("Content-Type", jsonMediaType.String())
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(map[string]any{"error": map[string]any{"code": status, "message": msg}})
}

// Option configures the StreamingHTTPHandler.
type Option func(*newConfig)

type newConfig struct {
	logger          *slog.Logger
	metrics         *metrics.Metrics
	clock           clockwork.Clock
	pollInterval    time.Duration
	responseTimeout time.Duration
	routerOpts      []engine.Option
}

// WithLogger sets the logger used by the handler and its routers.
func WithLogger(l *slog.Logger) Option {
	return func(c *newConfig) { c.logger = l }
}

// WithServerInfo sets the identity reported in the initialize result.
func WithServerInfo(info mcp.ImplementationInfo) Option {
	return func(c *newConfig) { c.routerOpts = append(c.routerOpts, engine.WithServerInfo(info)) }
}

// WithInstructions sets the instructions string reported in the initialize result.
func WithInstructions(s string) Option {
	return func(c *newConfig) { c.routerOpts = append(c.routerOpts, engine.WithInstructions(s)) }
}

// WithStreamPollInterval sets how often an open GET stream checks whether it
// should close. Defaults to one second.
func WithStreamPollInterval(d time.Duration) Option {
	return func(c *newConfig) { c.pollInterval = d }
}

// WithResponseTimeout bounds how long a POST waits for its queued work and
// any deferred tool result. Zero, the default, waits for as long as the
// client and the server stay up.
func WithResponseTimeout(d time.Duration) Option {
	return func(c *newConfig) { c.responseTimeout = d }
}

// WithMetrics records HTTP and routing metrics.
func WithMetrics(m *metrics.Metrics) Option {
	return func(c *newConfig) { c.metrics = m }
}

// WithClock sets the clock driving the GET stream poll ticker.
func WithClock(clock clockwork.Clock) Option {
	return func(c *newConfig) { c.clock = clock }
}

// binding is the current session and the router bound to it. A binding is
// never mutated; terminating a session installs a new one.
type binding struct {
	sess   *sessions.Session
	router *engine.Router
}

// StreamingHTTPHandler implements the HTTP surface of the bridge: POST for
// JSON-RPC messages, GET for an event stream and DELETE to end the session.
// All routing happens on the dispatch queue consumer.
type StreamingHTTPHandler struct {
	ctx     context.Context
	mux     *http.ServeMux
	log     *slog.Logger
	metrics *metrics.Metrics
	clock   clockwork.Clock

	queue      *dispatch.Queue
	tools      *mcpservice.Registry
	routerOpts []engine.Option

	pollInterval    time.Duration
	responseTimeout time.Duration

	current atomic.Pointer[binding]
}

// New constructs a StreamingHTTPHandler serving endpoint, which is either an
// absolute http(s) URL or a bare path such as "/mcp/".
//
// ctx bounds the lifetime of the handler: when it ends, open GET streams
// close and POSTs still waiting on the queue give up. queue must be drained
// by the caller, typically with dispatch.Queue.Run.
func New(ctx context.Context, endpoint string, queue *dispatch.Queue, tools *mcpservice.Registry, opts ...Option) (*StreamingHTTPHandler, error) {
	if queue == nil {
		return nil, fmt.Errorf("dispatch queue is required")
	}
	if tools == nil {
		return nil, fmt.Errorf("tool registry is required")
	}

	u, err := url.Parse(endpoint)
	if err != nil {
		return nil, fmt.Errorf("invalid endpoint %q: %w", endpoint, err)
	}
	if u.Scheme != "" && u.Scheme != "https" && u.Scheme != "http" {
		return nil, fmt.Errorf("endpoint must use HTTP or HTTPS scheme, got %q", u.Scheme)
	}

	cfg := &newConfig{
		logger:       slog.Default(),
		clock:        clockwork.NewRealClock(),
		pollInterval: defaultStreamPollInterval,
	}
	for _, opt := range opts {
		opt(cfg)
	}
	if cfg.pollInterval <= 0 {
		return nil, fmt.Errorf("stream poll interval must be positive, got %s", cfg.pollInterval)
	}

	log := cfg.logger
	if _, ok := log.Handler().(logctx.Handler); !ok {
		log = slog.New(logctx.Handler{Handler: log.Handler()})
	}

	h := &StreamingHTTPHandler{
		ctx:             ctx,
		log:             log,
		metrics:         cfg.metrics,
		clock:           cfg.clock,
		queue:           queue,
		tools:           tools,
		pollInterval:    cfg.pollInterval,
		responseTimeout: cfg.responseTimeout,
	}
	h.routerOpts = append([]engine.Option{engine.WithLogger(log), engine.WithMetrics(cfg.metrics)}, cfg.routerOpts...)
	h.current.Store(h.newBinding())

	mux := http.NewServeMux()
	for _, p := range endpointPaths(u) {
		mux.HandleFunc(fmt.Sprintf("POST %s", p), h.handlePostMCP)
		mux.HandleFunc(fmt.Sprintf("GET %s", p), h.handleGetMCP)
		mux.HandleFunc(fmt.Sprintf("DELETE %s", p), h.handleDeleteMCP)
		mux.HandleFunc(p, h.handleMethodNotAllowed)
	}
	h.mux = mux
	return h, nil
}

// endpointPaths returns exact-match mux patterns for the path of u and for
// its form without the trailing slash, so that "/mcp" is served directly and
// "/mcp/other" is not served at all.
func endpointPaths(u *url.URL) []string {
	p := u.Path
	if p == "" {
		p = "/"
	}
	if !strings.HasSuffix(p, "/") {
		return []string{p}
	}
	if p == "/" {
		return []string{"/{$}"}
	}
	return []string{p + "{$}", strings.TrimSuffix(p, "/")}
}

func (h *StreamingHTTPHandler) newBinding() *binding {
	sess := sessions.New()
	return &binding{sess: sess, router: engine.NewRouter(sess, h.tools, h.routerOpts...)}
}

// SessionID returns the id of the current session.
func (h *StreamingHTTPHandler) SessionID() string {
	return h.current.Load().sess.ID()
}

func (h *StreamingHTTPHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	rec := &statusRecorder{ResponseWriter: w}
	h.mux.ServeHTTP(rec, r.WithContext(logctx.WithRequestData(r.Context(), &logctx.RequestData{
		RequestID:  uuid.NewString(),
		Method:     r.Method,
		UserAgent:  r.UserAgent(),
		RemoteAddr: r.RemoteAddr,
		Path:       r.URL.Path,
	})))
	h.metrics.ObserveHTTP(r.Method, rec.code())
}

// validSessionHeader reports whether r names the session of b. When
// allowMissing is set, a request without the header is accepted as long as
// that session has not been initialized yet: the client cannot know the id
// at that point.
func validSessionHeader(r *http.Request, b *binding, allowMissing bool) bool {
	got := r.Header.Get(mcpSessionIDHeader)
	if got == "" {
		return allowMissing && b.sess.State() == sessions.StateUninitialized
	}
	return got == b.sess.ID()
}

// rejectSession answers a session header mismatch: 400, no body, and the
// connection is closed.
func (h *StreamingHTTPHandler) rejectSession(ctx context.Context, w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Connection", "close")
	w.WriteHeader(http.StatusBadRequest)
	h.log.WarnContext(ctx, "session.header.invalid", slog.Bool("present", r.Header.Get(mcpSessionIDHeader) != ""))
}

// routed is what the queued closure hands back to the HTTP goroutine. stale
// is set when the session the request was validated against was replaced
// before the closure ran.
type routed struct {
	sessionID string
	reply     engine.Reply
	stale     bool
}

// handlePostMCP handles one JSON-RPC request or notification.
func (h *StreamingHTTPHandler) handlePostMCP(w http.ResponseWriter, r *http.Request) {
	start := time.Now()
	ctx := r.Context()
	h.log.InfoContext(ctx, "http.post.start")

	body, err := io.ReadAll(http.MaxBytesReader(w, r.Body, maxBodyBytes))
	if err != nil {
		writeJSONError(w, http.StatusBadRequest, "failed to read request body")
		h.log.WarnContext(ctx, "http.post.body.fail", slog.String("err", err.Error()))
		return
	}

	req, id, err := jsonrpc.DecodeRequest(body)
	if err != nil {
		code := jsonrpc.ErrorCodeInvalidRequest
		if errors.Is(err, jsonrpc.ErrParse) {
			code = jsonrpc.ErrorCodeParseError
			id = nil
		}
		h.log.WarnContext(ctx, "jsonrpc.message.invalid", slog.String("code", code.String()), slog.String("err", err.Error()))
		h.metrics.ObserveRPC("unknown", "malformed")
		h.writeJSONResponse(ctx, w, h.SessionID(), http.StatusBadRequest, jsonrpc.NewErrorResponse(id, code, err.Error(), nil))
		return
	}

	ctx = logctx.WithRPCMessage(ctx, &logctx.RPCMessage{
		Method: req.Method,
		ID:     req.ID.String(),
		Type:   postMessageType(req),
	})

	validated := h.current.Load()
	if req.Method != string(mcp.InitializeMethod) && !validSessionHeader(r, validated, true) {
		h.rejectSession(ctx, w, r)
		return
	}

	waitCtx, cancel := h.waitContext(ctx)
	defer cancel()

	out, err := dispatch.Submit(waitCtx, h.queue, func() routed { return h.route(ctx, validated, req) })
	if err != nil {
		if r.Context().Err() != nil {
			h.log.InfoContext(ctx, "http.post.abandoned", slog.Duration("dur", time.Since(start)))
			return
		}
		writeJSONError(w, http.StatusServiceUnavailable, "request was not processed in time")
		h.log.WarnContext(ctx, "http.post.timeout", slog.String("err", err.Error()), slog.Duration("dur", time.Since(start)))
		return
	}
	if out.stale {
		h.rejectSession(ctx, w, r)
		return
	}

	if out.reply == nil {
		w.Header().Set(mcpSessionIDHeader, out.sessionID)
		w.WriteHeader(http.StatusAccepted)
		h.log.InfoContext(ctx, "notification.inbound.ok", slog.Duration("dur", time.Since(start)))
		return
	}

	resp := out.reply.Wait(waitCtx)
	if resp == nil {
		w.Header().Set(mcpSessionIDHeader, out.sessionID)
		w.WriteHeader(http.StatusAccepted)
		return
	}
	if r.Context().Err() != nil {
		h.log.InfoContext(ctx, "http.post.abandoned", slog.Duration("dur", time.Since(start)))
		return
	}

	h.writeResponse(ctx, w, r, out.sessionID, resp)
	h.log.InfoContext(ctx, "rpc.inbound.ok", slog.Duration("dur", time.Since(start)))
}

func postMessageType(req *jsonrpc.Request) string {
	if req.IsNotification() {
		return "notification"
	}
	return "request"
}

// route runs on the queue consumer. It resolves the binding at execution
// time, resetting it first when a client initializes over a session that is
// already past the handshake. Any other request whose validated binding has
// been replaced in the meantime is marked stale and not routed.
func (h *StreamingHTTPHandler) route(ctx context.Context, validated *binding, req *jsonrpc.Request) (out routed) {
	b := h.current.Load()
	defer func() {
		if rec := recover(); rec != nil {
			h.log.ErrorContext(ctx, "rpc.inbound.panic",
				slog.String("err", fmt.Sprint(rec)),
				slog.String("stack", string(debug.Stack())),
			)
			out = routed{sessionID: b.sess.ID()}
			if !req.IsNotification() {
				out.reply = engine.Respond(jsonrpc.NewErrorResponse(req.ID, jsonrpc.ErrorCodeInternalError, "internal error", nil))
			}
		}
	}()

	if req.Method != string(mcp.InitializeMethod) && b != validated {
		h.log.InfoContext(ctx, "session.stale", slog.String("session_id", validated.sess.ID()))
		return routed{stale: true}
	}

	if req.Method == string(mcp.InitializeMethod) && b.sess.State() != sessions.StateUninitialized {
		fresh := h.newBinding()
		h.current.Store(fresh)
		h.log.InfoContext(ctx, "session.reset", slog.String("previous_session_id", b.sess.ID()), slog.String("session_id", fresh.sess.ID()))
		b = fresh
	}

	return routed{sessionID: b.sess.ID(), reply: b.router.Route(ctx, req)}
}

// waitContext derives the context a POST waits on: the request context,
// bounded by the handler lifetime and the optional response timeout.
func (h *StreamingHTTPHandler) waitContext(parent context.Context) (context.Context, context.CancelFunc) {
	ctx, cancel := context.WithCancel(parent)
	if h.responseTimeout > 0 {
		var cancelTimeout context.CancelFunc
		ctx, cancelTimeout = context.WithTimeout(ctx, h.responseTimeout)
		prev := cancel
		cancel = func() { cancelTimeout(); prev() }
	}
	stop := context.AfterFunc(h.ctx, cancel)
	return ctx, func() {
		stop()
		cancel()
	}
}

// writeResponse writes resp as a single SSE event when the client prefers an
// event stream and as a JSON document otherwise.
func (h *StreamingHTTPHandler) writeResponse(ctx context.Context, w http.ResponseWriter, r *http.Request, sessionID string, resp *jsonrpc.Response) {
	if !prefersEventStream(r) {
		h.writeJSONResponse(ctx, w, sessionID, http.StatusOK, resp)
		return
	}
	f, ok := w.(http.Flusher)
	if !ok {
		h.writeJSONResponse(ctx, w, sessionID, http.StatusOK, resp)
		return
	}

	b, err := marshalResponse(resp)
	if err != nil {
		h.log.ErrorContext(ctx, "rpc.response.marshal.fail", slog.String("err", err.Error()))
	}

	w.Header().Set(mcpSessionIDHeader, sessionID)
	setSSEHeaders(w.Header())
	w.WriteHeader(http.StatusOK)

	sw := newSSEWriter(&lockedWriteFlusher{Writer: w, Flusher: f, ctx: ctx})
	if err := sw.WriteEvent(b); err != nil {
		h.log.ErrorContext(ctx, "sse.write.fail", slog.String("err", err.Error()))
	}
}

func (h *StreamingHTTPHandler) writeJSONResponse(ctx context.Context, w http.ResponseWriter, sessionID string, status int, resp *jsonrpc.Response) {
	b, err := marshalResponse(resp)
	if err != nil {
		h.log.ErrorContext(ctx, "rpc.response.marshal.fail", slog.String("err", err.Error()))
	}
	if sessionID != "" {
		w.Header().Set(mcpSessionIDHeader, sessionID)
	}
	w.Header().Set("Content-Type", jsonMediaType.String())
	w.WriteHeader(status)
	if _, err := w.Write(b); err != nil {
		h.log.InfoContext(ctx, "http.write.fail", slog.String("err", err.Error()))
	}
}

// marshalResponse serializes resp, substituting an InternalError response
// with the same id when resp itself cannot be serialized.
func marshalResponse(resp *jsonrpc.Response) ([]byte, error) {
	b, err := json.Marshal(resp)
	if err == nil {
		return b, nil
	}
	fallback, ferr := json.Marshal(jsonrpc.NewErrorResponse(resp.ID, jsonrpc.ErrorCodeInternalError, "internal error", nil))
	if ferr != nil {
		return []byte(`{"jsonrpc":"2.0","id":null,"error":{"code":-32603,"message":"internal error"}}`), err
	}
	return fallback, err
}

// prefersEventStream reports whether the Accept header of r names
// text/event-stream with a non-zero quality. Clients that accept both
// application/json and text/event-stream get the event stream; a bare
// wildcard gets JSON.
func prefersEventStream(r *http.Request) bool {
	accept := r.Header.Get("Accept")
	if !strings.Contains(strings.ToLower(accept), eventStreamMediaType.String()) {
		return false
	}
	_, _, err := contenttype.GetAcceptableMediaTypeFromHeader(accept, []contenttype.MediaType{eventStreamMediaType})
	return err == nil
}

// handleGetMCP opens an event stream for the current session and holds it
// open until the client goes away, the handler context ends or the session
// is replaced.
func (h *StreamingHTTPHandler) handleGetMCP(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		// GET patterns also match HEAD.
		h.handleMethodNotAllowed(w, r)
		return
	}

	start := time.Now()
	ctx := r.Context()
	h.log.InfoContext(ctx, "http.get.start")

	if !validSessionHeader(r, h.current.Load(), false) {
		h.rejectSession(ctx, w, r)
		return
	}

	f, ok := w.(http.Flusher)
	if !ok {
		w.WriteHeader(http.StatusInternalServerError)
		h.log.ErrorContext(ctx, "sse.flusher.missing")
		return
	}

	b := h.current.Load()
	ctx = logctx.WithSessionData(ctx, logctx.SessionDataFrom(b.sess))

	wf := &lockedWriteFlusher{Writer: w, Flusher: f, ctx: ctx}
	w.Header().Set(mcpSessionIDHeader, b.sess.ID())
	setSSEHeaders(w.Header())
	w.WriteHeader(http.StatusOK)
	wf.Flush()

	h.log.InfoContext(ctx, "sse.stream.start")

	ticker := h.clock.NewTicker(h.pollInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			h.log.InfoContext(ctx, "sse.stream.end", slog.String("reason", "client_gone"), slog.Duration("dur", time.Since(start)))
			return
		case <-h.ctx.Done():
			h.log.InfoContext(ctx, "sse.stream.end", slog.String("reason", "server_done"), slog.Duration("dur", time.Since(start)))
			return
		case <-ticker.Chan():
			if h.current.Load() != b {
				h.log.InfoContext(ctx, "sse.stream.end", slog.String("reason", "session_replaced"), slog.Duration("dur", time.Since(start)))
				return
			}
		}
	}
}

// handleDeleteMCP terminates the current session by installing a fresh one.
func (h *StreamingHTTPHandler) handleDeleteMCP(w http.ResponseWriter, r *http.Request) {
	start := time.Now()
	ctx := r.Context()
	h.log.InfoContext(ctx, "http.delete.start")

	old := h.current.Load()
	if r.Header.Get(mcpSessionIDHeader) != old.sess.ID() {
		h.rejectSession(ctx, w, r)
		return
	}

	fresh := h.newBinding()
	if !h.current.CompareAndSwap(old, fresh) {
		// Another request replaced the session after the header was checked.
		h.rejectSession(ctx, w, r)
		return
	}

	ctx = logctx.WithSessionData(ctx, logctx.SessionDataFrom(old.sess))
	w.WriteHeader(http.StatusOK)
	h.log.InfoContext(ctx, "http.delete.ok", slog.String("next_session_id", fresh.sess.ID()), slog.Duration("dur", time.Since(start)))
}

func (h *StreamingHTTPHandler) handleMethodNotAllowed(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Allow", allowedMethods)
	w.WriteHeader(http.StatusMethodNotAllowed)
	h.log.InfoContext(r.Context(), "http.method.not_allowed")
}

// statusRecorder remembers the status code written through it.
type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (s *statusRecorder) WriteHeader(code int) {
	if s.status == 0 {
		s.status = code
	}
	s.ResponseWriter.WriteHeader(code)
}

func (s *statusRecorder) Write(p []byte) (int, error) {
	if s.status == 0 {
		s.status = http.StatusOK
	}
	return s.ResponseWriter.Write(p)
}

func (s *statusRecorder) Flush() {
	if f, ok := s.ResponseWriter.(http.Flusher); ok {
		f.Flush()
	}
}

func (s *statusRecorder) Unwrap() http.ResponseWriter { return s.ResponseWriter }

func (s *statusRecorder) code() int {
	if s.status == 0 {
		return http.StatusOK
	}
	return s.status
}
