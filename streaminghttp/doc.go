// Package streaminghttp implements the HTTP surface of the bridge. It mounts
// as a standard net/http handler on a single path.
//
//   - POST carries one JSON-RPC request or notification. The body is parsed
//     on the HTTP goroutine; routing runs as a task on a dispatch.Queue and
//     the goroutine waits for the result before writing it as JSON or as a
//     single Server-Sent Event, depending on the Accept header.
//   - GET opens an event stream for the current session.
//   - DELETE terminates the current session.
//   - Every other method is answered with 405.
//
// Exactly one session exists at a time. Once it is past initialize, every
// request must name it in the Mcp-Session-Id header; a mismatch is rejected
// with a bare 400 before any work is queued.
//
// Construction
//
//	q := dispatch.New()
//	go q.Run(ctx, clockwork.NewRealClock().NewTicker(10*time.Millisecond))
//
//	registry := mcpservice.NewRegistry()
//	_ = hosttools.Register(registry, hosttools.Deps{Ctx: ctx, Console: store})
//
//	h, err := streaminghttp.New(ctx, "/mcp/", q, registry,
//	    streaminghttp.WithLogger(log),
//	)
//
//	mux := http.NewServeMux()
//	mux.Handle("/mcp/", h)
//	http.ListenAndServe("127.0.0.1:7000", mux)
package streaminghttp
