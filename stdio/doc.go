// Package stdio serves the bridge over stdin/stdout. It is intended for MCP
// clients that launch the bridge as a subprocess instead of connecting to its
// HTTP endpoint.
//
// Characteristics
//
//	Connection model : 1 process <-> 1 client
//	Sessions         : exactly one, for the lifetime of Serve
//	Framing          : newline-delimited JSON-RPC
//
// Requests go through the same dispatch queue and router as the HTTP
// transport. Responses are written in completion order: a deferred tool
// result does not hold back later responses.
//
// Example:
//
//	h := stdio.New(queue, registry, stdio.WithLogger(log))
//	if err := h.Serve(ctx); err != nil { log.Error(...) }
package stdio
