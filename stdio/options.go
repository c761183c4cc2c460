package stdio

import (
	"io"
	"log/slog"

	"github.com/ggoodman/mcp-bridge-go/internal/engine"
	"github.com/ggoodman/mcp-bridge-go/internal/metrics"
	"github.com/ggoodman/mcp-bridge-go/mcp"
)

// Option customizes a Handler.
type Option func(*Handler)

// WithIO sets the reader and writer for the handler.
func WithIO(r io.Reader, w io.Writer) Option {
	return func(h *Handler) {
		if r != nil {
			h.r = r
		}
		if w != nil {
			h.w = w
		}
	}
}

// WithLogger overrides the logger. Logs must never go to the writer.
func WithLogger(l *slog.Logger) Option {
	return func(h *Handler) {
		if l != nil {
			h.log = l
		}
	}
}

// WithServerInfo sets the identity reported in the initialize result.
func WithServerInfo(info mcp.ImplementationInfo) Option {
	return func(h *Handler) { h.routerOpts = append(h.routerOpts, engine.WithServerInfo(info)) }
}

// WithInstructions sets the instructions string reported in the initialize result.
func WithInstructions(s string) Option {
	return func(h *Handler) { h.routerOpts = append(h.routerOpts, engine.WithInstructions(s)) }
}

// WithMetrics records RPC outcomes into m.
func WithMetrics(m *metrics.Metrics) Option {
	return func(h *Handler) {
		h.metrics = m
		h.routerOpts = append(h.routerOpts, engine.WithMetrics(m))
	}
}
