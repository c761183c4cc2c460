// Package logging builds the process logger.
package logging

import (
	"fmt"
	"io"
	"log/slog"
	"os"
	"strings"
	"time"

	"github.com/ggoodman/mcp-bridge-go/internal/logctx"
	"github.com/lmittmann/tint"
)

// Format selects the slog handler.
type Format string

const (
	FormatJSON Format = "json"
	FormatText Format = "text"
	// FormatDev is colourised, human friendly output for terminals.
	FormatDev Format = "dev"
)

const LevelTrace = slog.Level(-8)

// Options configures New.
type Options struct {
	Writer io.Writer
	Format Format
	Level  slog.Level
	// Wrap, when set, decorates the base handler before the context handler
	// is applied, e.g. to tee records into the console log store.
	Wrap func(slog.Handler) slog.Handler
}

// New returns a logger whose records carry the logctx groups.
func New(o Options) *slog.Logger {
	if o.Writer == nil {
		o.Writer = os.Stderr
	}

	var h slog.Handler
	switch o.Format {
	case FormatJSON:
		h = slog.NewJSONHandler(o.Writer, &slog.HandlerOptions{Level: o.Level, ReplaceAttr: replaceLevel})
	case FormatDev:
		h = tint.NewHandler(o.Writer, &tint.Options{
			Level:      o.Level,
			TimeFormat: time.Kitchen,
			ReplaceAttr: func(groups []string, a slog.Attr) slog.Attr {
				if a.Key == slog.LevelKey && len(groups) == 0 {
					if lvl, ok := a.Value.Any().(slog.Level); ok && lvl <= LevelTrace {
						return tint.Attr(13, slog.String(a.Key, "TRC"))
					}
				}
				return a
			},
		})
	default:
		h = slog.NewTextHandler(o.Writer, &slog.HandlerOptions{Level: o.Level, ReplaceAttr: replaceLevel})
	}

	if o.Wrap != nil {
		h = o.Wrap(h)
	}
	return slog.New(logctx.Handler{Handler: h})
}

func replaceLevel(groups []string, a slog.Attr) slog.Attr {
	if a.Key == slog.LevelKey && len(groups) == 0 {
		if lvl, ok := a.Value.Any().(slog.Level); ok && lvl <= LevelTrace {
			return slog.String(a.Key, "TRACE")
		}
	}
	return a
}

// ParseLevel maps trace, debug, info, warn and error to slog levels.
func ParseLevel(s string) (slog.Level, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "trace":
		return LevelTrace, nil
	case "debug":
		return slog.LevelDebug, nil
	case "", "info":
		return slog.LevelInfo, nil
	case "warn", "warning":
		return slog.LevelWarn, nil
	case "error":
		return slog.LevelError, nil
	default:
		return slog.LevelInfo, fmt.Errorf("unknown log level %q", s)
	}
}

// ParseFormat validates a log format name.
func ParseFormat(s string) (Format, error) {
	switch f := Format(strings.ToLower(strings.TrimSpace(s))); f {
	case FormatJSON, FormatText, FormatDev:
		return f, nil
	case "":
		return FormatText, nil
	default:
		return FormatText, fmt.Errorf("unknown log format %q", s)
	}
}
