package consolelog

import (
	"context"
	"log/slog"
	"strings"
)

// stackKey is the attribute whose value becomes the entry's stack trace. A
// record carrying it is classified as an Exception.
const stackKey = "stack"

// Capture is an slog.Handler that copies every record at or above its level
// into a Store before passing it to the next handler.
//
// Levels map to entry types as follows: ERROR and above is Error, WARN is
// Warning, anything lower is Log. A record with a "stack" attribute is an
// Exception regardless of level.
type Capture struct {
	next   slog.Handler
	store  Store
	level  slog.Leveler
	attrs  []slog.Attr
	groups []string
}

// NewCapture tees records of at least level into store and forwards them to next.
func NewCapture(next slog.Handler, store Store, level slog.Leveler) *Capture {
	if level == nil {
		level = slog.LevelInfo
	}
	return &Capture{next: next, store: store, level: level}
}

// Wrap returns a decorator suitable for logging.Options.Wrap.
func Wrap(store Store, level slog.Leveler) func(slog.Handler) slog.Handler {
	return func(next slog.Handler) slog.Handler {
		return NewCapture(next, store, level)
	}
}

func (c *Capture) Enabled(ctx context.Context, level slog.Level) bool {
	return level >= c.level.Level() || c.next.Enabled(ctx, level)
}

func (c *Capture) Handle(ctx context.Context, r slog.Record) error {
	if r.Level >= c.level.Level() {
		// A failing store must not break logging; the record still reaches next.
		_ = c.store.Append(context.WithoutCancel(ctx), c.entry(r))
	}
	if !c.next.Enabled(ctx, r.Level) {
		return nil
	}
	return c.next.Handle(ctx, r)
}

func (c *Capture) WithAttrs(attrs []slog.Attr) slog.Handler {
	out := c.clone()
	out.next = c.next.WithAttrs(attrs)
	for _, a := range attrs {
		out.attrs = append(out.attrs, qualify(c.groups, a))
	}
	return out
}

func (c *Capture) WithGroup(name string) slog.Handler {
	if name == "" {
		return c
	}
	out := c.clone()
	out.next = c.next.WithGroup(name)
	out.groups = append(out.groups, name)
	return out
}

func (c *Capture) clone() *Capture {
	return &Capture{
		next:   c.next,
		store:  c.store,
		level:  c.level,
		attrs:  append([]slog.Attr(nil), c.attrs...),
		groups: append([]string(nil), c.groups...),
	}
}

// qualify prefixes the key of a with the open groups.
func qualify(groups []string, a slog.Attr) slog.Attr {
	if len(groups) == 0 {
		return a
	}
	return slog.Attr{Key: strings.Join(groups, ".") + "." + a.Key, Value: a.Value}
}

func (c *Capture) entry(r slog.Record) LogEntry {
	e := LogEntry{Type: typeForLevel(r.Level), Timestamp: r.Time}

	var b strings.Builder
	b.WriteString(r.Message)
	write := func(a slog.Attr) {
		if a.Key == stackKey {
			e.Type = TypeException
			e.StackTrace = a.Value.String()
			return
		}
		appendAttr(&b, "", a)
	}
	for _, a := range c.attrs {
		write(a)
	}
	r.Attrs(func(a slog.Attr) bool {
		write(qualify(c.groups, a))
		return true
	})
	e.Message = b.String()
	return e
}

func appendAttr(b *strings.Builder, prefix string, a slog.Attr) {
	a.Value = a.Value.Resolve()
	if a.Equal(slog.Attr{}) {
		return
	}
	key := a.Key
	if prefix != "" {
		key = prefix + "." + a.Key
	}
	if a.Value.Kind() == slog.KindGroup {
		for _, ga := range a.Value.Group() {
			appendAttr(b, key, ga)
		}
		return
	}
	b.WriteByte(' ')
	b.WriteString(key)
	b.WriteByte('=')
	b.WriteString(a.Value.String())
}

func typeForLevel(l slog.Level) LogType {
	switch {
	case l >= slog.LevelError:
		return TypeError
	case l >= slog.LevelWarn:
		return TypeWarning
	default:
		return TypeLog
	}
}
