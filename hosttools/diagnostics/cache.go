package diagnostics

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"os/exec"
	"sync"
)

// Checker produces the diagnostics of the workspace.
type Checker interface {
	Check(ctx context.Context) ([]CompileMessage, error)
}

var _ Checker = (*CommandChecker)(nil)

// CommandChecker runs `go build ./...` in Dir and, when the build succeeds,
// `go vet ./...`. Build failures are errors; vet findings are warnings.
type CommandChecker struct {
	Dir string
	// GoBin defaults to "go" from PATH.
	GoBin string
}

func (c *CommandChecker) Check(ctx context.Context) ([]CompileMessage, error) {
	out, err := c.run(ctx, "build", "-o", os.DevNull, "./...")
	if err != nil {
		msgs := ParseOutput(out, TypeError)
		if len(msgs) == 0 {
			return nil, fmt.Errorf("go build: %w: %s", err, out)
		}
		return msgs, nil
	}

	out, err = c.run(ctx, "vet", "./...")
	if err != nil {
		msgs := ParseOutput(out, TypeWarning)
		if len(msgs) == 0 {
			return nil, fmt.Errorf("go vet: %w: %s", err, out)
		}
		return msgs, nil
	}
	return nil, nil
}

func (c *CommandChecker) run(ctx context.Context, args ...string) (string, error) {
	bin := c.GoBin
	if bin == "" {
		bin = "go"
	}
	cmd := exec.CommandContext(ctx, bin, args...)
	cmd.Dir = c.Dir
	out, err := cmd.CombinedOutput()
	if ctxErr := ctx.Err(); ctxErr != nil {
		return "", ctxErr
	}
	var exitErr *exec.ExitError
	if err != nil && !errors.As(err, &exitErr) {
		return "", fmt.Errorf("run go %s: %w", args[0], err)
	}
	return string(out), err
}

// Cache holds the diagnostics of the last check.
type Cache struct {
	checker Checker
	log     *slog.Logger

	refresh sync.Mutex

	mu       sync.RWMutex
	messages []CompileMessage
}

// NewCache returns an empty cache filled by checker.
func NewCache(checker Checker, log *slog.Logger) *Cache {
	if log == nil {
		log = slog.New(slog.DiscardHandler)
	}
	return &Cache{checker: checker, log: log}
}

// Refresh clears the cache and runs the checker. Concurrent refreshes run one
// after the other.
func (c *Cache) Refresh(ctx context.Context) error {
	c.refresh.Lock()
	defer c.refresh.Unlock()

	c.mu.Lock()
	c.messages = nil
	c.mu.Unlock()

	msgs, err := c.checker.Check(ctx)
	if err != nil {
		c.log.ErrorContext(ctx, "diagnostics.refresh.err", slog.String("err", err.Error()))
		return err
	}

	c.mu.Lock()
	c.messages = msgs
	c.mu.Unlock()
	c.log.InfoContext(ctx, "diagnostics.refresh.ok", slog.Int("messages", len(msgs)))
	return nil
}

// Messages returns a copy of the cached diagnostics.
func (c *Cache) Messages() []CompileMessage {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return append([]CompileMessage(nil), c.messages...)
}
