package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"

	"github.com/ggoodman/mcp-bridge-go/config"
	"github.com/ggoodman/mcp-bridge-go/hosttools"
	"github.com/ggoodman/mcp-bridge-go/hosttools/consolelog"
	"github.com/ggoodman/mcp-bridge-go/hosttools/diagnostics"
	"github.com/ggoodman/mcp-bridge-go/hosttools/gotest"
	"github.com/ggoodman/mcp-bridge-go/hosttools/workspace"
	"github.com/ggoodman/mcp-bridge-go/internal/dispatch"
	"github.com/ggoodman/mcp-bridge-go/internal/logging"
	"github.com/ggoodman/mcp-bridge-go/internal/metrics"
	"github.com/ggoodman/mcp-bridge-go/mcpservice"
	"github.com/hashicorp/go-multierror"
	"github.com/jonboulle/clockwork"
	"github.com/redis/go-redis/v9"
)

const instructions = "Tools operate on the Go workspace the bridge was started in. " +
	"Use get_compile_errors after editing sources and run_short_tests for a quick check before run_tests."

// bridge holds the transport independent parts of a running bridge.
type bridge struct {
	log       *slog.Logger
	metrics   *metrics.Metrics
	clock     clockwork.Clock
	queue     *dispatch.Queue
	registry  *mcpservice.Registry
	workspace *workspace.Index

	closers []func() error
}

// start builds the bridge and starts the queue consumer and the workspace
// watcher on ctx. Close must only be called once ctx has ended.
func start(ctx context.Context, cfg config.Config) (_ *bridge, err error) {
	b := &bridge{metrics: metrics.New(), clock: clockwork.NewRealClock()}
	defer func() {
		if err != nil {
			if cerr := b.Close(); cerr != nil {
				err = multierror.Append(err, cerr)
			}
		}
	}()

	level, _ := logging.ParseLevel(cfg.LogLevel)
	format, _ := logging.ParseFormat(cfg.LogFormat)

	store, err := b.consoleStore(ctx, cfg)
	if err != nil {
		return nil, err
	}
	b.log = logging.New(logging.Options{
		Writer: os.Stderr,
		Format: format,
		Level:  level,
		Wrap:   consolelog.Wrap(store, slog.LevelInfo),
	})

	b.workspace, err = workspace.NewIndex(cfg.Workspace, workspace.WithLogger(b.log))
	if err != nil {
		return nil, err
	}

	b.registry = mcpservice.NewRegistry()
	err = hosttools.Register(b.registry, hosttools.Deps{
		Ctx:         ctx,
		Console:     store,
		Workspace:   b.workspace,
		Tests:       &gotest.CommandRunner{Dir: b.workspace.Root(), Log: b.log},
		Diagnostics: diagnostics.NewCache(&diagnostics.CommandChecker{Dir: b.workspace.Root()}, b.log),
		Clock:       b.clock,
		ToolTimeout: cfg.ToolTimeout,
		Log:         b.log,
	})
	if err != nil {
		return nil, err
	}

	b.queue = dispatch.New(dispatch.WithLogger(b.log), dispatch.WithMetrics(b.metrics))
	queueDone := make(chan struct{})
	go func() {
		defer close(queueDone)
		_ = b.queue.Run(ctx, b.clock.NewTicker(cfg.TickInterval))
	}()
	b.closers = append(b.closers, func() error {
		<-queueDone
		return nil
	})

	go func() {
		if err := b.workspace.Watch(ctx); err != nil {
			b.log.WarnContext(ctx, "workspace.watch.err", slog.String("err", err.Error()))
		}
	}()

	b.log.InfoContext(ctx, "bridge.start",
		slog.String("workspace", b.workspace.Root()),
		slog.Int("tools", len(b.registry.Tools())),
	)
	return b, nil
}

// consoleStore picks the Redis store when an address is configured and the
// in-memory ring otherwise.
func (b *bridge) consoleStore(ctx context.Context, cfg config.Config) (consolelog.Store, error) {
	if cfg.RedisAddr == "" {
		return consolelog.NewMemoryStore(cfg.ConsoleLogCapacity), nil
	}

	client := redis.NewClient(&redis.Options{Addr: cfg.RedisAddr})
	if err := client.Ping(ctx).Err(); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("connect to redis at %s: %w", cfg.RedisAddr, err)
	}
	b.closers = append(b.closers, client.Close)

	return consolelog.NewRedisStore(client, consolelog.RedisConfig{
		Key:      cfg.ConsoleLogKey,
		Capacity: cfg.ConsoleLogCapacity,
	})
}

// Close releases everything start acquired, newest first.
func (b *bridge) Close() error {
	var result *multierror.Error
	for i := len(b.closers) - 1; i >= 0; i-- {
		if err := b.closers[i](); err != nil {
			result = multierror.Append(result, err)
		}
	}
	b.closers = nil
	return result.ErrorOrNil()
}
