package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/ggoodman/mcp-bridge-go/config"
	"github.com/ggoodman/mcp-bridge-go/internal/metrics"
	"github.com/ggoodman/mcp-bridge-go/streaminghttp"
	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/hashicorp/go-multierror"
	"github.com/urfave/cli/v3"
)

const shutdownTimeout = 10 * time.Second

// bridgeFlags are shared by every command that starts a bridge.
func bridgeFlags() []cli.Flag {
	return []cli.Flag{
		&cli.StringFlag{
			Name:    "workspace",
			Aliases: []string{"w"},
			Usage:   "Go module directory the host tools operate on",
		},
		&cli.DurationFlag{
			Name:  "tick",
			Usage: "Interval between two drains of the dispatch queue",
		},
		&cli.StringFlag{
			Name:  "redis-addr",
			Usage: "Keep console logs in Redis at this address instead of memory",
		},
		&cli.StringFlag{
			Name:  "log-format",
			Usage: "One of: json, text, dev",
		},
		&cli.StringFlag{
			Name:    "log-level",
			Aliases: []string{"l"},
			Usage:   "One of: trace, debug, info, warn, error",
		},
	}
}

func serveCommand() *cli.Command {
	return &cli.Command{
		Name:      "serve",
		Usage:     "Run the MCP bridge over streamable HTTP.",
		UsageText: "mcp-bridge serve [options]",
		Description: "Flags override the matching environment variables " +
			"(MCP_PORT, MCP_PATH, MCP_WORKSPACE, REDIS_ADDR, LOG_FORMAT, ...).",
		Flags: append([]cli.Flag{
			&cli.StringFlag{
				Name:  "host",
				Usage: "Interface the MCP listener binds to",
			},
			&cli.IntFlag{
				Name:    "port",
				Aliases: []string{"p"},
				Usage:   "Port of the MCP listener",
			},
			&cli.StringFlag{
				Name:  "path",
				Usage: "Path the MCP endpoint is mounted on",
			},
			&cli.StringFlag{
				Name:  "metrics-addr",
				Usage: "Address of the Prometheus listener, empty to disable",
			},
		}, bridgeFlags()...),
		Action: func(ctx context.Context, cmd *cli.Command) error {
			cfg, err := loadConfig(cmd)
			if err != nil {
				return err
			}
			return serve(ctx, cfg)
		},
	}
}

// loadConfig reads the environment and applies the command line on top.
func loadConfig(cmd *cli.Command) (config.Config, error) {
	cfg, err := config.FromEnv()
	if err != nil {
		return config.Config{}, err
	}
	applyFlags(cmd, &cfg)
	if err := cfg.Validate(); err != nil {
		return config.Config{}, err
	}
	return cfg, nil
}

// applyFlags overwrites cfg with the flags given on the command line.
func applyFlags(cmd *cli.Command, cfg *config.Config) {
	if cmd.IsSet("host") {
		cfg.Host = cmd.String("host")
	}
	if cmd.IsSet("port") {
		cfg.Port = cmd.Int("port")
	}
	if cmd.IsSet("path") {
		cfg.Path = cmd.String("path")
	}
	if cmd.IsSet("workspace") {
		cfg.Workspace = cmd.String("workspace")
	}
	if cmd.IsSet("tick") {
		cfg.TickInterval = cmd.Duration("tick")
	}
	if cmd.IsSet("redis-addr") {
		cfg.RedisAddr = cmd.String("redis-addr")
	}
	if cmd.IsSet("metrics-addr") {
		cfg.MetricsAddr = cmd.String("metrics-addr")
	}
	if cmd.IsSet("log-format") {
		cfg.LogFormat = cmd.String("log-format")
	}
	if cmd.IsSet("log-level") {
		cfg.LogLevel = cmd.String("log-level")
	}
}

// serve runs the bridge until ctx ends or a listener fails.
func serve(ctx context.Context, cfg config.Config) (err error) {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	b, err := start(ctx, cfg)
	if err != nil {
		return err
	}
	defer func() {
		cancel()
		if cerr := b.Close(); cerr != nil {
			err = multierror.Append(err, cerr).ErrorOrNil()
		}
	}()
	log := b.log

	h, err := streaminghttp.New(ctx, cfg.Endpoint(), b.queue, b.registry,
		streaminghttp.WithLogger(log),
		streaminghttp.WithInstructions(instructions),
		streaminghttp.WithStreamPollInterval(cfg.StreamPollInterval),
		streaminghttp.WithMetrics(b.metrics),
		streaminghttp.WithClock(b.clock),
	)
	if err != nil {
		return fmt.Errorf("create MCP handler: %w", err)
	}

	servers := []*http.Server{{Addr: cfg.ListenAddr(), Handler: h}}
	if cfg.MetricsAddr != "" {
		r := chi.NewRouter()
		r.Use(middleware.Recoverer)
		r.Mount("/", metrics.NewAPI(b.metrics).Router)
		servers = append(servers, &http.Server{Addr: cfg.MetricsAddr, Handler: r})
	}

	errs := make(chan error, len(servers))
	for _, srv := range servers {
		go func(srv *http.Server) {
			log.InfoContext(ctx, "http.listen", slog.String("addr", srv.Addr))
			if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				errs <- fmt.Errorf("listen on %s: %w", srv.Addr, err)
			}
		}(srv)
	}
	log.InfoContext(ctx, "bridge.ready", slog.String("endpoint", cfg.Endpoint()))

	var result *multierror.Error
	select {
	case <-ctx.Done():
	case err := <-errs:
		result = multierror.Append(result, err)
	}
	// Ends GET streams and pending tool runs before the servers drain.
	cancel()

	shutdownCtx, cancelShutdown := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancelShutdown()
	for _, srv := range servers {
		if err := srv.Shutdown(shutdownCtx); err != nil {
			result = multierror.Append(result, fmt.Errorf("shutdown %s: %w", srv.Addr, err))
		}
	}
	log.InfoContext(context.Background(), "bridge.stopped")
	return result.ErrorOrNil()
}
