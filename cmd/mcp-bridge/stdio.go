package main

import (
	"context"

	"github.com/ggoodman/mcp-bridge-go/config"
	"github.com/ggoodman/mcp-bridge-go/mcp"
	"github.com/ggoodman/mcp-bridge-go/stdio"
	"github.com/hashicorp/go-multierror"
	"github.com/urfave/cli/v3"
)

func stdioCommand() *cli.Command {
	return &cli.Command{
		Name:      "stdio",
		Usage:     "Run the MCP bridge over stdin/stdout.",
		UsageText: "mcp-bridge stdio [options]",
		Description: "Intended for clients that launch the bridge as a subprocess. " +
			"Logs go to stderr.",
		Flags: bridgeFlags(),
		Action: func(ctx context.Context, cmd *cli.Command) error {
			cfg, err := loadConfig(cmd)
			if err != nil {
				return err
			}
			return serveStdio(ctx, cfg)
		},
	}
}

func serveStdio(ctx context.Context, cfg config.Config) (err error) {
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

	h := stdio.New(b.queue, b.registry,
		stdio.WithLogger(b.log),
		stdio.WithServerInfo(mcp.ImplementationInfo{Name: "mcp-bridge", Version: version}),
		stdio.WithInstructions(instructions),
		stdio.WithMetrics(b.metrics),
	)
	return h.Serve(ctx)
}
