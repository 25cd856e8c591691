package commands

import (
	"context"
	"fmt"
	"log/slog"
	"os"

	"github.com/relaywave/agentbridge/internal/app"
	"github.com/relaywave/agentbridge/internal/observability"
	"github.com/urfave/cli/v3"
)

// Execute runs the root command with the given context and arguments.
func Execute(ctx context.Context, args []string) error {
	cmd := &cli.Command{
		Name:  "agentbridge",
		Usage: "protocol-translating proxy for the agent bridge upstream",
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:    "config",
				Aliases: []string{"c"},
				Usage:   "path to config file",
			},
			&cli.StringFlag{
				Name:  "log-level",
				Usage: "log level (debug|info|warn|error)",
				Value: slog.LevelInfo.String(),
			},
		},
		Commands: []*cli.Command{
			proxyStartCommand(),
		},
	}

	return cmd.Run(ctx, args)
}

func proxyStartCommand() *cli.Command {
	return &cli.Command{
		Name: "start",
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:  "log-format",
				Usage: "log format (text|json)",
				Value: string(app.DefaultConfigLogFormat),
			},
			&cli.StringFlag{
				Name:  "server--host",
				Usage: "server host",
				Value: app.DefaultConfigServerHost,
			},
			&cli.IntFlag{
				Name:  "server--port",
				Usage: "server port",
				Value: int(app.DefaultConfigServerPort),
			},
			&cli.StringFlag{
				Name:  "upstream--base-url",
				Usage: "upstream API base URL",
				Value: app.DefaultConfigUpstreamBaseURL,
			},
			&cli.StringFlag{
				Name:  "broker--base-url",
				Usage: "session broker base URL",
				Value: app.DefaultConfigBrokerBaseURL,
			},
			&cli.StringFlag{
				Name:  "broker--refresh-url",
				Usage: "session broker token refresh URL",
				Value: app.DefaultConfigRefreshURL,
			},
			&cli.IntFlag{
				Name:  "broker--pool-size",
				Usage: "number of credentials to keep warm in the pool",
				Value: app.DefaultConfigPoolSize,
			},
			&cli.StringFlag{
				Name:  "default-model--model",
				Usage: "model advertised upstream when a request omits one",
				Value: app.DefaultConfigDefaultModel,
			},
		},
		Action: proxyStartAction,
	}
}

func proxyStartAction(ctx context.Context, cmd *cli.Command) error {
	cfg, err := loadConfig(cmd.String("config"), cmd, os.Environ)
	if err != nil {
		return fmt.Errorf("failed to load config: %w", err)
	}

	// Set up observability before creating app
	err = observability.Instrument(cfg.LogLevel, string(cfg.LogFormat))
	if err != nil {
		return fmt.Errorf("failed to set up observability layer: %w", err)
	}

	application, err := app.New(cfg)
	if err != nil {
		return fmt.Errorf("failed to create app: %w", err)
	}

	slog.InfoContext(ctx, "starting")

	if err := application.Start(ctx); err != nil {
		return fmt.Errorf("app failed to start: %w", err)
	}

	slog.InfoContext(ctx, "stopped gracefully")
	return nil
}
