package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"

	_ "github.com/joho/godotenv/autoload"
	"github.com/urfave/cli/v3"

	"github.com/montagehq/montage-engine/internal/app"
	"github.com/montagehq/montage-engine/internal/config"
)

func loadConfig(cmd *cli.Command) (*config.Config, error) {
	cfg := config.NewDefault()
	if err := config.Load(cmd.String("config"), cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config: %w", err)
	}
	if cmd.Bool("headless") {
		cfg.App.Headless = true
	}
	return cfg, nil
}

func runEngine(ctx context.Context, cmd *cli.Command) error {
	cfg, err := loadConfig(cmd)
	if err != nil {
		return err
	}
	return app.Run(ctx, cfg)
}

func runMCP(ctx context.Context, cmd *cli.Command) error {
	cfg, err := loadConfig(cmd)
	if err != nil {
		return err
	}
	return app.RunMCP(ctx, cfg)
}

func main() {
	configFlag := &cli.StringFlag{
		Name:        "config",
		Aliases:     []string{"c"},
		Usage:       "Path to config file",
		DefaultText: "montage.yaml",
		Value:       "montage.yaml",
		Sources:     cli.EnvVars("MONTAGE_CONFIG_FILE"),
	}

	cmd := &cli.Command{
		Name:   "engine",
		Usage:  "Local-first video composition engine: manifest timeline, generation jobs, playback, and export",
		Action: runEngine,
		Flags: []cli.Flag{
			configFlag,
			&cli.BoolFlag{
				Name:    "headless",
				Usage:   "Run without the system tray",
				Sources: cli.EnvVars("MONTAGE_HEADLESS"),
			},
		},
		Commands: []*cli.Command{
			{
				Name:   "mcp",
				Usage:  "Serve timeline tools over the MCP stdio transport",
				Action: runMCP,
				Flags:  []cli.Flag{configFlag},
			},
		},
	}

	if err := cmd.Run(context.Background(), os.Args); err != nil {
		slog.Error("engine error", slog.String("error", err.Error()))
		os.Exit(1)
	}
}
