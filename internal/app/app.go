// Package app wires the engine together: storage, services, background
// loops, the HTTP API, and the tray. Run blocks until shutdown.
package app

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/montagehq/montage-engine/internal/api"
	"github.com/montagehq/montage-engine/internal/asset"
	"github.com/montagehq/montage-engine/internal/chat"
	"github.com/montagehq/montage-engine/internal/config"
	"github.com/montagehq/montage-engine/internal/db"
	"github.com/montagehq/montage-engine/internal/generate"
	"github.com/montagehq/montage-engine/internal/logging"
	"github.com/montagehq/montage-engine/internal/media"
	"github.com/montagehq/montage-engine/internal/mcpserver"
	"github.com/montagehq/montage-engine/internal/project"
	"github.com/montagehq/montage-engine/internal/sse"
	"github.com/montagehq/montage-engine/internal/studio"
	"github.com/montagehq/montage-engine/internal/ui"
)

const playbackThrottle = 200 * time.Millisecond

// Run starts the engine and blocks until a shutdown signal or fatal error.
func Run(ctx context.Context, cfg *config.Config) error {
	startTime := time.Now()

	logger := logging.NewLogger(cfg.App.LogLevel)
	logger.Info("starting montage engine", "version", config.Version, "data_dir", cfg.App.DataDir)

	for _, dir := range []string{cfg.App.DataDir, cfg.ExportsDir(), cfg.MediaDir()} {
		if err := os.MkdirAll(dir, 0755); err != nil {
			return fmt.Errorf("failed to create dir %s: %w", dir, err)
		}
	}

	database, err := db.New(cfg.DBPath(), logger)
	if err != nil {
		return fmt.Errorf("failed to initialize database: %w", err)
	}
	defer database.Close()

	projectRepo := project.NewRepository(database.Conn())
	assetRepo := asset.NewRepository(database.Conn())
	chatRepo := chat.NewRepository(database.Conn())

	authToken, err := ensureAuthToken(ctx, projectRepo)
	if err != nil {
		return fmt.Errorf("failed to ensure auth token: %w", err)
	}
	logger.Info("local API ready",
		"url", fmt.Sprintf("http://127.0.0.1:%d", cfg.App.Port),
		"auth_token", logging.SanitizeToken(authToken),
	)

	broker := sse.NewBroker(playbackThrottle)
	defer broker.Close()
	notifier := sse.NewNotifier(broker)

	store := project.NewStore(projectRepo, logger)
	store.OnChange(notifier.ManifestUpdated)

	var provider generate.Client
	if cfg.Generate.BaseURL != "" {
		provider = generate.NewHTTPClient(cfg.Generate.BaseURL, cfg.Generate.Token, logger)
		logger.Info("generation provider enabled", "base_url", cfg.Generate.BaseURL)
	} else {
		provider = generate.NewStubClient(logger)
	}

	assetSvc := asset.NewService(assetRepo, provider, logger)
	poller := asset.NewPoller(assetRepo, assetSvc, provider, notifier, cfg.Generate.PollInterval, logger)

	var studioClient studio.Client
	if cfg.Studio.Enabled {
		studioClient = studio.NewHTTPClient(cfg.Studio.BaseURL, cfg.Studio.Token, logger)
		logger.Info("studio sync enabled", "base_url", cfg.Studio.BaseURL)
	} else {
		studioClient = studio.NewStubClient(logger)
	}
	reconciler := project.NewReconciler(store, studioClient, assetSvc, cfg.Studio.PollInterval, logger)

	player, _ := newPlayer(cfg, store, projectRepo, broker, logger)

	exporter, doctor := newExporter(cfg, store, projectRepo, assetRepo, notifier, logger)

	chatClient := chat.NewClient(cfg.Studio.BaseURL, cfg.Studio.Token, logger)
	bridge := chat.NewBridge(chatClient, chatRepo, notifier, logger)
	bridge.OnManifestTouched(func(projectID string) {
		go reconciler.ReconcileNow(context.WithoutCancel(ctx), projectID)
	})

	mediaServer := media.NewServer(logger)

	apiServer := api.NewServer(api.ServerConfig{
		Port:      cfg.App.Port,
		Projects:  projectRepo,
		Store:     store,
		Assets:    assetSvc,
		Player:    player,
		Exporter:  exporter,
		Doctor:    doctor,
		Poller:    poller,
		Chat:      bridge,
		Broker:    broker,
		Media:     mediaServer,
		Logger:    logger,
		StartTime: startTime,
	})

	g, gCtx := errgroup.WithContext(ctx)

	g.Go(func() error {
		poller.Start(gCtx)
		return nil
	})

	if cfg.Studio.Enabled {
		g.Go(func() error {
			reconciler.Run(gCtx)
			return nil
		})
	}

	if cfg.Import.Enabled {
		g.Go(func() error {
			if err := asset.WatchImports(gCtx, assetSvc, cfg.MediaDir(), logger); err != nil {
				logger.Error("import watcher failed", "error", err)
			}
			return nil
		})
	}

	g.Go(func() error {
		if err := apiServer.Start(); err != nil && !errors.Is(err, context.Canceled) {
			return fmt.Errorf("HTTP server error: %w", err)
		}
		return nil
	})

	quitCh := make(chan struct{})

	g.Go(func() error {
		sigCh := make(chan os.Signal, 1)
		signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

		select {
		case sig := <-sigCh:
			logger.Info("received shutdown signal", "signal", sig)
		case <-quitCh:
			logger.Info("quit requested")
		case <-gCtx.Done():
		}

		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if err := apiServer.Shutdown(shutdownCtx); err != nil {
			logger.Error("failed to shutdown HTTP server", "error", err)
		}
		return context.Canceled
	})

	if cfg.App.Headless {
		logger.Info("running in headless mode (no system tray)")
	} else {
		tray := ui.NewTray(ui.TrayConfig{
			Poller:    poller,
			Logger:    logger,
			StudioURL: cfg.Studio.BaseURL,
			OnOpenStudio: func(url string) error {
				logger.Info("open studio requested from tray", "url", url)
				return nil
			},
			OnQuit: func() {
				close(quitCh)
			},
		})
		go tray.Run()
		defer tray.Quit()
	}

	if err := g.Wait(); err != nil && !errors.Is(err, context.Canceled) {
		logger.Error("engine error", "error", err)
		return err
	}

	logger.Info("shutdown complete")
	return nil
}

// RunMCP serves the MCP stdio transport against the same database the
// engine uses, for agents spawned by an editor or CLI.
func RunMCP(ctx context.Context, cfg *config.Config) error {
	logger := logging.NewLogger("error") // stdio transport owns stdout

	if err := os.MkdirAll(cfg.App.DataDir, 0755); err != nil {
		return fmt.Errorf("failed to create data dir: %w", err)
	}

	database, err := db.New(cfg.DBPath(), logger)
	if err != nil {
		return fmt.Errorf("failed to initialize database: %w", err)
	}
	defer database.Close()

	projectRepo := project.NewRepository(database.Conn())
	assetRepo := asset.NewRepository(database.Conn())

	store := project.NewStore(projectRepo, logger)

	var provider generate.Client
	if cfg.Generate.BaseURL != "" {
		provider = generate.NewHTTPClient(cfg.Generate.BaseURL, cfg.Generate.Token, logger)
	} else {
		provider = generate.NewStubClient(logger)
	}
	assetSvc := asset.NewService(assetRepo, provider, logger)

	player, _ := newPlayer(cfg, store, projectRepo, nil, logger)
	exporter, _ := newExporter(cfg, store, projectRepo, assetRepo, nil, logger)

	srv := mcpserver.New(store, assetSvc, player, exporter)
	return srv.ServeStdio()
}

func ensureAuthToken(ctx context.Context, repo project.Repository) (string, error) {
	existing, err := repo.GetConfig(ctx, "auth_token")
	if err == nil && existing != "" {
		return existing, nil
	}

	tokenBytes := make([]byte, 32)
	if _, err := rand.Read(tokenBytes); err != nil {
		return "", err
	}
	token := hex.EncodeToString(tokenBytes)

	if err := repo.SetConfig(ctx, "auth_token", token); err != nil {
		return "", err
	}

	return token, nil
}
