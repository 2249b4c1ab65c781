package app

import (
	"context"
	"log/slog"

	"github.com/montagehq/montage-engine/internal/asset"
	"github.com/montagehq/montage-engine/internal/config"
	"github.com/montagehq/montage-engine/internal/manifest"
	"github.com/montagehq/montage-engine/internal/playback"
	"github.com/montagehq/montage-engine/internal/project"
	"github.com/montagehq/montage-engine/internal/render"
	"github.com/montagehq/montage-engine/internal/sse"
)

// newPlayer builds the playback coordinator over the store's active
// project, with the headless clock attached as the renderer. State changes
// are pushed to the broker when one is given.
func newPlayer(cfg *config.Config, store *project.Store, projects project.Repository, broker *sse.Broker, logger *slog.Logger) (*playback.Coordinator, *playback.Clock) {
	source := func() (*manifest.Manifest, int) {
		id := store.ActiveProject()
		if id == "" {
			return manifest.New(), manifest.DefaultFPS
		}
		m, _, err := store.Current(id)
		if err != nil {
			return manifest.New(), manifest.DefaultFPS
		}
		fps := manifest.DefaultFPS
		if p, perr := projects.GetProject(context.Background(), id); perr == nil && p != nil && p.FPS > 0 {
			fps = p.FPS
		}
		return m, fps
	}

	coord := playback.NewCoordinator(source, logger)
	clock := playback.NewClock(coord.FPS, coord.DurationFrames)
	clock.SetOnFrame(coord.ObserveFrame)
	clock.SetOnEnded(coord.ObserveEnded)
	coord.AttachRenderer(clock)

	if broker != nil {
		coord.OnStateChange(func(st playback.State) {
			broker.PublishPlaybackState(store.ActiveProject(), st)
		})
	}

	return coord, clock
}

// newExporter builds the render service if a renderer binary is present.
// A missing renderer disables export but never blocks startup.
func newExporter(cfg *config.Config, store *project.Store, projects project.Repository, assets asset.Repository, notifier *sse.Notifier, logger *slog.Logger) (*render.Service, *render.CachedDoctor) {
	rcfg := render.DefaultConfig(cfg.App.DataDir, logger)
	rcfg.BinaryPath = cfg.Render.BinaryPath
	rcfg.BundlePath = cfg.Render.BundlePath
	if cfg.Render.DoctorTimeout > 0 {
		rcfg.DoctorTimeout = cfg.Render.DoctorTimeout
	}
	if cfg.Render.RenderTimeout > 0 {
		rcfg.RenderTimeout = cfg.Render.RenderTimeout
	}

	runner, err := render.NewRunner(rcfg)
	if err != nil {
		logger.Warn("renderer unavailable, export disabled", "error", err)
		return nil, nil
	}

	doctor := render.NewCachedDoctor(runner, logger)

	var n render.Notifier
	if notifier != nil {
		n = notifier
	}
	return render.NewService(store, projects, assets, runner, doctor, n, logger), doctor
}
