// Package ui hosts the system tray menu shown while the engine runs in the
// background on a creator's machine.
package ui

import (
	"fmt"
	"log/slog"
	"sync"

	"github.com/getlantern/systray"

	"github.com/montagehq/montage-engine/internal/asset"
)

type Tray struct {
	poller *asset.Poller
	logger *slog.Logger

	statusItem *systray.MenuItem
	jobsItem   *systray.MenuItem
	pauseItem  *systray.MenuItem

	mu sync.Mutex

	studioURL    string
	onOpenStudio func(url string) error
	onQuit       func()
}

type TrayConfig struct {
	Poller       *asset.Poller
	Logger       *slog.Logger
	StudioURL    string
	OnOpenStudio func(url string) error
	OnQuit       func()
}

func NewTray(cfg TrayConfig) *Tray {
	return &Tray{
		poller:       cfg.Poller,
		logger:       cfg.Logger,
		studioURL:    cfg.StudioURL,
		onOpenStudio: cfg.OnOpenStudio,
		onQuit:       cfg.OnQuit,
	}
}

func (t *Tray) Run() {
	systray.Run(t.onReady, t.onExit)
}

func (t *Tray) onReady() {
	systray.SetIcon(iconBytes)
	systray.SetTitle("Montage")
	systray.SetTooltip("Montage Engine")

	t.statusItem = systray.AddMenuItem("Status: Idle", "Current engine status")
	t.statusItem.Disable()

	t.jobsItem = systray.AddMenuItem("Jobs: 0", "Generation jobs in flight")
	t.jobsItem.Disable()

	systray.AddSeparator()

	t.pauseItem = systray.AddMenuItem("Pause", "Pause background jobs")

	openStudioItem := systray.AddMenuItem("Open Studio...", "Open the studio in a browser")
	if t.studioURL == "" {
		openStudioItem.Disable()
	}

	systray.AddSeparator()

	quitItem := systray.AddMenuItem("Quit", "Quit Montage Engine")

	go func() {
		for {
			select {
			case <-t.pauseItem.ClickedCh:
				t.togglePause()
			case <-openStudioItem.ClickedCh:
				t.handleOpenStudio()
			case <-quitItem.ClickedCh:
				t.logger.Info("quit requested from tray")
				if t.onQuit != nil {
					t.onQuit()
				}
				systray.Quit()
				return
			}
		}
	}()

	t.logger.Info("system tray ready")
}

func (t *Tray) onExit() {
	t.logger.Info("system tray exiting")
}

func (t *Tray) togglePause() {
	t.mu.Lock()
	defer t.mu.Unlock()

	if t.poller == nil {
		return
	}

	if t.poller.IsPaused() {
		t.poller.Resume()
		t.pauseItem.SetTitle("Pause")
		t.statusItem.SetTitle("Status: Idle")
	} else {
		t.poller.Pause()
		t.pauseItem.SetTitle("Resume")
		t.statusItem.SetTitle("Status: Paused")
	}
}

func (t *Tray) handleOpenStudio() {
	if t.onOpenStudio != nil {
		if err := t.onOpenStudio(t.studioURL); err != nil {
			t.logger.Error("failed to open studio", "error", err)
		}
	}
}

func (t *Tray) UpdateStatus(status string) {
	t.mu.Lock()
	defer t.mu.Unlock()

	if t.poller != nil && t.poller.IsPaused() {
		return
	}
	t.statusItem.SetTitle("Status: " + status)
}

func (t *Tray) UpdateJobsCount(count int) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.jobsItem.SetTitle(fmt.Sprintf("Jobs: %d", count))
}

func (t *Tray) Quit() {
	systray.Quit()
}
