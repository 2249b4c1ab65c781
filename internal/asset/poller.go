package asset

import (
	"context"
	"log/slog"
	"sync/atomic"
	"time"

	"github.com/montagehq/montage-engine/internal/generate"
)

// Notifier receives job lifecycle events for UI push. Implementations must
// not block.
type Notifier interface {
	JobUpdated(job *Job)
	AssetCreated(asset *Asset)
}

// Poller advances generation jobs by polling the provider's status feed on
// a fixed interval. A job is polled until it reaches a terminal state; at
// that point its asset is registered and listeners notified exactly once,
// and the job never appears in the pollable set again. A failed poll is
// logged and swallowed; the next tick retries.
type Poller struct {
	repo     Repository
	service  *Service
	provider generate.Client
	notifier Notifier
	logger   *slog.Logger
	interval time.Duration

	running atomic.Bool
	paused  atomic.Bool
}

// NewPoller wires a job poller. interval <= 0 falls back to 2s.
func NewPoller(repo Repository, service *Service, provider generate.Client, notifier Notifier, interval time.Duration, logger *slog.Logger) *Poller {
	if interval <= 0 {
		interval = 2 * time.Second
	}
	return &Poller{
		repo:     repo,
		service:  service,
		provider: provider,
		notifier: notifier,
		logger:   logger,
		interval: interval,
	}
}

// Start runs the poll loop until ctx is cancelled.
func (p *Poller) Start(ctx context.Context) {
	if p.running.Swap(true) {
		return
	}

	p.logger.Info("job poller started", "interval", p.interval)

	ticker := time.NewTicker(p.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			p.logger.Info("job poller stopping")
			p.running.Store(false)
			return
		case <-ticker.C:
			if !p.paused.Load() {
				p.Tick(ctx)
			}
		}
	}
}

// Pause suspends polling without stopping the loop.
func (p *Poller) Pause() {
	p.paused.Store(true)
	p.logger.Info("job poller paused")
}

// Resume restarts polling.
func (p *Poller) Resume() {
	p.paused.Store(false)
	p.logger.Info("job poller resumed")
}

func (p *Poller) IsPaused() bool {
	return p.paused.Load()
}

func (p *Poller) IsRunning() bool {
	return p.running.Load()
}

// Tick polls every non-terminal generation job once. Each tick finishes its
// requests before the next fires, so polls for one job never overlap.
func (p *Poller) Tick(ctx context.Context) {
	jobs, err := p.repo.ListPollableJobs(ctx)
	if err != nil {
		p.logger.Error("failed to list pollable jobs", "error", err)
		return
	}

	for _, job := range jobs {
		p.pollJob(ctx, job)
	}
}

func (p *Poller) pollJob(ctx context.Context, job *Job) {
	status, err := p.provider.Status(ctx, job.RemoteID)
	if err != nil {
		p.logger.Warn("job status poll failed", "job_id", job.ID, "error", err)
		return
	}

	switch status.Status {
	case generate.StatusPending:
		// Nothing to record yet.
		return

	case generate.StatusProcessing:
		if job.Status != JobStatusProcessing {
			if err := p.repo.UpdateJobStatus(ctx, job.ID, JobStatusProcessing, ""); err != nil {
				p.logger.Warn("failed to update job status", "job_id", job.ID, "error", err)
				return
			}
			job.Status = JobStatusProcessing
		}
		if status.Progress != nil && *status.Progress != job.Progress {
			if err := p.repo.UpdateJobProgress(ctx, job.ID, *status.Progress); err != nil {
				p.logger.Warn("failed to update job progress", "job_id", job.ID, "error", err)
				return
			}
			job.Progress = *status.Progress
		}
		p.notify(job)

	case generate.StatusCompleted:
		p.completeJob(ctx, job, status)

	case generate.StatusFailed:
		msg := status.Error
		if msg == "" {
			msg = "generation failed"
		}
		if err := p.repo.UpdateJobStatus(ctx, job.ID, JobStatusFailed, msg); err != nil {
			p.logger.Warn("failed to fail job", "job_id", job.ID, "error", err)
			return
		}
		job.Status = JobStatusFailed
		job.Error = msg
		p.logger.Info("generation job failed", "job_id", job.ID, "error", msg)
		p.notify(job)

	default:
		p.logger.Warn("unknown provider status", "job_id", job.ID, "status", status.Status)
	}
}

// completeJob registers the produced asset and marks the job completed.
// Ordering matters: the asset row is written before the terminal status, so
// a crash in between re-registers the asset on retry rather than losing it.
func (p *Poller) completeJob(ctx context.Context, job *Job, status *generate.JobStatus) {
	assetType := map[string]string{
		JobKindGenerateImage: TypeImage,
		JobKindGenerateVideo: TypeVideo,
		JobKindGenerateAudio: TypeAudio,
		JobKindGenerateModel: TypeModel,
	}[job.Kind]

	a, err := p.service.RegisterAsset(ctx, &Asset{
		ProjectID:       job.ProjectID,
		Type:            assetType,
		URL:             status.OutputURL,
		Prompt:          job.Prompt,
		DurationSeconds: status.DurationSeconds,
	})
	if err != nil {
		p.logger.Error("failed to register generated asset", "job_id", job.ID, "error", err)
		return
	}

	if err := p.repo.SetJobResult(ctx, job.ID, a.ID, ""); err != nil {
		p.logger.Warn("failed to record job asset", "job_id", job.ID, "error", err)
	}
	if err := p.repo.UpdateJobStatus(ctx, job.ID, JobStatusCompleted, ""); err != nil {
		p.logger.Warn("failed to complete job", "job_id", job.ID, "error", err)
		return
	}
	job.Status = JobStatusCompleted
	job.Progress = 100
	job.AssetID = a.ID

	p.logger.Info("generation job completed", "job_id", job.ID, "asset_id", a.ID)
	if p.notifier != nil {
		p.notifier.AssetCreated(a)
	}
	p.notify(job)
}

func (p *Poller) notify(job *Job) {
	if p.notifier != nil {
		p.notifier.JobUpdated(job)
	}
}
