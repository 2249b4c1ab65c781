package render

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	"github.com/montagehq/montage-engine/internal/apperr"
	"github.com/montagehq/montage-engine/internal/asset"
	"github.com/montagehq/montage-engine/internal/export"
	"github.com/montagehq/montage-engine/internal/logging"
	"github.com/montagehq/montage-engine/internal/project"
)

// FormatVideo and FormatEDL are the export formats the service accepts.
const (
	FormatVideo = "video"
	FormatEDL   = "edl"
)

// Notifier receives export lifecycle events for UI push.
type Notifier interface {
	JobUpdated(job *asset.Job)
	ExportDone(job *asset.Job)
}

// Service turns a project's manifest into deliverable files. Video exports
// run asynchronously through the job table; EDL exports are cheap and
// complete inline.
type Service struct {
	store    *project.Store
	projects project.Repository
	assets   asset.Repository
	runner   Runner
	doctor   *CachedDoctor
	notifier Notifier
	logger   *slog.Logger
}

func NewService(store *project.Store, projects project.Repository, assets asset.Repository, runner Runner, doctor *CachedDoctor, notifier Notifier, logger *slog.Logger) *Service {
	return &Service{
		store:    store,
		projects: projects,
		assets:   assets,
		runner:   runner,
		doctor:   doctor,
		notifier: notifier,
		logger:   logging.WithComponent(logger, "render"),
	}
}

// assetResolver adapts the asset repository to export.AssetResolver,
// preferring local paths over remote URLs.
type assetResolver struct {
	repo asset.Repository
}

func (r assetResolver) ResolveAsset(ctx context.Context, assetID string) (string, bool) {
	a, err := r.repo.GetAsset(ctx, assetID)
	if err != nil || a == nil {
		return "", false
	}
	if a.LocalPath != "" {
		return a.LocalPath, true
	}
	if a.URL != "" {
		return a.URL, true
	}
	return "", false
}

// Plan resolves a project's current manifest into a render plan.
func (s *Service) Plan(ctx context.Context, projectID string) (*export.RenderPlan, error) {
	m, _, err := s.store.Current(projectID)
	if err != nil {
		return nil, err
	}
	p, err := s.projects.GetProject(ctx, projectID)
	if err != nil {
		return nil, err
	}
	if p == nil {
		return nil, fmt.Errorf("%w: project %s", apperr.ErrNotFound, projectID)
	}
	return export.BuildPlan(ctx, projectID, m, p.FPS, assetResolver{repo: s.assets}), nil
}

// ExportEDL writes a CMX-style EDL for the project and returns its path.
func (s *Service) ExportEDL(ctx context.Context, projectID string) (string, error) {
	plan, err := s.Plan(ctx, projectID)
	if err != nil {
		return "", err
	}
	p, err := s.projects.GetProject(ctx, projectID)
	if err != nil {
		return "", err
	}

	outDir := s.runner.WorkDir()
	if err := os.MkdirAll(outDir, 0755); err != nil {
		return "", fmt.Errorf("cannot create exports dir: %w", err)
	}

	title := projectID
	if p != nil {
		if name := export.SanitizeName(p.Name, 64); name != "" {
			title = name
		}
	}
	edl := export.GenerateEDL(export.EDLClips(plan), title, float64(plan.FPS))

	outPath := filepath.Join(outDir, fmt.Sprintf("%s-%s.edl", title, time.Now().Format("20060102-150405")))
	if err := os.WriteFile(outPath, []byte(edl), 0644); err != nil {
		return "", fmt.Errorf("cannot write EDL: %w", err)
	}

	s.logger.Info("EDL exported", "project_id", projectID, "clips", len(plan.Video))
	return outPath, nil
}

// StartExport creates an export job and renders the project in the
// background. The returned job is in pending state; progress lands in the
// job table and on the notifier.
func (s *Service) StartExport(ctx context.Context, projectID string) (*asset.Job, error) {
	if _, err := s.doctor.Get(ctx); err != nil {
		return nil, fmt.Errorf("renderer unavailable: %w", err)
	}

	plan, err := s.Plan(ctx, projectID)
	if err != nil {
		return nil, err
	}

	job := &asset.Job{
		ID:        asset.NewID(),
		ProjectID: projectID,
		Kind:      asset.JobKindExport,
		Status:    asset.JobStatusPending,
		CreatedAt: time.Now(),
		UpdatedAt: time.Now(),
	}
	if err := s.assets.CreateJob(ctx, job); err != nil {
		return nil, fmt.Errorf("cannot create export job: %w", err)
	}

	go s.runExport(context.WithoutCancel(ctx), job, plan)

	return job, nil
}

func (s *Service) runExport(ctx context.Context, job *asset.Job, plan *export.RenderPlan) {
	log := logging.WithJobID(s.logger, job.ID)

	fail := func(err error) {
		log.Error("export failed", "error", err)
		if uerr := s.assets.UpdateJobStatus(ctx, job.ID, asset.JobStatusFailed, err.Error()); uerr != nil {
			log.Error("cannot mark export job failed", "error", uerr)
			return
		}
		job.Status = asset.JobStatusFailed
		job.Error = err.Error()
		if s.notifier != nil {
			s.notifier.JobUpdated(job)
		}
	}

	if err := s.assets.UpdateJobStatus(ctx, job.ID, asset.JobStatusProcessing, ""); err != nil {
		log.Error("cannot mark export job processing", "error", err)
		return
	}
	job.Status = asset.JobStatusProcessing
	if s.notifier != nil {
		s.notifier.JobUpdated(job)
	}

	workDir := s.runner.WorkDir()
	planPath := filepath.Join(workDir, job.ID+".plan.json")
	outPath := filepath.Join(workDir, job.ID+".mp4")

	data, err := json.MarshalIndent(plan, "", "  ")
	if err != nil {
		fail(fmt.Errorf("cannot encode render plan: %w", err))
		return
	}
	if err := os.WriteFile(planPath, data, 0644); err != nil {
		fail(fmt.Errorf("cannot write render plan: %w", err))
		return
	}

	result, err := s.runner.RenderVideo(ctx, planPath, outPath)
	if err != nil {
		fail(err)
		return
	}
	if !result.IsSuccess() {
		fail(fmt.Errorf("renderer exited %d: %s", result.ExitCode, result.StderrTail))
		return
	}
	if err := s.runner.ValidateOutput(outPath); err != nil {
		fail(err)
		return
	}

	if err := s.assets.SetJobResult(ctx, job.ID, "", outPath); err != nil {
		fail(fmt.Errorf("cannot record export result: %w", err))
		return
	}
	if err := s.assets.UpdateJobStatus(ctx, job.ID, asset.JobStatusCompleted, ""); err != nil {
		log.Error("cannot mark export job completed", "error", err)
		return
	}

	job.Status = asset.JobStatusCompleted
	job.OutputPath = outPath
	log.Info("export complete",
		"duration_ms", result.Duration.Milliseconds(),
		"frames", plan.DurationFrames,
	)
	if s.notifier != nil {
		s.notifier.ExportDone(job)
	}
}
