package asset

import (
	"context"
	"fmt"
	"log/slog"
	"path/filepath"
	"strings"
	"time"

	"github.com/montagehq/montage-engine/internal/apperr"
	"github.com/montagehq/montage-engine/internal/generate"
)

// Service manages the asset catalog and generation job submissions.
type Service struct {
	repo     Repository
	provider generate.Client
	logger   *slog.Logger
}

func NewService(repo Repository, provider generate.Client, logger *slog.Logger) *Service {
	return &Service{repo: repo, provider: provider, logger: logger}
}

// Submit creates a generation job and hands the prompt to the provider.
func (s *Service) Submit(ctx context.Context, projectID, kind, prompt string) (*Job, error) {
	switch kind {
	case JobKindGenerateImage, JobKindGenerateVideo, JobKindGenerateAudio, JobKindGenerateModel:
	default:
		return nil, fmt.Errorf("%w: unknown job kind %q", apperr.ErrInvalid, kind)
	}
	if strings.TrimSpace(prompt) == "" {
		return nil, fmt.Errorf("%w: prompt is required", apperr.ErrInvalid)
	}

	remoteID, err := s.provider.Submit(ctx, strings.TrimPrefix(kind, "generate_"), prompt)
	if err != nil {
		return nil, fmt.Errorf("submit to provider: %w", err)
	}

	now := time.Now().UTC()
	job := &Job{
		ID:        NewID(),
		ProjectID: projectID,
		Kind:      kind,
		Status:    JobStatusPending,
		RemoteID:  remoteID,
		Prompt:    prompt,
		CreatedAt: now,
		UpdatedAt: now,
	}
	if err := s.repo.CreateJob(ctx, job); err != nil {
		return nil, fmt.Errorf("persist job: %w", err)
	}

	s.logger.Info("generation job submitted", "job_id", job.ID, "kind", kind, "remote_id", remoteID)
	return job, nil
}

// RegisterAsset records a media record in the catalog.
func (s *Service) RegisterAsset(ctx context.Context, a *Asset) (*Asset, error) {
	if a.URL == "" && a.LocalPath == "" {
		return nil, fmt.Errorf("%w: asset needs a url or local path", apperr.ErrInvalid)
	}
	if a.ID == "" {
		a.ID = NewID()
	}
	if a.Filename == "" && a.URL != "" {
		a.Filename = filepath.Base(a.URL)
	}
	if a.CreatedAt.IsZero() {
		a.CreatedAt = time.Now().UTC()
	}
	if err := s.repo.CreateAsset(ctx, a); err != nil {
		return nil, fmt.Errorf("persist asset: %w", err)
	}
	s.logger.Info("asset registered", "asset_id", a.ID, "type", a.Type)
	return a, nil
}

// RegisterLocalFile catalogues a media file dropped into the import folder.
// Unknown extensions are ignored.
func (s *Service) RegisterLocalFile(ctx context.Context, path string) (*Asset, error) {
	ext := strings.ToLower(filepath.Ext(path))
	kind, ok := MediaExtensions[ext]
	if !ok {
		return nil, nil
	}
	a := &Asset{
		ID:        NewID(),
		Type:      kind,
		Filename:  filepath.Base(path),
		LocalPath: path,
		CreatedAt: time.Now().UTC(),
	}
	a.URL = "/assets/" + a.ID + "/media"
	return s.RegisterAsset(ctx, a)
}

// ListAssets returns a project's assets, newest first.
func (s *Service) ListAssets(ctx context.Context, projectID string) ([]*Asset, error) {
	return s.repo.ListAssets(ctx, projectID)
}

// GetAsset returns one asset or nil.
func (s *Service) GetAsset(ctx context.Context, id string) (*Asset, error) {
	return s.repo.GetAsset(ctx, id)
}

// ListJobs returns a project's recent jobs.
func (s *Service) ListJobs(ctx context.Context, projectID string, limit int) ([]*Job, error) {
	return s.repo.ListJobs(ctx, projectID, limit)
}

// GetJob returns one job or nil.
func (s *Service) GetJob(ctx context.Context, id string) (*Job, error) {
	return s.repo.GetJob(ctx, id)
}

// HasActiveJobs reports whether generation work is in flight for a project.
// The manifest reconciler uses this to gate its polling.
func (s *Service) HasActiveJobs(ctx context.Context, projectID string) bool {
	count, err := s.repo.CountActiveJobs(ctx, projectID)
	if err != nil {
		s.logger.Warn("failed to count active jobs", "project_id", projectID, "error", err)
		return false
	}
	return count > 0
}
