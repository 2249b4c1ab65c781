package project

import (
	"context"
	"log/slog"
	"time"

	"github.com/montagehq/montage-engine/internal/manifest"
)

// RemoteSource fetches the studio SaaS copy of a project manifest together
// with its server-side updatedAt timestamp.
type RemoteSource interface {
	FetchManifest(ctx context.Context, projectID string) (*manifest.Manifest, time.Time, error)
}

// ActivityChecker reports whether a project has generation jobs in flight
// that could plausibly be mutating the manifest remotely.
type ActivityChecker interface {
	HasActiveJobs(ctx context.Context, projectID string) bool
}

// Reconciler polls the studio SaaS for remote manifest updates and feeds
// them into the store. Polling is conditional: a project is only polled
// while it has active generation jobs; with no jobs in flight nothing is
// fetched at all. Each tick completes its fetches before the next fires, so
// polls for the same project never overlap.
type Reconciler struct {
	store    *Store
	remote   RemoteSource
	activity ActivityChecker
	interval time.Duration
	logger   *slog.Logger
}

// NewReconciler wires a reconciler. interval <= 0 falls back to 5s.
func NewReconciler(store *Store, remote RemoteSource, activity ActivityChecker, interval time.Duration, logger *slog.Logger) *Reconciler {
	if interval <= 0 {
		interval = 5 * time.Second
	}
	return &Reconciler{
		store:    store,
		remote:   remote,
		activity: activity,
		interval: interval,
		logger:   logger,
	}
}

// Run polls until ctx is cancelled. Transport failures are logged and
// swallowed; the next tick retries naturally.
func (r *Reconciler) Run(ctx context.Context) {
	ticker := time.NewTicker(r.interval)
	defer ticker.Stop()

	r.logger.Info("manifest reconciler started", "interval", r.interval)

	for {
		select {
		case <-ctx.Done():
			r.logger.Info("manifest reconciler stopping")
			return
		case <-ticker.C:
			r.Tick(ctx)
		}
	}
}

// Tick reconciles every open project session that has active jobs.
func (r *Reconciler) Tick(ctx context.Context) {
	for _, projectID := range r.store.OpenProjects() {
		if !r.activity.HasActiveJobs(ctx, projectID) {
			continue
		}
		r.reconcile(ctx, projectID)
	}
}

// ReconcileNow fetches one project immediately, bypassing the activity
// gate. Used after chat tool calls touch the manifest server-side.
func (r *Reconciler) ReconcileNow(ctx context.Context, projectID string) {
	r.reconcile(ctx, projectID)
}

func (r *Reconciler) reconcile(ctx context.Context, projectID string) {
	m, updatedAt, err := r.remote.FetchManifest(ctx, projectID)
	if err != nil {
		r.logger.Warn("manifest fetch failed", "project_id", projectID, "error", err)
		return
	}
	if m == nil {
		return
	}

	applied, err := r.store.ApplyRemote(ctx, projectID, m, updatedAt)
	if err != nil {
		r.logger.Warn("remote manifest rejected", "project_id", projectID, "error", err)
		return
	}
	if applied {
		r.logger.Debug("remote manifest applied", "project_id", projectID, "updated_at", updatedAt)
	}
}
