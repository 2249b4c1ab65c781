package asset

import (
	"context"
	"database/sql"
	"encoding/json"
	"time"
)

// Repository is the persistence contract for assets and jobs.
type Repository interface {
	CreateAsset(ctx context.Context, a *Asset) error
	GetAsset(ctx context.Context, id string) (*Asset, error)
	ListAssets(ctx context.Context, projectID string) ([]*Asset, error)
	DeleteAsset(ctx context.Context, id string) error

	CreateJob(ctx context.Context, j *Job) error
	GetJob(ctx context.Context, id string) (*Job, error)
	ListJobs(ctx context.Context, projectID string, limit int) ([]*Job, error)
	ListPollableJobs(ctx context.Context) ([]*Job, error)
	CountActiveJobs(ctx context.Context, projectID string) (int, error)
	UpdateJobStatus(ctx context.Context, id, status, errorMsg string) error
	UpdateJobProgress(ctx context.Context, id string, progress int) error
	SetJobResult(ctx context.Context, id, assetID, outputPath string) error
}

type SQLiteRepository struct {
	db *sql.DB
}

func NewRepository(db *sql.DB) *SQLiteRepository {
	return &SQLiteRepository{db: db}
}

func (r *SQLiteRepository) CreateAsset(ctx context.Context, a *Asset) error {
	meta := "{}"
	if a.Metadata != nil {
		if b, err := json.Marshal(a.Metadata); err == nil {
			meta = string(b)
		}
	}
	_, err := r.db.ExecContext(ctx, `
		INSERT INTO assets (id, project_id, type, url, filename, prompt, metadata, duration_seconds, local_path, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`, a.ID, nullString(a.ProjectID), a.Type, a.URL, a.Filename, a.Prompt, meta,
		a.DurationSeconds, nullString(a.LocalPath), a.CreatedAt.Format(time.RFC3339))
	return err
}

const assetColumns = "id, project_id, type, url, filename, prompt, metadata, duration_seconds, local_path, created_at"

func (r *SQLiteRepository) GetAsset(ctx context.Context, id string) (*Asset, error) {
	row := r.db.QueryRowContext(ctx, "SELECT "+assetColumns+" FROM assets WHERE id = ?", id)

	a, err := scanAsset(row.Scan)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	return a, err
}

func (r *SQLiteRepository) ListAssets(ctx context.Context, projectID string) ([]*Asset, error) {
	rows, err := r.db.QueryContext(ctx,
		"SELECT "+assetColumns+" FROM assets WHERE project_id = ? ORDER BY created_at DESC", projectID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var assets []*Asset
	for rows.Next() {
		a, err := scanAsset(rows.Scan)
		if err != nil {
			return nil, err
		}
		assets = append(assets, a)
	}
	return assets, rows.Err()
}

func scanAsset(scan func(dest ...any) error) (*Asset, error) {
	var a Asset
	var projectID, localPath sql.NullString
	var meta, createdAt string

	if err := scan(&a.ID, &projectID, &a.Type, &a.URL, &a.Filename, &a.Prompt,
		&meta, &a.DurationSeconds, &localPath, &createdAt); err != nil {
		return nil, err
	}
	a.ProjectID = projectID.String
	a.LocalPath = localPath.String
	a.CreatedAt, _ = time.Parse(time.RFC3339, createdAt)
	if meta != "" && meta != "{}" {
		_ = json.Unmarshal([]byte(meta), &a.Metadata)
	}
	return &a, nil
}

func (r *SQLiteRepository) DeleteAsset(ctx context.Context, id string) error {
	_, err := r.db.ExecContext(ctx, "DELETE FROM assets WHERE id = ?", id)
	return err
}

const jobColumns = "id, project_id, kind, status, remote_id, prompt, progress, asset_id, output_path, error, created_at, updated_at"

func (r *SQLiteRepository) CreateJob(ctx context.Context, j *Job) error {
	_, err := r.db.ExecContext(ctx, `
		INSERT INTO jobs (id, project_id, kind, status, remote_id, prompt, progress, asset_id, output_path, error, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`, j.ID, nullString(j.ProjectID), j.Kind, j.Status, nullString(j.RemoteID), j.Prompt,
		j.Progress, nullString(j.AssetID), nullString(j.OutputPath), nullString(j.Error),
		j.CreatedAt.Format(time.RFC3339), j.UpdatedAt.Format(time.RFC3339))
	return err
}

func (r *SQLiteRepository) GetJob(ctx context.Context, id string) (*Job, error) {
	row := r.db.QueryRowContext(ctx, "SELECT "+jobColumns+" FROM jobs WHERE id = ?", id)
	j, err := scanJob(row.Scan)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	return j, err
}

func (r *SQLiteRepository) ListJobs(ctx context.Context, projectID string, limit int) ([]*Job, error) {
	if limit <= 0 {
		limit = 50
	}
	rows, err := r.db.QueryContext(ctx,
		"SELECT "+jobColumns+" FROM jobs WHERE project_id = ? ORDER BY created_at DESC LIMIT ?",
		projectID, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return scanJobs(rows)
}

// ListPollableJobs returns non-terminal generation jobs across all
// projects. Terminal jobs are never polled again.
func (r *SQLiteRepository) ListPollableJobs(ctx context.Context) ([]*Job, error) {
	rows, err := r.db.QueryContext(ctx, `
		SELECT `+jobColumns+` FROM jobs
		WHERE status IN ('pending', 'processing') AND kind != 'export'
		ORDER BY created_at ASC
	`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return scanJobs(rows)
}

func (r *SQLiteRepository) CountActiveJobs(ctx context.Context, projectID string) (int, error) {
	var count int
	err := r.db.QueryRowContext(ctx, `
		SELECT COUNT(*) FROM jobs WHERE project_id = ? AND status IN ('pending', 'processing')
	`, projectID).Scan(&count)
	return count, err
}

func scanJob(scan func(dest ...any) error) (*Job, error) {
	var j Job
	var projectID, remoteID, assetID, outputPath, errMsg sql.NullString
	var createdAt, updatedAt string

	if err := scan(&j.ID, &projectID, &j.Kind, &j.Status, &remoteID, &j.Prompt,
		&j.Progress, &assetID, &outputPath, &errMsg, &createdAt, &updatedAt); err != nil {
		return nil, err
	}
	j.ProjectID = projectID.String
	j.RemoteID = remoteID.String
	j.AssetID = assetID.String
	j.OutputPath = outputPath.String
	j.Error = errMsg.String
	j.CreatedAt, _ = time.Parse(time.RFC3339, createdAt)
	j.UpdatedAt, _ = time.Parse(time.RFC3339, updatedAt)
	return &j, nil
}

func scanJobs(rows *sql.Rows) ([]*Job, error) {
	var jobs []*Job
	for rows.Next() {
		j, err := scanJob(rows.Scan)
		if err != nil {
			return nil, err
		}
		jobs = append(jobs, j)
	}
	return jobs, rows.Err()
}

func (r *SQLiteRepository) UpdateJobStatus(ctx context.Context, id, status, errorMsg string) error {
	_, err := r.db.ExecContext(ctx, `
		UPDATE jobs SET status = ?, error = ?, updated_at = datetime('now') WHERE id = ?
	`, status, nullString(errorMsg), id)
	return err
}

func (r *SQLiteRepository) UpdateJobProgress(ctx context.Context, id string, progress int) error {
	_, err := r.db.ExecContext(ctx, `
		UPDATE jobs SET progress = ?, updated_at = datetime('now') WHERE id = ?
	`, progress, id)
	return err
}

func (r *SQLiteRepository) SetJobResult(ctx context.Context, id, assetID, outputPath string) error {
	_, err := r.db.ExecContext(ctx, `
		UPDATE jobs SET asset_id = ?, output_path = ?, updated_at = datetime('now') WHERE id = ?
	`, nullString(assetID), nullString(outputPath), id)
	return err
}

func nullString(s string) any {
	if s == "" {
		return nil
	}
	return s
}
