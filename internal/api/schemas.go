package api

import (
	"encoding/json"
	"time"

	"github.com/montagehq/montage-engine/internal/asset"
	"github.com/montagehq/montage-engine/internal/chat"
	"github.com/montagehq/montage-engine/internal/manifest"
	"github.com/montagehq/montage-engine/internal/project"
)

type HealthResponse struct {
	Status  string `json:"status"`
	Version string `json:"version"`
	UptimeS int64  `json:"uptime_s"`
}

type StatusResponse struct {
	State         string            `json:"state"`
	OpenProjects  int               `json:"open_projects"`
	JobsRunning   int               `json:"jobs_running"`
	SSEClients    int               `json:"sse_clients"`
	PollingPaused bool              `json:"polling_paused"`
	Renderer      *RendererResponse `json:"renderer,omitempty"`
}

type RendererResponse struct {
	CanRender   bool   `json:"can_render"`
	Version     string `json:"version,omitempty"`
	LastProbeAt string `json:"last_probe_at,omitempty"`
}

type CreateProjectRequest struct {
	Name string `json:"name"`
	FPS  int    `json:"fps,omitempty"`
}

type RenameProjectRequest struct {
	Name string `json:"name"`
}

type ProjectResponse struct {
	ID        string `json:"id"`
	Name      string `json:"name"`
	FPS       int    `json:"fps"`
	CreatedAt string `json:"created_at"`
	UpdatedAt string `json:"updated_at"`
}

type ProjectsResponse struct {
	Projects []ProjectResponse `json:"projects"`
}

type ManifestResponse struct {
	Manifest *manifest.Manifest `json:"manifest"`
	Revision uint64             `json:"revision"`
	Duration int                `json:"duration_frames"`
}

// MutationRequest is the flat union of every manifest operation's
// parameters. Op selects which fields matter; pointers separate "absent"
// from zero.
type MutationRequest struct {
	Op             string            `json:"op"`
	ClipID         string            `json:"clip_id,omitempty"`
	Track          string            `json:"track,omitempty"`
	URL            string            `json:"url,omitempty"`
	AssetID        string            `json:"asset_id,omitempty"`
	StartFrame     *int              `json:"start_frame,omitempty"`
	DurationFrames *int              `json:"duration_frames,omitempty"`
	Layer          *int              `json:"layer,omitempty"`
	From           *int              `json:"from,omitempty"`
	To             *int              `json:"to,omitempty"`
	GapFrames      *int              `json:"gap_frames,omitempty"`
	Volume         *float64          `json:"volume,omitempty"`
	Transition     string            `json:"transition,omitempty"`
	Effects        []manifest.Effect `json:"effects,omitempty"`
	Component      string            `json:"component,omitempty"`
	Props          json.RawMessage   `json:"props,omitempty"`
	Color          string            `json:"color,omitempty"`
}

type RegisterAssetRequest struct {
	Type            string            `json:"type"`
	URL             string            `json:"url"`
	Filename        string            `json:"filename,omitempty"`
	Prompt          string            `json:"prompt,omitempty"`
	Metadata        map[string]string `json:"metadata,omitempty"`
	DurationSeconds float64           `json:"duration_seconds,omitempty"`
}

type AssetsResponse struct {
	Assets []*asset.Asset `json:"assets"`
}

type GenerateRequest struct {
	Kind   string `json:"kind"`
	Prompt string `json:"prompt"`
}

type JobsResponse struct {
	Jobs []*asset.Job `json:"jobs"`
}

type TransportRequest struct {
	Action string `json:"action"`
	Frame  *int   `json:"frame,omitempty"`
}

type ExportRequest struct {
	Format string `json:"format,omitempty"`
}

type ExportResponse struct {
	Format string     `json:"format"`
	Path   string     `json:"path,omitempty"`
	Job    *asset.Job `json:"job,omitempty"`
}

type ChatRequest struct {
	Message string `json:"message"`
}

type ChatMessagesResponse struct {
	Messages []chat.Message `json:"messages"`
}

type ErrorResponse struct {
	Error string `json:"error"`
	Code  string `json:"code,omitempty"`
}

func ProjectToResponse(p *project.Project) ProjectResponse {
	return ProjectResponse{
		ID:        p.ID,
		Name:      p.Name,
		FPS:       p.FPS,
		CreatedAt: p.CreatedAt.Format(time.RFC3339),
		UpdatedAt: p.UpdatedAt.Format(time.RFC3339),
	}
}
