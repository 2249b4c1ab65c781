// Package asset catalogues generated and imported media and tracks the
// generation jobs that produce it.
package asset

import (
	"time"

	"github.com/google/uuid"
)

// Asset types.
const (
	TypeImage = "image"
	TypeVideo = "video"
	TypeAudio = "audio"
	TypeModel = "model"
)

// Asset is a media record the composition core consumes. URL may point at
// the provider CDN or at the engine's own media endpoint for local imports.
type Asset struct {
	ID              string            `json:"id"`
	ProjectID       string            `json:"project_id,omitempty"`
	Type            string            `json:"type"`
	URL             string            `json:"url"`
	Filename        string            `json:"filename"`
	Prompt          string            `json:"prompt,omitempty"`
	Metadata        map[string]string `json:"metadata,omitempty"`
	DurationSeconds float64           `json:"duration_seconds,omitempty"`
	LocalPath       string            `json:"-"`
	CreatedAt       time.Time         `json:"created_at"`
}

// Job kinds.
const (
	JobKindGenerateImage = "generate_image"
	JobKindGenerateVideo = "generate_video"
	JobKindGenerateAudio = "generate_audio"
	JobKindGenerateModel = "generate_model"
	JobKindExport        = "export"
)

// Job statuses. Processing jobs found at startup are failed by the db layer
// since their remote handles are gone.
const (
	JobStatusPending    = "pending"
	JobStatusProcessing = "processing"
	JobStatusCompleted  = "completed"
	JobStatusFailed     = "failed"
)

// Job is one asynchronous generation or export task.
type Job struct {
	ID         string    `json:"id"`
	ProjectID  string    `json:"project_id,omitempty"`
	Kind       string    `json:"kind"`
	Status     string    `json:"status"`
	RemoteID   string    `json:"remote_id,omitempty"`
	Prompt     string    `json:"prompt,omitempty"`
	Progress   int       `json:"progress"`
	AssetID    string    `json:"asset_id,omitempty"`
	OutputPath string    `json:"output_path,omitempty"`
	Error      string    `json:"error,omitempty"`
	CreatedAt  time.Time `json:"created_at"`
	UpdatedAt  time.Time `json:"updated_at"`
}

// IsTerminal reports whether the job will never change again.
func (j *Job) IsTerminal() bool {
	return j.Status == JobStatusCompleted || j.Status == JobStatusFailed
}

// NewID returns a fresh asset or job identifier.
func NewID() string {
	return uuid.NewString()
}

// MediaExtensions lists the file extensions the import watcher registers.
var MediaExtensions = map[string]string{
	".mp4":  TypeVideo,
	".mov":  TypeVideo,
	".mkv":  TypeVideo,
	".webm": TypeVideo,
	".mp3":  TypeAudio,
	".wav":  TypeAudio,
	".m4a":  TypeAudio,
	".png":  TypeImage,
	".jpg":  TypeImage,
	".jpeg": TypeImage,
	".webp": TypeImage,
	".glb":  TypeModel,
	".gltf": TypeModel,
}
