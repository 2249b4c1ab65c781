// Package studio talks to the studio SaaS: the remote copy of a project's
// manifest that cloud-side agents mutate while generation jobs run. The
// engine only ever reads from it; local edits flow back through the SaaS's
// own channels.
package studio

import (
	"context"
	"time"

	"github.com/montagehq/montage-engine/internal/manifest"
)

// Client fetches remote manifest state.
type Client interface {
	// FetchManifest returns the SaaS copy of the manifest and its
	// server-side updatedAt. A nil manifest means the project has no remote
	// copy yet.
	FetchManifest(ctx context.Context, projectID string) (*manifest.Manifest, time.Time, error)

	// Ping verifies connectivity and credentials.
	Ping(ctx context.Context) error
}
