package studio

import (
	"context"
	"log/slog"
	"time"

	"github.com/montagehq/montage-engine/internal/manifest"
)

// StubClient is the client used when the studio integration is disabled.
// It reports no remote state, so the reconciler never applies anything.
type StubClient struct {
	logger *slog.Logger
}

func NewStubClient(logger *slog.Logger) *StubClient {
	return &StubClient{logger: logger}
}

func (c *StubClient) FetchManifest(ctx context.Context, projectID string) (*manifest.Manifest, time.Time, error) {
	return nil, time.Time{}, nil
}

func (c *StubClient) Ping(ctx context.Context) error {
	c.logger.Debug("studio stub: ping")
	return nil
}
