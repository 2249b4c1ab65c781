package studio

import (
	"context"
	"crypto/rand"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"time"

	"github.com/montagehq/montage-engine/internal/manifest"
)

// RequestError is a non-2xx response from the studio SaaS.
type RequestError struct {
	StatusCode int
	Body       string
}

func (e *RequestError) Error() string {
	return fmt.Sprintf("studio request failed: HTTP %d: %s", e.StatusCode, e.Body)
}

// IsRetryable returns true for server errors (5xx). Client errors (4xx) are
// considered permanent.
func (e *RequestError) IsRetryable() bool {
	return e.StatusCode >= 500
}

// HTTPClient is the real studio client. It reads project manifests from the
// SaaS manifest endpoint with bearer auth.
type HTTPClient struct {
	baseURL    string
	token      string
	httpClient *http.Client
	logger     *slog.Logger
}

func NewHTTPClient(baseURL, token string, logger *slog.Logger) *HTTPClient {
	return &HTTPClient{
		baseURL: baseURL,
		token:   token,
		httpClient: &http.Client{
			Timeout: 30 * time.Second,
		},
		logger: logger,
	}
}

type manifestEnvelope struct {
	Manifest  *manifest.Manifest `json:"manifest"`
	UpdatedAt time.Time          `json:"updated_at"`
}

// FetchManifest reads the SaaS copy of a project manifest. 404 means no
// remote copy exists yet and is not an error.
func (c *HTTPClient) FetchManifest(ctx context.Context, projectID string) (*manifest.Manifest, time.Time, error) {
	url := fmt.Sprintf("%s/api/projects/%s/manifest", c.baseURL, projectID)

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, time.Time{}, fmt.Errorf("create request: %w", err)
	}
	c.setHeaders(req)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, time.Time{}, fmt.Errorf("http request failed: %w", err)
	}
	defer resp.Body.Close()

	body, _ := io.ReadAll(io.LimitReader(resp.Body, 4<<20))

	if resp.StatusCode == http.StatusNotFound {
		return nil, time.Time{}, nil
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return nil, time.Time{}, &RequestError{StatusCode: resp.StatusCode, Body: truncateBody(body)}
	}

	var env manifestEnvelope
	if err := json.Unmarshal(body, &env); err != nil {
		return nil, time.Time{}, fmt.Errorf("parse manifest response: %w", err)
	}

	c.logger.Debug("remote manifest fetched",
		"project_id", projectID,
		"updated_at", env.UpdatedAt,
		"body_bytes", len(body),
	)

	return env.Manifest, env.UpdatedAt, nil
}

// Ping verifies connectivity and credentials against the health endpoint.
func (c *HTTPClient) Ping(ctx context.Context) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+"/api/health", nil)
	if err != nil {
		return fmt.Errorf("create request: %w", err)
	}
	c.setHeaders(req)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("http request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		return &RequestError{StatusCode: resp.StatusCode, Body: truncateBody(body)}
	}
	return nil
}

func (c *HTTPClient) setHeaders(req *http.Request) {
	req.Header.Set("Accept", "application/json")
	req.Header.Set("Authorization", "Bearer "+c.token)
	req.Header.Set("X-Montage-Request-Id", generateRequestID())
}

func truncateBody(b []byte) string {
	const max = 512
	if len(b) > max {
		return string(b[:max]) + "..."
	}
	return string(b)
}

func generateRequestID() string {
	b := make([]byte, 16)
	_, _ = rand.Read(b)
	return fmt.Sprintf("%x-%x-%x-%x-%x", b[0:4], b[4:6], b[6:8], b[8:10], b[10:])
}
