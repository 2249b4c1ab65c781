// Package generate talks to the external media generation provider. The
// engine submits prompts and polls request status; the provider's progress
// field is advisory and may be absent.
package generate

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"time"

	"github.com/google/uuid"
)

// Status values reported by the provider's job status feed.
const (
	StatusPending    = "pending"
	StatusProcessing = "processing"
	StatusCompleted  = "completed"
	StatusFailed     = "failed"
)

// IsTerminal reports whether a status will never change again.
func IsTerminal(status string) bool {
	return status == StatusCompleted || status == StatusFailed
}

// JobStatus is one poll result for a submitted request.
type JobStatus struct {
	Status          string  `json:"status"`
	Progress        *int    `json:"progress,omitempty"`
	OutputURL       string  `json:"output_url,omitempty"`
	DurationSeconds float64 `json:"duration_seconds,omitempty"`
	Error           string  `json:"error,omitempty"`
}

// Client is the provider contract: submit a prompt, poll its status.
type Client interface {
	Submit(ctx context.Context, kind, prompt string) (string, error)
	Status(ctx context.Context, remoteID string) (*JobStatus, error)
}

// RequestError represents a non-2xx provider response.
type RequestError struct {
	StatusCode int
	Body       string
}

func (e *RequestError) Error() string {
	return fmt.Sprintf("provider request failed: HTTP %d: %s", e.StatusCode, e.Body)
}

// IsRetryable returns true for server errors (5xx). Client errors (4xx)
// are considered permanent.
func (e *RequestError) IsRetryable() bool {
	return e.StatusCode >= 500
}

// HTTPClient is the real provider client, speaking a fal-style queue API:
// submit returns a request id, status is polled per id.
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
			Timeout: 60 * time.Second,
		},
		logger: logger,
	}
}

type submitRequest struct {
	Prompt string `json:"prompt"`
}

type submitResponse struct {
	RequestID string `json:"request_id"`
}

func (c *HTTPClient) Submit(ctx context.Context, kind, prompt string) (string, error) {
	body, err := json.Marshal(submitRequest{Prompt: prompt})
	if err != nil {
		return "", fmt.Errorf("marshal submit payload: %w", err)
	}

	url := fmt.Sprintf("%s/v1/generate/%s", c.baseURL, kind)
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		return "", fmt.Errorf("create request: %w", err)
	}
	c.setHeaders(req)

	c.logger.Info("submitting generation request", "url", url, "kind", kind)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return "", fmt.Errorf("http request failed: %w", err)
	}
	defer resp.Body.Close()

	respBody, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return "", &RequestError{StatusCode: resp.StatusCode, Body: string(respBody)}
	}

	var result submitResponse
	if err := json.Unmarshal(respBody, &result); err != nil {
		return "", fmt.Errorf("decode submit response: %w", err)
	}
	if result.RequestID == "" {
		return "", fmt.Errorf("provider returned empty request id")
	}
	return result.RequestID, nil
}

func (c *HTTPClient) Status(ctx context.Context, remoteID string) (*JobStatus, error) {
	url := fmt.Sprintf("%s/v1/requests/%s/status", c.baseURL, remoteID)
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}
	c.setHeaders(req)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("http request failed: %w", err)
	}
	defer resp.Body.Close()

	respBody, _ := io.ReadAll(io.LimitReader(resp.Body, 64*1024))
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return nil, &RequestError{StatusCode: resp.StatusCode, Body: string(respBody)}
	}

	var status JobStatus
	if err := json.Unmarshal(respBody, &status); err != nil {
		return nil, fmt.Errorf("decode status response: %w", err)
	}
	return &status, nil
}

func (c *HTTPClient) setHeaders(req *http.Request) {
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+c.token)
	req.Header.Set("X-Montage-Request-Id", uuid.NewString())
}

// StubClient stands in when no provider is configured. Submissions fail
// immediately on the first status poll with a clear message.
type StubClient struct {
	logger *slog.Logger
}

func NewStubClient(logger *slog.Logger) *StubClient {
	return &StubClient{logger: logger}
}

func (c *StubClient) Submit(ctx context.Context, kind, prompt string) (string, error) {
	c.logger.Info("generate stub: submission requested", "kind", kind)
	return "stub-" + uuid.NewString(), nil
}

func (c *StubClient) Status(ctx context.Context, remoteID string) (*JobStatus, error) {
	return &JobStatus{
		Status: StatusFailed,
		Error:  "no generation provider configured",
	}, nil
}
