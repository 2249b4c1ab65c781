package chat

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"time"
)

// Client talks to the studio SaaS chat endpoints: a streaming POST plus
// GET/DELETE history variants.
type Client struct {
	baseURL    string
	token      string
	httpClient *http.Client
	logger     *slog.Logger
}

func NewClient(baseURL, token string, logger *slog.Logger) *Client {
	return &Client{
		baseURL: baseURL,
		token:   token,
		// No overall timeout: the response body streams for the whole
		// assistant turn. Cancellation happens through the request context.
		httpClient: &http.Client{},
		logger:     logger,
	}
}

type sendRequest struct {
	Message   string `json:"message"`
	ProjectID string `json:"projectId"`
}

// StreamError represents a non-2xx response from the chat endpoint.
type StreamError struct {
	StatusCode int
	Body       string
}

func (e *StreamError) Error() string {
	return fmt.Sprintf("chat request failed: HTTP %d: %s", e.StatusCode, e.Body)
}

// OpenStream POSTs a message and returns the raw streaming body. The caller
// owns closing it; cancelling ctx aborts the stream.
func (c *Client) OpenStream(ctx context.Context, projectID, message string) (io.ReadCloser, error) {
	body, err := json.Marshal(sendRequest{Message: message, ProjectID: projectID})
	if err != nil {
		return nil, fmt.Errorf("marshal chat payload: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/api/chat", bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "text/event-stream")
	req.Header.Set("Authorization", "Bearer "+c.token)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("http request failed: %w", err)
	}

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		respBody, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		resp.Body.Close()
		return nil, &StreamError{StatusCode: resp.StatusCode, Body: string(respBody)}
	}

	return resp.Body, nil
}

type historyResponse struct {
	Messages []historyMessage `json:"messages"`
}

type historyMessage struct {
	ID        string `json:"id"`
	Role      string `json:"role"`
	Content   string `json:"content"`
	CreatedAt string `json:"createdAt"`
}

// History fetches the remote transcript for a project.
func (c *Client) History(ctx context.Context, projectID string) ([]Message, error) {
	url := fmt.Sprintf("%s/api/chat?projectId=%s", c.baseURL, projectID)
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+c.token)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("http request failed: %w", err)
	}
	defer resp.Body.Close()

	respBody, _ := io.ReadAll(io.LimitReader(resp.Body, 4*1024*1024))
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return nil, &StreamError{StatusCode: resp.StatusCode, Body: string(respBody)}
	}

	var parsed historyResponse
	if err := json.Unmarshal(respBody, &parsed); err != nil {
		return nil, fmt.Errorf("decode history: %w", err)
	}

	messages := make([]Message, 0, len(parsed.Messages))
	for _, m := range parsed.Messages {
		at, _ := time.Parse(time.RFC3339, m.CreatedAt)
		messages = append(messages, Message{ID: m.ID, Role: m.Role, Content: m.Content, CreatedAt: at})
	}
	return messages, nil
}

// ClearHistory deletes the remote transcript for a project.
func (c *Client) ClearHistory(ctx context.Context, projectID string) error {
	url := fmt.Sprintf("%s/api/chat?projectId=%s", c.baseURL, projectID)
	req, err := http.NewRequestWithContext(ctx, http.MethodDelete, url, nil)
	if err != nil {
		return fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+c.token)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("http request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		respBody, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		return &StreamError{StatusCode: resp.StatusCode, Body: string(respBody)}
	}
	return nil
}
