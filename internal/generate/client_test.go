package generate

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func TestSubmit(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/v1/generate/image" {
			t.Errorf("path = %q", r.URL.Path)
		}
		if got := r.Header.Get("Authorization"); got != "Bearer prov-tok" {
			t.Errorf("authorization = %q", got)
		}
		var req struct {
			Prompt string `json:"prompt"`
		}
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			t.Errorf("decode: %v", err)
		}
		if req.Prompt != "a red door" {
			t.Errorf("prompt = %q", req.Prompt)
		}
		fmt.Fprint(w, `{"request_id": "req-42"}`)
	}))
	defer srv.Close()

	client := NewHTTPClient(srv.URL, "prov-tok", testLogger())
	id, err := client.Submit(context.Background(), "image", "a red door")
	if err != nil {
		t.Fatalf("submit: %v", err)
	}
	if id != "req-42" {
		t.Errorf("request id = %q", id)
	}
}

func TestSubmitEmptyRequestID(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, `{}`)
	}))
	defer srv.Close()

	client := NewHTTPClient(srv.URL, "tok", testLogger())
	if _, err := client.Submit(context.Background(), "image", "x"); err == nil {
		t.Fatalf("expected error for empty request id")
	}
}

func TestSubmitProviderError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "quota exceeded", http.StatusTooManyRequests)
	}))
	defer srv.Close()

	client := NewHTTPClient(srv.URL, "tok", testLogger())
	_, err := client.Submit(context.Background(), "video", "x")
	var reqErr *RequestError
	if !errors.As(err, &reqErr) {
		t.Fatalf("error = %v, want *RequestError", err)
	}
	if reqErr.StatusCode != http.StatusTooManyRequests {
		t.Errorf("status = %d", reqErr.StatusCode)
	}
	if reqErr.IsRetryable() {
		t.Errorf("429 should not be retryable")
	}
}

func TestStatus(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/v1/requests/req-42/status" {
			t.Errorf("path = %q", r.URL.Path)
		}
		fmt.Fprint(w, `{"status": "processing", "progress": 60}`)
	}))
	defer srv.Close()

	client := NewHTTPClient(srv.URL, "tok", testLogger())
	st, err := client.Status(context.Background(), "req-42")
	if err != nil {
		t.Fatalf("status: %v", err)
	}
	if st.Status != StatusProcessing {
		t.Errorf("status = %q", st.Status)
	}
	if st.Progress == nil || *st.Progress != 60 {
		t.Errorf("progress = %v, want 60", st.Progress)
	}
}

func TestStatusServerErrorIsRetryable(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "boom", http.StatusInternalServerError)
	}))
	defer srv.Close()

	client := NewHTTPClient(srv.URL, "tok", testLogger())
	_, err := client.Status(context.Background(), "r")
	var reqErr *RequestError
	if !errors.As(err, &reqErr) {
		t.Fatalf("error = %v, want *RequestError", err)
	}
	if !reqErr.IsRetryable() {
		t.Errorf("500 should be retryable")
	}
}

func TestIsTerminal(t *testing.T) {
	tests := []struct {
		status string
		want   bool
	}{
		{StatusPending, false},
		{StatusProcessing, false},
		{StatusCompleted, true},
		{StatusFailed, true},
	}
	for _, tt := range tests {
		if got := IsTerminal(tt.status); got != tt.want {
			t.Errorf("IsTerminal(%q) = %v, want %v", tt.status, got, tt.want)
		}
	}
}

func TestStubClientFailsOnFirstPoll(t *testing.T) {
	stub := NewStubClient(testLogger())

	id, err := stub.Submit(context.Background(), "image", "anything")
	if err != nil {
		t.Fatalf("submit: %v", err)
	}
	if id == "" {
		t.Fatalf("stub returned empty remote id")
	}

	st, err := stub.Status(context.Background(), id)
	if err != nil {
		t.Fatalf("status: %v", err)
	}
	if st.Status != StatusFailed {
		t.Errorf("status = %q, want failed", st.Status)
	}
	if st.Error == "" {
		t.Errorf("stub failure should carry a message")
	}
}
