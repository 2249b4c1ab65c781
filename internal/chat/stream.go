// Package chat consumes the studio's streaming chat endpoint and turns its
// event stream into transcript messages, tool-call status, and manifest
// refresh signals.
package chat

import (
	"bufio"
	"encoding/json"
	"io"
	"strings"
)

// Event types carried on the stream.
const (
	EventText       = "text"
	EventToolCall   = "tool_call"
	EventToolResult = "tool_result"
	EventError      = "error"
	EventDone       = "done"
)

// Event is one decoded stream frame.
type Event struct {
	Type string    `json:"type"`
	Data EventData `json:"data"`
}

// EventData is the union of per-type payload fields.
type EventData struct {
	Content string          `json:"content,omitempty"`
	ID      string          `json:"id,omitempty"`
	Name    string          `json:"name,omitempty"`
	Args    json.RawMessage `json:"args,omitempty"`
	Status  string          `json:"status,omitempty"`
	Result  json.RawMessage `json:"result,omitempty"`
	Message string          `json:"message,omitempty"`
}

const (
	dataPrefix   = "data: "
	doneSentinel = "[DONE]"
)

// Scanner iterates decoded events over a newline-delimited SSE body. Lines
// without the "data: " prefix are skipped; the literal "[DONE]" sentinel
// terminates the stream without being parsed as JSON; a malformed JSON line
// is skipped so one corrupt frame cannot kill an otherwise valid stream.
type Scanner struct {
	scanner *bufio.Scanner
	done    bool
}

// NewScanner wraps a response body.
func NewScanner(r io.Reader) *Scanner {
	s := bufio.NewScanner(r)
	s.Buffer(make([]byte, 0, 64*1024), 1024*1024)
	return &Scanner{scanner: s}
}

// Next returns the next event, or io.EOF when the stream ends (naturally or
// via the done sentinel).
func (s *Scanner) Next() (*Event, error) {
	if s.done {
		return nil, io.EOF
	}
	for s.scanner.Scan() {
		line := strings.TrimRight(s.scanner.Text(), "\r")
		if !strings.HasPrefix(line, dataPrefix) {
			continue
		}
		payload := strings.TrimPrefix(line, dataPrefix)
		if strings.TrimSpace(payload) == doneSentinel {
			s.done = true
			return nil, io.EOF
		}

		var ev Event
		if err := json.Unmarshal([]byte(payload), &ev); err != nil {
			// Corrupt frame; skip the line, keep the stream.
			continue
		}
		if ev.Type == "" {
			continue
		}
		return &ev, nil
	}
	s.done = true
	if err := s.scanner.Err(); err != nil {
		return nil, err
	}
	return nil, io.EOF
}
