package chat

import (
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
)

// Session states.
type SessionState int

const (
	StateIdle SessionState = iota
	StateStreaming
	StateFinalizing
	StateError
)

func (s SessionState) String() string {
	switch s {
	case StateIdle:
		return "idle"
	case StateStreaming:
		return "streaming"
	case StateFinalizing:
		return "finalizing"
	case StateError:
		return "error"
	}
	return "unknown"
}

// Tool call statuses.
const (
	ToolPending   = "pending"
	ToolCompleted = "completed"
	ToolFailed    = "failed"
)

// ToolCall is one tool invocation surfaced on the stream.
type ToolCall struct {
	ID     string          `json:"id"`
	Name   string          `json:"name"`
	Args   json.RawMessage `json:"args,omitempty"`
	Status string          `json:"status"`
	Result json.RawMessage `json:"result,omitempty"`
}

// Message is one transcript entry.
type Message struct {
	ID        string    `json:"id"`
	Role      string    `json:"role"`
	Content   string    `json:"content"`
	CreatedAt time.Time `json:"created_at"`
}

// Session accumulates one streamed assistant turn: text deltas, tool-call
// entries, and inline error markers. It is a plain state machine with no
// I/O; the bridge drives it from the scanner.
type Session struct {
	state   SessionState
	content strings.Builder

	tools     []*ToolCall
	toolIndex map[string]*ToolCall

	// manifestTouched is set when a completed tool result indicates the
	// timeline was modified server-side.
	manifestTouched bool

	onDelta func(string)
	onTool  func(ToolCall)
}

// NewSession returns an idle session.
func NewSession() *Session {
	return &Session{toolIndex: make(map[string]*ToolCall)}
}

// OnDelta registers a listener for incremental text content.
func (s *Session) OnDelta(fn func(string)) { s.onDelta = fn }

// OnTool registers a listener for tool-call status changes.
func (s *Session) OnTool(fn func(ToolCall)) { s.onTool = fn }

// State returns the current machine state.
func (s *Session) State() SessionState { return s.state }

// Tools returns the accumulated tool calls in arrival order.
func (s *Session) Tools() []ToolCall {
	out := make([]ToolCall, len(s.tools))
	for i, t := range s.tools {
		out[i] = *t
	}
	return out
}

// ManifestTouched reports whether any tool result flagged a timeline change.
func (s *Session) ManifestTouched() bool { return s.manifestTouched }

// Begin transitions idle -> streaming.
func (s *Session) Begin() {
	s.state = StateStreaming
}

// Consume applies one decoded event. Unknown event types are ignored.
func (s *Session) Consume(ev *Event) {
	if s.state != StateStreaming || ev == nil {
		return
	}

	switch ev.Type {
	case EventText:
		s.content.WriteString(ev.Data.Content)
		if s.onDelta != nil && ev.Data.Content != "" {
			s.onDelta(ev.Data.Content)
		}

	case EventToolCall:
		id := ev.Data.ID
		if id == "" {
			id = uuid.NewString()
		}
		if _, exists := s.toolIndex[id]; exists {
			return
		}
		tc := &ToolCall{ID: id, Name: ev.Data.Name, Args: ev.Data.Args, Status: ToolPending}
		s.tools = append(s.tools, tc)
		s.toolIndex[id] = tc
		if s.onTool != nil {
			s.onTool(*tc)
		}

	case EventToolResult:
		tc, ok := s.toolIndex[ev.Data.ID]
		if !ok {
			return
		}
		if ev.Data.Status == ToolFailed {
			tc.Status = ToolFailed
		} else {
			tc.Status = ToolCompleted
		}
		tc.Result = ev.Data.Result
		if tc.Status == ToolCompleted && touchesManifest(tc) {
			s.manifestTouched = true
		}
		if s.onTool != nil {
			s.onTool(*tc)
		}

	case EventError:
		// A stream-level error is surfaced inline, it does not abort the
		// stream.
		msg := ev.Data.Message
		if msg == "" {
			msg = "unknown error"
		}
		marker := fmt.Sprintf("\n\n[error: %s]", msg)
		s.content.WriteString(marker)
		if s.onDelta != nil {
			s.onDelta(marker)
		}

	case EventDone:
		s.state = StateFinalizing
	}
}

// Fail moves the session to the error state.
func (s *Session) Fail() {
	s.state = StateError
}

// Finalize completes the turn. Exactly one assistant message is produced
// iff any content or tool calls accumulated; an empty stream yields none.
func (s *Session) Finalize() (*Message, bool) {
	s.state = StateIdle

	content := s.content.String()
	if content == "" && len(s.tools) == 0 {
		return nil, false
	}
	return &Message{
		ID:        uuid.NewString(),
		Role:      "assistant",
		Content:   content,
		CreatedAt: time.Now().UTC(),
	}, true
}

// AppendError adds a visible inline error to the accumulated content,
// used when the transport itself fails mid-stream.
func (s *Session) AppendError(msg string) {
	s.content.WriteString(fmt.Sprintf("\n\n[error: %s]", msg))
}

// touchesManifest inspects a tool result for the timeline-modified flag the
// studio's agent tools set.
func touchesManifest(tc *ToolCall) bool {
	if len(tc.Result) == 0 {
		return timelineTool(tc.Name)
	}
	var payload struct {
		ManifestUpdated bool `json:"manifest_updated"`
	}
	if err := json.Unmarshal(tc.Result, &payload); err != nil {
		return timelineTool(tc.Name)
	}
	return payload.ManifestUpdated || timelineTool(tc.Name)
}

func timelineTool(name string) bool {
	switch name {
	case "add_clip", "move_clip", "trim_clip", "remove_clip", "reorder_track", "update_timeline":
		return true
	}
	return false
}
