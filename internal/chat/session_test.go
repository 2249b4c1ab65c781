package chat

import (
	"encoding/json"
	"testing"
)

func textEvent(content string) *Event {
	return &Event{Type: EventText, Data: EventData{Content: content}}
}

func TestSessionAccumulatesText(t *testing.T) {
	s := NewSession()
	var deltas []string
	s.OnDelta(func(d string) { deltas = append(deltas, d) })

	s.Begin()
	s.Consume(textEvent("Hello"))
	s.Consume(textEvent(", world"))

	msg, ok := s.Finalize()
	if !ok {
		t.Fatal("finalize produced no message")
	}
	if msg.Role != "assistant" || msg.Content != "Hello, world" {
		t.Fatalf("message = %+v", msg)
	}
	if msg.ID == "" {
		t.Fatal("message missing id")
	}
	if len(deltas) != 2 || deltas[0] != "Hello" || deltas[1] != ", world" {
		t.Fatalf("deltas = %v", deltas)
	}
	if s.State() != StateIdle {
		t.Fatalf("state after finalize = %v", s.State())
	}
}

func TestSessionEmptyStreamYieldsNoMessage(t *testing.T) {
	s := NewSession()
	s.Begin()
	s.Consume(&Event{Type: EventDone})

	if msg, ok := s.Finalize(); ok || msg != nil {
		t.Fatalf("empty stream produced message %+v", msg)
	}
}

func TestSessionToolOnlyTurnYieldsMessage(t *testing.T) {
	s := NewSession()
	s.Begin()
	s.Consume(&Event{Type: EventToolCall, Data: EventData{ID: "t1", Name: "add_clip"}})

	msg, ok := s.Finalize()
	if !ok {
		t.Fatal("tool-only turn produced no message")
	}
	if msg.Content != "" {
		t.Fatalf("content = %q, want empty", msg.Content)
	}
}

func TestSessionIgnoresEventsBeforeBegin(t *testing.T) {
	s := NewSession()
	s.Consume(textEvent("dropped"))
	s.Begin()
	s.Consume(textEvent("kept"))

	msg, ok := s.Finalize()
	if !ok || msg.Content != "kept" {
		t.Fatalf("content = %q, want kept", msg.Content)
	}
}

func TestSessionToolLifecycle(t *testing.T) {
	s := NewSession()
	var events []ToolCall
	s.OnTool(func(tc ToolCall) { events = append(events, tc) })

	s.Begin()
	s.Consume(&Event{Type: EventToolCall, Data: EventData{ID: "t1", Name: "add_clip", Args: json.RawMessage(`{}`)}})
	// duplicate call id is ignored
	s.Consume(&Event{Type: EventToolCall, Data: EventData{ID: "t1", Name: "add_clip"}})
	s.Consume(&Event{Type: EventToolResult, Data: EventData{ID: "t1", Status: "completed", Result: json.RawMessage(`{"ok":true}`)}})
	// result for unknown id is ignored
	s.Consume(&Event{Type: EventToolResult, Data: EventData{ID: "ghost", Status: "completed"}})

	tools := s.Tools()
	if len(tools) != 1 {
		t.Fatalf("tools = %d, want 1", len(tools))
	}
	if tools[0].Status != ToolCompleted {
		t.Fatalf("status = %q", tools[0].Status)
	}
	if len(events) != 2 {
		t.Fatalf("tool events = %d, want 2 (pending, completed)", len(events))
	}
	if events[0].Status != ToolPending || events[1].Status != ToolCompleted {
		t.Fatalf("event statuses = %q, %q", events[0].Status, events[1].Status)
	}
}

func TestSessionToolFailure(t *testing.T) {
	s := NewSession()
	s.Begin()
	s.Consume(&Event{Type: EventToolCall, Data: EventData{ID: "t1", Name: "add_clip"}})
	s.Consume(&Event{Type: EventToolResult, Data: EventData{ID: "t1", Status: ToolFailed}})

	if s.Tools()[0].Status != ToolFailed {
		t.Fatalf("status = %q, want failed", s.Tools()[0].Status)
	}
	if s.ManifestTouched() {
		t.Fatal("failed tool should not flag a manifest change")
	}
}

func TestSessionManifestTouched(t *testing.T) {
	tests := []struct {
		name   string
		tool   string
		result string
		want   bool
	}{
		{"timeline tool with empty result", "add_clip", "", true},
		{"timeline tool with flag false", "move_clip", `{"manifest_updated":false}`, true},
		{"other tool with flag true", "search_assets", `{"manifest_updated":true}`, true},
		{"other tool with flag false", "search_assets", `{"manifest_updated":false}`, false},
		{"other tool with empty result", "search_assets", "", false},
		{"timeline tool with junk result", "trim_clip", `not-json`, true},
		{"other tool with junk result", "search_assets", `not-json`, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			s := NewSession()
			s.Begin()
			s.Consume(&Event{Type: EventToolCall, Data: EventData{ID: "t1", Name: tt.tool}})
			data := EventData{ID: "t1", Status: "completed"}
			if tt.result != "" {
				data.Result = json.RawMessage(tt.result)
			}
			s.Consume(&Event{Type: EventToolResult, Data: data})
			if got := s.ManifestTouched(); got != tt.want {
				t.Fatalf("ManifestTouched = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestSessionInlineError(t *testing.T) {
	s := NewSession()
	s.Begin()
	s.Consume(textEvent("partial answer"))
	s.Consume(&Event{Type: EventError, Data: EventData{Message: "model overloaded"}})
	s.Consume(textEvent(" and more"))

	msg, ok := s.Finalize()
	if !ok {
		t.Fatal("no message")
	}
	want := "partial answer\n\n[error: model overloaded] and more"
	if msg.Content != want {
		t.Fatalf("content = %q, want %q", msg.Content, want)
	}
}

func TestSessionErrorWithoutMessage(t *testing.T) {
	s := NewSession()
	s.Begin()
	s.Consume(&Event{Type: EventError})

	msg, ok := s.Finalize()
	if !ok {
		t.Fatal("no message")
	}
	if msg.Content != "\n\n[error: unknown error]" {
		t.Fatalf("content = %q", msg.Content)
	}
}

func TestSessionDoneStopsConsumption(t *testing.T) {
	s := NewSession()
	s.Begin()
	s.Consume(textEvent("before"))
	s.Consume(&Event{Type: EventDone})
	if s.State() != StateFinalizing {
		t.Fatalf("state = %v, want finalizing", s.State())
	}
	s.Consume(textEvent("after"))

	msg, _ := s.Finalize()
	if msg.Content != "before" {
		t.Fatalf("content = %q, want %q", msg.Content, "before")
	}
}

func TestSessionUnknownEventIgnored(t *testing.T) {
	s := NewSession()
	s.Begin()
	s.Consume(&Event{Type: "heartbeat"})
	if _, ok := s.Finalize(); ok {
		t.Fatal("unknown event produced content")
	}
}
