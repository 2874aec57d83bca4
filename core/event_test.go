package core

import (
	"encoding/json"
	"testing"
)

func TestEvent_Constructors(t *testing.T) {
	call := NewToolCallEvent("search", "c1", map[string]any{"q": "go"}, true)
	if call.Type != EventToolCall || call.Name != "search" || call.ID != "c1" || !call.Pending {
		t.Fatalf("NewToolCallEvent malformed: %+v", call)
	}
	if call.Timestamp.IsZero() {
		t.Error("expected timestamp to be set")
	}

	start := NewSubAgentStartEvent("researcher", "find papers", "c2")
	if start.SubAgent != "researcher" || start.Task != "find papers" || start.ID != "c2" {
		t.Fatalf("NewSubAgentStartEvent malformed: %+v", start)
	}

	end := NewSubAgentEndEvent("researcher", "c2", "done")
	if end.Type != EventSubAgentEnd || end.Content != "done" {
		t.Fatalf("NewSubAgentEndEvent malformed: %+v", end)
	}
}

func TestEventType_IsSubAgent(t *testing.T) {
	cases := map[EventType]bool{
		EventModelAnswer:        false,
		EventToolCall:           false,
		EventError:              false,
		EventSubAgentStart:      true,
		EventSubAgentToolResult: true,
		EventSubAgentEnd:        true,
	}
	for typ, want := range cases {
		if got := typ.IsSubAgent(); got != want {
			t.Errorf("%s.IsSubAgent() = %v, want %v", typ, got, want)
		}
	}
}

func TestEvent_WireShape(t *testing.T) {
	e := NewSubAgentToolResultEvent("coder", "shell_exec", "c9", "ok")
	e.Pending = true

	b, err := json.Marshal(e)
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}
	want := `{"type":"sub_agent_tool_result","content":"ok","name":"shell_exec","id":"c9","subagent":"coder"}`
	if string(b) != want {
		t.Fatalf("wire shape mismatch\n got: %s\nwant: %s", b, want)
	}

	var back Event
	if err := json.Unmarshal(b, &back); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if back.Type != e.Type || back.SubAgent != "coder" || back.Pending {
		t.Fatalf("decoded event mismatch: %+v", back)
	}
}

func TestEvent_ErrorOmitsEmptyFields(t *testing.T) {
	b, err := json.Marshal(NewErrorEvent("boom"))
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}
	if string(b) != `{"type":"error","content":"boom"}` {
		t.Fatalf("unexpected json: %s", b)
	}
}
