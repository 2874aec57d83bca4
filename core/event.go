package core

import (
	"encoding/json"
	"time"

	"github.com/google/uuid"
)

// EventType discriminates the application-level events produced for a turn.
type EventType string

// Event discriminators. The string values are the wire contract consumed by
// presentation layers.
const (
	EventModelAnswer        EventType = "model_answer"
	EventModelThinking      EventType = "model_thinking"
	EventToolCall           EventType = "tool_call"
	EventToolResult         EventType = "tool_result"
	EventSubAgentStart      EventType = "sub_agent_start"
	EventSubAgentAnswer     EventType = "sub_agent_answer"
	EventSubAgentThinking   EventType = "sub_agent_thinking"
	EventSubAgentToolCall   EventType = "sub_agent_tool_call"
	EventSubAgentToolResult EventType = "sub_agent_tool_result"
	EventSubAgentEnd        EventType = "sub_agent_end"
	EventError              EventType = "error"
)

// IsSubAgent reports whether the type belongs to the sub-agent family.
func (t EventType) IsSubAgent() bool {
	switch t {
	case EventSubAgentStart, EventSubAgentAnswer, EventSubAgentThinking,
		EventSubAgentToolCall, EventSubAgentToolResult, EventSubAgentEnd:
		return true
	default:
		return false
	}
}

// Event is the flat, ordered unit handed to presentation layers. Each variant
// only populates the fields relevant to it. After emission it must be treated
// as immutable.
//
// Pending marks a root ToolCall emitted before its result was observed; the
// consumer renders it as provisional. Pending and Timestamp are local
// metadata and not part of the wire shape.
type Event struct {
	Type      EventType
	Content   string
	Name      string
	Args      map[string]any
	ID        string
	SubAgent  string
	Task      string
	Pending   bool
	Timestamp time.Time
}

// wireEvent is the serialized shape of an Event.
type wireEvent struct {
	Type     EventType      `json:"type"`
	Content  string         `json:"content,omitempty"`
	Name     string         `json:"name,omitempty"`
	Args     map[string]any `json:"args,omitempty"`
	ID       string         `json:"id,omitempty"`
	SubAgent string         `json:"subagent,omitempty"`
	Task     string         `json:"task,omitempty"`
}

// MarshalJSON encodes the event as {"type", "content"?, "name"?, "args"?,
// "id"?, "subagent"?, "task"?}.
func (e Event) MarshalJSON() ([]byte, error) {
	return json.Marshal(wireEvent{
		Type:     e.Type,
		Content:  e.Content,
		Name:     e.Name,
		Args:     e.Args,
		ID:       e.ID,
		SubAgent: e.SubAgent,
		Task:     e.Task,
	})
}

// UnmarshalJSON decodes the wire shape.
func (e *Event) UnmarshalJSON(data []byte) error {
	var w wireEvent
	if err := json.Unmarshal(data, &w); err != nil {
		return err
	}
	*e = Event{
		Type:     w.Type,
		Content:  w.Content,
		Name:     w.Name,
		Args:     w.Args,
		ID:       w.ID,
		SubAgent: w.SubAgent,
		Task:     w.Task,
	}
	return nil
}

func newEvent(t EventType) Event {
	return Event{Type: t, Timestamp: time.Now().UTC()}
}

// NewModelAnswerEvent creates a root answer text fragment.
func NewModelAnswerEvent(content string) Event {
	e := newEvent(EventModelAnswer)
	e.Content = content
	return e
}

// NewModelThinkingEvent creates a root reasoning fragment.
func NewModelThinkingEvent(content string) Event {
	e := newEvent(EventModelThinking)
	e.Content = content
	return e
}

// NewToolCallEvent creates a root tool invocation event.
func NewToolCallEvent(name, id string, args map[string]any, pending bool) Event {
	e := newEvent(EventToolCall)
	e.Name = name
	e.ID = id
	e.Args = args
	e.Pending = pending
	return e
}

// NewToolResultEvent creates a root tool outcome event.
func NewToolResultEvent(name, id, content string) Event {
	e := newEvent(EventToolResult)
	e.Name = name
	e.ID = id
	e.Content = content
	return e
}

// NewSubAgentStartEvent opens the framing of a delegation.
func NewSubAgentStartEvent(subAgent, task, id string) Event {
	e := newEvent(EventSubAgentStart)
	e.SubAgent = subAgent
	e.Task = task
	e.ID = id
	return e
}

// NewSubAgentAnswerEvent creates a sub-agent answer text fragment.
func NewSubAgentAnswerEvent(subAgent, content string) Event {
	e := newEvent(EventSubAgentAnswer)
	e.SubAgent = subAgent
	e.Content = content
	return e
}

// NewSubAgentThinkingEvent creates a sub-agent reasoning fragment.
func NewSubAgentThinkingEvent(subAgent, content string) Event {
	e := newEvent(EventSubAgentThinking)
	e.SubAgent = subAgent
	e.Content = content
	return e
}

// NewSubAgentToolCallEvent creates a tool invocation event attributed to a sub-agent.
func NewSubAgentToolCallEvent(subAgent, name, id string, args map[string]any) Event {
	e := newEvent(EventSubAgentToolCall)
	e.SubAgent = subAgent
	e.Name = name
	e.ID = id
	e.Args = args
	return e
}

// NewSubAgentToolResultEvent creates a tool outcome event attributed to a sub-agent.
func NewSubAgentToolResultEvent(subAgent, name, id, content string) Event {
	e := newEvent(EventSubAgentToolResult)
	e.SubAgent = subAgent
	e.Name = name
	e.ID = id
	e.Content = content
	return e
}

// NewSubAgentEndEvent closes the framing of a delegation.
func NewSubAgentEndEvent(subAgent, id, content string) Event {
	e := newEvent(EventSubAgentEnd)
	e.SubAgent = subAgent
	e.ID = id
	e.Content = content
	return e
}

// NewErrorEvent wraps a contained fault.
func NewErrorEvent(content string) Event {
	e := newEvent(EventError)
	e.Content = content
	return e
}

// NewID generates a new unique identifier.
func NewID() string { return uuid.NewString() }
