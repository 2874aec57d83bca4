package core

import (
	"context"
	"errors"
	"strings"
)

// ErrStreamClosed is returned by RawStream.Next after Close was called. It
// signals cancellation, not a producer fault.
var ErrStreamClosed = errors.New("raw stream closed")

// Mode identifies the reporting channel of a raw stream item.
type Mode string

const (
	// ModeToken carries incremental text/reasoning fragments.
	ModeToken Mode = "token"
	// ModeUpdate carries discrete per-step state deltas.
	ModeUpdate Mode = "update"
)

// Well known execution node names.
const (
	NodeModel = "model"
	NodeTools = "tools"
)

// TaskSegmentPrefix marks the namespace segment of a delegated sub-agent
// execution ("task:<invocation id>").
const TaskSegmentPrefix = "task:"

// TaskSegment builds the namespace segment for a delegation invocation id.
func TaskSegment(invocationID string) string { return TaskSegmentPrefix + invocationID }

// RawItem is one element of the multiplexed execution stream for a turn.
// Namespace is empty for the root agent and holds the execution path for
// nested sub-agent activity. Token is set for ModeToken, Update for ModeUpdate.
type RawItem struct {
	Namespace []string
	Mode      Mode
	Token     *TokenChunk
	Update    []NodeUpdate
}

// String renders the namespace as a path for logging.
func (r RawItem) String() string {
	return string(r.Mode) + "@" + strings.Join(r.Namespace, "|")
}

// TokenChunk is an incremental model fragment with its metadata.
type TokenChunk struct {
	Blocks   []ContentBlock
	Metadata *TokenMetadata
}

// TokenMetadata describes where a token was produced.
type TokenMetadata struct {
	Node string // originating execution node
}

// Content block tags.
const (
	BlockText      = "text"
	BlockReasoning = "reasoning"
)

// ContentBlock is one semantic block of a token.
type ContentBlock struct {
	Type      string
	Text      string
	Reasoning string
}

// NodeUpdate is the state delta one execution node produced in a step.
type NodeUpdate struct {
	Node     string
	Messages []Message
}

// Message is the closed set of message kinds found in state deltas. The kind
// is fixed where the stream is produced so consumers switch on the type
// rather than probing fields.
type Message interface{ isMessage() }

// ToolInvocation is a single tool call requested by a model.
type ToolInvocation struct {
	ID   string
	Name string
	Args map[string]any
}

// RequestMessage is a model output that may request tool invocations.
type RequestMessage struct {
	Text      string
	ToolCalls []ToolInvocation
}

func (RequestMessage) isMessage() {}

// ResultMessage is the outcome of one tool invocation.
type ResultMessage struct {
	ToolCallID string
	Name       string
	Content    any
	IsError    bool
}

func (ResultMessage) isMessage() {}

// PlainMessage is any other conversational message (user input, system).
type PlainMessage struct {
	Role string
	Text string
}

func (PlainMessage) isMessage() {}

// RawStream is a pull-based iterator over the raw items of one turn.
//
// Next blocks until the next item is available. It returns io.EOF once the
// turn completed normally and any other error if the producer faulted.
// Close stops the producer; it is the cancellation token of the stream and
// is safe to call more than once.
type RawStream interface {
	Next(ctx context.Context) (RawItem, error)
	Close() error
}

// StateUpdater appends messages to a conversation thread outside of the
// regular turn flow.
type StateUpdater interface {
	UpdateState(ctx context.Context, threadID string, contents ...Content) error
}

// Runtime is the agent execution engine producing the raw stream.
type Runtime interface {
	StateUpdater
	// Stream starts a turn for threadID with the given user input, requesting
	// both token and update reporting with sub-graph visibility.
	Stream(ctx context.Context, threadID string, input Content) (RawStream, error)
}
