package demux

import (
	"encoding/json"
	"fmt"

	"github.com/hupe1980/captain/core"
)

// Delegation argument keys of the task tool.
const (
	argSubAgentType = "subagent_type"
	argDescription  = "description"
)

// unknownSubAgent names a delegation whose target could not be read.
const unknownSubAgent = "unknown"

// Reconciler pairs tool calls with their results and frames delegations.
//
// Root calls and results may arrive in either order. Whichever comes first is
// buffered by invocation id; a call arriving first is also surfaced at once as
// a pending ToolCall. When the counterpart arrives the pair is completed, so
// each id yields exactly one ToolCall followed by exactly one ToolResult.
// Sub-agent calls and results are emitted immediately since the sub-agent's
// own stream is linear.
type Reconciler struct {
	tracker        *Tracker
	delegationTool string
	calls          map[string]core.ToolInvocation
	results        map[string]core.ResultMessage
	paired         map[string]bool
}

// NewReconciler creates a reconciler sharing tracker with the classifier.
func NewReconciler(tracker *Tracker, delegationTool string) *Reconciler {
	return &Reconciler{
		tracker:        tracker,
		delegationTool: delegationTool,
		calls:          map[string]core.ToolInvocation{},
		results:        map[string]core.ResultMessage{},
		paired:         map[string]bool{},
	}
}

// Call handles one tool invocation found on a request message.
func (r *Reconciler) Call(attr Attribution, inv core.ToolInvocation) []core.Event {
	if inv.Args == nil {
		inv.Args = map[string]any{}
	}

	if inv.Name == r.delegationTool {
		subAgent := stringArg(inv.Args, argSubAgentType)
		if subAgent == "" {
			subAgent = unknownSubAgent
		}
		return []core.Event{r.tracker.Start(inv.ID, subAgent, stringArg(inv.Args, argDescription))}
	}

	if attr.SubAgent {
		return []core.Event{core.NewSubAgentToolCallEvent(attr.Name, inv.Name, inv.ID, inv.Args)}
	}

	// Without an id there is nothing to pair on.
	if inv.ID == "" {
		return []core.Event{core.NewToolCallEvent(inv.Name, "", inv.Args, false)}
	}

	// Replays of an already paired id are dropped.
	if r.paired[inv.ID] {
		return nil
	}
	if res, ok := r.results[inv.ID]; ok {
		delete(r.results, inv.ID)
		r.paired[inv.ID] = true
		return []core.Event{
			core.NewToolCallEvent(inv.Name, inv.ID, inv.Args, false),
			core.NewToolResultEvent(inv.Name, inv.ID, Stringify(res.Content)),
		}
	}
	if _, dup := r.calls[inv.ID]; dup {
		return nil
	}
	r.calls[inv.ID] = inv
	return []core.Event{core.NewToolCallEvent(inv.Name, inv.ID, inv.Args, true)}
}

// Result handles one result message.
func (r *Reconciler) Result(attr Attribution, res core.ResultMessage) []core.Event {
	content := Stringify(res.Content)

	if res.Name == r.delegationTool {
		if ev, ok := r.tracker.End(res.ToolCallID, content); ok {
			return []core.Event{ev}
		}
		return nil
	}

	if attr.SubAgent {
		return []core.Event{core.NewSubAgentToolResultEvent(attr.Name, res.Name, res.ToolCallID, content)}
	}

	if res.ToolCallID == "" {
		return []core.Event{core.NewToolResultEvent(res.Name, "", content)}
	}

	if r.paired[res.ToolCallID] {
		return nil
	}
	if call, ok := r.calls[res.ToolCallID]; ok {
		delete(r.calls, res.ToolCallID)
		r.paired[res.ToolCallID] = true
		name := res.Name
		if name == "" {
			name = call.Name
		}
		return []core.Event{core.NewToolResultEvent(name, res.ToolCallID, content)}
	}
	if _, dup := r.results[res.ToolCallID]; dup {
		return nil
	}
	r.results[res.ToolCallID] = res
	return nil
}

// Pending returns the number of buffered root calls and results.
func (r *Reconciler) Pending() (calls, results int) {
	return len(r.calls), len(r.results)
}

// Reset discards all buffered calls and results.
func (r *Reconciler) Reset() {
	r.calls = map[string]core.ToolInvocation{}
	r.results = map[string]core.ResultMessage{}
	r.paired = map[string]bool{}
}

// Stringify renders result content as text: strings as is, nil as empty and
// anything else JSON encoded.
func Stringify(v any) string {
	switch c := v.(type) {
	case nil:
		return ""
	case string:
		return c
	case []byte:
		return string(c)
	case fmt.Stringer:
		return c.String()
	}
	b, err := json.Marshal(v)
	if err != nil {
		return fmt.Sprint(v)
	}
	return string(b)
}

func stringArg(args map[string]any, key string) string {
	switch v := args[key].(type) {
	case nil:
		return ""
	case string:
		return v
	default:
		return fmt.Sprint(v)
	}
}
