package demux

import "github.com/hupe1980/captain/core"

type delegation struct {
	id   string
	name string
}

// Tracker maintains the correlation key to sub-agent name mapping for one
// turn, plus the stack of running delegations whose top is the active
// sub-agent used as classification fallback. It is not safe for concurrent
// use; a turn is processed by one goroutine.
type Tracker struct {
	names   map[string]string
	ended   map[string]bool
	running []delegation
}

// NewTracker returns an empty tracker.
func NewTracker() *Tracker {
	return &Tracker{names: map[string]string{}, ended: map[string]bool{}}
}

// Start registers the delegation and makes subAgent the active one.
func (t *Tracker) Start(invocationID, subAgent, task string) core.Event {
	t.names[core.TaskSegment(invocationID)] = subAgent
	t.running = append(t.running, delegation{id: invocationID, name: subAgent})
	return core.NewSubAgentStartEvent(subAgent, task, invocationID)
}

// Lookup resolves a correlation key to the registered sub-agent name.
func (t *Tracker) Lookup(key string) (string, bool) {
	name, ok := t.names[key]
	return name, ok
}

// Active returns the most recently started delegation that is still running.
func (t *Tracker) Active() (string, bool) {
	if len(t.running) == 0 {
		return "", false
	}
	return t.running[len(t.running)-1].name, true
}

// End closes the delegation and removes it from the running stack, so a
// sibling that is still running becomes active again. The mapping is kept
// since keys are never reused within a turn. The second return is false when
// the delegation was already closed, in which case no event must be emitted.
// Delegations without an id cannot be told apart and are never deduplicated.
func (t *Tracker) End(invocationID, content string) (core.Event, bool) {
	if invocationID != "" {
		if t.ended[invocationID] {
			return core.Event{}, false
		}
		t.ended[invocationID] = true
	}

	name := t.names[core.TaskSegment(invocationID)]
	for i := len(t.running) - 1; i >= 0; i-- {
		if t.running[i].id == invocationID {
			name = t.running[i].name
			t.running = append(t.running[:i], t.running[i+1:]...)
			break
		}
	}
	return core.NewSubAgentEndEvent(name, invocationID, content), true
}

// Reset drops all tracked delegations.
func (t *Tracker) Reset() {
	t.names = map[string]string{}
	t.ended = map[string]bool{}
	t.running = nil
}
