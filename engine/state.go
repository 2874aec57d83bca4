package engine

import (
	"sync"

	"github.com/hupe1980/captain/core"
)

// stateGate orders side-channel thread updates after tool results. While a
// tool step of a thread is open, UpdateState contents for that thread are
// held back and appended once the step committed all of its results, so an
// assistant message with tool calls is always followed by its tool messages
// first.
type stateGate struct {
	store core.SessionStore

	mu   sync.Mutex
	held map[string]*heldUpdates
}

type heldUpdates struct {
	steps    int
	contents []core.Content
}

func newStateGate(store core.SessionStore) *stateGate {
	return &stateGate{store: store, held: map[string]*heldUpdates{}}
}

// open starts a tool step on threadID. Steps nest; updates are released when
// the outermost one closes.
func (g *stateGate) open(threadID string) {
	g.mu.Lock()
	defer g.mu.Unlock()
	h, ok := g.held[threadID]
	if !ok {
		h = &heldUpdates{}
		g.held[threadID] = h
	}
	h.steps++
}

// close ends a tool step and appends the held updates.
func (g *stateGate) close(threadID string) error {
	g.mu.Lock()
	defer g.mu.Unlock()
	h, ok := g.held[threadID]
	if !ok {
		return nil
	}
	h.steps--
	if h.steps > 0 {
		return nil
	}
	delete(g.held, threadID)
	if len(h.contents) == 0 {
		return nil
	}
	return g.store.Append(threadID, h.contents...)
}

// append writes contents now, or holds them while a step is open. It reports
// whether the contents were held.
func (g *stateGate) append(threadID string, contents ...core.Content) (bool, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	if h, ok := g.held[threadID]; ok {
		h.contents = append(h.contents, contents...)
		return true, nil
	}
	return false, g.store.Append(threadID, contents...)
}
