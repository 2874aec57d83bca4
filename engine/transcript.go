package engine

import (
	"sync"

	"github.com/hupe1980/captain/core"
)

// transcript is the message history an agent loop reads and extends.
type transcript interface {
	Messages() ([]core.Content, error)
	Append(contents ...core.Content) error
}

// stepScoped is implemented by transcripts that must see the results of a
// tool step committed before any side-channel update.
type stepScoped interface {
	beginStep()
	endStep() error
}

// threadTranscript is the root agent's persisted thread.
type threadTranscript struct {
	store core.SessionStore
	gate  *stateGate
	id    string
}

var _ stepScoped = threadTranscript{}

func (t threadTranscript) Messages() ([]core.Content, error) {
	s, err := t.store.Get(t.id)
	if err != nil {
		return nil, err
	}
	return s.History(), nil
}

func (t threadTranscript) Append(contents ...core.Content) error {
	return t.store.Append(t.id, contents...)
}

func (t threadTranscript) beginStep() { t.gate.open(t.id) }

func (t threadTranscript) endStep() error { return t.gate.close(t.id) }

// localTranscript is a sub-agent's private history for one delegation.
type localTranscript struct {
	mu   sync.Mutex
	msgs []core.Content
}

func newLocalTranscript(initial ...core.Content) *localTranscript {
	return &localTranscript{msgs: initial}
}

func (t *localTranscript) Messages() ([]core.Content, error) {
	t.mu.Lock()
	defer t.mu.Unlock()
	return append([]core.Content(nil), t.msgs...), nil
}

func (t *localTranscript) Append(contents ...core.Content) error {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.msgs = append(t.msgs, contents...)
	return nil
}
