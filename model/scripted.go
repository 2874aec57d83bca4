package model

import (
	"context"
	"errors"
	"sync"

	"github.com/hupe1980/captain/core"
)

// ErrScriptExhausted is returned when a ScriptedModel has no steps left.
var ErrScriptExhausted = errors.New("scripted model: no steps left")

// Step is one scripted generation.
type Step struct {
	Reasoning string
	Text      string
	Calls     []core.FunctionCall
	Err       error
}

// ScriptedModel replays a fixed sequence of generations, one per Generate
// call. It records every request it receives. Safe for concurrent use.
type ScriptedModel struct {
	name string

	mu       sync.Mutex
	steps    []Step
	requests []Request
}

// NewScriptedModel creates a model replaying steps in order.
func NewScriptedModel(name string, steps ...Step) *ScriptedModel {
	return &ScriptedModel{name: name, steps: steps}
}

// Requests returns the requests received so far.
func (m *ScriptedModel) Requests() []Request {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]Request(nil), m.requests...)
}

// Generate implements Model. Reasoning and text are streamed as single
// partial chunks before the final response.
func (m *ScriptedModel) Generate(ctx context.Context, req Request) (<-chan Response, <-chan error) {
	respCh := make(chan Response, 4)
	errCh := make(chan error, 1)

	m.mu.Lock()
	m.requests = append(m.requests, req)
	var step Step
	exhausted := len(m.steps) == 0
	if !exhausted {
		step = m.steps[0]
		m.steps = m.steps[1:]
	}
	m.mu.Unlock()

	go func() {
		defer close(respCh)
		defer close(errCh)
		if exhausted {
			errCh <- ErrScriptExhausted
			return
		}
		if step.Err != nil {
			errCh <- step.Err
			return
		}
		send := func(r Response) bool {
			select {
			case respCh <- r:
				return true
			case <-ctx.Done():
				errCh <- ctx.Err()
				return false
			}
		}
		if req.Stream && step.Reasoning != "" {
			if !send(Response{Partial: true, Content: core.Content{Role: "assistant", Parts: []core.Part{core.ReasoningPart{Text: step.Reasoning}}}}) {
				return
			}
		}
		if req.Stream && step.Text != "" {
			if !send(Response{Partial: true, Content: core.Content{Role: "assistant", Parts: []core.Part{core.TextPart{Text: step.Text}}}}) {
				return
			}
		}
		final := core.Content{Role: "assistant"}
		if step.Text != "" {
			final.Parts = append(final.Parts, core.TextPart{Text: step.Text})
		}
		for _, fc := range step.Calls {
			final.Parts = append(final.Parts, core.FunctionCallPart{FunctionCall: fc})
		}
		reason := "stop"
		if len(step.Calls) > 0 {
			reason = "tool_calls"
		}
		send(Response{Content: final, FinishReason: reason})
	}()
	return respCh, errCh
}

// Info implements Model.
func (m *ScriptedModel) Info() Info {
	return Info{Name: m.name, Provider: "scripted", SupportsTools: true}
}
