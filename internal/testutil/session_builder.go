package testutil

import (
	"github.com/hupe1980/captain/core"
)

// SessionBuilder helps construct sessions with fluent chaining for tests.
// Example:
//
//	sess := NewSessionBuilder("thread-1").User("hi").Assistant("hello").Build()
type SessionBuilder struct {
	id       string
	messages []core.Content
}

// NewSessionBuilder creates a new builder for a session with the given id.
func NewSessionBuilder(id string) *SessionBuilder {
	return &SessionBuilder{id: id}
}

// User appends a user text message (chainable).
func (b *SessionBuilder) User(text string) *SessionBuilder {
	b.messages = append(b.messages, core.NewTextContent("user", text))
	return b
}

// Assistant appends an assistant text message (chainable).
func (b *SessionBuilder) Assistant(text string) *SessionBuilder {
	b.messages = append(b.messages, core.NewTextContent("assistant", text))
	return b
}

// Message appends arbitrary contents (chainable).
func (b *SessionBuilder) Message(contents ...core.Content) *SessionBuilder {
	b.messages = append(b.messages, contents...)
	return b
}

// Build returns a *core.Session with the pre-populated history.
func (b *SessionBuilder) Build() *core.Session {
	s := core.NewSession(b.id)
	s.Append(b.messages...)
	return s
}
