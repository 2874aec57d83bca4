package testutil

import (
	"github.com/hupe1980/captain/core"
)

// ItemBuilder provides a fluent helper for constructing raw stream items.
// Example:
//
//	item := NewItemBuilder().Namespace("task:9").Call("search", "5", nil).Build()
//
// Chain only the parts you need. Token and update payloads are mutually
// exclusive; the last mode-setting method wins.
type ItemBuilder struct {
	namespace []string
	mode      core.Mode
	node      string
	blocks    []core.ContentBlock
	noMeta    bool
	updates   []core.NodeUpdate
}

// NewItemBuilder creates a builder for a root item.
func NewItemBuilder() *ItemBuilder { return &ItemBuilder{node: core.NodeModel} }

// Namespace sets the execution path segments (chainable).
func (b *ItemBuilder) Namespace(segments ...string) *ItemBuilder {
	b.namespace = append(b.namespace, segments...)
	return b
}

// Node sets the originating node for token items (chainable).
func (b *ItemBuilder) Node(n string) *ItemBuilder { b.node = n; return b }

// Text appends a text block to a token item (chainable).
func (b *ItemBuilder) Text(t string) *ItemBuilder {
	b.mode = core.ModeToken
	b.blocks = append(b.blocks, core.ContentBlock{Type: core.BlockText, Text: t})
	return b
}

// Reasoning appends a reasoning block to a token item (chainable).
func (b *ItemBuilder) Reasoning(t string) *ItemBuilder {
	b.mode = core.ModeToken
	b.blocks = append(b.blocks, core.ContentBlock{Type: core.BlockReasoning, Reasoning: t})
	return b
}

// Block appends an arbitrary content block (chainable).
func (b *ItemBuilder) Block(cb core.ContentBlock) *ItemBuilder {
	b.mode = core.ModeToken
	b.blocks = append(b.blocks, cb)
	return b
}

// WithoutMetadata drops the token metadata (chainable).
func (b *ItemBuilder) WithoutMetadata() *ItemBuilder { b.noMeta = true; return b }

// Call appends a model request carrying one tool invocation (chainable).
func (b *ItemBuilder) Call(name, id string, args map[string]any) *ItemBuilder {
	return b.Request(core.ToolInvocation{ID: id, Name: name, Args: args})
}

// Request appends a model request carrying the given invocations (chainable).
func (b *ItemBuilder) Request(calls ...core.ToolInvocation) *ItemBuilder {
	return b.message(core.NodeModel, core.RequestMessage{ToolCalls: calls})
}

// Delegate appends a task delegation request (chainable).
func (b *ItemBuilder) Delegate(id, subAgent, task string) *ItemBuilder {
	return b.Call("task", id, map[string]any{"subagent_type": subAgent, "description": task})
}

// Result appends a tool result (chainable).
func (b *ItemBuilder) Result(name, id string, content any) *ItemBuilder {
	return b.message(core.NodeTools, core.ResultMessage{ToolCallID: id, Name: name, Content: content})
}

// Plain appends a plain message (chainable).
func (b *ItemBuilder) Plain(role, text string) *ItemBuilder {
	return b.message(core.NodeModel, core.PlainMessage{Role: role, Text: text})
}

func (b *ItemBuilder) message(node string, msg core.Message) *ItemBuilder {
	b.mode = core.ModeUpdate
	if n := len(b.updates); n > 0 && b.updates[n-1].Node == node {
		b.updates[n-1].Messages = append(b.updates[n-1].Messages, msg)
		return b
	}
	b.updates = append(b.updates, core.NodeUpdate{Node: node, Messages: []core.Message{msg}})
	return b
}

// Build constructs the core.RawItem value.
func (b *ItemBuilder) Build() core.RawItem {
	item := core.RawItem{Namespace: append([]string(nil), b.namespace...), Mode: b.mode}
	switch b.mode {
	case core.ModeToken:
		tok := &core.TokenChunk{Blocks: append([]core.ContentBlock(nil), b.blocks...)}
		if !b.noMeta {
			tok.Metadata = &core.TokenMetadata{Node: b.node}
		}
		item.Token = tok
	case core.ModeUpdate:
		item.Update = append([]core.NodeUpdate(nil), b.updates...)
	}
	return item
}
