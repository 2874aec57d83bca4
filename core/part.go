package core

import (
	"encoding/json"
	"fmt"
)

// Part represents a polymorphic segment of role-based content. Concrete part
// types implement the unexported isPart marker enabling a closed set.
type Part interface{ isPart() }

// TextPart is a plain text content segment.
type TextPart struct {
	Text string // Plain UTF-8 text
}

// isPart implements the Part interface for TextPart.
func (TextPart) isPart() {}

// ReasoningPart carries model reasoning ("thinking") text. Providers that do
// not expose reasoning never produce it. Signature is the provider token that
// must accompany the reasoning when it is sent back (Anthropic).
type ReasoningPart struct {
	Text      string
	Signature string
}

// isPart implements the Part interface for ReasoningPart.
func (ReasoningPart) isPart() {}

// ImagePart is an inline image segment (base64 encoded bytes).
type ImagePart struct {
	MimeType string // e.g. image/png
	Data     string // Base64 encoded contents
}

// isPart implements the Part interface for ImagePart.
func (ImagePart) isPart() {}

// FunctionCall describes a tool/function invocation request.
type FunctionCall struct {
	ID        string `json:"id,omitempty"`        // Stable id echoed by the matching response
	Name      string `json:"name"`                // Tool / function name
	Arguments string `json:"arguments,omitempty"` // Serialized argument payload (JSON)
}

// FunctionCallPart wraps a FunctionCall as a content part.
type FunctionCallPart struct {
	FunctionCall FunctionCall
}

// isPart implements the Part interface for FunctionCallPart.
func (FunctionCallPart) isPart() {}

// FunctionResponse describes the outcome of a function call.
type FunctionResponse struct {
	ID       string `json:"id,omitempty"`       // Matches originating FunctionCall ID
	Name     string `json:"name"`               // Function name
	Response any    `json:"response,omitempty"` // Successful result (any shape)
	Error    string `json:"error,omitempty"`    // Populated on failure
}

// FunctionResponsePart wraps a FunctionResponse as a content part.
type FunctionResponsePart struct {
	FunctionResponse FunctionResponse
}

// isPart implements the Part interface for FunctionResponsePart.
func (FunctionResponsePart) isPart() {}

// Content holds role + ordered parts.
type Content struct {
	Role  string `json:"role,omitempty"` // Conversation role (user, assistant, tool, system)
	Parts []Part `json:"parts"`          // Ordered heterogeneous parts
}

// NewTextContent builds a single text part content for role.
func NewTextContent(role, text string) Content {
	return Content{Role: role, Parts: []Part{TextPart{Text: text}}}
}

// Text concatenates all text parts.
func (c Content) Text() string {
	var out string
	for _, p := range c.Parts {
		if tp, ok := p.(TextPart); ok {
			out += tp.Text
		}
	}
	return out
}

// Reasoning concatenates all reasoning parts.
func (c Content) Reasoning() string {
	var out string
	for _, p := range c.Parts {
		if rp, ok := p.(ReasoningPart); ok {
			out += rp.Text
		}
	}
	return out
}

// FunctionCalls returns the function call parts preserving their order.
func (c Content) FunctionCalls() []FunctionCall {
	var calls []FunctionCall
	for _, p := range c.Parts {
		if fc, ok := p.(FunctionCallPart); ok {
			calls = append(calls, fc.FunctionCall)
		}
	}
	return calls
}

// FunctionResponses returns the function response parts preserving their order.
func (c Content) FunctionResponses() []FunctionResponse {
	var responses []FunctionResponse
	for _, p := range c.Parts {
		if fr, ok := p.(FunctionResponsePart); ok {
			responses = append(responses, fr.FunctionResponse)
		}
	}
	return responses
}

// wirePart is the tagged JSON form of a Part.
type wirePart struct {
	Type      string            `json:"type"`
	Text      string            `json:"text,omitempty"`
	Signature string            `json:"signature,omitempty"`
	MimeType  string            `json:"mime_type,omitempty"`
	Data      string            `json:"data,omitempty"`
	Call      *FunctionCall     `json:"function_call,omitempty"`
	Response  *FunctionResponse `json:"function_response,omitempty"`
}

// MarshalJSON encodes parts with an explicit type tag.
func (c Content) MarshalJSON() ([]byte, error) {
	parts := make([]wirePart, 0, len(c.Parts))
	for _, p := range c.Parts {
		switch pt := p.(type) {
		case TextPart:
			parts = append(parts, wirePart{Type: "text", Text: pt.Text})
		case ReasoningPart:
			parts = append(parts, wirePart{Type: "reasoning", Text: pt.Text, Signature: pt.Signature})
		case ImagePart:
			parts = append(parts, wirePart{Type: "image", MimeType: pt.MimeType, Data: pt.Data})
		case FunctionCallPart:
			fc := pt.FunctionCall
			parts = append(parts, wirePart{Type: "function_call", Call: &fc})
		case FunctionResponsePart:
			fr := pt.FunctionResponse
			parts = append(parts, wirePart{Type: "function_response", Response: &fr})
		default:
			return nil, fmt.Errorf("unsupported part type %T", p)
		}
	}
	return json.Marshal(struct {
		Role  string     `json:"role,omitempty"`
		Parts []wirePart `json:"parts"`
	}{Role: c.Role, Parts: parts})
}

// UnmarshalJSON decodes the tagged form produced by MarshalJSON.
func (c *Content) UnmarshalJSON(data []byte) error {
	var raw struct {
		Role  string     `json:"role"`
		Parts []wirePart `json:"parts"`
	}
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}
	c.Role = raw.Role
	c.Parts = make([]Part, 0, len(raw.Parts))
	for _, wp := range raw.Parts {
		switch wp.Type {
		case "text":
			c.Parts = append(c.Parts, TextPart{Text: wp.Text})
		case "reasoning":
			c.Parts = append(c.Parts, ReasoningPart{Text: wp.Text, Signature: wp.Signature})
		case "image":
			c.Parts = append(c.Parts, ImagePart{MimeType: wp.MimeType, Data: wp.Data})
		case "function_call":
			if wp.Call != nil {
				c.Parts = append(c.Parts, FunctionCallPart{FunctionCall: *wp.Call})
			}
		case "function_response":
			if wp.Response != nil {
				c.Parts = append(c.Parts, FunctionResponsePart{FunctionResponse: *wp.Response})
			}
		default:
			return fmt.Errorf("unknown part type %q", wp.Type)
		}
	}
	return nil
}
