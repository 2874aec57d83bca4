package core

import (
	"encoding/json"
	"testing"
)

func TestContent_Helpers(t *testing.T) {
	c := Content{Role: "assistant", Parts: []Part{
		ReasoningPart{Text: "hmm"},
		TextPart{Text: "a"},
		FunctionCallPart{FunctionCall: FunctionCall{ID: "c1", Name: "task"}},
		TextPart{Text: "b"},
	}}
	if c.Text() != "ab" {
		t.Errorf("Text() = %q", c.Text())
	}
	if calls := c.FunctionCalls(); len(calls) != 1 || calls[0].ID != "c1" {
		t.Errorf("FunctionCalls() = %+v", calls)
	}
}

func TestContent_JSONRoundTripKeepsPartKinds(t *testing.T) {
	c := Content{Role: "tool", Parts: []Part{
		FunctionResponsePart{FunctionResponse: FunctionResponse{ID: "c1", Name: "read_image", Response: "ok"}},
		ImagePart{MimeType: "image/png", Data: "aGk="},
	}}
	b, err := json.Marshal(c)
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}
	var back Content
	if err := json.Unmarshal(b, &back); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if len(back.Parts) != 2 {
		t.Fatalf("expected 2 parts, got %d", len(back.Parts))
	}
	if _, ok := back.Parts[0].(FunctionResponsePart); !ok {
		t.Errorf("part 0 = %T", back.Parts[0])
	}
	if img, ok := back.Parts[1].(ImagePart); !ok || img.MimeType != "image/png" {
		t.Errorf("part 1 = %#v", back.Parts[1])
	}
}

func TestContent_UnknownPartType(t *testing.T) {
	var c Content
	if err := json.Unmarshal([]byte(`{"role":"user","parts":[{"type":"video"}]}`), &c); err == nil {
		t.Fatal("expected error for unknown part type")
	}
}
