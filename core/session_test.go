package core

import "testing"

func TestSession_AppendAndHistory(t *testing.T) {
	s := NewSession("s1")
	before := s.Updated

	s.Append(NewTextContent("user", "hi"), NewTextContent("assistant", "hello"))
	if s.Len() != 2 {
		t.Fatalf("expected 2 messages, got %d", s.Len())
	}
	if s.Updated.Before(before) {
		t.Error("Updated should advance on append")
	}

	history := s.History()
	history[0] = NewTextContent("user", "changed")
	if s.History()[0].Text() != "hi" {
		t.Error("history should be copied on read")
	}
}

func TestSession_Clone(t *testing.T) {
	s := NewSession("s2")
	s.Append(NewTextContent("user", "one"))

	clone := s.Clone()
	if clone == s {
		t.Fatal("Clone should return a different pointer")
	}
	clone.Append(NewTextContent("user", "two"))
	if s.Len() != 1 {
		t.Errorf("original should not see clone appends, got %d messages", s.Len())
	}
}
