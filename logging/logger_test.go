package logging

import (
	"bytes"
	"encoding/json"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseLevel(t *testing.T) {
	tests := []struct {
		in   string
		want LogLevel
		err  bool
	}{
		{"debug", LogLevelDebug, false},
		{" INFO ", LogLevelInfo, false},
		{"", LogLevelInfo, false},
		{"warning", LogLevelWarn, false},
		{"error", LogLevelError, false},
		{"loud", LogLevelInfo, true},
	}
	for _, tt := range tests {
		got, err := ParseLevel(tt.in)
		if tt.err {
			assert.Error(t, err, tt.in)
		} else {
			assert.NoError(t, err, tt.in)
		}
		assert.Equal(t, tt.want, got, tt.in)
	}
}

func decodeLines(t *testing.T, buf *bytes.Buffer) []map[string]any {
	t.Helper()
	var out []map[string]any
	dec := json.NewDecoder(buf)
	for dec.More() {
		var m map[string]any
		require.NoError(t, dec.Decode(&m))
		out = append(out, m)
	}
	return out
}

func TestCaptainLogger_ContextAttributes(t *testing.T) {
	var buf bytes.Buffer
	l := NewLogger(&LoggerConfig{Level: LogLevelDebug, Format: "json", Output: &buf}).
		WithComponent("demux").
		WithTurn("major_thread", "t1").
		WithContext("subagent", "researcher")

	l.Info("demux.item.error", "error", "boom")

	lines := decodeLines(t, &buf)
	require.Len(t, lines, 1)
	assert.Equal(t, "demux.item.error", lines[0]["msg"])
	assert.Equal(t, "demux", lines[0]["component"])
	assert.Equal(t, "major_thread", lines[0]["thread_id"])
	assert.Equal(t, "t1", lines[0]["turn_id"])
	assert.Equal(t, "researcher", lines[0]["subagent"])
	assert.Equal(t, "boom", lines[0]["error"])
}

func TestCaptainLogger_LevelFiltering(t *testing.T) {
	var buf bytes.Buffer
	l := NewLogger(&LoggerConfig{Level: LogLevelWarn, Format: "json", Output: &buf})

	l.Debug("hidden")
	l.Info("hidden")
	l.Warn("shown")
	LogToolCall(l, "shell_exec", time.Millisecond, errors.New("exit 1"), "agent", "captain")
	LogToolCall(l, "shell_exec", time.Millisecond, nil)
	LogModelCall(l, "gpt", time.Millisecond, nil)

	lines := decodeLines(t, &buf)
	require.Len(t, lines, 2)
	assert.Equal(t, "shown", lines[0]["msg"])
	assert.Equal(t, "tool.call.failed", lines[1]["msg"])
	assert.Equal(t, "shell_exec", lines[1]["tool"])
	assert.Equal(t, "captain", lines[1]["agent"])
	assert.Equal(t, false, lines[1]["success"])
	assert.Equal(t, "exit 1", lines[1]["error"])
}

func TestScopeHelpers(t *testing.T) {
	var buf bytes.Buffer
	base := NewLogger(&LoggerConfig{Level: LogLevelDebug, Format: "json", Output: &buf})

	l := ForComponent(ForTurn(base, "major_thread", "t9"), "engine")
	LogModelCall(l, "gpt", 2*time.Millisecond, errors.New("rate limited"), "agent", "captain")
	LogTurn(l, 3, time.Second, "ok")
	ErrorWithStack(l, errors.New("kaboom"), "engine.tool.panic")

	lines := decodeLines(t, &buf)
	require.Len(t, lines, 3)
	for _, line := range lines {
		assert.Equal(t, "engine", line["component"])
		assert.Equal(t, "major_thread", line["thread_id"])
		assert.Equal(t, "t9", line["turn_id"])
	}
	assert.Equal(t, "model.call.failed", lines[0]["msg"])
	assert.Equal(t, "rate limited", lines[0]["error"])
	assert.Equal(t, "turn.finished", lines[1]["msg"])
	assert.EqualValues(t, 3, lines[1]["events"])
	assert.Equal(t, "*errors.errorString", lines[2]["error_type"])
	assert.Contains(t, lines[2]["stack_trace"], "TestScopeHelpers")

	// plain loggers pass through
	assert.Equal(t, NoOpLogger{}, ForComponent(nil, "x"))
	plain := NewDefaultSlogLogger()
	assert.Same(t, plain, ForTurn(plain, "a", "b"))
}

func TestWithCloneDoesNotLeak(t *testing.T) {
	base := NewLogger(nil)
	child := base.WithContext("k", "v")

	assert.Empty(t, base.context)
	assert.Equal(t, "v", child.context["k"])
}

func TestOrNoOp(t *testing.T) {
	assert.Equal(t, NoOpLogger{}, OrNoOp(nil))
	l := NewDefaultSlogLogger()
	assert.Same(t, l, OrNoOp(l))
}
