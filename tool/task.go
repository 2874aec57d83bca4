package tool

import (
	"fmt"
	"sort"
	"strings"

	"github.com/hupe1980/captain/core"
)

// TaskToolName is the reserved name of the delegation tool. Calls to it are
// rendered as sub-agent framing rather than ordinary tool calls.
const TaskToolName = "task"

// SubAgentInfo describes a delegation target offered to the model.
type SubAgentInfo struct {
	Name        string
	Description string
}

// DelegateFunc runs the named sub-agent on a task and returns its final answer.
type DelegateFunc func(tc *core.ToolContext, subAgent, description string) (string, error)

// taskTool delegates a task to a named sub-agent.
type taskTool struct {
	agents   []SubAgentInfo
	delegate DelegateFunc
}

// NewTaskTool constructs the delegation tool for the given sub-agents.
func NewTaskTool(agents []SubAgentInfo, delegate DelegateFunc) Tool {
	sorted := append([]SubAgentInfo(nil), agents...)
	sort.Slice(sorted, func(i, j int) bool { return sorted[i].Name < sorted[j].Name })
	return &taskTool{agents: sorted, delegate: delegate}
}

func (t *taskTool) Name() string { return TaskToolName }

func (t *taskTool) Description() string {
	var b strings.Builder
	b.WriteString("Launch a sub-agent to handle a complex, self-contained task. ")
	b.WriteString("The sub-agent works on its own and returns a single final report; describe the task completely.\n\nAvailable sub-agents:\n")
	for _, a := range t.agents {
		fmt.Fprintf(&b, "- %s: %s\n", a.Name, a.Description)
	}
	return b.String()
}

func (t *taskTool) Parameters() map[string]any {
	names := make([]any, 0, len(t.agents))
	for _, a := range t.agents {
		names = append(names, a.Name)
	}
	return map[string]any{
		"type": "object",
		"properties": map[string]any{
			"subagent_type": map[string]any{"type": "string", "description": "Name of the sub-agent to use", "enum": names},
			"description":   map[string]any{"type": "string", "description": "Detailed description of the task"},
		},
		"required": []string{"subagent_type", "description"},
	}
}

func (t *taskTool) Call(tc *core.ToolContext, args map[string]any) (any, error) {
	name := stringArg(args, "subagent_type")
	desc := stringArg(args, "description")
	if name == "" || desc == "" {
		return nil, NewToolError(TaskToolName, "fields 'subagent_type' and 'description' must be non-empty strings", CodeValidation)
	}
	known := false
	for _, a := range t.agents {
		if a.Name == name {
			known = true
			break
		}
	}
	if !known {
		return nil, NewToolError(TaskToolName, fmt.Sprintf("unknown sub-agent %q", name), CodeNotFound)
	}
	return t.delegate(tc, name, desc)
}
