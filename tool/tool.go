// Package tool implements the function / tool calling subsystem that lets agents
// invoke structured capabilities (shell commands, HTTP fetches, image reads,
// sub-agent delegation) with schema validated arguments, consistent error
// handling and descriptions for model guidance.
package tool

import (
	"fmt"

	"github.com/hupe1980/captain/core"
	"github.com/hupe1980/captain/internal/util"
)

// Tool defines the interface for extending agent capabilities with external functions.
//
// Tools are registered with agents to enable function calling. Each call
// receives a ToolContext carrying cancellation, the calling agent, the
// function call id, the workspace and a logger.
//
// Tool implementations should:
//   - Provide clear, descriptive names and descriptions
//   - Define proper JSON schema for parameters
//   - Be thread-safe; the engine runs calls of one step in parallel
type Tool interface {
	// Name returns the unique identifier for this tool (snake_case).
	Name() string

	// Description returns a human-readable description of what this tool does.
	// It is provided to the model to help it decide when to use the tool.
	Description() string

	// Parameters returns a JSON schema describing the expected input format.
	Parameters() map[string]any

	// Call executes the tool with structured arguments decoded from the
	// model's JSON arguments.
	Call(toolCtx *core.ToolContext, args map[string]any) (any, error)
}

// Error codes carried by ToolError.
const (
	CodeValidation = "VALIDATION_ERROR"
	CodeExecution  = "EXECUTION_ERROR"
	CodeNotFound   = "NOT_FOUND"
)

// ValidationError represents parameter validation errors with detailed information.
type ValidationError = util.ValidationError

// ToolError represents errors that occur during tool execution.
type ToolError struct {
	Tool    string `json:"tool"`              // Name of the tool that failed
	Message string `json:"message"`           // Error message
	Code    string `json:"code"`              // Error code for categorization
	Details any    `json:"details,omitempty"` // Additional error details
	Cause   error  `json:"-"`                 // Underlying error, if any
}

func (e *ToolError) Error() string {
	if e.Code != "" {
		return fmt.Sprintf("tool error [%s] in %s: %s", e.Code, e.Tool, e.Message)
	}
	return fmt.Sprintf("tool error in %s: %s", e.Tool, e.Message)
}

// Unwrap returns the underlying error.
func (e *ToolError) Unwrap() error { return e.Cause }

// NewToolError creates a new ToolError with the specified details.
func NewToolError(tool, message, code string) *ToolError {
	return &ToolError{
		Tool:    tool,
		Message: message,
		Code:    code,
	}
}

// Set is an ordered, name indexed collection of tools.
type Set struct {
	order  []string
	byName map[string]Tool
}

// NewSet builds a set. Later tools replace earlier ones with the same name.
func NewSet(tools ...Tool) *Set {
	s := &Set{byName: map[string]Tool{}}
	for _, t := range tools {
		s.Add(t)
	}
	return s
}

// Add registers t.
func (s *Set) Add(t Tool) {
	if _, exists := s.byName[t.Name()]; !exists {
		s.order = append(s.order, t.Name())
	}
	s.byName[t.Name()] = t
}

// Get returns the tool with the given name.
func (s *Set) Get(name string) (Tool, bool) {
	t, ok := s.byName[name]
	return t, ok
}

// List returns the tools in registration order.
func (s *Set) List() []Tool {
	out := make([]Tool, 0, len(s.order))
	for _, n := range s.order {
		out = append(out, s.byName[n])
	}
	return out
}

// Len returns the number of tools.
func (s *Set) Len() int { return len(s.order) }
