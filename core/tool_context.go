package core

import (
	"context"

	"github.com/hupe1980/captain/logging"
)

// ToolContext provides a constrained surface for tool implementations
// invoked by an agent: cancellation, the calling agent, the function call id
// and a logger.
type ToolContext struct {
	ctx            context.Context
	functionCallID string
	agentName      string
	workspace      string
	logger         logging.Logger
}

// NewToolContext constructs a tool context bound to ctx and a unique functionCallID.
func NewToolContext(ctx context.Context, agentName, functionCallID, workspace string, logger logging.Logger) *ToolContext {
	if logger == nil {
		logger = logging.NoOpLogger{}
	}
	return &ToolContext{
		ctx:            ctx,
		functionCallID: functionCallID,
		agentName:      agentName,
		workspace:      workspace,
		logger:         logger,
	}
}

// Context returns the context associated with the tool invocation.
func (tc *ToolContext) Context() context.Context { return tc.ctx }

// Logger returns the logger associated with the tool invocation.
func (tc *ToolContext) Logger() logging.Logger { return tc.logger }

// FunctionCallID returns the function call ID associated with the tool invocation.
func (tc *ToolContext) FunctionCallID() string { return tc.functionCallID }

// AgentName returns the agent name associated with the tool invocation.
func (tc *ToolContext) AgentName() string { return tc.agentName }

// Workspace returns the directory tools are confined to. Empty means the
// current working directory.
func (tc *ToolContext) Workspace() string { return tc.workspace }
