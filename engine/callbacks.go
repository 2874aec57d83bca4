package engine

import (
	"context"
	"fmt"
)

// CallbackType defines the lifecycle points where callbacks are executed.
type CallbackType string

const (
	// CallbackBeforeModel is triggered before every model call.
	CallbackBeforeModel CallbackType = "before_model"

	// CallbackAfterModel is triggered after a model call completed, with Err
	// set when it failed.
	CallbackAfterModel CallbackType = "after_model"

	// CallbackBeforeTool is triggered before a tool runs. Returning an error
	// turns the call into an error result without running the tool.
	CallbackBeforeTool CallbackType = "before_tool"

	// CallbackAfterTool is triggered after a tool ran.
	CallbackAfterTool CallbackType = "after_tool"

	// CallbackOnError is triggered when a turn fails.
	CallbackOnError CallbackType = "on_error"
)

// CallbackContext describes the execution point a callback observes.
type CallbackContext struct {
	ThreadID  string
	Agent     string
	Namespace []string

	// Tool and CallID are set for tool callbacks.
	Tool   string
	CallID string
	Args   map[string]any
	Result any

	Err error

	CallbackType CallbackType
}

// Callback is an execution lifecycle hook.
type Callback interface {
	Type() CallbackType
	Execute(ctx context.Context, callbackCtx *CallbackContext) error
}

// FunctionCallback wraps a function as a callback implementation.
//
// Example:
//
//	audit := NewFunctionCallback(
//	    CallbackBeforeTool,
//	    func(ctx context.Context, cc *CallbackContext) error {
//	        if cc.Tool == "shell_exec" && readOnly {
//	            return errors.New("shell disabled")
//	        }
//	        return nil
//	    },
//	)
type FunctionCallback struct {
	callbackType CallbackType
	fn           func(ctx context.Context, callbackCtx *CallbackContext) error
}

// NewFunctionCallback creates a new function-based callback.
func NewFunctionCallback(
	callbackType CallbackType,
	fn func(ctx context.Context, callbackCtx *CallbackContext) error,
) *FunctionCallback {
	return &FunctionCallback{callbackType: callbackType, fn: fn}
}

// Type returns the callback type this function handles.
func (c *FunctionCallback) Type() CallbackType { return c.callbackType }

// Execute calls the wrapped function with the provided context.
func (c *FunctionCallback) Execute(ctx context.Context, callbackCtx *CallbackContext) error {
	return c.fn(ctx, callbackCtx)
}

// CallbackManager routes callbacks by type. Registration is not synchronized;
// register everything before the engine starts serving turns.
type CallbackManager struct {
	callbacks map[CallbackType][]Callback
}

// NewCallbackManager creates a new callback manager instance.
func NewCallbackManager(callbacks ...Callback) *CallbackManager {
	cm := &CallbackManager{callbacks: make(map[CallbackType][]Callback)}
	for _, cb := range callbacks {
		cm.RegisterCallback(cb)
	}
	return cm
}

// RegisterCallback adds a callback to the manager for its type.
func (cm *CallbackManager) RegisterCallback(callback Callback) {
	callbackType := callback.Type()
	cm.callbacks[callbackType] = append(cm.callbacks[callbackType], callback)
}

// ExecuteCallbacks runs the callbacks of a type in registration order and
// stops at the first error.
func (cm *CallbackManager) ExecuteCallbacks(
	ctx context.Context,
	callbackType CallbackType,
	callbackCtx *CallbackContext,
) error {
	callbacks, exists := cm.callbacks[callbackType]
	if !exists {
		return nil
	}

	callbackCtx.CallbackType = callbackType
	for _, callback := range callbacks {
		if err := callback.Execute(ctx, callbackCtx); err != nil {
			return fmt.Errorf("%s callback: %w", callbackType, err)
		}
	}

	return nil
}

// LoggingCallback forwards execution points to a logging function.
type LoggingCallback struct {
	callbackType CallbackType
	logger       func(message string)
}

// NewLoggingCallback creates a new logging callback.
func NewLoggingCallback(callbackType CallbackType, logger func(message string)) *LoggingCallback {
	return &LoggingCallback{callbackType: callbackType, logger: logger}
}

// Type returns the callback type this logger handles.
func (c *LoggingCallback) Type() CallbackType { return c.callbackType }

// Execute logs the execution point.
func (c *LoggingCallback) Execute(_ context.Context, callbackCtx *CallbackContext) error {
	if c.logger == nil {
		return nil
	}
	msg := fmt.Sprintf("[%s] agent=%s", c.callbackType, callbackCtx.Agent)
	if callbackCtx.Tool != "" {
		msg += fmt.Sprintf(" tool=%s id=%s", callbackCtx.Tool, callbackCtx.CallID)
	}
	if callbackCtx.Err != nil {
		msg += " err=" + callbackCtx.Err.Error()
	}
	c.logger(msg)
	return nil
}
