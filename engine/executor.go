package engine

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"golang.org/x/sync/errgroup"

	"github.com/hupe1980/captain/core"
	"github.com/hupe1980/captain/logging"
	"github.com/hupe1980/captain/tool"
)

// executeTools runs the calls of one model step in parallel. Each result is
// appended to the transcript and reported as soon as it completes, so the
// stream carries results in completion order. Side-channel updates arriving
// meanwhile are committed after the last result. Tool failures become error
// results; only stream or history failures abort the step.
func (t *turn) executeTools(
	ctx context.Context,
	a *Agent,
	ns []string,
	tools *tool.Set,
	calls []core.FunctionCall,
	tr transcript,
) (err error) {
	g, gctx := errgroup.WithContext(ctx)
	if n := t.engine.opts.MaxParallelTools; n > 0 {
		g.SetLimit(n)
	}

	if st, ok := tr.(stepScoped); ok {
		st.beginStep()
		defer func() {
			if cerr := st.endStep(); cerr != nil && err == nil {
				err = fmt.Errorf("failed to commit held state: %w", cerr)
			}
		}()
	}

	batchStart := time.Now()
	for _, fc := range calls {
		g.Go(func() error {
			result, err := t.callTool(gctx, a, ns, tools, fc)

			fr := core.FunctionResponse{ID: fc.ID, Name: fc.Name, Response: result}
			msg := core.ResultMessage{ToolCallID: fc.ID, Name: fc.Name, Content: result}
			if err != nil {
				fr.Response = nil
				fr.Error = err.Error()
				msg.Content = "Error: " + err.Error()
				msg.IsError = true
			}
			if aerr := tr.Append(core.Content{
				Role:  "tool",
				Parts: []core.Part{core.FunctionResponsePart{FunctionResponse: fr}},
			}); aerr != nil {
				return fmt.Errorf("failed to append tool result: %w", aerr)
			}
			return t.stream.emit(gctx, updateItem(ns, core.NodeTools, msg))
		})
	}
	err = g.Wait()

	t.engine.logger.Debug("engine.tools.batch.complete",
		"agent", a.Name,
		"count", len(calls),
		"duration_ms", time.Since(batchStart).Milliseconds(),
	)
	return err
}

// callTool executes a single call with panic recovery, tracing, callbacks,
// logging and metrics.
func (t *turn) callTool(ctx context.Context, a *Agent, ns []string, tools *tool.Set, fc core.FunctionCall) (result any, err error) {
	e := t.engine
	ctx, span := e.tracer.Start(ctx, "captain.tool.call", trace.WithAttributes(
		attribute.String("captain.agent", a.Name),
		attribute.String("captain.tool", fc.Name),
		attribute.String("captain.tool_call_id", fc.ID),
	))
	defer span.End()

	start := time.Now()
	defer func() {
		status := "ok"
		if err != nil {
			status = "error"
			span.RecordError(err)
			span.SetStatus(codes.Error, err.Error())
		}
		e.metrics.RecordToolCall(fc.Name, status)
		logging.LogToolCall(e.logger, fc.Name, time.Since(start), err, "agent", a.Name, "tool_call_id", fc.ID)
	}()

	args, err := parseArgs(fc.Arguments)
	if err != nil {
		return nil, err
	}

	cbCtx := &CallbackContext{
		ThreadID:  t.threadID,
		Agent:     a.Name,
		Namespace: ns,
		Tool:      fc.Name,
		CallID:    fc.ID,
		Args:      args,
	}
	if err := e.callbacks.ExecuteCallbacks(ctx, CallbackBeforeTool, cbCtx); err != nil {
		return nil, err
	}

	impl, ok := tools.Get(fc.Name)
	if !ok {
		return nil, tool.NewToolError(fc.Name, fmt.Sprintf("tool %s not found", fc.Name), tool.CodeNotFound)
	}

	toolCtx := core.NewToolContext(
		withScope(ctx, scope{turn: t, namespace: ns}),
		a.Name, fc.ID, e.opts.Workspace, e.logger,
	)
	func() {
		defer func() {
			if r := recover(); r != nil {
				err = fmt.Errorf("tool %s panicked: %v", fc.Name, r)
				logging.ErrorWithStack(e.logger, err, "engine.tool.panic", "agent", a.Name, "tool", fc.Name)
			}
		}()
		result, err = impl.Call(toolCtx, args)
	}()

	cbCtx.Result = result
	cbCtx.Err = err
	if cbErr := e.callbacks.ExecuteCallbacks(ctx, CallbackAfterTool, cbCtx); cbErr != nil && err == nil {
		return nil, cbErr
	}
	return result, err
}

func parseArgs(raw string) (map[string]any, error) {
	if raw == "" {
		return map[string]any{}, nil
	}
	var args map[string]any
	if err := json.Unmarshal([]byte(raw), &args); err != nil {
		return nil, fmt.Errorf("failed to unmarshal args: %w", err)
	}
	if args == nil {
		args = map[string]any{}
	}
	return args, nil
}
