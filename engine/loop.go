package engine

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/hupe1980/captain/core"
	"github.com/hupe1980/captain/logging"
	"github.com/hupe1980/captain/model"
	"github.com/hupe1980/captain/tool"
)

var errNoFinalResponse = errors.New("model returned no final response")

// turn is the state of one Stream call.
type turn struct {
	engine   *Engine
	threadID string
	stream   *rawStream
	limiter  *core.ModelLimiter
}

func (t *turn) run(ctx context.Context) error {
	e := t.engine
	ctx, span := e.tracer.Start(ctx, "captain.turn", trace.WithAttributes(
		attribute.String("captain.thread_id", t.threadID),
		attribute.String("captain.agent", e.root.Name),
	))
	defer span.End()

	start := time.Now()
	_, err := t.runAgent(ctx, e.root, nil, threadTranscript{store: e.store, gate: e.gate, id: t.threadID})
	status := "ok"
	if err != nil {
		switch {
		case ctx.Err() != nil:
			status = "cancelled"
		case errors.Is(err, core.ErrModelCallLimit):
			status = "limited"
		default:
			status = "error"
		}
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		_ = e.callbacks.ExecuteCallbacks(context.WithoutCancel(ctx), CallbackOnError, &CallbackContext{
			ThreadID: t.threadID,
			Agent:    e.root.Name,
			Err:      err,
		})
	}
	e.logger.Info("engine.turn.finished",
		"thread_id", t.threadID,
		"status", status,
		"model_calls", t.limiter.Count(),
		"duration_ms", time.Since(start).Milliseconds(),
	)
	return err
}

// runAgent drives one agent until it answers without requesting tools and
// returns the final answer text.
func (t *turn) runAgent(ctx context.Context, a *Agent, ns []string, tr transcript) (string, error) {
	tools := t.engine.toolsFor(a)
	defs := toolDefinitions(tools)
	instruction, err := t.engine.instruction(a)
	if err != nil {
		return "", err
	}

	for {
		// History is read only once the consumer caught up, so side-channel
		// updates for earlier items are included.
		if err := t.stream.barrier(ctx); err != nil {
			return "", err
		}
		msgs, err := tr.Messages()
		if err != nil {
			return "", fmt.Errorf("failed to load history: %w", err)
		}

		resp, err := t.generate(ctx, a, ns, model.Request{
			Instructions: instruction,
			Contents:     msgs,
			Tools:        defs,
			Stream:       true,
		})
		if err != nil {
			return "", err
		}

		content := withCallIDs(resp.Content)
		if err := tr.Append(content); err != nil {
			return "", fmt.Errorf("failed to append model message: %w", err)
		}
		if err := t.stream.emit(ctx, updateItem(ns, core.NodeModel, requestMessage(content))); err != nil {
			return "", err
		}

		calls := content.FunctionCalls()
		if len(calls) == 0 {
			return content.Text(), nil
		}
		if err := t.executeTools(ctx, a, ns, tools, calls, tr); err != nil {
			return "", err
		}
	}
}

// generate performs one streaming model call. Partial text and reasoning are
// forwarded as token items; the final response is returned.
func (t *turn) generate(ctx context.Context, a *Agent, ns []string, req model.Request) (model.Response, error) {
	e := t.engine
	if err := t.limiter.Acquire(); err != nil {
		e.metrics.RecordModelCall(a.Name, "limited")
		return model.Response{}, err
	}
	if err := e.pace.Wait(ctx); err != nil {
		return model.Response{}, err
	}
	cbCtx := &CallbackContext{ThreadID: t.threadID, Agent: a.Name, Namespace: ns}
	if err := e.callbacks.ExecuteCallbacks(ctx, CallbackBeforeModel, cbCtx); err != nil {
		return model.Response{}, err
	}

	info := a.Model.Info()
	ctx, span := e.tracer.Start(ctx, "captain.model.generate", trace.WithAttributes(
		attribute.String("captain.agent", a.Name),
		attribute.String("captain.model", info.Name),
		attribute.String("captain.provider", info.Provider),
		attribute.Int("captain.messages", len(req.Contents)),
	))
	defer span.End()

	start := time.Now()
	final, err := t.consume(ctx, ns, a.Model, req)
	status := "ok"
	if err != nil {
		status = "error"
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
	}
	logging.LogModelCall(e.logger, info.Name, time.Since(start), err, "agent", a.Name, "finish_reason", final.FinishReason)
	e.metrics.RecordModelCall(a.Name, status)

	cbCtx.Err = err
	if cbErr := e.callbacks.ExecuteCallbacks(ctx, CallbackAfterModel, cbCtx); cbErr != nil && err == nil {
		err = cbErr
	}
	if err != nil {
		return model.Response{}, fmt.Errorf("model %s: %w", info.Name, err)
	}
	return final, nil
}

func (t *turn) consume(ctx context.Context, ns []string, m model.Model, req model.Request) (model.Response, error) {
	respCh, errCh := m.Generate(ctx, req)

	var (
		final   *model.Response
		emitErr error
	)
	for resp := range respCh {
		if emitErr != nil {
			continue
		}
		if resp.Partial {
			if blocks := tokenBlocks(resp.Content); len(blocks) > 0 {
				emitErr = t.stream.emit(ctx, core.RawItem{
					Namespace: ns,
					Mode:      core.ModeToken,
					Token: &core.TokenChunk{
						Blocks:   blocks,
						Metadata: &core.TokenMetadata{Node: core.NodeModel},
					},
				})
			}
			continue
		}
		r := resp
		final = &r
	}
	if err := <-errCh; err != nil {
		return model.Response{}, err
	}
	if emitErr != nil {
		return model.Response{}, emitErr
	}
	if final == nil {
		return model.Response{}, errNoFinalResponse
	}
	return *final, nil
}

// tokenBlocks maps partial parts to content blocks. In-progress tool calls
// are not forwarded.
func tokenBlocks(c core.Content) []core.ContentBlock {
	var blocks []core.ContentBlock
	for _, p := range c.Parts {
		switch pt := p.(type) {
		case core.TextPart:
			if pt.Text != "" {
				blocks = append(blocks, core.ContentBlock{Type: core.BlockText, Text: pt.Text})
			}
		case core.ReasoningPart:
			if pt.Text != "" {
				blocks = append(blocks, core.ContentBlock{Type: core.BlockReasoning, Reasoning: pt.Text})
			}
		}
	}
	return blocks
}

// withCallIDs assigns ids to function calls the provider left without one.
func withCallIDs(c core.Content) core.Content {
	parts := make([]core.Part, len(c.Parts))
	for i, p := range c.Parts {
		if fc, ok := p.(core.FunctionCallPart); ok && fc.FunctionCall.ID == "" {
			fc.FunctionCall.ID = "call_" + core.NewID()
			p = fc
		}
		parts[i] = p
	}
	if c.Role == "" {
		c.Role = "assistant"
	}
	c.Parts = parts
	return c
}

func requestMessage(c core.Content) core.RequestMessage {
	msg := core.RequestMessage{Text: c.Text()}
	for _, fc := range c.FunctionCalls() {
		msg.ToolCalls = append(msg.ToolCalls, core.ToolInvocation{
			ID:   fc.ID,
			Name: fc.Name,
			Args: decodeArgs(fc.Arguments),
		})
	}
	return msg
}

// decodeArgs parses JSON arguments; unparsable input yields nil.
func decodeArgs(raw string) map[string]any {
	if raw == "" {
		return map[string]any{}
	}
	var args map[string]any
	if err := json.Unmarshal([]byte(raw), &args); err != nil {
		return nil
	}
	return args
}

func updateItem(ns []string, node string, msgs ...core.Message) core.RawItem {
	return core.RawItem{
		Namespace: ns,
		Mode:      core.ModeUpdate,
		Update:    []core.NodeUpdate{{Node: node, Messages: msgs}},
	}
}

func toolDefinitions(tools *tool.Set) []model.ToolDefinition {
	if tools.Len() == 0 {
		return nil
	}
	defs := make([]model.ToolDefinition, 0, tools.Len())
	for _, t := range tools.List() {
		defs = append(defs, model.ToolDefinition{
			Type: "function",
			Function: model.FunctionDefinition{
				Name:        t.Name(),
				Description: t.Description(),
				Parameters:  t.Parameters(),
			},
		})
	}
	return defs
}
