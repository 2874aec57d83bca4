// Package engine implements the agent runtime that produces the raw,
// multiplexed execution stream of a chat turn.
//
// # Turn model
//
// Engine.Stream appends the user input to the thread and starts the root
// agent in a goroutine. Everything the run produces is reported as
// core.RawItem values:
//
//   - token items (node "model") for partial answer text and reasoning
//   - update items {model: RequestMessage} for every completed model message,
//     including the tool calls it requests
//   - update items {tools: ResultMessage} for every tool result, in completion
//     order
//
// Items of the root agent carry an empty namespace. A call to the task tool
// runs the named sub-agent with the namespace of its caller extended by
// "task:<call id>", so consumers can attribute nested activity.
//
// # Concurrency
//
// Tool calls of one model step run in parallel (errgroup, bounded by
// Options.MaxParallelTools) with panic recovery. Model calls are capped per
// turn (core.ModelLimiter) and paced across turns (x/time/rate). The stream
// is pull based: producers block until the consumer asks for the next item,
// and Close cancels the whole turn.
//
// # Side channel
//
// UpdateState appends messages to a thread while a turn runs. The engine waits
// for the consumer before each model call, so such messages are part of the
// next model request.
//
// # Observability
//
// Turns, model calls and tool calls each get an OpenTelemetry span; model and
// tool calls are counted in Prometheus when Options.Metrics is set; lifecycle
// callbacks (CallbackBeforeModel, CallbackBeforeTool, ...) allow auditing or
// vetoing tool calls.
package engine
