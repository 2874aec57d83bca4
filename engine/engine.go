package engine

import (
	"context"
	"errors"
	"fmt"
	"sort"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/trace"
	"golang.org/x/time/rate"

	"github.com/hupe1980/captain/core"
	"github.com/hupe1980/captain/internal/util"
	"github.com/hupe1980/captain/logging"
	"github.com/hupe1980/captain/metrics"
	"github.com/hupe1980/captain/session"
	"github.com/hupe1980/captain/tool"
)

// ErrNoRootAgent is returned by New when no usable root agent is configured.
var ErrNoRootAgent = errors.New("engine: root agent with a model is required")

const tracerName = "github.com/hupe1980/captain/engine"

// Options configures an Engine instance using the functional options pattern.
type Options struct {
	// Root is the agent that handles user input. Required.
	Root *Agent

	// SubAgents are delegation targets reachable through the task tool.
	SubAgents []*Agent

	// SessionStore keeps conversation threads. Defaults to an in-memory store.
	SessionStore core.SessionStore

	// Logger defaults to a NoOp logger.
	Logger logging.Logger

	// Metrics is optional; nil disables collection.
	Metrics *metrics.Metrics

	// Tracer defaults to the global otel tracer provider.
	Tracer trace.Tracer

	// MaxModelCalls caps model calls per turn, sub-agents included. 0 = unlimited.
	MaxModelCalls int

	// ModelRate paces model calls across turns. <= 0 disables pacing.
	ModelRate  rate.Limit
	ModelBurst int

	// MaxParallelTools bounds concurrent tool calls of one step. <= 0 = unbounded.
	MaxParallelTools int

	// EventBufferSize sets the raw stream channel buffer.
	EventBufferSize int

	// Workspace confines file and shell tools. Empty means the working directory.
	Workspace string

	// Callbacks are lifecycle hooks run around model and tool calls.
	Callbacks []Callback
}

// Engine is the agent runtime producing the multiplexed raw stream of a turn.
//
// A turn runs the root agent in a loop: stream the model, persist and report
// its message, execute requested tools in parallel, report each result as it
// completes, repeat until the model stops requesting tools. Calls to the task
// tool run the named sub-agent's loop nested under the namespace segment
// "task:<call id>", and its final answer becomes the task result.
//
// Before every model call the engine waits until the consumer came back to
// Next, so state updates made while handling earlier items (UpdateState) are
// part of the next request.
type Engine struct {
	root      *Agent
	subAgents map[string]*Agent
	rootTools *tool.Set
	subTools  map[string]*tool.Set

	store     core.SessionStore
	gate      *stateGate
	logger    logging.Logger
	metrics   *metrics.Metrics
	tracer    trace.Tracer
	pace      *rate.Limiter
	callbacks *CallbackManager
	opts      Options
}

var _ core.Runtime = (*Engine)(nil)

// New creates a new Engine.
func New(optFns ...func(o *Options)) (*Engine, error) {
	opts := Options{
		MaxParallelTools: 4,
		EventBufferSize:  0,
	}
	for _, fn := range optFns {
		fn(&opts)
	}

	if opts.Root == nil || opts.Root.Model == nil {
		return nil, ErrNoRootAgent
	}
	if opts.Root.Name == "" {
		opts.Root.Name = "captain"
	}
	if opts.SessionStore == nil {
		opts.SessionStore = session.NewInMemoryStore()
	}
	if opts.Tracer == nil {
		opts.Tracer = otel.Tracer(tracerName)
	}
	if opts.EventBufferSize < 0 {
		opts.EventBufferSize = 0
	}

	pace := rate.NewLimiter(rate.Inf, 0)
	if opts.ModelRate > 0 {
		burst := opts.ModelBurst
		if burst <= 0 {
			burst = 1
		}
		pace = rate.NewLimiter(opts.ModelRate, burst)
	}

	e := &Engine{
		root:      opts.Root,
		subAgents: map[string]*Agent{},
		subTools:  map[string]*tool.Set{},
		store:     opts.SessionStore,
		gate:      newStateGate(opts.SessionStore),
		logger:    logging.ForComponent(opts.Logger, "engine"),
		metrics:   opts.Metrics,
		tracer:    opts.Tracer,
		pace:      pace,
		callbacks: NewCallbackManager(opts.Callbacks...),
		opts:      opts,
	}

	infos := make([]tool.SubAgentInfo, 0, len(opts.SubAgents))
	for _, a := range opts.SubAgents {
		if a == nil || a.Name == "" || a.Model == nil {
			return nil, fmt.Errorf("engine: sub-agent needs a name and a model")
		}
		if a.Name == opts.Root.Name {
			return nil, fmt.Errorf("engine: sub-agent %q shadows the root agent", a.Name)
		}
		if _, dup := e.subAgents[a.Name]; dup {
			return nil, fmt.Errorf("engine: duplicate sub-agent %q", a.Name)
		}
		e.subAgents[a.Name] = a
		e.subTools[a.Name] = tool.NewSet(a.Tools...)
		infos = append(infos, tool.SubAgentInfo{Name: a.Name, Description: a.Description})
	}

	e.rootTools = tool.NewSet(opts.Root.Tools...)
	if len(infos) > 0 {
		e.rootTools.Add(tool.NewTaskTool(infos, e.delegate))
	}

	return e, nil
}

// Stream starts a turn: the input is appended to the thread and the root
// agent runs in a background goroutine until the returned stream is drained,
// closed, or ctx is cancelled.
func (e *Engine) Stream(ctx context.Context, threadID string, input core.Content) (core.RawStream, error) {
	if input.Role == "" {
		input.Role = "user"
	}
	if err := e.store.Append(threadID, input); err != nil {
		return nil, fmt.Errorf("failed to append user input: %w", err)
	}

	runCtx, cancel := context.WithCancel(ctx)
	s := newRawStream(e.opts.EventBufferSize, cancel)
	t := &turn{
		engine:   e,
		threadID: threadID,
		stream:   s,
		limiter:  core.NewModelLimiter(e.opts.MaxModelCalls),
	}

	go func() {
		defer cancel()
		s.finish(t.run(runCtx))
	}()

	return s, nil
}

// UpdateState appends contents to the thread outside of the turn flow. While
// a tool step of the thread is still committing results, the contents are
// held and appended right after the step's last tool message.
func (e *Engine) UpdateState(_ context.Context, threadID string, contents ...core.Content) error {
	held, err := e.gate.append(threadID, contents...)
	if err != nil {
		return fmt.Errorf("failed to update thread %s: %w", threadID, err)
	}
	e.logger.Debug("engine.state.updated", "thread_id", threadID, "messages", len(contents), "held", held)
	return nil
}

// Session returns a snapshot of the thread.
func (e *Engine) Session(threadID string) (*core.Session, error) {
	return e.store.Get(threadID)
}

// SubAgents returns the registered sub-agent names, sorted.
func (e *Engine) SubAgents() []string {
	names := make([]string, 0, len(e.subAgents))
	for n := range e.subAgents {
		names = append(names, n)
	}
	sort.Strings(names)
	return names
}

func (e *Engine) toolsFor(a *Agent) *tool.Set {
	if a == e.root {
		return e.rootTools
	}
	if s, ok := e.subTools[a.Name]; ok {
		return s
	}
	return tool.NewSet(a.Tools...)
}

func (e *Engine) instruction(a *Agent) (string, error) {
	names := make([]any, 0, len(e.subAgents))
	for _, n := range e.SubAgents() {
		names = append(names, n)
	}
	out, err := util.RenderTemplate(a.Instruction, map[string]any{
		"AgentName": a.Name,
		"Workspace": e.opts.Workspace,
		"SubAgents": names,
	})
	if err != nil {
		return "", fmt.Errorf("render instruction of %s: %w", a.Name, err)
	}
	return out, nil
}

// delegate runs a sub-agent for the task tool.
func (e *Engine) delegate(tc *core.ToolContext, subAgent, description string) (string, error) {
	sc, ok := scopeFrom(tc.Context())
	if !ok {
		return "", errors.New("task tool called outside of a turn")
	}
	a, ok := e.subAgents[subAgent]
	if !ok {
		return "", fmt.Errorf("unknown sub-agent %q", subAgent)
	}

	ns := make([]string, 0, len(sc.namespace)+1)
	ns = append(ns, sc.namespace...)
	ns = append(ns, core.TaskSegment(tc.FunctionCallID()))

	e.logger.Info("engine.subagent.start", "subagent", subAgent, "task_id", tc.FunctionCallID())
	answer, err := sc.turn.runAgent(tc.Context(), a, ns, newLocalTranscript(core.NewTextContent("user", description)))
	if err != nil {
		return "", fmt.Errorf("sub-agent %s failed: %w", subAgent, err)
	}
	return answer, nil
}

type scopeKey struct{}

// scope carries the running turn and namespace into tool calls.
type scope struct {
	turn      *turn
	namespace []string
}

func withScope(ctx context.Context, sc scope) context.Context {
	return context.WithValue(ctx, scopeKey{}, sc)
}

func scopeFrom(ctx context.Context) (scope, bool) {
	sc, ok := ctx.Value(scopeKey{}).(scope)
	return sc, ok
}
