package engine

import (
	"context"
	"errors"
	"fmt"
	"io"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hupe1980/captain/core"
	"github.com/hupe1980/captain/model"
	"github.com/hupe1980/captain/session"
	"github.com/hupe1980/captain/tool"
)

func echoTool() tool.Tool {
	return tool.NewFunctionTool("echo", "Echo the text", map[string]any{
		"type":       "object",
		"properties": map[string]any{"text": map[string]any{"type": "string"}},
		"required":   []string{"text"},
	}, func(_ *core.ToolContext, args map[string]any) (any, error) {
		return args["text"], nil
	})
}

func call(id, name, args string) core.FunctionCall {
	return core.FunctionCall{ID: id, Name: name, Arguments: args}
}

// drain pulls every item until the stream ends; io.EOF is reported as nil.
func drain(t *testing.T, s core.RawStream) ([]core.RawItem, error) {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	var items []core.RawItem
	for {
		item, err := s.Next(ctx)
		if errors.Is(err, io.EOF) {
			return items, nil
		}
		if err != nil {
			return items, err
		}
		items = append(items, item)
	}
}

func updates(items []core.RawItem, node string) []core.Message {
	var out []core.Message
	for _, it := range items {
		if it.Mode != core.ModeUpdate {
			continue
		}
		for _, u := range it.Update {
			if u.Node == node {
				out = append(out, u.Messages...)
			}
		}
	}
	return out
}

func newEngine(t *testing.T, fns ...func(o *Options)) *Engine {
	t.Helper()
	e, err := New(fns...)
	require.NoError(t, err)
	return e
}

func TestNew_RequiresRoot(t *testing.T) {
	_, err := New()
	assert.ErrorIs(t, err, ErrNoRootAgent)

	_, err = New(func(o *Options) {
		o.Root = &Agent{Name: "captain", Model: model.NewMockModel("m", "mock")}
		o.SubAgents = []*Agent{{Name: "captain", Model: model.NewMockModel("m", "mock")}}
	})
	assert.Error(t, err)
}

func TestStream_AnswerOnly(t *testing.T) {
	m := model.NewScriptedModel("root", model.Step{Reasoning: "think", Text: "hello"})
	store := session.NewInMemoryStore()
	e := newEngine(t, func(o *Options) {
		o.Root = &Agent{Name: "captain", Instruction: "You are {{.AgentName}}.", Model: m}
		o.SessionStore = store
	})

	s, err := e.Stream(context.Background(), "t1", core.NewTextContent("", "hi"))
	require.NoError(t, err)
	items, err := drain(t, s)
	require.NoError(t, err)

	require.Len(t, items, 3)
	assert.Equal(t, core.ModeToken, items[0].Mode)
	assert.Equal(t, core.BlockReasoning, items[0].Token.Blocks[0].Type)
	assert.Equal(t, "think", items[0].Token.Blocks[0].Reasoning)
	assert.Equal(t, core.NodeModel, items[0].Token.Metadata.Node)
	assert.Equal(t, "hello", items[1].Token.Blocks[0].Text)
	assert.Empty(t, items[2].Namespace)
	assert.Equal(t, core.RequestMessage{Text: "hello"}, items[2].Update[0].Messages[0])

	sess, _ := store.Get("t1")
	require.Equal(t, 2, sess.Len())
	assert.Equal(t, "user", sess.History()[0].Role)
	assert.Equal(t, "You are captain.", m.Requests()[0].Instructions)
}

func TestStream_ToolLoop(t *testing.T) {
	m := model.NewScriptedModel("root",
		model.Step{Calls: []core.FunctionCall{call("c1", "echo", `{"text":"pong"}`), call("", "missing", `{}`)}},
		model.Step{Text: "done"},
	)
	e := newEngine(t, func(o *Options) {
		o.Root = &Agent{Name: "captain", Model: m, Tools: []tool.Tool{echoTool()}}
	})

	s, err := e.Stream(context.Background(), "t1", core.NewTextContent("user", "ping"))
	require.NoError(t, err)
	items, err := drain(t, s)
	require.NoError(t, err)

	reqs := updates(items, core.NodeModel)
	require.Len(t, reqs, 2)
	first := reqs[0].(core.RequestMessage)
	require.Len(t, first.ToolCalls, 2)
	assert.Equal(t, map[string]any{"text": "pong"}, first.ToolCalls[0].Args)
	assert.NotEmpty(t, first.ToolCalls[1].ID, "missing ids are assigned")

	results := updates(items, core.NodeTools)
	require.Len(t, results, 2)
	byName := map[string]core.ResultMessage{}
	for _, r := range results {
		rm := r.(core.ResultMessage)
		byName[rm.Name] = rm
	}
	assert.Equal(t, "pong", byName["echo"].Content)
	assert.Equal(t, "c1", byName["echo"].ToolCallID)
	assert.True(t, byName["missing"].IsError)

	// second request sees both tool responses
	second := m.Requests()[1].Contents
	var responses int
	for _, c := range second {
		responses += len(c.FunctionResponses())
	}
	assert.Equal(t, 2, responses)
}

func TestStream_Delegation(t *testing.T) {
	root := model.NewScriptedModel("root",
		model.Step{Calls: []core.FunctionCall{call("c1", tool.TaskToolName, `{"subagent_type":"researcher","description":"find it"}`)}},
		model.Step{Text: "summary"},
	)
	sub := model.NewScriptedModel("sub",
		model.Step{Calls: []core.FunctionCall{call("s1", "echo", `{"text":"x"}`)}},
		model.Step{Text: "found"},
	)
	e := newEngine(t, func(o *Options) {
		o.Root = &Agent{Name: "captain", Model: root}
		o.SubAgents = []*Agent{{Name: "researcher", Description: "Researches", Model: sub, Tools: []tool.Tool{echoTool()}}}
	})
	assert.Equal(t, []string{"researcher"}, e.SubAgents())

	s, err := e.Stream(context.Background(), "t1", core.NewTextContent("user", "go"))
	require.NoError(t, err)
	items, err := drain(t, s)
	require.NoError(t, err)

	var nested, rootResults []core.RawItem
	for _, it := range items {
		if len(it.Namespace) > 0 {
			nested = append(nested, it)
			assert.Equal(t, []string{"task:c1"}, it.Namespace)
		} else if it.Mode == core.ModeUpdate && it.Update[0].Node == core.NodeTools {
			rootResults = append(rootResults, it)
		}
	}
	assert.NotEmpty(t, nested)
	require.Len(t, rootResults, 1)
	res := rootResults[0].Update[0].Messages[0].(core.ResultMessage)
	assert.Equal(t, tool.TaskToolName, res.Name)
	assert.Equal(t, "found", res.Content)

	// the sub-agent starts fresh with the task description
	subReq := sub.Requests()[0]
	require.Len(t, subReq.Contents, 1)
	assert.Equal(t, "find it", subReq.Contents[0].Text())
	// the root sees the task tool, the sub-agent does not
	assert.Equal(t, tool.TaskToolName, root.Requests()[0].Tools[0].Function.Name)
	assert.Equal(t, "echo", subReq.Tools[0].Function.Name)
}

func TestStream_UpdateStateVisibleToNextModelCall(t *testing.T) {
	m := model.NewScriptedModel("root",
		model.Step{Calls: []core.FunctionCall{call("c1", "echo", `{"text":"img"}`)}},
		model.Step{Text: "I see it"},
	)
	e := newEngine(t, func(o *Options) {
		o.Root = &Agent{Name: "captain", Model: m, Tools: []tool.Tool{echoTool()}}
	})

	ctx := context.Background()
	s, err := e.Stream(ctx, "t1", core.NewTextContent("user", "look"))
	require.NoError(t, err)
	for {
		item, err := s.Next(ctx)
		if errors.Is(err, io.EOF) {
			break
		}
		require.NoError(t, err)
		if item.Mode == core.ModeUpdate && item.Update[0].Node == core.NodeTools {
			// a slow consumer must still win the race against the next model call
			time.Sleep(20 * time.Millisecond)
			require.NoError(t, e.UpdateState(ctx, "t1", core.Content{Role: "user", Parts: []core.Part{
				core.ImagePart{MimeType: "image/png", Data: "AAAA"},
			}}))
		}
	}

	contents := m.Requests()[1].Contents
	last := contents[len(contents)-1]
	assert.Equal(t, "user", last.Role)
	assert.IsType(t, core.ImagePart{}, last.Parts[0])
}

func TestStream_ModelFailure(t *testing.T) {
	m := model.NewScriptedModel("root", model.Step{Err: errors.New("rate limited")})
	var seen []error
	e := newEngine(t, func(o *Options) {
		o.Root = &Agent{Name: "captain", Model: m}
		o.Callbacks = []Callback{NewFunctionCallback(CallbackOnError, func(_ context.Context, cc *CallbackContext) error {
			seen = append(seen, cc.Err)
			return nil
		})}
	})

	s, err := e.Stream(context.Background(), "t1", core.NewTextContent("user", "hi"))
	require.NoError(t, err)
	_, err = drain(t, s)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "rate limited")
	assert.Len(t, seen, 1)
}

func TestStream_MaxModelCalls(t *testing.T) {
	m := model.NewScriptedModel("root",
		model.Step{Calls: []core.FunctionCall{call("c1", "echo", `{"text":"a"}`)}},
		model.Step{Calls: []core.FunctionCall{call("c2", "echo", `{"text":"b"}`)}},
	)
	e := newEngine(t, func(o *Options) {
		o.Root = &Agent{Name: "captain", Model: m, Tools: []tool.Tool{echoTool()}}
		o.MaxModelCalls = 1
	})

	s, err := e.Stream(context.Background(), "t1", core.NewTextContent("user", "loop"))
	require.NoError(t, err)
	_, err = drain(t, s)
	require.Error(t, err)
	assert.ErrorIs(t, err, core.ErrModelCallLimit)
	assert.Len(t, m.Requests(), 1, "the refused call never reaches the model")
}

func TestStream_CloseCancelsTurn(t *testing.T) {
	block := make(chan struct{})
	slow := tool.NewFunctionTool("slow", "blocks", map[string]any{"type": "object"}, func(tc *core.ToolContext, _ map[string]any) (any, error) {
		close(block)
		<-tc.Context().Done()
		return nil, tc.Context().Err()
	})
	m := model.NewScriptedModel("root", model.Step{Calls: []core.FunctionCall{call("c1", "slow", `{}`)}})
	e := newEngine(t, func(o *Options) {
		o.Root = &Agent{Name: "captain", Model: m, Tools: []tool.Tool{slow}}
	})

	ctx := context.Background()
	s, err := e.Stream(ctx, "t1", core.NewTextContent("user", "hi"))
	require.NoError(t, err)
	_, err = s.Next(ctx) // the model message
	require.NoError(t, err)
	<-block

	require.NoError(t, s.Close())
	require.NoError(t, s.Close())
	_, err = s.Next(ctx)
	assert.ErrorIs(t, err, core.ErrStreamClosed)
}

func TestCallbacks_BeforeToolVeto(t *testing.T) {
	m := model.NewScriptedModel("root",
		model.Step{Calls: []core.FunctionCall{call("c1", "echo", `{"text":"x"}`)}},
		model.Step{Text: "ok"},
	)
	var logged []string
	e := newEngine(t, func(o *Options) {
		o.Root = &Agent{Name: "captain", Model: m, Tools: []tool.Tool{echoTool()}}
		o.Callbacks = []Callback{
			NewFunctionCallback(CallbackBeforeTool, func(_ context.Context, cc *CallbackContext) error {
				return errors.New("denied " + cc.Tool)
			}),
			NewLoggingCallback(CallbackAfterTool, func(msg string) { logged = append(logged, msg) }),
		}
	})

	s, err := e.Stream(context.Background(), "t1", core.NewTextContent("user", "x"))
	require.NoError(t, err)
	items, err := drain(t, s)
	require.NoError(t, err)

	results := updates(items, core.NodeTools)
	require.Len(t, results, 1)
	rm := results[0].(core.ResultMessage)
	assert.True(t, rm.IsError)
	assert.Contains(t, rm.Content, "denied echo")
	assert.Empty(t, logged, "after callbacks do not run for vetoed calls")
}

func TestExecutor_RecoversPanics(t *testing.T) {
	boom := tool.NewFunctionTool("boom", "panics", map[string]any{"type": "object"}, func(*core.ToolContext, map[string]any) (any, error) {
		panic("kaboom")
	})
	m := model.NewScriptedModel("root",
		model.Step{Calls: []core.FunctionCall{call("c1", "boom", `{}`)}},
		model.Step{Text: "recovered"},
	)
	e := newEngine(t, func(o *Options) {
		o.Root = &Agent{Name: "captain", Model: m, Tools: []tool.Tool{boom}}
	})

	s, err := e.Stream(context.Background(), "t1", core.NewTextContent("user", "x"))
	require.NoError(t, err)
	items, err := drain(t, s)
	require.NoError(t, err)

	rm := updates(items, core.NodeTools)[0].(core.ResultMessage)
	assert.True(t, rm.IsError)
	assert.Contains(t, rm.Content, "kaboom")
}

func TestParseArgs(t *testing.T) {
	args, err := parseArgs("")
	require.NoError(t, err)
	assert.Empty(t, args)

	args, err = parseArgs("null")
	require.NoError(t, err)
	assert.NotNil(t, args)

	_, err = parseArgs("{")
	assert.Error(t, err)
}

func TestStream_HeldStateFollowsAllToolResults(t *testing.T) {
	fast := tool.NewFunctionTool("fast", "returns at once", map[string]any{"type": "object"}, func(*core.ToolContext, map[string]any) (any, error) {
		return "fast done", nil
	})
	slow := tool.NewFunctionTool("slow", "takes a while", map[string]any{"type": "object"}, func(tc *core.ToolContext, _ map[string]any) (any, error) {
		select {
		case <-time.After(150 * time.Millisecond):
			return "slow done", nil
		case <-tc.Context().Done():
			return nil, tc.Context().Err()
		}
	})
	m := model.NewScriptedModel("root",
		model.Step{Calls: []core.FunctionCall{call("c1", "fast", `{}`), call("c2", "slow", `{}`)}},
		model.Step{Text: "both seen"},
	)
	e := newEngine(t, func(o *Options) {
		o.Root = &Agent{Name: "captain", Model: m, Tools: []tool.Tool{fast, slow}}
	})

	ctx := context.Background()
	s, err := e.Stream(ctx, "t1", core.NewTextContent("user", "go"))
	require.NoError(t, err)
	injected := false
	for {
		item, err := s.Next(ctx)
		if errors.Is(err, io.EOF) {
			break
		}
		require.NoError(t, err)
		for _, msg := range updates([]core.RawItem{item}, core.NodeTools) {
			if rm := msg.(core.ResultMessage); rm.Name == "fast" {
				// slow is still running here
				require.NoError(t, e.UpdateState(ctx, "t1", core.NewTextContent("user", "side note")))
				injected = true
			}
		}
	}
	require.True(t, injected)

	contents := m.Requests()[1].Contents
	roles := make([]string, len(contents))
	for i, c := range contents {
		roles[i] = c.Role
	}
	assert.Equal(t, []string{"user", "assistant", "tool", "tool", "user"}, roles)
	assert.Equal(t, "side note", contents[4].Text())

	sess, err := e.Session("t1")
	require.NoError(t, err)
	assert.Equal(t, 6, sess.Len())
}

func TestStream_ConcurrentDelegationsKeepTheirNamespace(t *testing.T) {
	var arrived sync.WaitGroup
	arrived.Add(2)
	meet := tool.NewFunctionTool("meet", "waits for the sibling", map[string]any{"type": "object"}, func(tc *core.ToolContext, _ map[string]any) (any, error) {
		arrived.Done()
		done := make(chan struct{})
		go func() { arrived.Wait(); close(done) }()
		select {
		case <-done:
			return tc.AgentName() + " met", nil
		case <-tc.Context().Done():
			return nil, tc.Context().Err()
		}
	})
	root := model.NewScriptedModel("root",
		model.Step{Calls: []core.FunctionCall{
			call("a", tool.TaskToolName, `{"subagent_type":"alpha","description":"first"}`),
			call("b", tool.TaskToolName, `{"subagent_type":"beta","description":"second"}`),
		}},
		model.Step{Text: "merged"},
	)
	alpha := model.NewScriptedModel("alpha",
		model.Step{Calls: []core.FunctionCall{call("a1", "meet", `{}`)}},
		model.Step{Text: "alpha answer"},
	)
	beta := model.NewScriptedModel("beta",
		model.Step{Calls: []core.FunctionCall{call("b1", "meet", `{}`)}},
		model.Step{Text: "beta answer"},
	)
	e := newEngine(t, func(o *Options) {
		o.Root = &Agent{Name: "captain", Model: root}
		o.SubAgents = []*Agent{
			{Name: "alpha", Model: alpha, Tools: []tool.Tool{meet}},
			{Name: "beta", Model: beta, Tools: []tool.Tool{meet}},
		}
	})

	s, err := e.Stream(context.Background(), "t1", core.NewTextContent("user", "split"))
	require.NoError(t, err)
	items, err := drain(t, s)
	require.NoError(t, err)

	texts := map[string][]string{}
	for _, it := range items {
		if len(it.Namespace) == 0 || it.Mode != core.ModeToken {
			continue
		}
		for _, b := range it.Token.Blocks {
			texts[it.Namespace[0]] = append(texts[it.Namespace[0]], b.Text)
		}
	}
	assert.Equal(t, []string{"alpha answer"}, texts["task:a"])
	assert.Equal(t, []string{"beta answer"}, texts["task:b"])

	byID := map[string]string{}
	for _, msg := range updates(items, core.NodeTools) {
		rm := msg.(core.ResultMessage)
		byID[rm.ToolCallID] = fmt.Sprint(rm.Content)
	}
	assert.Equal(t, "alpha answer", byID["a"])
	assert.Equal(t, "beta answer", byID["b"])
	assert.Equal(t, "alpha met", byID["a1"])
	assert.Equal(t, "beta met", byID["b1"])
}
