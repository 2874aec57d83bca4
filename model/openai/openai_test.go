package openai

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hupe1980/captain/core"
	"github.com/hupe1980/captain/model"
)

func TestBuildMessages(t *testing.T) {
	msgs := buildMessages(model.Request{
		Instructions: "be helpful",
		Contents: []core.Content{
			core.NewTextContent("user", "hi"),
			{Role: "assistant", Parts: []core.Part{
				core.FunctionCallPart{FunctionCall: core.FunctionCall{ID: "c1", Name: "shell_exec", Arguments: `{}`}},
			}},
			{Role: "tool", Parts: []core.Part{
				core.FunctionResponsePart{FunctionResponse: core.FunctionResponse{ID: "c1", Name: "shell_exec", Response: map[string]any{"ok": true}}},
			}},
			{Role: "user", Parts: []core.Part{
				core.TextPart{Text: "look"},
				core.ImagePart{MimeType: "image/png", Data: "AAAA"},
			}},
		},
	})

	require.Len(t, msgs, 5)
	assert.NotNil(t, msgs[0].OfSystem)
	assert.NotNil(t, msgs[1].OfUser)
	require.NotNil(t, msgs[2].OfAssistant)
	assert.Len(t, msgs[2].OfAssistant.ToolCalls, 1)
	require.NotNil(t, msgs[3].OfTool)
	assert.Equal(t, "c1", msgs[3].OfTool.ToolCallID)
	require.NotNil(t, msgs[4].OfUser)
	assert.Len(t, msgs[4].OfUser.Content.OfArrayOfContentParts, 2)
}

func TestFinalContent_OrdersToolCalls(t *testing.T) {
	c := finalContent("hmm", "done", map[int64]*aggCall{
		1: {id: "b", name: "second"},
		0: {id: "a", name: "first"},
	})

	assert.Equal(t, "hmm", c.Reasoning())
	assert.Equal(t, "done", c.Text())
	calls := c.FunctionCalls()
	require.Len(t, calls, 2)
	assert.Equal(t, "first", calls[0].Name)
	assert.Equal(t, "second", calls[1].Name)
}
