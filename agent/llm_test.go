package agent

import (
	"errors"
	"testing"

	"github.com/hupe1980/agentloop/core"
	"github.com/hupe1980/agentloop/flow"
	"github.com/hupe1980/agentloop/model"
	"github.com/hupe1980/agentloop/tool"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewLLMAgent(t *testing.T) {
	m := model.NewMockModel("mock", "test")

	echo := tool.NewFunctionTool("echo", "Echoes its input.", map[string]any{
		"type": "object", "properties": map[string]any{},
	}, func(_ *core.ToolContext, args map[string]any) (any, error) {
		return args, nil
	})

	a, err := NewLLMAgent("storyteller", m, func(o *LLMAgentOptions) {
		o.Description = "Writes short stories."
		o.Instruction = NewInstructionFromText("Write in two sentences.")
		o.Tools = []tool.Tool{echo}
		o.OutputKey = "story"
	})
	require.NoError(t, err)

	assert.Equal(t, "storyteller", a.Name())
	assert.Equal(t, "Writes short stories.", a.Description())
	assert.Equal(t, "story", a.OutputKey())
	assert.Equal(t, flow.IncludeContentsDefault, a.IncludeContents())
	assert.True(t, a.HasTool("echo"))
	assert.Len(t, a.Tools(), 1)

	_, err = NewLLMAgent("user", m)
	assert.Error(t, err)
}

func TestLLMAgent_TextTurn(t *testing.T) {
	m := model.NewMockModel("mock", "test")
	m.EnqueueText("All done")

	a, err := NewLLMAgent("storyteller", m)
	require.NoError(t, err)

	h := newAgentHarness(t, a, "tell me a story")
	require.NoError(t, a.Run(h.ictx))
	events := h.finish()

	require.Len(t, events, 1)
	assert.Equal(t, "storyteller", events[0].Author)
	assert.Equal(t, "All done", events[0].Content.Text())
	assert.True(t, events[0].IsFinalResponse())
	assert.Equal(t, 1, m.CallCount())
}

func TestLLMAgent_OutputKeySavesFinalText(t *testing.T) {
	m := model.NewMockModel("mock", "test")
	m.EnqueueText("a very short story")

	a, err := NewLLMAgent("storyteller", m, func(o *LLMAgentOptions) {
		o.OutputKey = "story"
	})
	require.NoError(t, err)

	h := newAgentHarness(t, a, "tell me a story")
	require.NoError(t, a.Run(h.ictx))
	events := h.finish()

	require.Len(t, events, 1)
	assert.Equal(t, "a very short story", events[0].Actions.StateDelta["story"])
	assert.Equal(t, "a very short story", h.session.StateMap()["story"])
}

func TestLLMAgent_BeforeAgentShortCircuit(t *testing.T) {
	m := model.NewMockModel("mock", "test")
	m.EnqueueText("should never be used")

	a, err := NewLLMAgent("storyteller", m, func(o *LLMAgentOptions) {
		o.BeforeAgentCallbacks = []BeforeAgentCallback{
			func(cctx *core.CallbackContext) (*core.Content, error) {
				cctx.SetState("short_circuited", true)
				return core.NewTextContent("assistant", "canned reply"), nil
			},
		}
	})
	require.NoError(t, err)

	h := newAgentHarness(t, a, "tell me a story")
	require.NoError(t, a.Run(h.ictx))
	events := h.finish()

	require.Len(t, events, 1)
	assert.Equal(t, "storyteller", events[0].Author)
	assert.Equal(t, "canned reply", events[0].Content.Text())
	assert.Equal(t, true, events[0].Actions.StateDelta["short_circuited"])
	assert.Equal(t, 0, m.CallCount())
}

func TestLLMAgent_BeforeAgentChainStopsAtFirstOverride(t *testing.T) {
	m := model.NewMockModel("mock", "test")

	secondCalled := false
	a, err := NewLLMAgent("storyteller", m, func(o *LLMAgentOptions) {
		o.BeforeAgentCallbacks = []BeforeAgentCallback{
			func(*core.CallbackContext) (*core.Content, error) {
				return core.NewTextContent("assistant", "first wins"), nil
			},
			func(*core.CallbackContext) (*core.Content, error) {
				secondCalled = true
				return nil, nil
			},
		}
	})
	require.NoError(t, err)

	h := newAgentHarness(t, a, "hi")
	require.NoError(t, a.Run(h.ictx))
	events := h.finish()

	require.Len(t, events, 1)
	assert.Equal(t, "first wins", events[0].Content.Text())
	assert.False(t, secondCalled)
}

func TestLLMAgent_BeforeAgentCallbackError(t *testing.T) {
	m := model.NewMockModel("mock", "test")
	sentinel := errors.New("not allowed")

	a, err := NewLLMAgent("storyteller", m, func(o *LLMAgentOptions) {
		o.BeforeAgentCallbacks = []BeforeAgentCallback{
			func(*core.CallbackContext) (*core.Content, error) { return nil, sentinel },
		}
	})
	require.NoError(t, err)

	h := newAgentHarness(t, a, "hi")
	err = a.Run(h.ictx)
	events := h.finish()

	require.Error(t, err)
	assert.ErrorIs(t, err, sentinel)
	assert.Empty(t, events)
	assert.Equal(t, 0, m.CallCount())
}

func TestLLMAgent_AfterAgentAppendsEvent(t *testing.T) {
	m := model.NewMockModel("mock", "test")
	m.EnqueueText("main answer")

	a, err := NewLLMAgent("storyteller", m, func(o *LLMAgentOptions) {
		o.AfterAgentCallbacks = []AfterAgentCallback{
			func(cctx *core.CallbackContext) (*core.Content, error) {
				return core.NewTextContent("assistant", "postscript"), nil
			},
		}
	})
	require.NoError(t, err)

	h := newAgentHarness(t, a, "hi")
	require.NoError(t, a.Run(h.ictx))
	events := h.finish()

	require.Len(t, events, 2)
	assert.Equal(t, "main answer", events[0].Content.Text())
	assert.Equal(t, "postscript", events[1].Content.Text())
	assert.Equal(t, "storyteller", events[1].Author)
}

func TestLLMAgent_AfterAgentStateOnlyStillPersists(t *testing.T) {
	m := model.NewMockModel("mock", "test")
	m.EnqueueText("main answer")

	a, err := NewLLMAgent("storyteller", m, func(o *LLMAgentOptions) {
		o.AfterAgentCallbacks = []AfterAgentCallback{
			func(cctx *core.CallbackContext) (*core.Content, error) {
				cctx.SetState("reviewed", true)
				return nil, nil
			},
		}
	})
	require.NoError(t, err)

	h := newAgentHarness(t, a, "hi")
	require.NoError(t, a.Run(h.ictx))
	events := h.finish()

	require.Len(t, events, 2)
	assert.Nil(t, events[1].Content)
	assert.Equal(t, true, events[1].Actions.StateDelta["reviewed"])
	assert.Equal(t, true, h.session.StateMap()["reviewed"])
}

func TestLLMAgent_TransferTargets(t *testing.T) {
	m := model.NewMockModel("mock", "test")

	open, err := NewLLMAgent("open_child", m)
	require.NoError(t, err)
	noParent, err := NewLLMAgent("no_parent_child", m, func(o *LLMAgentOptions) {
		o.DisallowTransferToParent = true
	})
	require.NoError(t, err)
	noPeers, err := NewLLMAgent("no_peers_child", m, func(o *LLMAgentOptions) {
		o.DisallowTransferToPeers = true
	})
	require.NoError(t, err)

	root, err := NewLLMAgent("coordinator", m, func(o *LLMAgentOptions) {
		o.SubAgents = []core.Agent{open, noParent, noPeers}
	})
	require.NoError(t, err)

	names := func(agents []core.Agent) []string {
		out := make([]string, len(agents))
		for i, ag := range agents {
			out[i] = ag.Name()
		}
		return out
	}

	assert.ElementsMatch(t, []string{"open_child", "no_parent_child", "no_peers_child"}, names(root.TransferTargets()))
	assert.ElementsMatch(t, []string{"coordinator", "no_parent_child", "no_peers_child"}, names(open.TransferTargets()))
	assert.ElementsMatch(t, []string{"open_child", "no_peers_child"}, names(noParent.TransferTargets()))
	assert.ElementsMatch(t, []string{"coordinator"}, names(noPeers.TransferTargets()))
}

func TestLLMAgent_RequiresModel(t *testing.T) {
	a, err := NewLLMAgent("storyteller", nil)
	require.NoError(t, err)

	h := newAgentHarness(t, a, "hi")
	err = a.Run(h.ictx)
	h.finish()

	require.Error(t, err)
	assert.Contains(t, err.Error(), "no model configured")
}
