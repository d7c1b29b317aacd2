package agent

import (
	"errors"
	"testing"

	"github.com/hupe1980/agentloop/core"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewParallelAgent(t *testing.T) {
	c1 := newTestChildAgent(t, "worker_one", nil)
	c2 := newTestChildAgent(t, "worker_two", nil)

	a, err := NewParallelAgent("fanout", c1, c2)
	require.NoError(t, err)
	assert.Equal(t, "fanout", a.Name())
	require.Len(t, a.SubAgents(), 2)
	assert.Equal(t, "fanout", c1.Parent().Name())
}

func TestParallelAgent_BranchIsolation(t *testing.T) {
	c1 := sayAgent(t, "worker_one", "from one")
	c2 := sayAgent(t, "worker_two", "from two")
	c3 := sayAgent(t, "worker_three", "from three")

	a, err := NewParallelAgent("fanout", c1, c2, c3)
	require.NoError(t, err)

	h := newAgentHarness(t, a, "spread out")
	require.NoError(t, a.Run(h.ictx))
	events := h.finish()

	// Every child ran on its own dot-joined branch below the coordinator.
	for _, child := range []*testChildAgent{c1, c2, c3} {
		require.NotNil(t, child.receivedCtx)
		assert.Equal(t, "fanout."+child.Name(), child.receivedCtx.Branch)
	}
	assert.Equal(t, "", h.ictx.Branch)

	// All events arrived (in completion order) and carry their branch.
	require.Len(t, events, 3)
	seen := map[string]string{}
	for _, ev := range events {
		require.NotNil(t, ev.Branch)
		seen[ev.Author] = *ev.Branch
	}
	assert.Equal(t, map[string]string{
		"worker_one":   "fanout.worker_one",
		"worker_two":   "fanout.worker_two",
		"worker_three": "fanout.worker_three",
	}, seen)
}

func TestParallelAgent_NestedBranchPaths(t *testing.T) {
	inner := sayAgent(t, "leaf_worker", "deep")
	innerFan, err := NewParallelAgent("inner_fan", inner)
	require.NoError(t, err)

	outerFan, err := NewParallelAgent("outer_fan", innerFan)
	require.NoError(t, err)

	h := newAgentHarness(t, outerFan, "go deep")
	require.NoError(t, outerFan.Run(h.ictx))
	events := h.finish()

	require.NotNil(t, inner.receivedCtx)
	assert.Equal(t, "outer_fan.inner_fan.inner_fan.leaf_worker", inner.receivedCtx.Branch)
	require.Len(t, events, 1)
}

func TestParallelAgent_SiblingFailureDoesNotCancel(t *testing.T) {
	sentinel := errors.New("boom")

	c1 := sayAgent(t, "worker_one", "fine")
	c2 := newTestChildAgent(t, "worker_two", func(*core.InvocationContext) error { return sentinel })
	c3 := sayAgent(t, "worker_three", "also fine")

	a, err := NewParallelAgent("fanout", c1, c2, c3)
	require.NoError(t, err)

	h := newAgentHarness(t, a, "go")
	err = a.Run(h.ictx)
	events := h.finish()

	require.Error(t, err)
	assert.ErrorIs(t, err, sentinel)
	assert.Contains(t, err.Error(), "agent worker_two")

	// The healthy siblings completed and their events were forwarded.
	assert.Equal(t, 1, c1.runCount)
	assert.Equal(t, 1, c3.runCount)
	assert.Len(t, events, 2)
}

func TestParallelAgent_StateWritesStayInBranchEvents(t *testing.T) {
	c1 := newTestChildAgent(t, "worker_one", func(ictx *core.InvocationContext) error {
		ictx.SetState("one_result", "a")
		return ictx.Dispatch(core.NewMessageEvent(ictx.InvocationID, "worker_one", "done"))
	})
	c2 := newTestChildAgent(t, "worker_two", func(ictx *core.InvocationContext) error {
		ictx.SetState("two_result", "b")
		return ictx.Dispatch(core.NewMessageEvent(ictx.InvocationID, "worker_two", "done"))
	})

	a, err := NewParallelAgent("fanout", c1, c2)
	require.NoError(t, err)

	h := newAgentHarness(t, a, "go")
	require.NoError(t, a.Run(h.ictx))
	events := h.finish()

	// Each event carries exactly its own branch's delta; the merged session
	// state ends up with both.
	for _, ev := range events {
		switch ev.Author {
		case "worker_one":
			assert.Equal(t, map[string]any{"one_result": "a"}, ev.Actions.StateDelta)
		case "worker_two":
			assert.Equal(t, map[string]any{"two_result": "b"}, ev.Actions.StateDelta)
		}
	}
	state := h.session.StateMap()
	assert.Equal(t, "a", state["one_result"])
	assert.Equal(t, "b", state["two_result"])
}

func TestParallelAgent_NoChildren(t *testing.T) {
	a, err := NewParallelAgent("fanout")
	require.NoError(t, err)

	h := newAgentHarness(t, a, "go")
	require.NoError(t, a.Run(h.ictx))
	assert.Empty(t, h.finish())
}
