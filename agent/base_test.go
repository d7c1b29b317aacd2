package agent

import (
	"testing"

	"github.com/hupe1980/agentloop/core"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewBaseAgent_ValidatesName(t *testing.T) {
	for _, name := range []string{"researcher", "_private", "Agent7", "snake_case"} {
		_, err := NewBaseAgent(name)
		assert.NoError(t, err, "name %q should be accepted", name)
	}

	for _, name := range []string{"", "user", "7days", "has space", "has-dash", "dotted.name"} {
		_, err := NewBaseAgent(name)
		assert.Error(t, err, "name %q should be rejected", name)
	}
}

func TestBaseAgent_SetSubAgentsWiresParents(t *testing.T) {
	root := newTestChildAgent(t, "root", nil)
	c1 := newTestChildAgent(t, "child_one", nil)
	c2 := newTestChildAgent(t, "child_two", nil)

	require.NoError(t, root.SetSubAgents(c1, c2))

	subs := root.SubAgents()
	require.Len(t, subs, 2)
	assert.Same(t, c1, subs[0])
	assert.Same(t, c2, subs[1])

	require.NotNil(t, c1.Parent())
	assert.Equal(t, "root", c1.Parent().Name())
	require.NotNil(t, c2.Parent())
	assert.Equal(t, "root", c2.Parent().Name())
}

func TestBaseAgent_SetSubAgentsRejectsSecondParent(t *testing.T) {
	a := newTestChildAgent(t, "first_owner", nil)
	b := newTestChildAgent(t, "second_owner", nil)
	child := newTestChildAgent(t, "contested", nil)

	require.NoError(t, a.SetSubAgents(child))

	err := b.SetSubAgents(child)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "already has parent")
	assert.Equal(t, "first_owner", child.Parent().Name())
}

func TestBaseAgent_ReassignDetachesOldChildren(t *testing.T) {
	root := newTestChildAgent(t, "root", nil)
	c1 := newTestChildAgent(t, "child_one", nil)
	c2 := newTestChildAgent(t, "child_two", nil)
	c3 := newTestChildAgent(t, "child_three", nil)

	require.NoError(t, root.SetSubAgents(c1, c2))
	require.NoError(t, root.SetSubAgents(c3))

	assert.Nil(t, c1.Parent())
	assert.Nil(t, c2.Parent())
	assert.Equal(t, "root", c3.Parent().Name())

	assert.Nil(t, root.FindAgent("child_one"))
	assert.NotNil(t, root.FindAgent("child_three"))

	// A detached child can be adopted elsewhere.
	other := newTestChildAgent(t, "other_root", nil)
	require.NoError(t, other.SetSubAgents(c1))
	assert.Equal(t, "other_root", c1.Parent().Name())
}

func TestBaseAgent_FindAgent(t *testing.T) {
	leaf := newTestChildAgent(t, "leaf", nil)
	mid := newTestChildAgent(t, "mid", nil)
	sibling := newTestChildAgent(t, "sibling", nil)
	root := newTestChildAgent(t, "root", nil)

	require.NoError(t, mid.SetSubAgents(leaf))
	require.NoError(t, root.SetSubAgents(mid, sibling))

	// Lookups return the concrete agent, including for self.
	assert.Same(t, root, root.FindAgent("root"))
	assert.Same(t, leaf, root.FindAgent("leaf"))
	assert.Same(t, sibling, root.FindAgent("sibling"))
	assert.Nil(t, root.FindAgent("missing"))

	// Search scope is the subtree, not the whole tree.
	assert.Nil(t, mid.FindAgent("sibling"))
}

func TestBaseAgent_Root(t *testing.T) {
	leaf := newTestChildAgent(t, "leaf", nil)
	mid := newTestChildAgent(t, "mid", nil)
	root := newTestChildAgent(t, "root", nil)

	require.NoError(t, mid.SetSubAgents(leaf))
	require.NoError(t, root.SetSubAgents(mid))

	assert.Same(t, root, leaf.Root())
	assert.Same(t, root, root.Root())
	assert.Same(t, root, core.RootAgent(leaf))
}

func TestCustomAgent_RunsFunction(t *testing.T) {
	ran := false
	a, err := NewCustomAgent("probe", func(ictx *core.InvocationContext) error {
		ran = true
		assert.Equal(t, "probe", ictx.Agent.Name())
		return ictx.Dispatch(core.NewMessageEvent(ictx.InvocationID, "probe", "done"))
	})
	require.NoError(t, err)

	h := newAgentHarness(t, a, "go")
	require.NoError(t, a.Run(h.ictx))

	events := h.finish()
	assert.True(t, ran)
	require.Len(t, events, 1)
	assert.Equal(t, "probe", events[0].Author)
}

func TestCustomAgent_RequiresRunFunc(t *testing.T) {
	_, err := NewCustomAgent("probe", nil)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "requires a run function")
}
