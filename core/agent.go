package core

// Agent is the interface every node in an agent tree implements.
//
// Agents are the primary processing units of the runtime. They receive input
// through an InvocationContext, process it, and emit events to communicate
// results and state changes back to the runner. The sub-agent methods support
// both single-agent setups and hierarchical multi-agent workflows: a parent
// owns its immediate children only, children are never transitively
// flattened, and every node has at most one parent.
//
// Implementations must:
//   - Respect context cancellation for graceful shutdown
//   - Emit events through the provided InvocationContext
//   - Honor the emit/resume handshake for non-partial events
type Agent interface {
	// Name returns the agent name, unique within its tree.
	Name() string

	// Description summarizes the agent's capability; models see it when
	// selecting transfer targets.
	Description() string

	// Run executes the agent until it has no more events to produce.
	Run(ictx *InvocationContext) error

	// SetSubAgents replaces the agent's immediate children, wiring their
	// parent pointers. It fails when a child already has a different parent.
	SetSubAgents(children ...Agent) error

	// SubAgents returns the immediate children in declaration order.
	SubAgents() []Agent

	// Parent returns the owning agent, or nil for a root.
	Parent() Agent

	// SetParent wires the owning agent. Called by SetSubAgents.
	SetParent(parent Agent)

	// FindAgent searches the subtree rooted at this agent (including itself)
	// for a node by name, depth-first.
	FindAgent(name string) Agent
}

// RootAgent climbs the parent chain and returns the tree root. The root of a
// parentless agent is the agent itself.
func RootAgent(a Agent) Agent {
	for a.Parent() != nil {
		a = a.Parent()
	}
	return a
}
