package agent

import (
	"fmt"
	"regexp"
	"sync"

	"github.com/hupe1980/agentloop/core"
)

// agentNamePattern is the identifier shape every agent name must match. Names
// become event authors and transfer targets, so they have to survive model
// round-trips unmangled.
var agentNamePattern = regexp.MustCompile(`^[A-Za-z_][A-Za-z0-9_]*$`)

// validateAgentName rejects names that are not identifier-shaped or that
// collide with the reserved user author.
func validateAgentName(name string) error {
	if name == core.UserAuthor {
		return fmt.Errorf("agent name %q is reserved for the end user", name)
	}
	if !agentNamePattern.MatchString(name) {
		return fmt.Errorf("invalid agent name %q: must start with a letter or underscore and contain only letters, digits and underscores", name)
	}
	return nil
}

// BaseAgent bundles the tree mechanics shared by every agent: identity,
// single-parent hierarchy management and depth-first lookup. Embed it in a
// concrete agent and supply Run to satisfy core.Agent. The provided
// constructors wire the embedding agent back into the base so hierarchy
// lookups return the concrete agent rather than the embedded value.
//
// All exported methods are safe for concurrent use.
type BaseAgent struct {
	name        string
	description string

	mu        sync.Mutex
	self      core.Agent
	parent    core.Agent
	subAgents []core.Agent
}

// NewBaseAgent constructs a BaseAgent after validating the name. The
// description defaults to "Agent <name>" until a concrete constructor
// overrides it.
func NewBaseAgent(name string) (BaseAgent, error) {
	if err := validateAgentName(name); err != nil {
		return BaseAgent{}, err
	}
	return BaseAgent{
		name:        name,
		description: fmt.Sprintf("Agent %s", name),
	}, nil
}

// attach records the concrete agent embedding this base. Constructors call it
// immediately after allocation; SetSubAgents and FindAgent need it to hand
// out the full agent instead of the embedded value.
func (b *BaseAgent) attach(self core.Agent) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.self = self
}

// Name returns the agent name, unique within its tree.
func (b *BaseAgent) Name() string { return b.name }

// Description returns the agent's capability summary.
func (b *BaseAgent) Description() string { return b.description }

// setDescription overrides the default description. Used by constructors.
func (b *BaseAgent) setDescription(desc string) {
	if desc != "" {
		b.description = desc
	}
}

// SetSubAgents replaces the immediate children of this agent. Previous
// children are detached first; each new child must be parentless (or already
// owned by this agent), enforcing the single-parent rule across the tree.
func (b *BaseAgent) SetSubAgents(children ...core.Agent) error {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.self == nil {
		return fmt.Errorf("agent %q is not attached to a concrete implementation", b.name)
	}

	for _, child := range children {
		if p := child.Parent(); p != nil && p.Name() != b.name {
			return fmt.Errorf("agent %q already has parent %q", child.Name(), p.Name())
		}
	}

	// Detach the previous children so they can be adopted elsewhere.
	for _, child := range b.subAgents {
		child.SetParent(nil)
	}
	b.subAgents = nil

	for _, child := range children {
		child.SetParent(b.self)
		b.subAgents = append(b.subAgents, child)
	}

	return nil
}

// SetParent wires the owning agent. Called by the parent's SetSubAgents.
func (b *BaseAgent) SetParent(parent core.Agent) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.parent = parent
}

// Parent returns the owning agent, or nil for a root.
func (b *BaseAgent) Parent() core.Agent {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.parent
}

// SubAgents returns a copy of the immediate children in declaration order.
func (b *BaseAgent) SubAgents() []core.Agent {
	b.mu.Lock()
	defer b.mu.Unlock()
	result := make([]core.Agent, len(b.subAgents))
	copy(result, b.subAgents)
	return result
}

// FindAgent searches the subtree rooted at this agent, including itself,
// depth-first. Returns nil when no agent carries the name.
func (b *BaseAgent) FindAgent(name string) core.Agent {
	b.mu.Lock()
	self := b.self
	b.mu.Unlock()

	if b.name == name {
		return self
	}
	for _, child := range b.SubAgents() {
		if found := child.FindAgent(name); found != nil {
			return found
		}
	}
	return nil
}

// Root returns the root of the tree this agent belongs to.
func (b *BaseAgent) Root() core.Agent {
	b.mu.Lock()
	self := b.self
	b.mu.Unlock()
	if self == nil {
		return nil
	}
	return core.RootAgent(self)
}
