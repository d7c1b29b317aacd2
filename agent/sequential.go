package agent

import (
	"fmt"

	"github.com/hupe1980/agentloop/core"
)

// SequentialAgent runs its children one after another on the shared
// invocation context. Each child's events reach the runner, and thereby the
// session, before the next child starts, so later children see everything
// earlier ones produced. The first child error stops the sequence.
type SequentialAgent struct {
	BaseAgent
}

// NewSequentialAgent creates a sequential coordinator over the given
// children, in execution order.
func NewSequentialAgent(name string, children ...core.Agent) (*SequentialAgent, error) {
	base, err := NewBaseAgent(name)
	if err != nil {
		return nil, err
	}

	a := &SequentialAgent{BaseAgent: base}
	a.attach(a)

	if err := a.SetSubAgents(children...); err != nil {
		return nil, err
	}
	return a, nil
}

// Run executes the children in declaration order, passing each the shared
// context so state accumulates across the sequence.
func (s *SequentialAgent) Run(ictx *core.InvocationContext) error {
	for _, child := range s.SubAgents() {
		select {
		case <-ictx.Done():
			return ictx.Err()
		default:
		}

		if err := child.Run(ictx.WithAgent(child)); err != nil {
			return fmt.Errorf("sequential execution failed at agent %s: %w", child.Name(), err)
		}
		if ictx.EndInvocation() {
			return nil
		}
	}
	return nil
}
