package agent

import (
	"fmt"

	"github.com/hupe1980/agentloop/core"
)

// RunFunc is the execution body of a CustomAgent.
type RunFunc func(ictx *core.InvocationContext) error

// CustomAgentOptions configures a CustomAgent instance.
type CustomAgentOptions struct {
	// Description summarizes the agent's capability for transfer catalogs.
	Description string

	// SubAgents become the agent's children.
	SubAgents []core.Agent
}

// CustomAgent wraps an arbitrary function under the agent contract. It is
// the escape hatch for logic that fits neither the model-backed agent nor
// the coordination patterns; the composition layer treats it exactly like
// any other agent.
type CustomAgent struct {
	BaseAgent
	run RunFunc
}

// NewCustomAgent creates an agent executing the given function.
func NewCustomAgent(name string, run RunFunc, optFns ...func(o *CustomAgentOptions)) (*CustomAgent, error) {
	if run == nil {
		return nil, fmt.Errorf("custom agent %s requires a run function", name)
	}

	opts := CustomAgentOptions{}
	for _, fn := range optFns {
		fn(&opts)
	}

	base, err := NewBaseAgent(name)
	if err != nil {
		return nil, err
	}

	a := &CustomAgent{BaseAgent: base, run: run}
	a.attach(a)
	a.setDescription(opts.Description)

	if len(opts.SubAgents) > 0 {
		if err := a.SetSubAgents(opts.SubAgents...); err != nil {
			return nil, err
		}
	}
	return a, nil
}

// Run invokes the wrapped function with the agent installed on the context.
func (a *CustomAgent) Run(ictx *core.InvocationContext) error {
	return a.run(ictx.WithAgent(a))
}
