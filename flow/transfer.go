package flow

import (
	"fmt"
	"strings"

	"github.com/hupe1980/agentloop/core"
	"github.com/hupe1980/agentloop/model"
	"github.com/hupe1980/agentloop/tool"
)

// transferProcessor advertises the reachable agents and the transfer rules.
// The transfer_to_agent tool itself joins the registry in toolRegistry.
type transferProcessor struct{}

func (p *transferProcessor) Name() string { return "transfer" }

func (p *transferProcessor) ProcessRequest(ictx *core.InvocationContext, agent FlowAgent, req *model.Request) error {
	targets := agent.TransferTargets()
	if len(targets) == 0 {
		return nil
	}

	var b strings.Builder
	b.WriteString("You have a list of other agents to transfer the conversation to:\n")
	for _, t := range targets {
		fmt.Fprintf(&b, "\nAgent name: %s\nAgent description: %s\n", t.Name(), t.Description())
	}
	b.WriteString("\nIf you are the best suited to answer according to your description, answer directly.\n")
	fmt.Fprintf(&b, "If another agent is better suited according to its description, call `%s` to hand the conversation to that agent.", tool.TransferToAgentName)
	appendInstructions(req, b.String())
	return nil
}

// runTransfer locates the target anywhere in the agent tree and hands the
// rest of the invocation to it. The target emits under its own name.
func runTransfer(ictx *core.InvocationContext, name string) error {
	if ictx.Agent == nil {
		return fmt.Errorf("transfer to %q: no agent tree", name)
	}
	target := core.RootAgent(ictx.Agent).FindAgent(name)
	if target == nil {
		return fmt.Errorf("transfer to %q: agent not found", name)
	}
	ictx.Logger.Info("transferring control",
		"from", ictx.AgentName(),
		"to", name,
	)
	return target.Run(ictx.WithAgent(target))
}
