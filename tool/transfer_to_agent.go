package tool

import (
	"fmt"
	"strings"

	"github.com/hupe1980/agentloop/core"
)

// TransferToAgentName is the reserved tool name the flow's transfer handler
// listens for.
const TransferToAgentName = "transfer_to_agent"

// transferToAgentTool requests orchestration transfer to a named agent. The
// flow injects it automatically when an agent has transfer targets; the
// resulting TransferToAgent action redirects the remainder of the turn.
type transferToAgentTool struct {
	targets []string
}

// NewTransferToAgentTool constructs the transfer tool. When target names are
// given they are advertised as the set of valid agents in the parameter
// schema.
func NewTransferToAgentTool(targets ...string) Tool {
	return &transferToAgentTool{targets: targets}
}

func (t *transferToAgentTool) Name() string { return TransferToAgentName }

func (t *transferToAgentTool) Description() string {
	desc := "Transfer control of the conversation to another agent by name. Use when another agent is better suited to handle the request."
	if len(t.targets) > 0 {
		desc += " Available agents: " + strings.Join(t.targets, ", ") + "."
	}
	return desc
}

func (t *transferToAgentTool) Parameters() map[string]any {
	agentName := map[string]any{"type": "string", "description": "Name of the agent to transfer to"}
	if len(t.targets) > 0 {
		enum := make([]any, 0, len(t.targets))
		for _, name := range t.targets {
			enum = append(enum, name)
		}
		agentName["enum"] = enum
	}
	return map[string]any{
		"type": "object",
		"properties": map[string]any{
			"agent_name": agentName,
		},
		"required": []string{"agent_name"},
	}
}

func (t *transferToAgentTool) IsLongRunning() bool { return false }

func (t *transferToAgentTool) Call(tc *core.ToolContext, args map[string]any) (any, error) {
	raw, ok := args["agent_name"]
	if !ok {
		return nil, fmt.Errorf("missing required field 'agent_name'")
	}
	agentName, ok := raw.(string)
	if !ok || agentName == "" {
		return nil, fmt.Errorf("field 'agent_name' must be a non-empty string")
	}
	// Resolve against the agent tree before committing the transfer. A bad
	// name comes back to the model as a normal tool error so it can pick a
	// valid agent or answer directly.
	if ictx := tc.InvocationContext(); ictx != nil && ictx.Agent != nil {
		if core.RootAgent(ictx.Agent).FindAgent(agentName) == nil {
			return nil, fmt.Errorf("agent %q not found", agentName)
		}
	}
	tc.Transfer(agentName)
	return map[string]any{"transferred": true, "agent_name": agentName}, nil
}
