package agent

import (
	"fmt"

	"github.com/hupe1980/agentloop/core"
	"github.com/hupe1980/agentloop/flow"
	"github.com/hupe1980/agentloop/model"
	"github.com/hupe1980/agentloop/tool"
)

// LLMAgentOptions configures an LLMAgent instance. Use functional options
// with NewLLMAgent to override the defaults.
type LLMAgentOptions struct {
	// Description summarizes the agent's capability. Models see it when
	// choosing a transfer target, so keep it accurate.
	Description string

	// Instruction is the agent's system instruction. Static text may contain
	// {{.key}} placeholders rendered against session state per turn.
	Instruction Instruction

	// GlobalInstruction is prepended to the instructions of every agent in
	// the tree. Only honored on the root agent.
	GlobalInstruction Instruction

	// Tools the model may call during a turn.
	Tools []tool.Tool

	// OutputKey names the state key that receives the agent's final response
	// text. Empty disables the save.
	OutputKey string

	// IncludeContents selects how much history each model turn sees
	// (flow.IncludeContents* constants).
	IncludeContents string

	// DisallowTransferToParent removes the parent from the transfer targets.
	DisallowTransferToParent bool

	// DisallowTransferToPeers removes sibling agents from the transfer
	// targets.
	DisallowTransferToPeers bool

	// SubAgents become the agent's children; they are automatically offered
	// as transfer targets.
	SubAgents []core.Agent

	BeforeAgentCallbacks []BeforeAgentCallback
	AfterAgentCallbacks  []AfterAgentCallback
	BeforeModelCallbacks []flow.BeforeModelCallback
	AfterModelCallbacks  []flow.AfterModelCallback
	BeforeToolCallbacks  []flow.BeforeToolCallback
	AfterToolCallbacks   []flow.AfterToolCallback
}

// LLMAgent is the model-backed conversational agent. Each activation runs
// reason→act turns through the flow layer: build a request from instruction
// and history, call the model, execute requested tools, loop until the model
// produces a final response or hands control to another agent.
//
// LLMAgent embeds BaseAgent for tree mechanics and implements flow.FlowAgent.
type LLMAgent struct {
	BaseAgent
	llm               model.Model
	instruction       Instruction
	globalInstruction Instruction
	tools             map[string]tool.Tool
	outputKey         string
	includeContents   string

	disallowTransferToParent bool
	disallowTransferToPeers  bool

	beforeAgent []BeforeAgentCallback
	afterAgent  []AfterAgentCallback
	beforeModel []flow.BeforeModelCallback
	afterModel  []flow.AfterModelCallback
	beforeTool  []flow.BeforeToolCallback
	afterTool   []flow.AfterToolCallback
}

// NewLLMAgent constructs a model-backed agent. The name must be identifier
// shaped; it becomes the author of every event the agent emits.
func NewLLMAgent(name string, llm model.Model, optFns ...func(o *LLMAgentOptions)) (*LLMAgent, error) {
	opts := LLMAgentOptions{
		IncludeContents: flow.IncludeContentsDefault,
	}
	for _, fn := range optFns {
		fn(&opts)
	}

	base, err := NewBaseAgent(name)
	if err != nil {
		return nil, err
	}

	a := &LLMAgent{
		BaseAgent:                base,
		llm:                      llm,
		instruction:              opts.Instruction,
		globalInstruction:        opts.GlobalInstruction,
		tools:                    make(map[string]tool.Tool, len(opts.Tools)),
		outputKey:                opts.OutputKey,
		includeContents:          opts.IncludeContents,
		disallowTransferToParent: opts.DisallowTransferToParent,
		disallowTransferToPeers:  opts.DisallowTransferToPeers,
		beforeAgent:              opts.BeforeAgentCallbacks,
		afterAgent:               opts.AfterAgentCallbacks,
		beforeModel:              opts.BeforeModelCallbacks,
		afterModel:               opts.AfterModelCallbacks,
		beforeTool:               opts.BeforeToolCallbacks,
		afterTool:                opts.AfterToolCallbacks,
	}
	a.attach(a)
	a.setDescription(opts.Description)

	for _, t := range opts.Tools {
		a.tools[t.Name()] = t
	}

	if len(opts.SubAgents) > 0 {
		if err := a.SetSubAgents(opts.SubAgents...); err != nil {
			return nil, err
		}
	}

	return a, nil
}

// RegisterTool adds a tool to the agent's capability set, replacing any tool
// with the same name.
func (a *LLMAgent) RegisterTool(t tool.Tool) { a.tools[t.Name()] = t }

// RegisterTools adds multiple tools to the agent's capability set.
func (a *LLMAgent) RegisterTools(tools ...tool.Tool) {
	for _, t := range tools {
		a.RegisterTool(t)
	}
}

// HasTool reports whether a tool with the given name is registered.
func (a *LLMAgent) HasTool(name string) bool {
	_, ok := a.tools[name]
	return ok
}

// Model returns the backing language model.
func (a *LLMAgent) Model() model.Model { return a.llm }

// Instruction resolves the agent's instruction text for this invocation.
func (a *LLMAgent) Instruction(ictx *core.InvocationContext) (string, error) {
	return a.instruction.Resolve(ictx)
}

// GlobalInstruction resolves the tree-wide instruction preamble. The flow
// only consults it on the root agent.
func (a *LLMAgent) GlobalInstruction(ictx *core.InvocationContext) (string, error) {
	return a.globalInstruction.Resolve(ictx)
}

// Tools returns the agent's callable tools keyed by name.
func (a *LLMAgent) Tools() map[string]tool.Tool {
	tools := make(map[string]tool.Tool, len(a.tools))
	for name, t := range a.tools {
		tools[name] = t
	}
	return tools
}

// IncludeContents returns the history mode for model turns.
func (a *LLMAgent) IncludeContents() string { return a.includeContents }

// OutputKey returns the state key receiving the agent's final text, or "".
func (a *LLMAgent) OutputKey() string { return a.outputKey }

// TransferTargets lists the agents this one may hand control to: sub-agents
// always, plus the parent and peers unless disallowed.
func (a *LLMAgent) TransferTargets() []core.Agent {
	targets := a.SubAgents()

	parent := a.Parent()
	if parent == nil {
		return targets
	}
	if !a.disallowTransferToParent {
		targets = append(targets, parent)
	}
	if !a.disallowTransferToPeers {
		for _, peer := range parent.SubAgents() {
			if peer.Name() != a.Name() {
				targets = append(targets, peer)
			}
		}
	}
	return targets
}

// DisallowsTransferToParent reports whether upward transfer is blocked. The
// runner consults it when deciding if a past author may resume a conversation.
func (a *LLMAgent) DisallowsTransferToParent() bool { return a.disallowTransferToParent }

// DisallowsTransferToPeers reports whether sibling transfer is blocked.
func (a *LLMAgent) DisallowsTransferToPeers() bool { return a.disallowTransferToPeers }

// BeforeAgentCallbacks returns the agent-boundary pre-run chain.
func (a *LLMAgent) BeforeAgentCallbacks() []BeforeAgentCallback { return a.beforeAgent }

// AfterAgentCallbacks returns the agent-boundary post-run chain.
func (a *LLMAgent) AfterAgentCallbacks() []AfterAgentCallback { return a.afterAgent }

// BeforeModelCallbacks returns the model-boundary pre-call chain.
func (a *LLMAgent) BeforeModelCallbacks() []flow.BeforeModelCallback { return a.beforeModel }

// AfterModelCallbacks returns the model-boundary post-call chain.
func (a *LLMAgent) AfterModelCallbacks() []flow.AfterModelCallback { return a.afterModel }

// BeforeToolCallbacks returns the tool-boundary pre-call chain.
func (a *LLMAgent) BeforeToolCallbacks() []flow.BeforeToolCallback { return a.beforeTool }

// AfterToolCallbacks returns the tool-boundary post-call chain.
func (a *LLMAgent) AfterToolCallbacks() []flow.AfterToolCallback { return a.afterTool }

// Run executes the agent: before-agent callbacks (which may short-circuit
// the whole run), then the selected flow, then after-agent callbacks.
func (a *LLMAgent) Run(ictx *core.InvocationContext) error {
	if a.llm == nil {
		return fmt.Errorf("agent %s has no model configured", a.Name())
	}
	ictx = ictx.WithAgent(a)

	handled, err := a.runBeforeAgentCallbacks(ictx)
	if err != nil {
		return err
	}
	if handled {
		return nil
	}

	if err := flow.Select(a).Run(ictx, a); err != nil {
		return err
	}

	return a.runAfterAgentCallbacks(ictx)
}

// runBeforeAgentCallbacks executes the pre-run chain. It reports handled=true
// when a callback short-circuited the run with override content or ended the
// invocation.
func (a *LLMAgent) runBeforeAgentCallbacks(ictx *core.InvocationContext) (bool, error) {
	if len(a.beforeAgent) == 0 {
		return false, nil
	}

	cctx := core.NewCallbackContext(ictx)
	chain := make([]func(*core.CallbackContext) (*core.Content, error), len(a.beforeAgent))
	for i, cb := range a.beforeAgent {
		chain[i] = cb
	}

	content, err := runCallbackChain(cctx, chain)
	if err != nil {
		return false, fmt.Errorf("before-agent callback for %s: %w", a.Name(), err)
	}
	if content == nil && !ictx.EndInvocation() {
		return false, nil
	}
	if err := emitCallbackEvent(ictx, a.Name(), content, cctx.Actions()); err != nil {
		return false, err
	}
	return true, nil
}

// runAfterAgentCallbacks executes the post-run chain and publishes its
// effects, if any, as one trailing event.
func (a *LLMAgent) runAfterAgentCallbacks(ictx *core.InvocationContext) error {
	if len(a.afterAgent) == 0 {
		return nil
	}

	cctx := core.NewCallbackContext(ictx)
	chain := make([]func(*core.CallbackContext) (*core.Content, error), len(a.afterAgent))
	for i, cb := range a.afterAgent {
		chain[i] = cb
	}

	content, err := runCallbackChain(cctx, chain)
	if err != nil {
		return fmt.Errorf("after-agent callback for %s: %w", a.Name(), err)
	}
	return emitCallbackEvent(ictx, a.Name(), content, cctx.Actions())
}
