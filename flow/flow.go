package flow

import (
	"github.com/hupe1980/agentloop/core"
	"github.com/hupe1980/agentloop/model"
	"github.com/hupe1980/agentloop/tool"
)

// IncludeContents modes controlling how much of the session history an agent
// sees on each model turn.
const (
	// IncludeContentsDefault sends the branch-visible conversation history.
	IncludeContentsDefault = "default"

	// IncludeContentsNone sends only the triggering user message. Agents
	// performing stateless transformations use it to keep prompts minimal.
	IncludeContentsNone = "none"
)

// RequestCredentialName is the function-call name of the credential
// handshake the flow emits when a tool requests authentication.
const RequestCredentialName = "request_credential"

// BeforeModelCallback runs before each model call. Returning a non-nil
// response skips the model and uses the returned response in its place;
// returning an error aborts the turn.
type BeforeModelCallback func(cctx *core.CallbackContext, req *model.Request) (*model.Response, error)

// AfterModelCallback runs after each model call with the final (non-partial)
// response. The first callback returning a non-nil response replaces it;
// returning an error aborts the turn.
type AfterModelCallback func(cctx *core.CallbackContext, resp *model.Response) (*model.Response, error)

// BeforeToolCallback runs before a tool executes. Returning a non-nil map
// skips the tool and uses the map as its result; returning an error turns
// the call into an error function response.
type BeforeToolCallback func(tctx *core.ToolContext, t tool.Tool, args map[string]any) (map[string]any, error)

// AfterToolCallback runs after a tool executed, with its normalized result.
// The first callback returning a non-nil map replaces the result; returning
// an error turns the call into an error function response.
type AfterToolCallback func(tctx *core.ToolContext, t tool.Tool, args map[string]any, result map[string]any) (map[string]any, error)

// FlowAgent is the view a Flow needs of the LLM-backed agent it drives.
type FlowAgent interface {
	core.Agent

	// Model returns the backing language model.
	Model() model.Model

	// Instruction resolves the agent's (possibly dynamic) instruction text.
	// Template rendering against session state happens in the flow.
	Instruction(ictx *core.InvocationContext) (string, error)

	// Tools returns the agent's callable tools keyed by name.
	Tools() map[string]tool.Tool

	// IncludeContents selects the history mode (IncludeContents* constants).
	IncludeContents() string

	// OutputKey names the state key receiving the agent's final text, or "".
	OutputKey() string

	// TransferTargets lists the agents control may be handed to.
	TransferTargets() []core.Agent

	BeforeModelCallbacks() []BeforeModelCallback
	AfterModelCallbacks() []AfterModelCallback
	BeforeToolCallbacks() []BeforeToolCallback
	AfterToolCallbacks() []AfterToolCallback
}

// RequestProcessor mutates the outgoing model request during assembly.
// Processors run in registration order; any error aborts the turn.
type RequestProcessor interface {
	Name() string
	ProcessRequest(ictx *core.InvocationContext, agent FlowAgent, req *model.Request) error
}

// Flow drives the model-interaction loop for one agent activation. Run
// returns once the agent produced its final response, a transfer target took
// over the invocation, or the turn failed.
type Flow interface {
	Run(ictx *core.InvocationContext, agent FlowAgent) error
}

// Select returns the flow matching the agent's capabilities: the auto flow
// when transfer targets exist, the single flow otherwise.
func Select(agent FlowAgent) Flow {
	if len(agent.TransferTargets()) > 0 {
		return NewAutoFlow()
	}
	return NewSingleFlow()
}
