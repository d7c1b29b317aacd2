package agent

import (
	"github.com/hupe1980/agentloop/core"
)

// BeforeAgentCallback runs before an agent executes. Returning non-nil
// Content short-circuits the run: the content is emitted as the agent's
// response and the model is never consulted. Returning an error aborts the
// invocation. Callbacks run in registration order; the first override wins.
type BeforeAgentCallback func(cctx *core.CallbackContext) (*core.Content, error)

// AfterAgentCallback runs after an agent finished its turn. Returning non-nil
// Content appends one more event under the agent's name. Returning an error
// aborts the invocation.
type AfterAgentCallback func(cctx *core.CallbackContext) (*core.Content, error)

// runCallbackChain executes agent-boundary callbacks in order, stopping at
// the first non-nil content. All callbacks share one CallbackContext so state
// written by an earlier callback is visible to later ones.
func runCallbackChain(cctx *core.CallbackContext, chain []func(*core.CallbackContext) (*core.Content, error)) (*core.Content, error) {
	for _, cb := range chain {
		content, err := cb(cctx)
		if err != nil {
			return nil, err
		}
		if content != nil {
			return content, nil
		}
	}
	return nil, nil
}

// emitCallbackEvent publishes the effects of an agent-boundary callback
// chain: the override content (if any) plus the actions the callbacks
// accumulated. Nothing is emitted when the chain produced neither.
func emitCallbackEvent(ictx *core.InvocationContext, author string, content *core.Content, actions *core.EventActions) error {
	hasActions := actions != nil &&
		(len(actions.StateDelta) > 0 || len(actions.ArtifactDelta) > 0 ||
			actions.TransferToAgent != nil || actions.Escalate != nil)
	if content == nil && !hasActions {
		return nil
	}

	ev := core.NewEvent(ictx.InvocationID, author)
	ev.Content = content
	if actions != nil {
		ev.Actions.Merge(*actions)
	}
	return ictx.Dispatch(ev)
}
