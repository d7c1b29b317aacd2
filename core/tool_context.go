package core

// ToolContext is the execution scope handed to a tool's Call. It extends
// CallbackContext with the originating function call id and the
// orchestration verbs a tool may trigger: transferring control, escalating
// out of a loop, skipping summarization of its result and requesting
// credentials for human-in-the-loop authorization.
//
// Actions accumulated here are merged by the flow into the function response
// event that owns the tool's effects, preserving two-phase state visibility.
type ToolContext struct {
	*CallbackContext
	functionCallID string
}

// NewToolContext builds a tool scope for one function call. The actions
// record is shared with the enclosing callback context when non-nil.
func NewToolContext(ictx *InvocationContext, functionCallID string, actions *EventActions) *ToolContext {
	return &ToolContext{
		CallbackContext: NewCallbackContextWithActions(ictx, actions),
		functionCallID:  functionCallID,
	}
}

// FunctionCallID returns the id of the function call being executed.
func (tc *ToolContext) FunctionCallID() string { return tc.functionCallID }

// Transfer routes the remainder of the turn to the named agent.
func (tc *ToolContext) Transfer(agentName string) {
	tc.actions.TransferToAgent = &agentName
}

// Escalate signals the enclosing loop (or parent coordinator) to stop.
func (tc *ToolContext) Escalate() {
	escalate := true
	tc.actions.Escalate = &escalate
}

// SkipSummarization marks the tool result as final, telling the flow not to
// send it back through the model for summarization.
func (tc *ToolContext) SkipSummarization() {
	skip := true
	tc.actions.SkipSummarization = &skip
}

// RequestCredential records a credential request for this function call. The
// flow surfaces it as an auth-request event carrying a long-running call id;
// the caller answers with a matching function response in a later message.
func (tc *ToolContext) RequestCredential(config map[string]any) {
	if tc.actions.RequestedAuthConfigs == nil {
		tc.actions.RequestedAuthConfigs = map[string]any{}
	}
	tc.actions.RequestedAuthConfigs[tc.functionCallID] = config
}

// SearchMemory queries the memory service for relevant past content.
func (tc *ToolContext) SearchMemory(query string) ([]MemorySearchResult, error) {
	return tc.ictx.SearchMemory(query)
}
