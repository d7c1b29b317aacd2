package core

import (
	"github.com/hupe1980/agentloop/logging"
)

// CallbackContext is the view handed to agent- and model-boundary callbacks.
// It exposes read/write state with two-phase visibility: writes stage into
// the invocation's pending delta (readable by every later callback of the
// same turn) and into the callback's EventActions, which travel with the
// event that finally owns the change. Nothing is durable until that event is
// appended.
type CallbackContext struct {
	ictx    *InvocationContext
	actions *EventActions
}

// NewCallbackContext wraps an invocation context with a fresh actions record.
func NewCallbackContext(ictx *InvocationContext) *CallbackContext {
	return &CallbackContext{ictx: ictx, actions: &EventActions{}}
}

// NewCallbackContextWithActions wraps an invocation context accumulating into
// an existing actions record (shared with a tool context or a pending event).
func NewCallbackContextWithActions(ictx *InvocationContext, actions *EventActions) *CallbackContext {
	if actions == nil {
		actions = &EventActions{}
	}
	return &CallbackContext{ictx: ictx, actions: actions}
}

// InvocationID returns the id of the active invocation.
func (cc *CallbackContext) InvocationID() string { return cc.ictx.InvocationID }

// AgentName returns the name of the agent the callback runs for.
func (cc *CallbackContext) AgentName() string { return cc.ictx.AgentName() }

// Branch returns the isolation branch of the current execution path.
func (cc *CallbackContext) Branch() string { return cc.ictx.Branch }

// UserContent returns the message that triggered the invocation.
func (cc *CallbackContext) UserContent() *Content { return cc.ictx.UserContent }

// Actions exposes the accumulated orchestration actions. The flow merges them
// into the event that owns this callback's effects.
func (cc *CallbackContext) Actions() *EventActions { return cc.actions }

// Logger returns the invocation's logger.
func (cc *CallbackContext) Logger() logging.Logger { return cc.ictx.Logger }

// GetState reads a key with staged-over-persisted precedence: this callback's
// own writes first, then the invocation's pending delta, then session state.
func (cc *CallbackContext) GetState(key string) (any, bool) {
	if v, ok := cc.actions.StateDelta[key]; ok {
		return v, true
	}
	return cc.ictx.GetState(key)
}

// SetState stages a write. It is immediately visible to later callbacks of
// the same turn and becomes durable when the owning event is appended.
func (cc *CallbackContext) SetState(key string, value any) {
	if cc.actions.StateDelta == nil {
		cc.actions.StateDelta = map[string]any{}
	}
	cc.actions.StateDelta[key] = value
	cc.ictx.SetState(key, value)
}

// State returns the merged state view including staged writes.
func (cc *CallbackContext) State() *State {
	base := map[string]any{}
	if cc.ictx.Session != nil {
		base = cc.ictx.Session.StateMap()
	}
	for k, v := range cc.ictx.PendingStateDelta() {
		base[k] = v
	}
	if cc.actions.StateDelta == nil {
		cc.actions.StateDelta = map[string]any{}
	}
	return NewState(base, cc.actions.StateDelta)
}

// SaveArtifact stores an artifact version and records it in the actions'
// artifact delta as well as the invocation's pending buffer.
func (cc *CallbackContext) SaveArtifact(filename string, data []byte, mimeType string) (int, error) {
	version, err := cc.ictx.SaveArtifact(filename, data, mimeType)
	if err != nil {
		return 0, err
	}
	if cc.actions.ArtifactDelta == nil {
		cc.actions.ArtifactDelta = map[string]int{}
	}
	cc.actions.ArtifactDelta[filename] = version
	return version, nil
}

// LoadArtifact retrieves a stored artifact (latest version by default).
func (cc *CallbackContext) LoadArtifact(filename string, optFns ...func(o *GetArtifactOptions)) (*Artifact, error) {
	return cc.ictx.LoadArtifact(filename, optFns...)
}

// ListArtifacts returns the artifact filenames visible from the session.
func (cc *CallbackContext) ListArtifacts() ([]string, error) { return cc.ictx.ListArtifacts() }

// EndInvocation asks the runner to stop after the current step completes.
func (cc *CallbackContext) EndInvocation() { cc.ictx.SetEndInvocation() }

// InvocationContext returns the underlying invocation scope for advanced
// integrations.
func (cc *CallbackContext) InvocationContext() *InvocationContext { return cc.ictx }
