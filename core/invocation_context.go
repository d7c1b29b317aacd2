package core

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"

	"github.com/hupe1980/agentloop/logging"
)

// deltaBuffers carries the staged state and artifact writes of an invocation
// path together with the lock that makes them safe for parallel tool
// execution on a shared context. Serial aliases (WithAgent) share one
// instance; child contexts get a fresh one.
type deltaBuffers struct {
	mu        sync.Mutex
	state     map[string]any
	artifacts map[string]int
}

func newDeltaBuffers() *deltaBuffers {
	return &deltaBuffers{state: map[string]any{}, artifacts: map[string]int{}}
}

// InvocationContext encapsulates the mutable, per-invocation execution scope
// passed to an Agent's Run method. It aggregates:
//
//   - The ambient cancellation Context
//   - Identifiers (AppName, UserID, SessionID, InvocationID)
//   - The agent currently executing and the triggering user Content
//   - Emission / resumption coordination with the runner
//   - Backing services (session, artifact, memory)
//   - The live Session plus pending state / artifact deltas to commit
//   - A branch label scoping parallel sub-agent writes
//
// State mutations performed via SetState accumulate in a staged delta that is
// readable through GetState immediately but only becomes durable when the
// next emitted event carries it to the store. Derived contexts (children,
// branches) get fresh buffers while sharing services, session and the model
// call limiter.
type InvocationContext struct {
	Context      context.Context
	InvocationID string
	AppName      string
	UserID       string
	SessionID    string

	// Agent is the node currently executing. Composite agents update it on
	// derived contexts as control moves through the tree.
	Agent Agent

	// UserContent is the message that triggered the invocation.
	UserContent *Content

	// Branch is the dot-joined isolation path for parallel execution. Empty
	// for the root branch.
	Branch string

	RunConfig       RunConfig
	Session         *Session
	SessionService  SessionService
	ArtifactService ArtifactService
	MemoryService   MemoryService
	Logger          logging.Logger

	emit    chan<- Event
	resume  <-chan struct{}
	limiter *ModelLimiter
	buffers *deltaBuffers

	// end is shared across every derived context so a callback ending the
	// invocation deep in the tree stops the outer composition loops too.
	end *atomic.Bool
}

// InvocationContextConfig collects the dependencies needed to build a root
// InvocationContext. The runner is the usual constructor call site.
type InvocationContextConfig struct {
	InvocationID    string
	AppName         string
	UserID          string
	Agent           Agent
	UserContent     *Content
	Session         *Session
	RunConfig       RunConfig
	SessionService  SessionService
	ArtifactService ArtifactService
	MemoryService   MemoryService
	Logger          logging.Logger
	Emit            chan<- Event
	Resume          <-chan struct{}
}

// NewInvocationContext constructs a root InvocationContext with empty state
// and artifact buffers and a fresh model-call limiter sized from RunConfig.
func NewInvocationContext(ctx context.Context, cfg InvocationContextConfig) *InvocationContext {
	logger := cfg.Logger
	if logger == nil {
		logger = logging.NoOpLogger{}
	}
	sessionID := ""
	if cfg.Session != nil {
		sessionID = cfg.Session.ID
	}
	return &InvocationContext{
		Context:         ctx,
		InvocationID:    cfg.InvocationID,
		AppName:         cfg.AppName,
		UserID:          cfg.UserID,
		SessionID:       sessionID,
		Agent:           cfg.Agent,
		UserContent:     cfg.UserContent,
		RunConfig:       cfg.RunConfig,
		Session:         cfg.Session,
		SessionService:  cfg.SessionService,
		ArtifactService: cfg.ArtifactService,
		MemoryService:   cfg.MemoryService,
		Logger:          logger,
		emit:            cfg.Emit,
		resume:          cfg.Resume,
		limiter:         NewModelLimiter(cfg.RunConfig.EffectiveMaxModelCalls()),
		buffers:         newDeltaBuffers(),
		end:             &atomic.Bool{},
	}
}

// EndInvocation reports whether something requested the invocation to stop
// after the current step.
func (ic *InvocationContext) EndInvocation() bool { return ic.end.Load() }

// SetEndInvocation asks the invocation to stop after the current step. The
// request is visible from every context derived for this invocation.
func (ic *InvocationContext) SetEndInvocation() { ic.end.Store(true) }

// Done returns a channel closed when the underlying context is cancelled.
func (ic *InvocationContext) Done() <-chan struct{} { return ic.Context.Done() }

// Err returns the cancellation error (if any) from the underlying context.
func (ic *InvocationContext) Err() error { return ic.Context.Err() }

// AgentName returns the name of the agent currently executing.
func (ic *InvocationContext) AgentName() string {
	if ic.Agent == nil {
		return ""
	}
	return ic.Agent.Name()
}

// GetState returns a staged (delta) value if present, else the persisted
// session value. The boolean reports whether a value was found.
func (ic *InvocationContext) GetState(k string) (any, bool) {
	ic.buffers.mu.Lock()
	v, ok := ic.buffers.state[k]
	ic.buffers.mu.Unlock()
	if ok {
		return v, true
	}
	if ic.Session != nil {
		return ic.Session.GetState(k)
	}
	return nil, false
}

// SetState stages a state mutation in the in-memory delta buffer. The change
// is visible to subsequent GetState calls on this context immediately and is
// persisted when the next emitted event carries it to the store.
func (ic *InvocationContext) SetState(k string, v any) {
	ic.buffers.mu.Lock()
	ic.buffers.state[k] = v
	ic.buffers.mu.Unlock()
}

// ApplyStateDelta merges all pairs from d into the staged delta.
func (ic *InvocationContext) ApplyStateDelta(d map[string]any) {
	ic.buffers.mu.Lock()
	for k, v := range d {
		ic.buffers.state[k] = v
	}
	ic.buffers.mu.Unlock()
}

// PendingStateDelta returns a copy of the staged, not yet durable delta.
func (ic *InvocationContext) PendingStateDelta() map[string]any {
	ic.buffers.mu.Lock()
	defer ic.buffers.mu.Unlock()
	out := make(map[string]any, len(ic.buffers.state))
	for k, v := range ic.buffers.state {
		out[k] = v
	}
	return out
}

// State returns a two-phase view over persisted state plus a snapshot of the
// staged delta. The view is read-oriented; writes that must survive the turn
// go through SetState or a callback context.
func (ic *InvocationContext) State() *State {
	base := map[string]any{}
	if ic.Session != nil {
		base = ic.Session.StateMap()
	}
	return NewState(base, ic.PendingStateDelta())
}

// SaveArtifact stores bytes through the ArtifactService and stages the new
// version in the artifact delta attached to the next emitted event.
func (ic *InvocationContext) SaveArtifact(filename string, data []byte, mimeType string) (int, error) {
	if ic.ArtifactService == nil {
		return 0, fmt.Errorf("artifact service not configured")
	}
	version, err := ic.ArtifactService.Save(ic.Context, ic.AppName, ic.UserID, ic.SessionID, filename, data, mimeType)
	if err != nil {
		return 0, err
	}
	ic.buffers.mu.Lock()
	ic.buffers.artifacts[filename] = version
	ic.buffers.mu.Unlock()
	return version, nil
}

// LoadArtifact retrieves a stored artifact (latest version by default).
func (ic *InvocationContext) LoadArtifact(filename string, optFns ...func(o *GetArtifactOptions)) (*Artifact, error) {
	if ic.ArtifactService == nil {
		return nil, fmt.Errorf("artifact service not configured")
	}
	return ic.ArtifactService.Get(ic.Context, ic.AppName, ic.UserID, ic.SessionID, filename, optFns...)
}

// ListArtifacts returns the artifact filenames visible from the session.
func (ic *InvocationContext) ListArtifacts() ([]string, error) {
	if ic.ArtifactService == nil {
		return []string{}, nil
	}
	return ic.ArtifactService.List(ic.Context, ic.AppName, ic.UserID, ic.SessionID)
}

// SearchMemory queries the MemoryService for relevant past content.
func (ic *InvocationContext) SearchMemory(query string) ([]MemorySearchResult, error) {
	if ic.MemoryService == nil {
		return []MemorySearchResult{}, nil
	}
	return ic.MemoryService.Search(ic.Context, ic.AppName, ic.UserID, query)
}

// IncrementModelCalls counts one model call against the run's ceiling.
func (ic *InvocationContext) IncrementModelCalls() error { return ic.limiter.Increment() }

// ModelCallCount returns the number of model calls made so far in this run.
func (ic *InvocationContext) ModelCallCount() int { return ic.limiter.Count() }

// EmitEvent stamps the event with the invocation id and branch when unset,
// folds the pending state / artifact deltas into its actions, sends it to the
// runner and clears the buffers. If the context is cancelled before emission
// the cancellation error is returned and the buffers are kept. Partial events
// are sent verbatim: they are never persisted, so letting them carry the
// buffers would lose the staged writes.
func (ic *InvocationContext) EmitEvent(ev Event) error {
	if ev.InvocationID == "" {
		ev.InvocationID = ic.InvocationID
	}
	if ev.Branch == nil && ic.Branch != "" {
		b := ic.Branch
		ev.Branch = &b
	}
	if ev.IsPartial() {
		return ic.send(ev)
	}
	ic.buffers.mu.Lock()
	if len(ic.buffers.state) > 0 {
		if ev.Actions.StateDelta == nil {
			ev.Actions.StateDelta = map[string]any{}
		}
		for k, v := range ic.buffers.state {
			if _, exists := ev.Actions.StateDelta[k]; !exists {
				ev.Actions.StateDelta[k] = v
			}
		}
	}
	if len(ic.buffers.artifacts) > 0 {
		if ev.Actions.ArtifactDelta == nil {
			ev.Actions.ArtifactDelta = map[string]int{}
		}
		for k, v := range ic.buffers.artifacts {
			ev.Actions.ArtifactDelta[k] = v
		}
	}
	ic.buffers.mu.Unlock()
	if err := ic.send(ev); err != nil {
		return err
	}
	ic.buffers.mu.Lock()
	ic.buffers.state = map[string]any{}
	ic.buffers.artifacts = map[string]int{}
	ic.buffers.mu.Unlock()
	return nil
}

// Forward sends an event to the runner verbatim, without folding this
// context's pending buffers. Interceptors relaying child events use it so a
// parent's staged state never leaks into a child's event.
func (ic *InvocationContext) Forward(ev Event) error {
	return ic.send(ev)
}

// send delivers the event to the runner, preferring delivery over
// cancellation when the channel has room. A result that finishes just after
// the run was cancelled still reaches the runner's drain this way.
func (ic *InvocationContext) send(ev Event) error {
	select {
	case ic.emit <- ev:
		return nil
	default:
	}
	select {
	case <-ic.Context.Done():
		return ic.Context.Err()
	case ic.emit <- ev:
		return nil
	}
}

// WaitForResume blocks until the runner signals that the last emitted
// non-partial event is durable, or until cancellation. A nil resume channel
// returns immediately.
func (ic *InvocationContext) WaitForResume() error {
	if ic.resume == nil {
		return nil
	}
	select {
	case <-ic.resume:
		return nil
	case <-ic.Context.Done():
		return ic.Context.Err()
	}
}

// Dispatch emits the event and, for non-partial events, waits for the
// durable-append handshake before returning.
func (ic *InvocationContext) Dispatch(ev Event) error {
	if err := ic.EmitEvent(ev); err != nil {
		return err
	}
	if ev.IsPartial() {
		return nil
	}
	return ic.WaitForResume()
}

// WithAgent returns a derived context for serial composition: same channels,
// buffers, limiter and services, with the executing agent replaced. Not for
// concurrent children; use NewChildContext for those.
func (ic *InvocationContext) WithAgent(a Agent) *InvocationContext {
	c := *ic
	c.Agent = a
	return &c
}

// NewChildContext derives a context for a nested / concurrent execution path.
// It replaces the emit & resume channels, resets the pending delta buffers,
// and applies a branch label when non-empty. The model-call limiter and all
// services stay shared. Composite agents use it to intercept or isolate child
// output without touching the parent's transient buffers.
func (ic *InvocationContext) NewChildContext(emit chan<- Event, resume <-chan struct{}, branch string) *InvocationContext {
	finalBranch := ic.Branch
	if branch != "" {
		finalBranch = branch
	}
	c := *ic
	c.emit = emit
	c.resume = resume
	c.Branch = finalBranch
	c.buffers = newDeltaBuffers()
	return &c
}

// ForkBranch derives a context for a concurrent child sharing the parent's
// channels but with its own branch label and fresh buffers.
func (ic *InvocationContext) ForkBranch(branch string) *InvocationContext {
	return ic.NewChildContext(ic.emit, ic.resume, branch)
}
