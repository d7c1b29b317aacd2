package runner

import (
	"context"
	"errors"
	"fmt"
	"runtime/debug"
	"sync"

	"github.com/hupe1980/agentloop/artifact"
	"github.com/hupe1980/agentloop/core"
	"github.com/hupe1980/agentloop/logging"
	"github.com/hupe1980/agentloop/memory"
	"github.com/hupe1980/agentloop/session"
)

// Default tuning applied when Options leaves the corresponding field unset.
const (
	// DefaultEventBufferSize is the buffer of the per-invocation event
	// channels.
	DefaultEventBufferSize = 100

	// DefaultMaxConcurrentInvocations bounds simultaneous agent executions.
	DefaultMaxConcurrentInvocations = 10
)

// Options configures a Runner. Every service defaults to its in-memory
// implementation so a Runner works out of the box for tests and demos;
// production deployments swap in persistent backends.
type Options struct {
	// SessionService persists sessions and their event logs.
	SessionService core.SessionService

	// ArtifactService stores binary artifacts saved during runs.
	ArtifactService core.ArtifactService

	// MemoryService provides searchable long-term recall.
	MemoryService core.MemoryService

	// Logger receives structured runtime logs. Defaults to a no-op logger.
	Logger logging.Logger

	// EventBufferSize sets the buffer of the emit and caller-facing event
	// channels. Defaults to DefaultEventBufferSize.
	EventBufferSize int

	// MaxConcurrentInvocations caps how many invocations execute at once.
	// Zero or negative disables the cap. Defaults to
	// DefaultMaxConcurrentInvocations.
	MaxConcurrentInvocations int

	// RunConfig is the default per-run configuration. Individual runs may
	// override it through RunOptions.
	RunConfig core.RunConfig
}

// Runner is the top-level driver of an agent tree. It resolves which agent
// handles each incoming message, owns the per-invocation channels and pumps
// every emitted event through persist, forward and resume before the
// producing agent continues.
type Runner struct {
	appName string
	root    core.Agent

	sessionService  core.SessionService
	artifactService core.ArtifactService
	memoryService   core.MemoryService
	logger          logging.Logger

	eventBufferSize int
	runConfig       core.RunConfig

	sem chan struct{}
	wg  sync.WaitGroup
}

// New constructs a Runner driving the given root agent on behalf of the named
// application. Sessions are looked up under (appName, userID, sessionID).
func New(appName string, root core.Agent, optFns ...func(o *Options)) *Runner {
	opts := Options{
		SessionService:           session.NewInMemoryService(),
		ArtifactService:          artifact.NewInMemoryService(),
		MemoryService:            memory.NewInMemoryService(),
		Logger:                   logging.NoOpLogger{},
		EventBufferSize:          DefaultEventBufferSize,
		MaxConcurrentInvocations: DefaultMaxConcurrentInvocations,
	}
	for _, fn := range optFns {
		fn(&opts)
	}

	var sem chan struct{}
	if opts.MaxConcurrentInvocations > 0 {
		sem = make(chan struct{}, opts.MaxConcurrentInvocations)
	}

	return &Runner{
		appName:         appName,
		root:            root,
		sessionService:  opts.SessionService,
		artifactService: opts.ArtifactService,
		memoryService:   opts.MemoryService,
		logger:          opts.Logger,
		eventBufferSize: opts.EventBufferSize,
		runConfig:       opts.RunConfig,
		sem:             sem,
	}
}

// AppName returns the application name runs execute under.
func (r *Runner) AppName() string { return r.appName }

// RootAgent returns the agent tree the runner drives.
func (r *Runner) RootAgent() core.Agent { return r.root }

// SessionService exposes the backing session service, e.g. so callers can
// create sessions before running against them.
func (r *Runner) SessionService() core.SessionService { return r.sessionService }

// RunOptions carries per-run overrides for Run and RunSync.
type RunOptions struct {
	// RunConfig replaces the runner's default configuration for this run.
	RunConfig core.RunConfig

	// StateDelta attaches caller-supplied state changes to the user event.
	// temp:-scoped keys are readable during the invocation and stripped from
	// durable state by the session service.
	StateDelta map[string]any
}

// Run executes one invocation against (userID, sessionID) and returns the
// event stream plus a one-shot error channel. Both channels are closed when
// the run ends; the caller must drain the event channel.
//
// Per run:
//  1. Load the session (core.ErrSessionNotFound when absent).
//  2. Validate resumption: every function response in newMessage must answer
//     a call that is still open in the log, otherwise the run is rejected
//     with a core.ResumeError before anything is written.
//  3. Append the user event.
//  4. Resolve the agent to run: resumptions route to the author of the
//     matched call, ongoing conversations to their most recent transferable
//     author, everything else to the root.
//  5. Drive the agent, persisting and forwarding every event it emits.
//
// Cancelling ctx stops forwarding; tool results that still arrive are
// appended marked Interrupted, and already-appended events stay.
func (r *Runner) Run(ctx context.Context, userID, sessionID string, newMessage *core.Content, optFns ...func(o *RunOptions)) (<-chan core.Event, <-chan error) {
	eventsCh := make(chan core.Event, r.eventBufferSize)
	errorsCh := make(chan error, 1)

	fail := func(err error) (<-chan core.Event, <-chan error) {
		errorsCh <- err
		close(eventsCh)
		close(errorsCh)
		return eventsCh, errorsCh
	}

	opts := RunOptions{RunConfig: r.runConfig}
	for _, fn := range optFns {
		fn(&opts)
	}

	if r.root == nil {
		return fail(fmt.Errorf("runner for app %s has no root agent", r.appName))
	}
	if newMessage == nil {
		return fail(fmt.Errorf("run requires a user message"))
	}

	sess, err := r.sessionService.Get(ctx, r.appName, userID, sessionID)
	if err != nil {
		return fail(err)
	}

	resumeAuthor, err := validateResumption(sess, newMessage)
	if err != nil {
		return fail(err)
	}

	invocationID := core.NewInvocationID()

	userEvent := core.NewUserContentEvent(invocationID, newMessage)
	if len(opts.StateDelta) > 0 {
		userEvent.Actions.StateDelta = opts.StateDelta
	}
	if _, err := r.sessionService.AppendEvent(ctx, sess, userEvent); err != nil {
		return fail(fmt.Errorf("append user event: %w", err))
	}

	target := r.findAgentToRun(sess, resumeAuthor)

	runCtx, cancel := context.WithCancel(ctx)
	emitCh := make(chan core.Event, r.eventBufferSize)
	resumeCh := make(chan struct{}, 1)

	ictx := core.NewInvocationContext(runCtx, core.InvocationContextConfig{
		InvocationID:    invocationID,
		AppName:         r.appName,
		UserID:          userID,
		Agent:           target,
		UserContent:     newMessage,
		Session:         sess,
		RunConfig:       opts.RunConfig,
		SessionService:  r.sessionService,
		ArtifactService: r.artifactService,
		MemoryService:   r.memoryService,
		Logger:          r.logger,
		Emit:            emitCh,
		Resume:          resumeCh,
	})

	// temp:-scoped keys never reach the store; stage them so instruction
	// templates and callbacks can read them during this invocation.
	for k, v := range opts.StateDelta {
		if core.IsTempStateKey(k) {
			ictx.SetState(k, v)
		}
	}

	r.logger.Debug("run started",
		"invocation_id", invocationID,
		"session_id", sessionID,
		"agent", target.Name(),
	)

	agentDone := make(chan error, 1)

	r.wg.Add(2)
	go func() {
		defer r.wg.Done()
		defer close(emitCh)
		if r.sem != nil {
			select {
			case r.sem <- struct{}{}:
				defer func() { <-r.sem }()
			case <-runCtx.Done():
				agentDone <- runCtx.Err()
				return
			}
		}
		agentDone <- r.runAgent(ictx, target)
	}()

	go func() {
		defer r.wg.Done()
		defer cancel()
		defer close(errorsCh)
		defer close(eventsCh)
		r.pump(runCtx, sess, emitCh, resumeCh, eventsCh, errorsCh, agentDone)
	}()

	return eventsCh, errorsCh
}

// RunSync executes one invocation and collects the full event stream. It
// blocks until the run completes or fails; events produced before a failure
// are returned alongside the error.
func (r *Runner) RunSync(ctx context.Context, userID, sessionID string, newMessage *core.Content, optFns ...func(o *RunOptions)) ([]core.Event, error) {
	eventsCh, errorsCh := r.Run(ctx, userID, sessionID, newMessage, optFns...)

	var events []core.Event
	for ev := range eventsCh {
		events = append(events, ev)
	}
	if err := <-errorsCh; err != nil {
		return events, err
	}
	return events, nil
}

// Close waits until every active invocation has drained. The runner must not
// be used for new runs afterwards.
func (r *Runner) Close() error {
	r.wg.Wait()
	return nil
}

// runAgent executes the agent and converts panics in agent code into run
// errors. Agents host arbitrary user code; a panic there must surface on the
// error channel, not take down the process.
func (r *Runner) runAgent(ictx *core.InvocationContext, target core.Agent) (err error) {
	defer func() {
		if rec := recover(); rec != nil {
			r.logger.Error("agent panicked",
				"agent", target.Name(),
				"panic", fmt.Sprintf("%v", rec),
				"stack", string(debug.Stack()),
			)
			err = fmt.Errorf("agent %s panicked: %v", target.Name(), rec)
		}
	}()
	return target.Run(ictx)
}

// pump is the per-invocation event loop: persist non-partials, forward to the
// caller, then release the producing agent. It ends when the agent closes its
// emit channel or the run is cancelled.
func (r *Runner) pump(
	ctx context.Context,
	sess *core.Session,
	emitCh <-chan core.Event,
	resumeCh chan<- struct{},
	eventsCh chan<- core.Event,
	errorsCh chan<- error,
	agentDone <-chan error,
) {
	for {
		// Cancellation takes priority over events already buffered.
		if ctx.Err() != nil {
			r.drainInterrupted(ctx, sess, emitCh)
			return
		}

		select {
		case <-ctx.Done():
			r.drainInterrupted(ctx, sess, emitCh)
			return

		case ev, ok := <-emitCh:
			if !ok {
				if err := <-agentDone; err != nil && !isCancellation(err) {
					errorsCh <- fmt.Errorf("agent execution failed: %w", err)
				}
				return
			}

			if !ev.IsPartial() {
				stored, err := r.sessionService.AppendEvent(ctx, sess, ev)
				if err != nil {
					errorsCh <- fmt.Errorf("append event: %w", err)
					return
				}
				ev = stored
			}

			select {
			case <-ctx.Done():
				r.drainInterrupted(ctx, sess, emitCh)
				return
			case eventsCh <- ev:
				r.logger.Debug("delivered event",
					"event_id", ev.ID,
					"author", ev.Author,
				)
			}

			if !ev.IsPartial() {
				select {
				case resumeCh <- struct{}{}:
				default:
				}
			}
		}
	}
}

// drainInterrupted consumes whatever the agent still emits after
// cancellation. Tool results among it are appended with the Interrupted flag
// so the session records that they arrived after the run was cut short;
// nothing reaches the caller stream anymore.
func (r *Runner) drainInterrupted(ctx context.Context, sess *core.Session, emitCh <-chan core.Event) {
	appendCtx := context.WithoutCancel(ctx)
	for ev := range emitCh {
		if ev.IsPartial() || len(ev.GetFunctionResponses()) == 0 {
			continue
		}
		interrupted := true
		ev.Interrupted = &interrupted
		if _, err := r.sessionService.AppendEvent(appendCtx, sess, ev); err != nil {
			r.logger.Warn("failed to append interrupted tool result",
				"event_id", ev.ID,
				"error", err.Error(),
			)
		}
	}
}

// findAgentToRun resolves the agent that handles the new message. A function
// response routes back to the author that issued the matching call; an
// ongoing conversation continues with its most recent transferable author;
// everything else starts at the root.
func (r *Runner) findAgentToRun(sess *core.Session, resumeAuthor string) core.Agent {
	if resumeAuthor != "" {
		if target := r.root.FindAgent(resumeAuthor); target != nil {
			return target
		}
	}

	events := sess.GetEvents()
	for i := len(events) - 1; i >= 0; i-- {
		author := events[i].Author
		if author == core.UserAuthor {
			continue
		}
		if author == r.root.Name() {
			return r.root
		}
		candidate := r.root.FindAgent(author)
		if candidate == nil {
			continue
		}
		if isTransferableAcrossTree(candidate) {
			return candidate
		}
	}
	return r.root
}

// transferAware is the runner's view of agents that accept control handoffs.
type transferAware interface {
	DisallowsTransferToParent() bool
}

// isTransferableAcrossTree reports whether the agent and every one of its
// ancestors are model-backed and allow upward transfer. Only then may a past
// author resume the conversation directly.
func isTransferableAcrossTree(a core.Agent) bool {
	for node := a; node != nil; node = node.Parent() {
		t, ok := node.(transferAware)
		if !ok {
			return false
		}
		if t.DisallowsTransferToParent() {
			return false
		}
	}
	return true
}

// validateResumption checks that every function response in the message
// answers a call that is still open in the session log. It returns the author
// of the event that issued the matched call so the runner can route the
// resumption back to it. Messages without function responses pass through.
func validateResumption(sess *core.Session, msg *core.Content) (string, error) {
	responses := functionResponses(msg)
	if len(responses) == 0 {
		return "", nil
	}

	open := openFunctionCalls(sess)
	author := ""
	for _, fr := range responses {
		a, ok := open[fr.ID]
		if !ok {
			return "", &core.ResumeError{CallID: fr.ID, Reason: "does not match any open function call"}
		}
		author = a
	}
	return author, nil
}

// openFunctionCalls replays the log and keeps the calls that were issued but
// never answered, keyed by call id with the issuing event's author as value.
func openFunctionCalls(sess *core.Session) map[string]string {
	open := map[string]string{}
	for _, ev := range sess.GetEvents() {
		for _, call := range ev.GetFunctionCalls() {
			open[call.ID] = ev.Author
		}
		for _, resp := range ev.GetFunctionResponses() {
			delete(open, resp.ID)
		}
	}
	return open
}

// functionResponses extracts the function response parts of a content.
func functionResponses(content *core.Content) []core.FunctionResponse {
	if content == nil {
		return nil
	}
	var responses []core.FunctionResponse
	for _, p := range content.Parts {
		if fr, ok := p.(core.FunctionResponsePart); ok {
			responses = append(responses, fr.FunctionResponse)
		}
	}
	return responses
}

// isCancellation reports whether the error is a context cancellation, which
// ends a run cleanly rather than exceptionally.
func isCancellation(err error) bool {
	return errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded)
}
