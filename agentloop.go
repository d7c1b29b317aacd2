// Package agentloop provides a high-level façade over the runner and the
// service abstractions (sessions, artifacts, memory & logging) for building
// multi-agent reasoning systems. Most applications interact with this package
// by:
//  1. Creating an AgentLoop via New() (optionally overriding default
//     in-memory services)
//  2. Registering one or more root agents (LLM, sequential, parallel, loop,
//     custom)
//  3. Running them asynchronously (Run) or synchronously (RunSync)
//
// The façade delegates orchestration to runner.Runner while keeping setup and
// usage ergonomics concise. The defaults (in-memory services, no-op logger)
// suit local development and tests; production deployments supply durable
// stores and a structured logger through the options.
package agentloop

import (
	"context"
	"fmt"
	"sync"

	"github.com/hupe1980/agentloop/artifact"
	"github.com/hupe1980/agentloop/core"
	"github.com/hupe1980/agentloop/logging"
	"github.com/hupe1980/agentloop/memory"
	"github.com/hupe1980/agentloop/runner"
	"github.com/hupe1980/agentloop/session"
)

// DefaultAppName scopes sessions when Options.AppName is left unset.
const DefaultAppName = "agentloop"

// Options configures the AgentLoop instance.
type Options struct {
	// AppName scopes every session created and loaded through this instance.
	AppName string

	// Services default to in-memory implementations if not provided. All
	// registered agents share them, so a session started with one agent tree
	// is visible to the others.
	SessionService  core.SessionService
	ArtifactService core.ArtifactService
	MemoryService   core.MemoryService

	// Logger defaults to the no-op logger if nil.
	Logger logging.Logger

	// EventBufferSize sets the channel buffer size for event delivery.
	EventBufferSize int

	// MaxConcurrentInvocations limits the number of agent invocations that
	// can execute simultaneously per registered agent. Zero or negative
	// disables the cap.
	MaxConcurrentInvocations int

	// RunConfig is the default per-run configuration; individual runs may
	// override it.
	RunConfig core.RunConfig
}

// AgentLoop is the high-level façade aggregating runners for the registered
// agent trees and the services they share.
type AgentLoop struct {
	opts Options

	mu      sync.RWMutex
	runners map[string]*runner.Runner
}

// New creates a new AgentLoop instance with optional overrides. Any unset
// service is initialized with an in-memory implementation.
func New(optFns ...func(o *Options)) *AgentLoop {
	opts := Options{
		AppName:                  DefaultAppName,
		SessionService:           session.NewInMemoryService(),
		ArtifactService:          artifact.NewInMemoryService(),
		MemoryService:            memory.NewInMemoryService(),
		Logger:                   logging.NoOpLogger{},
		EventBufferSize:          runner.DefaultEventBufferSize,
		MaxConcurrentInvocations: runner.DefaultMaxConcurrentInvocations,
	}

	for _, fn := range optFns {
		fn(&opts)
	}

	return &AgentLoop{opts: opts, runners: map[string]*runner.Runner{}}
}

// RegisterAgent makes the given agent tree runnable under its root name. The
// name must be unique among registered agents.
func (l *AgentLoop) RegisterAgent(root core.Agent) error {
	if root == nil {
		return fmt.Errorf("register requires an agent")
	}

	l.mu.Lock()
	defer l.mu.Unlock()

	name := root.Name()
	if _, exists := l.runners[name]; exists {
		return fmt.Errorf("agent %q is already registered", name)
	}

	l.runners[name] = runner.New(l.opts.AppName, root, func(o *runner.Options) {
		o.SessionService = l.opts.SessionService
		o.ArtifactService = l.opts.ArtifactService
		o.MemoryService = l.opts.MemoryService
		o.Logger = l.opts.Logger
		o.EventBufferSize = l.opts.EventBufferSize
		o.MaxConcurrentInvocations = l.opts.MaxConcurrentInvocations
		o.RunConfig = l.opts.RunConfig
	})
	return nil
}

// SessionService exposes the shared session service.
func (l *AgentLoop) SessionService() core.SessionService { return l.opts.SessionService }

// CreateSession creates a session under the instance's app name, ready to run
// agents against.
func (l *AgentLoop) CreateSession(ctx context.Context, userID, sessionID string, state map[string]any) (*core.Session, error) {
	return l.opts.SessionService.Create(ctx, l.opts.AppName, userID, sessionID, state)
}

// Run starts an asynchronous invocation of the named registered agent and
// returns the event stream plus a one-shot error channel. See runner.Run for
// the per-run contract.
func (l *AgentLoop) Run(ctx context.Context, agentName, userID, sessionID string, newMessage *core.Content, optFns ...func(o *runner.RunOptions)) (<-chan core.Event, <-chan error) {
	r, err := l.runnerFor(agentName)
	if err != nil {
		eventsCh := make(chan core.Event)
		errorsCh := make(chan error, 1)
		errorsCh <- err
		close(eventsCh)
		close(errorsCh)
		return eventsCh, errorsCh
	}
	return r.Run(ctx, userID, sessionID, newMessage, optFns...)
}

// RunSync runs the named registered agent and collects the full event stream,
// blocking until the run completes or fails.
func (l *AgentLoop) RunSync(ctx context.Context, agentName, userID, sessionID string, newMessage *core.Content, optFns ...func(o *runner.RunOptions)) ([]core.Event, error) {
	r, err := l.runnerFor(agentName)
	if err != nil {
		return nil, err
	}
	return r.RunSync(ctx, userID, sessionID, newMessage, optFns...)
}

// Close waits until every active invocation across all registered agents has
// drained. The instance must not be used for new runs afterwards.
func (l *AgentLoop) Close() error {
	l.mu.RLock()
	defer l.mu.RUnlock()

	for _, r := range l.runners {
		if err := r.Close(); err != nil {
			return err
		}
	}
	return nil
}

func (l *AgentLoop) runnerFor(agentName string) (*runner.Runner, error) {
	l.mu.RLock()
	defer l.mu.RUnlock()

	r, ok := l.runners[agentName]
	if !ok {
		return nil, fmt.Errorf("agent %q is not registered", agentName)
	}
	return r, nil
}
