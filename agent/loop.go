package agent

import (
	"errors"
	"fmt"

	"github.com/hupe1980/agentloop/core"
)

// ErrEscalated is returned by a child agent to stop the surrounding loop.
// Emitting an event with Actions.Escalate set has the same effect.
var ErrEscalated = errors.New("child agent escalated")

// LoopAgent re-runs its children in order until a child escalates or the
// iteration bound is reached. All iterations share the invocation context,
// and every event is durable before the next child starts, so each iteration
// sees the state the previous one produced.
type LoopAgent struct {
	BaseAgent
	maxIterations int
}

// NewLoopAgent creates a looping coordinator over the given children.
// maxIterations bounds the number of full passes; 0 means unbounded, in
// which case a child must escalate (or the context must be cancelled) to
// stop the loop.
func NewLoopAgent(name string, maxIterations int, children ...core.Agent) (*LoopAgent, error) {
	base, err := NewBaseAgent(name)
	if err != nil {
		return nil, err
	}

	a := &LoopAgent{BaseAgent: base, maxIterations: maxIterations}
	a.attach(a)

	if err := a.SetSubAgents(children...); err != nil {
		return nil, err
	}
	return a, nil
}

// MaxIterations returns the configured iteration bound (0 = unbounded).
func (l *LoopAgent) MaxIterations() int { return l.maxIterations }

// Run executes the children repeatedly. Escalation, whether signalled
// through an emitted event or an ErrEscalated return, ends the loop cleanly.
func (l *LoopAgent) Run(ictx *core.InvocationContext) error {
	for i := 0; l.maxIterations == 0 || i < l.maxIterations; i++ {
		select {
		case <-ictx.Done():
			return ictx.Err()
		default:
		}

		for _, child := range l.SubAgents() {
			err := l.runChild(ictx, child)
			if errors.Is(err, ErrEscalated) {
				return nil
			}
			if err != nil {
				return fmt.Errorf("loop iteration %d failed for agent %s: %w", i+1, child.Name(), err)
			}
			if ictx.EndInvocation() {
				return nil
			}
		}
	}
	return nil
}

// runChild executes one child while watching its event stream for escalation
// flags. Events are forwarded to the parent verbatim; the child's resume
// handshake is honored so every event is durable before the child proceeds.
func (l *LoopAgent) runChild(ictx *core.InvocationContext, child core.Agent) error {
	emitCh := make(chan core.Event)
	resumeCh := make(chan struct{}, 1)

	cctx := ictx.NewChildContext(emitCh, resumeCh, "")
	cctx.Agent = child

	done := make(chan error, 1)
	go func() { done <- child.Run(cctx) }()

	var (
		escalated bool
		relayErr  error
	)
	for {
		select {
		case ev := <-emitCh:
			if ev.Actions.Escalate != nil && *ev.Actions.Escalate {
				escalated = true
			}
			if err := l.forward(ictx, ev, resumeCh); err != nil && relayErr == nil {
				relayErr = err
			}
		case err := <-done:
			if relayErr != nil {
				return relayErr
			}
			if err != nil {
				return err
			}
			if escalated {
				return ErrEscalated
			}
			return nil
		}
	}
}

func (l *LoopAgent) forward(ictx *core.InvocationContext, ev core.Event, resumeCh chan<- struct{}) error {
	if err := ictx.Forward(ev); err != nil {
		return err
	}
	if ev.IsPartial() {
		return nil
	}
	if err := ictx.WaitForResume(); err != nil {
		return err
	}
	select {
	case resumeCh <- struct{}{}:
		return nil
	case <-ictx.Done():
		return ictx.Err()
	}
}
