package agent

import (
	"fmt"
	"sync"

	"github.com/hupe1980/agentloop/core"
)

// ParallelAgent runs its children concurrently, each on a forked context
// whose branch is "<parallel>.<child>" appended to the current path. Branch
// isolation keeps one child's staged writes and history invisible to its
// siblings; events merge into the parent stream in completion order. A
// failing child does not cancel its siblings: the first error is reported
// after every child finished.
type ParallelAgent struct {
	BaseAgent
}

// NewParallelAgent creates a parallel coordinator over the given children.
func NewParallelAgent(name string, children ...core.Agent) (*ParallelAgent, error) {
	base, err := NewBaseAgent(name)
	if err != nil {
		return nil, err
	}

	a := &ParallelAgent{BaseAgent: base}
	a.attach(a)

	if err := a.SetSubAgents(children...); err != nil {
		return nil, err
	}
	return a, nil
}

// Run launches every child on its own branch and relays their events to the
// parent stream as they arrive. The relay serializes the emit-to-durable
// window so each forwarded event is appended before the child producing it
// resumes; the children's own work still overlaps freely.
func (p *ParallelAgent) Run(ictx *core.InvocationContext) error {
	children := p.SubAgents()
	if len(children) == 0 {
		return nil
	}

	var (
		wg        sync.WaitGroup
		forwardMu sync.Mutex
	)
	errs := make([]error, len(children))

	for i, child := range children {
		wg.Add(1)
		go func(i int, child core.Agent) {
			defer wg.Done()
			errs[i] = p.runChild(ictx, child, &forwardMu)
		}(i, child)
	}
	wg.Wait()

	for i, err := range errs {
		if err != nil {
			return fmt.Errorf("parallel execution failed for agent %s: %w", children[i].Name(), err)
		}
	}
	return nil
}

// runChild executes one child on an isolated branch context and relays its
// events upstream. It returns once the child's Run returned, draining events
// until then even after a relay failure so the child never blocks on a dead
// channel.
func (p *ParallelAgent) runChild(ictx *core.InvocationContext, child core.Agent, forwardMu *sync.Mutex) error {
	emitCh := make(chan core.Event)
	resumeCh := make(chan struct{}, 1)

	branch := joinBranch(ictx.Branch, p.Name()+"."+child.Name())
	cctx := ictx.NewChildContext(emitCh, resumeCh, branch)
	cctx.Agent = child

	done := make(chan error, 1)
	go func() { done <- child.Run(cctx) }()

	var relayErr error
	for {
		select {
		case ev := <-emitCh:
			if err := p.forward(ictx, ev, forwardMu, resumeCh); err != nil && relayErr == nil {
				relayErr = err
			}
		case err := <-done:
			if relayErr != nil {
				return relayErr
			}
			return err
		}
	}
}

// forward relays one child event to the parent stream. The mutex keeps the
// emit / resume pairing intact across concurrently relaying siblings: the
// resume token consumed under the lock belongs to the event just sent.
func (p *ParallelAgent) forward(ictx *core.InvocationContext, ev core.Event, forwardMu *sync.Mutex, resumeCh chan<- struct{}) error {
	forwardMu.Lock()
	err := ictx.Forward(ev)
	if err == nil && !ev.IsPartial() {
		err = ictx.WaitForResume()
	}
	forwardMu.Unlock()
	if err != nil {
		return err
	}

	if !ev.IsPartial() {
		select {
		case resumeCh <- struct{}{}:
		case <-ictx.Done():
			return ictx.Err()
		}
	}
	return nil
}
