package agent

import (
	"errors"
	"fmt"
	"testing"

	"github.com/hupe1980/agentloop/core"
)

// escalatingAgent emits regular events until the configured run, then emits
// an escalation event.
type escalatingAgent struct {
	BaseAgent
	runCount   int
	escalateOn int
}

func newEscalatingAgent(t *testing.T, name string, escalateOn int) *escalatingAgent {
	t.Helper()
	base, err := NewBaseAgent(name)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	a := &escalatingAgent{BaseAgent: base, escalateOn: escalateOn}
	a.attach(a)
	return a
}

func (a *escalatingAgent) Run(ictx *core.InvocationContext) error {
	a.runCount++
	if a.runCount >= a.escalateOn {
		ev := core.NewEscalationEvent(ictx.InvocationID, a.Name(), core.NewTextContent("assistant", "cannot finish this, handing back"))
		return ictx.Dispatch(ev)
	}
	return ictx.Dispatch(core.NewMessageEvent(ictx.InvocationID, a.Name(), fmt.Sprintf("iteration %d", a.runCount)))
}

func TestLoopAgent_StopsAtMaxIterations(t *testing.T) {
	child := sayAgent(t, "worker", "tick")

	loop, err := NewLoopAgent("retry_loop", 3, child)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	h := newAgentHarness(t, loop, "go")
	if err := loop.Run(h.ictx); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	events := h.finish()

	if child.runCount != 3 {
		t.Fatalf("expected 3 runs, got %d", child.runCount)
	}
	if len(events) != 3 {
		t.Fatalf("expected 3 events, got %d", len(events))
	}
}

func TestLoopAgent_EscalationStopsLoop(t *testing.T) {
	child := newEscalatingAgent(t, "worker", 2)

	loop, err := NewLoopAgent("retry_loop", 10, child)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	h := newAgentHarness(t, loop, "go")
	if err := loop.Run(h.ictx); err != nil {
		t.Fatalf("expected clean stop, got %v", err)
	}
	events := h.finish()

	if child.runCount != 2 {
		t.Fatalf("expected 2 runs before escalation, got %d", child.runCount)
	}
	last := events[len(events)-1]
	if last.Actions.Escalate == nil || !*last.Actions.Escalate {
		t.Fatalf("expected final event to carry the escalation flag")
	}
}

func TestLoopAgent_ErrEscalatedStopsLoop(t *testing.T) {
	child := newTestChildAgent(t, "worker", func(ictx *core.InvocationContext) error {
		return ErrEscalated
	})

	loop, err := NewLoopAgent("retry_loop", 0, child)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	h := newAgentHarness(t, loop, "go")
	if err := loop.Run(h.ictx); err != nil {
		t.Fatalf("expected clean stop, got %v", err)
	}
	h.finish()

	if child.runCount != 1 {
		t.Fatalf("expected a single run, got %d", child.runCount)
	}
}

func TestLoopAgent_RunsChildrenInOrderEachIteration(t *testing.T) {
	first := sayAgent(t, "draft", "draft text")
	second := sayAgent(t, "review", "review notes")

	loop, err := NewLoopAgent("revise_loop", 2, first, second)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	h := newAgentHarness(t, loop, "go")
	if err := loop.Run(h.ictx); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	events := h.finish()

	want := []string{"draft", "review", "draft", "review"}
	got := authors(events)
	if len(got) != len(want) {
		t.Fatalf("expected %d events, got %d", len(want), len(got))
	}
	for i := range want {
		if got[i] != want[i] {
			t.Fatalf("event %d: expected author %s, got %s", i, want[i], got[i])
		}
	}
}

func TestLoopAgent_StateVisibleAcrossIterations(t *testing.T) {
	child := newTestChildAgent(t, "counter", func(ictx *core.InvocationContext) error {
		count := 0
		if v, ok := ictx.GetState("count"); ok {
			count = v.(int)
		}
		ictx.SetState("count", count+1)
		return ictx.Dispatch(core.NewMessageEvent(ictx.InvocationID, "counter", "counted"))
	})

	loop, err := NewLoopAgent("count_loop", 3, child)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	h := newAgentHarness(t, loop, "go")
	if err := loop.Run(h.ictx); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	h.finish()

	if got := h.session.StateMap()["count"]; got != 3 {
		t.Fatalf("expected count 3, got %v", got)
	}
}

func TestLoopAgent_ChildErrorStopsLoop(t *testing.T) {
	sentinel := errors.New("boom")
	child := newTestChildAgent(t, "worker", func(*core.InvocationContext) error { return sentinel })

	loop, err := NewLoopAgent("retry_loop", 5, child)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	h := newAgentHarness(t, loop, "go")
	err = loop.Run(h.ictx)
	h.finish()

	if !errors.Is(err, sentinel) {
		t.Fatalf("expected wrapped sentinel error, got %v", err)
	}
	if child.runCount != 1 {
		t.Fatalf("expected a single run, got %d", child.runCount)
	}
}
