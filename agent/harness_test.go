package agent

import (
	"context"
	"sync"
	"testing"

	"github.com/hupe1980/agentloop/core"
	"github.com/hupe1980/agentloop/logging"
	"github.com/stretchr/testify/require"
)

// testChildAgent is a lightweight concrete agent used for testing composite
// agents. It records the invocation context passed to Run and the number of
// executions, and delegates to an optional run function.
type testChildAgent struct {
	BaseAgent
	runFn       func(*core.InvocationContext) error
	receivedCtx *core.InvocationContext
	runCount    int
}

func newTestChildAgent(t *testing.T, name string, runFn func(*core.InvocationContext) error) *testChildAgent {
	t.Helper()
	base, err := NewBaseAgent(name)
	require.NoError(t, err)

	a := &testChildAgent{BaseAgent: base, runFn: runFn}
	a.attach(a)
	return a
}

func (a *testChildAgent) Run(ictx *core.InvocationContext) error {
	a.receivedCtx = ictx
	a.runCount++
	if a.runFn != nil {
		return a.runFn(ictx)
	}
	return nil
}

// sayAgent returns a child that dispatches one message event per run.
func sayAgent(t *testing.T, name, text string) *testChildAgent {
	t.Helper()
	return newTestChildAgent(t, name, func(ictx *core.InvocationContext) error {
		return ictx.Dispatch(core.NewMessageEvent(ictx.InvocationID, name, text))
	})
}

// agentHarness stands in for the runner: it drains the emit channel, appends
// non-partial events to the session and answers the resume handshake.
type agentHarness struct {
	t       *testing.T
	ictx    *core.InvocationContext
	session *core.Session
	emit    chan core.Event
	resume  chan struct{}

	mu       sync.Mutex
	events   []core.Event
	pumpDone chan struct{}
	finished bool
}

func newAgentHarness(t *testing.T, root core.Agent, userMessage string) *agentHarness {
	t.Helper()

	session := core.NewSession("app", "user-1", "sess-1", nil)
	userContent := core.NewTextContent("user", userMessage)
	userEv := core.NewUserMessageEvent("inv-1", userMessage)
	session.AddEvent(userEv)

	emit := make(chan core.Event)
	resume := make(chan struct{}, 1)

	ictx := core.NewInvocationContext(context.Background(), core.InvocationContextConfig{
		InvocationID: "inv-1",
		AppName:      "app",
		UserID:       "user-1",
		Agent:        root,
		UserContent:  userContent,
		Session:      session,
		Logger:       logging.NoOpLogger{},
		Emit:         emit,
		Resume:       resume,
	})

	h := &agentHarness{
		t:        t,
		ictx:     ictx,
		session:  session,
		emit:     emit,
		resume:   resume,
		pumpDone: make(chan struct{}),
	}
	go h.pump()
	return h
}

func (h *agentHarness) pump() {
	defer close(h.pumpDone)
	for ev := range h.emit {
		h.mu.Lock()
		h.events = append(h.events, ev)
		h.mu.Unlock()
		if !ev.IsPartial() {
			h.session.AddEvent(ev)
			h.resume <- struct{}{}
		}
	}
}

// finish stops the pump and returns the collected events. Call it after the
// agent's Run returned; no emitter may be active.
func (h *agentHarness) finish() []core.Event {
	if !h.finished {
		h.finished = true
		close(h.emit)
		<-h.pumpDone
	}
	h.mu.Lock()
	defer h.mu.Unlock()
	return append([]core.Event{}, h.events...)
}

// authors extracts the event author sequence for order assertions.
func authors(events []core.Event) []string {
	out := make([]string, len(events))
	for i, ev := range events {
		out[i] = ev.Author
	}
	return out
}
