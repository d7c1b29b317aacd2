package flow

import (
	"strings"
	"testing"

	"github.com/hupe1980/agentloop/core"
	"github.com/hupe1980/agentloop/model"
	"github.com/hupe1980/agentloop/tool"
)

func TestInstructionsProcessorRendersTemplates(t *testing.T) {
	agent := &stubAgent{name: "helper", instruction: "Assist {{.username}} politely."}
	h := newFlowHarness(t, agent, "hi", core.RunConfig{})
	h.ictx.SetState("username", "Ada")

	req := &model.Request{}
	if err := (&instructionsProcessor{}).ProcessRequest(h.ictx, agent, req); err != nil {
		t.Fatalf("process failed: %v", err)
	}
	if !strings.Contains(req.Instructions, "Assist Ada politely.") {
		t.Errorf("instructions = %q", req.Instructions)
	}
}

func TestInstructionsProcessorGlobalPreamble(t *testing.T) {
	child := &stubAgent{name: "child", instruction: "Answer tersely."}
	root := &stubAgent{name: "root", globalText: "Always respond in English."}
	if err := root.SetSubAgents(child); err != nil {
		t.Fatalf("set sub agents: %v", err)
	}

	h := newFlowHarness(t, child, "hi", core.RunConfig{})

	req := &model.Request{}
	if err := (&instructionsProcessor{}).ProcessRequest(h.ictx, child, req); err != nil {
		t.Fatalf("process failed: %v", err)
	}
	gi := strings.Index(req.Instructions, "Always respond in English.")
	ci := strings.Index(req.Instructions, "Answer tersely.")
	if gi == -1 || ci == -1 || gi > ci {
		t.Errorf("global preamble must precede the agent instruction: %q", req.Instructions)
	}
}

func TestIdentityProcessor(t *testing.T) {
	agent := &stubAgent{name: "billing", description: "Handles invoices and refunds"}
	h := newFlowHarness(t, agent, "hi", core.RunConfig{})

	req := &model.Request{}
	if err := (&identityProcessor{}).ProcessRequest(h.ictx, agent, req); err != nil {
		t.Fatalf("process failed: %v", err)
	}
	if !strings.Contains(req.Instructions, `"billing"`) {
		t.Errorf("agent name missing: %q", req.Instructions)
	}
	if !strings.Contains(req.Instructions, "Handles invoices and refunds") {
		t.Errorf("description missing: %q", req.Instructions)
	}
}

func TestContentsProcessorFiltersHistory(t *testing.T) {
	agent := &stubAgent{name: "main"}
	h := newFlowHarness(t, agent, "current question", core.RunConfig{})

	sess := h.ictx.Session
	partial := true
	pe := core.NewMessageEvent(h.ictx.InvocationID, "main", "chunk")
	pe.Partial = &partial
	sess.AddEvent(pe)

	foreign := core.NewMessageEvent(h.ictx.InvocationID, "other", "hidden")
	branch := "parallel.other"
	foreign.Branch = &branch
	sess.AddEvent(foreign)

	visible := core.NewMessageEvent(h.ictx.InvocationID, "main", "earlier answer")
	sess.AddEvent(visible)

	req := &model.Request{}
	if err := (&contentsProcessor{}).ProcessRequest(h.ictx, agent, req); err != nil {
		t.Fatalf("process failed: %v", err)
	}

	if len(req.Contents) != 2 {
		t.Fatalf("expected user message + visible answer, got %d", len(req.Contents))
	}
	if req.Contents[0].Text() != "current question" {
		t.Errorf("first content = %q", req.Contents[0].Text())
	}
	if req.Contents[1].Text() != "earlier answer" {
		t.Errorf("second content = %q", req.Contents[1].Text())
	}
}

func TestContentsProcessorIncludeNone(t *testing.T) {
	agent := &stubAgent{name: "main", include: IncludeContentsNone}
	h := newFlowHarness(t, agent, "just this", core.RunConfig{})

	h.ictx.Session.AddEvent(core.NewMessageEvent(h.ictx.InvocationID, "main", "old history"))

	req := &model.Request{}
	if err := (&contentsProcessor{}).ProcessRequest(h.ictx, agent, req); err != nil {
		t.Fatalf("process failed: %v", err)
	}

	if len(req.Contents) != 1 {
		t.Fatalf("expected only the triggering message, got %d", len(req.Contents))
	}
	if req.Contents[0].Text() != "just this" {
		t.Errorf("content = %q", req.Contents[0].Text())
	}
}

func TestTransferProcessorAdvertisesTargets(t *testing.T) {
	billing := &echoAgent{name: "billing"}
	support := &echoAgent{name: "support"}
	agent := &stubAgent{name: "router", targets: []core.Agent{billing, support}}
	h := newFlowHarness(t, agent, "hi", core.RunConfig{})

	req := &model.Request{}
	if err := (&transferProcessor{}).ProcessRequest(h.ictx, agent, req); err != nil {
		t.Fatalf("process failed: %v", err)
	}

	for _, want := range []string{"billing", "support", tool.TransferToAgentName} {
		if !strings.Contains(req.Instructions, want) {
			t.Errorf("instructions missing %q: %q", want, req.Instructions)
		}
	}
}

func TestTransferProcessorNoTargets(t *testing.T) {
	agent := &stubAgent{name: "leaf"}
	h := newFlowHarness(t, agent, "hi", core.RunConfig{})

	req := &model.Request{}
	if err := (&transferProcessor{}).ProcessRequest(h.ictx, agent, req); err != nil {
		t.Fatalf("process failed: %v", err)
	}
	if req.Instructions != "" {
		t.Errorf("no instructions expected without targets, got %q", req.Instructions)
	}
}
