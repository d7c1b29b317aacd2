package core

import "testing"

func TestToolContext_OrchestrationVerbs(t *testing.T) {
	sess := NewSession("app", "u1", "s1", nil)
	ictx, _, _ := newTestInvocationContext(sess)

	actions := &EventActions{}
	tc := NewToolContext(ictx, "fc-42", actions)

	if tc.FunctionCallID() != "fc-42" {
		t.Fatalf("function call id mismatch: %q", tc.FunctionCallID())
	}

	tc.Transfer("billing_agent")
	if actions.TransferToAgent == nil || *actions.TransferToAgent != "billing_agent" {
		t.Fatal("transfer not recorded")
	}

	tc.Escalate()
	if actions.Escalate == nil || !*actions.Escalate {
		t.Fatal("escalate not recorded")
	}

	tc.SkipSummarization()
	if actions.SkipSummarization == nil || !*actions.SkipSummarization {
		t.Fatal("skip summarization not recorded")
	}

	tc.RequestCredential(map[string]any{"scheme": "oauth2"})
	cfg, ok := actions.RequestedAuthConfigs["fc-42"].(map[string]any)
	if !ok || cfg["scheme"] != "oauth2" {
		t.Fatalf("credential request not keyed by call id: %+v", actions.RequestedAuthConfigs)
	}
}

func TestToolContext_StateSharedWithInvocation(t *testing.T) {
	sess := NewSession("app", "u1", "s1", nil)
	ictx, _, _ := newTestInvocationContext(sess)

	tc := NewToolContext(ictx, "fc-1", nil)
	tc.SetState("ticket", "T1")

	// Visible to the invocation scope immediately, durable only later.
	if v, _ := ictx.GetState("ticket"); v != "T1" {
		t.Fatalf("tool write invisible to invocation: %v", v)
	}
	if _, ok := sess.GetState("ticket"); ok {
		t.Fatal("tool write persisted before event append")
	}
	if tc.Actions().StateDelta["ticket"] != "T1" {
		t.Fatal("tool write missing from actions delta")
	}
}
