package flow

import (
	"errors"
	"fmt"
	"runtime/debug"
	"sort"
	"sync"
	"time"

	"github.com/hupe1980/agentloop/core"
	"github.com/hupe1980/agentloop/model"
	"github.com/hupe1980/agentloop/telemetry"
	"github.com/hupe1980/agentloop/tool"
)

// callResult pairs one function call with its outcome for the ordered merge.
// resp stays nil for long-running calls that are still pending.
type callResult struct {
	call    core.FunctionCall
	resp    *core.FunctionResponse
	actions *core.EventActions
}

// panicErr carries a recovered tool panic with its stack.
type panicErr struct {
	val   any
	stack []byte
}

func (p *panicErr) Error() string {
	return fmt.Sprintf("tool panicked: %v\n%s", p.val, p.stack)
}

// toolRegistry returns the callable tools for this turn: the agent's own
// tools plus, on the auto flow, the injected transfer tool.
func (f *LLMFlow) toolRegistry(agent FlowAgent) map[string]tool.Tool {
	reg := make(map[string]tool.Tool, len(agent.Tools())+1)
	for name, t := range agent.Tools() {
		reg[name] = t
	}
	if f.allowTransfer {
		if targets := agent.TransferTargets(); len(targets) > 0 {
			names := make([]string, 0, len(targets))
			for _, t := range targets {
				names = append(names, t.Name())
			}
			tt := tool.NewTransferToAgentTool(names...)
			reg[tt.Name()] = tt
		}
	}
	return reg
}

// declarations converts the registry into model-facing tool declarations,
// sorted by name so prompts stay deterministic.
func declarations(reg map[string]tool.Tool) []model.ToolDeclaration {
	if len(reg) == 0 {
		return nil
	}
	names := make([]string, 0, len(reg))
	for name := range reg {
		names = append(names, name)
	}
	sort.Strings(names)
	decls := make([]model.ToolDeclaration, 0, len(names))
	for _, name := range names {
		t := reg[name]
		decls = append(decls, model.ToolDeclaration{
			Name:        t.Name(),
			Description: t.Description(),
			Parameters:  t.Parameters(),
		})
	}
	return decls
}

// executeFunctionCalls runs every call from the model event, concurrently
// under a bounded semaphore when there is more than one, then merges the
// outcomes back in request order into a single function-response event. The
// second return value is the credential handshake event, non-nil when any
// tool requested authentication.
func (f *LLMFlow) executeFunctionCalls(ictx *core.InvocationContext, agent FlowAgent, reg map[string]tool.Tool, modelEv core.Event) (*core.Event, *core.Event) {
	calls := modelEv.GetFunctionCalls()
	results := make([]callResult, len(calls))

	if len(calls) == 1 {
		results[0] = f.executeCall(ictx, agent, reg, calls[0])
	} else {
		sem := make(chan struct{}, f.maxParallelTools)
		var wg sync.WaitGroup
		for i, call := range calls {
			wg.Add(1)
			go func(i int, call core.FunctionCall) {
				defer wg.Done()
				sem <- struct{}{}
				defer func() { <-sem }()
				results[i] = f.executeCall(ictx, agent, reg, call)
			}(i, call)
		}
		wg.Wait()
	}

	return buildFunctionResponseEvent(ictx, agent, results), buildAuthRequestEvent(ictx, agent, results)
}

// executeCall runs one function call through the callback chain and the tool
// itself, capturing panics as execution errors. Each call accumulates its own
// actions record for the merge.
func (f *LLMFlow) executeCall(ictx *core.InvocationContext, agent FlowAgent, reg map[string]tool.Tool, call core.FunctionCall) (res callResult) {
	actions := &core.EventActions{}
	res = callResult{call: call, actions: actions}

	t, ok := reg[call.Name]
	if !ok {
		res.resp = errorResponse(call, tool.NewToolError(call.Name, "tool not found", tool.ErrCodeUnknownTool))
		return res
	}

	defer func() {
		if r := recover(); r != nil {
			perr := &panicErr{val: r, stack: debug.Stack()}
			ictx.Logger.Error("tool panicked", "tool", call.Name, "panic", fmt.Sprintf("%v", r))
			res.resp = errorResponse(call, tool.NewToolError(call.Name, perr.Error(), tool.ErrCodeExecution))
		}
	}()

	args := call.Args
	if args == nil {
		args = map[string]any{}
	}

	tctx := core.NewToolContext(ictx, call.ID, actions)
	result, pending, err := f.runTool(agent, tctx, t, args)
	if err != nil {
		res.resp = errorResponse(call, err)
		return res
	}
	if pending {
		return res
	}

	res.resp = &core.FunctionResponse{ID: call.ID, Name: call.Name, Response: result}
	return res
}

// runTool applies the before/after tool callback chains around the actual
// call. The bool return reports a long-running call that has not produced a
// result yet.
func (f *LLMFlow) runTool(agent FlowAgent, tctx *core.ToolContext, t tool.Tool, args map[string]any) (map[string]any, bool, error) {
	for _, cb := range agent.BeforeToolCallbacks() {
		override, err := cb(tctx, t, args)
		if err != nil {
			return nil, false, err
		}
		if override != nil {
			result, err := afterTool(agent, tctx, t, args, override)
			return result, false, err
		}
	}

	ictx := tctx.InvocationContext()
	_, span := telemetry.StartToolSpan(ictx.Context, tctx, t)
	start := time.Now()
	raw, err := t.Call(tctx, args)
	telemetry.EndSpan(span, err)
	if err != nil {
		ictx.Logger.Warn("tool call failed",
			"tool", t.Name(),
			"duration", time.Since(start).String(),
			"error", err.Error(),
		)
		return nil, false, err
	}
	ictx.Logger.Debug("tool call completed",
		"tool", t.Name(),
		"duration", time.Since(start).String(),
	)

	if raw == nil && t.IsLongRunning() {
		return nil, true, nil
	}

	result, err := afterTool(agent, tctx, t, args, normalizeToolResult(raw))
	return result, false, err
}

// afterTool runs the after-tool chain; the first non-nil result wins.
func afterTool(agent FlowAgent, tctx *core.ToolContext, t tool.Tool, args, result map[string]any) (map[string]any, error) {
	for _, cb := range agent.AfterToolCallbacks() {
		replacement, err := cb(tctx, t, args, result)
		if err != nil {
			return nil, err
		}
		if replacement != nil {
			return replacement, nil
		}
	}
	return result, nil
}

// normalizeToolResult shapes arbitrary tool return values into the map the
// model receives. Maps pass through; anything else is wrapped under "result".
func normalizeToolResult(v any) map[string]any {
	switch r := v.(type) {
	case nil:
		return map[string]any{}
	case map[string]any:
		return r
	default:
		return map[string]any{"result": r}
	}
}

// errorResponse converts a tool failure into the error payload the model
// sees. Tool errors keep their machine-readable code.
func errorResponse(call core.FunctionCall, err error) *core.FunctionResponse {
	payload := map[string]any{"error": err.Error()}
	var terr *tool.ToolError
	if errors.As(err, &terr) && terr.Code != "" {
		payload["code"] = terr.Code
	}
	return &core.FunctionResponse{ID: call.ID, Name: call.Name, Response: payload, Error: err.Error()}
}

// buildFunctionResponseEvent merges the per-call outcomes into the single
// response event for this turn: responses in request order, actions merged
// the same way. Returns nil when every call is still pending.
func buildFunctionResponseEvent(ictx *core.InvocationContext, agent FlowAgent, results []callResult) *core.Event {
	parts := make([]core.Part, 0, len(results))
	actions := core.EventActions{}
	for _, r := range results {
		if r.actions != nil {
			actions.Merge(*r.actions)
		}
		if r.resp == nil {
			continue
		}
		parts = append(parts, core.FunctionResponsePart{FunctionResponse: *r.resp})
	}
	if len(parts) == 0 {
		return nil
	}
	ev := core.NewEvent(ictx.InvocationID, agent.Name())
	ev.Content = &core.Content{Role: "tool", Parts: parts}
	ev.Actions = actions
	return &ev
}

// buildAuthRequestEvent builds the credential handshake when any tool asked
// for one: a fresh long-running request_credential call per requesting tool
// call, so the invocation pauses until the user responds.
func buildAuthRequestEvent(ictx *core.InvocationContext, agent FlowAgent, results []callResult) *core.Event {
	var parts []core.Part
	var longRunning []string
	for _, r := range results {
		if r.actions == nil || len(r.actions.RequestedAuthConfigs) == 0 {
			continue
		}
		callIDs := make([]string, 0, len(r.actions.RequestedAuthConfigs))
		for id := range r.actions.RequestedAuthConfigs {
			callIDs = append(callIDs, id)
		}
		sort.Strings(callIDs)
		for _, originalID := range callIDs {
			id := core.NewFunctionCallID()
			longRunning = append(longRunning, id)
			parts = append(parts, core.FunctionCallPart{FunctionCall: core.FunctionCall{
				ID:   id,
				Name: RequestCredentialName,
				Args: map[string]any{
					"function_call_id": originalID,
					"auth_config":      r.actions.RequestedAuthConfigs[originalID],
				},
			}})
		}
	}
	if len(parts) == 0 {
		return nil
	}
	ev := core.NewEvent(ictx.InvocationID, agent.Name())
	ev.Content = &core.Content{Role: "assistant", Parts: parts}
	ev.LongRunningToolIDs = longRunning
	return &ev
}
