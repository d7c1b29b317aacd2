package flow

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/hupe1980/agentloop/core"
	"github.com/hupe1980/agentloop/model"
	"github.com/hupe1980/agentloop/telemetry"
	"github.com/hupe1980/agentloop/tool"
)

// DefaultMaxParallelTools bounds concurrent tool execution per model turn
// unless overridden.
const DefaultMaxParallelTools = 4

// Options configures a flow.
type Options struct {
	// MaxParallelTools limits how many tool calls from one model turn run
	// concurrently. Zero or negative selects DefaultMaxParallelTools.
	MaxParallelTools int
}

// LLMFlow is the shared engine behind the single and auto flows. Each step
// assembles a request through the processors, calls the model (streaming
// partials through as they arrive), executes any function calls and merges
// their results, then decides whether another turn is needed.
type LLMFlow struct {
	processors       []RequestProcessor
	allowTransfer    bool
	maxParallelTools int
}

// NewSingleFlow builds the flow for leaf agents without transfer targets.
func NewSingleFlow(optFns ...func(o *Options)) *LLMFlow {
	o := Options{}
	for _, fn := range optFns {
		fn(&o)
	}
	return &LLMFlow{
		processors: []RequestProcessor{
			&instructionsProcessor{},
			&identityProcessor{},
			&contentsProcessor{},
		},
		maxParallelTools: effectiveMaxParallel(o.MaxParallelTools),
	}
}

// NewAutoFlow builds the flow for agents that may hand control to another
// agent. It adds the transfer processor and enables the transfer handshake.
func NewAutoFlow(optFns ...func(o *Options)) *LLMFlow {
	o := Options{}
	for _, fn := range optFns {
		fn(&o)
	}
	return &LLMFlow{
		processors: []RequestProcessor{
			&instructionsProcessor{},
			&identityProcessor{},
			&contentsProcessor{},
			&transferProcessor{},
		},
		allowTransfer:    true,
		maxParallelTools: effectiveMaxParallel(o.MaxParallelTools),
	}
}

func effectiveMaxParallel(n int) int {
	if n <= 0 {
		return DefaultMaxParallelTools
	}
	return n
}

// Run drives model turns until the invocation reaches a final response.
func (f *LLMFlow) Run(ictx *core.InvocationContext, agent FlowAgent) error {
	for {
		last, err := f.step(ictx, agent)
		if err != nil {
			return err
		}
		if last == nil || ictx.EndInvocation() {
			return nil
		}
		if name := last.Actions.TransferToAgent; name != nil && *name != "" {
			if !f.allowTransfer {
				return fmt.Errorf("agent %q requested transfer to %q without transfer targets", agent.Name(), *name)
			}
			return runTransfer(ictx, *name)
		}
		if last.IsFinalResponse() {
			return nil
		}
	}
}

// step performs one model turn and returns the last event it emitted.
func (f *LLMFlow) step(ictx *core.InvocationContext, agent FlowAgent) (*core.Event, error) {
	req := &model.Request{}
	for _, p := range f.processors {
		if err := p.ProcessRequest(ictx, agent, req); err != nil {
			return nil, fmt.Errorf("request processor %s: %w", p.Name(), err)
		}
	}

	registry := f.toolRegistry(agent)
	req.Tools = declarations(registry)
	req.Stream = ictx.RunConfig.StreamingMode == core.StreamingModeSSE

	// One actions record for the whole model boundary, so callback writes
	// travel on the response event.
	cctx := core.NewCallbackContext(ictx)

	resp, err := f.callModel(ictx, agent, cctx, req)
	if err != nil {
		return nil, err
	}

	ev := f.finalizeModelEvent(ictx, agent, cctx, registry, resp)
	if err := ictx.Dispatch(ev); err != nil {
		return nil, err
	}
	last := &ev

	if len(ev.GetFunctionCalls()) == 0 {
		return last, nil
	}

	respEv, authEv := f.executeFunctionCalls(ictx, agent, registry, ev)
	if respEv != nil {
		if err := ictx.Dispatch(*respEv); err != nil {
			return nil, err
		}
		last = respEv
	}
	if authEv != nil {
		if err := ictx.Dispatch(*authEv); err != nil {
			return nil, err
		}
		last = authEv
	}
	return last, nil
}

// callModel runs the before-model chain, the model call itself and the
// after-model chain. Partial responses are forwarded as partial events while
// streaming; the final response is returned for event finalization.
func (f *LLMFlow) callModel(ictx *core.InvocationContext, agent FlowAgent, cctx *core.CallbackContext, req *model.Request) (*model.Response, error) {
	for _, cb := range agent.BeforeModelCallbacks() {
		override, err := cb(cctx, req)
		if err != nil {
			return nil, fmt.Errorf("before-model callback: %w", err)
		}
		if override != nil {
			return afterModel(agent, cctx, override)
		}
	}

	llm := agent.Model()
	if llm == nil {
		return nil, fmt.Errorf("agent %q has no model", agent.Name())
	}

	if err := ictx.IncrementModelCalls(); err != nil {
		return nil, err
	}

	ctx, span := telemetry.StartModelSpan(ictx.Context, ictx, req)
	start := time.Now()
	respCh, errCh := llm.Generate(ctx, *req)

	var final *model.Response
	for resp := range respCh {
		if resp.Partial {
			if req.Stream && resp.Content != nil {
				if err := emitPartial(ictx, agent, resp); err != nil {
					telemetry.EndSpan(span, err)
					return nil, err
				}
			}
			continue
		}
		r := resp
		final = &r
	}
	if err := <-errCh; err != nil {
		telemetry.EndSpan(span, err)
		ictx.Logger.Error("model call failed",
			"agent", agent.Name(),
			"model", llm.Info().Name,
			"error", err.Error(),
		)
		emitModelError(ictx, agent, err)
		return nil, err
	}
	telemetry.EndSpan(span, nil)

	if final == nil {
		err := fmt.Errorf("model %q closed the stream without a final response", llm.Info().Name)
		emitModelError(ictx, agent, err)
		return nil, err
	}

	ictx.Logger.Debug("model call completed",
		"agent", agent.Name(),
		"model", llm.Info().Name,
		"duration", time.Since(start).String(),
	)

	return afterModel(agent, cctx, final)
}

// afterModel runs the after-model chain; the first non-nil response wins.
func afterModel(agent FlowAgent, cctx *core.CallbackContext, resp *model.Response) (*model.Response, error) {
	for _, cb := range agent.AfterModelCallbacks() {
		replacement, err := cb(cctx, resp)
		if err != nil {
			return nil, fmt.Errorf("after-model callback: %w", err)
		}
		if replacement != nil {
			return replacement, nil
		}
	}
	return resp, nil
}

// emitPartial forwards one streamed chunk as a partial event.
func emitPartial(ictx *core.InvocationContext, agent FlowAgent, resp model.Response) error {
	ev := core.NewEvent(ictx.InvocationID, agent.Name())
	ev.Content = resp.Content
	partial := true
	ev.Partial = &partial
	return ictx.EmitEvent(ev)
}

// emitModelError records a failed model call in the event log before the run
// aborts, so replay shows which turn died and why. Cancellations are a clean
// close, not an error worth recording. Best effort: the run is already ending
// with the original error.
func emitModelError(ictx *core.InvocationContext, agent FlowAgent, err error) {
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return
	}
	ev := core.NewErrorEvent(ictx.InvocationID, agent.Name(), "MODEL_ERROR", err.Error())
	_ = ictx.Dispatch(ev)
}

// finalizeModelEvent shapes the model's final response into the event the
// flow emits: authored by the agent, callback actions attached, call ids
// populated, long-running ids derived from the registry and the output-key
// delta staged when the turn ended in plain text.
func (f *LLMFlow) finalizeModelEvent(ictx *core.InvocationContext, agent FlowAgent, cctx *core.CallbackContext, reg map[string]tool.Tool, resp *model.Response) core.Event {
	ev := core.NewEvent(ictx.InvocationID, agent.Name())
	ev.Content = resp.Content
	ev.Actions.Merge(*cctx.Actions())
	if resp.TurnComplete {
		tc := true
		ev.TurnComplete = &tc
	}

	populateFunctionCallIDs(&ev)

	calls := ev.GetFunctionCalls()
	var longRunning []string
	for _, call := range calls {
		if t, ok := reg[call.Name]; ok && t.IsLongRunning() {
			longRunning = append(longRunning, call.ID)
		}
	}
	ev.LongRunningToolIDs = longRunning

	if key := agent.OutputKey(); key != "" && len(calls) == 0 {
		if text := ev.TextContent(); text != "" {
			if ev.Actions.StateDelta == nil {
				ev.Actions.StateDelta = map[string]any{}
			}
			ev.Actions.StateDelta[key] = text
		}
	}
	return ev
}

// populateFunctionCallIDs assigns ids to calls the model returned without
// one, so their responses can be paired later.
func populateFunctionCallIDs(ev *core.Event) {
	if ev.Content == nil {
		return
	}
	for i, p := range ev.Content.Parts {
		fcp, ok := p.(core.FunctionCallPart)
		if !ok || fcp.FunctionCall.ID != "" {
			continue
		}
		fcp.FunctionCall.ID = core.NewFunctionCallID()
		ev.Content.Parts[i] = fcp
	}
}
