// Package agent contains the agent implementations and composition
// primitives for building reasoning / orchestration trees in AgentLoop. The
// package covers three concerns:
//
//  1. Tree mechanics shared by every agent (BaseAgent): naming, parentage,
//     lookup.
//  2. Coordination patterns (SequentialAgent, ParallelAgent, LoopAgent) that
//     compose child agents without touching a model themselves.
//  3. The model-backed conversational agent (LLMAgent) that drives the flow
//     layer for reason→act turns, tool calling and agent transfer.
//
// Execution model:
//   - An agent's Run receives a *core.InvocationContext and emits events
//     through it; composite agents coordinate child Runs on derived contexts.
//   - SequentialAgent shares one context across children so state accumulates
//     in order; ParallelAgent forks an isolated branch per child; LoopAgent
//     re-runs its children while watching for escalation.
//   - CustomAgent wraps a plain function under the same contract for logic
//     that fits none of the above.
//
// Model specifics, tool abstractions and the turn pipeline live in the
// model, tool and flow packages to keep dependencies acyclic.
package agent
