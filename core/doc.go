// Package core provides the foundational domain types, interfaces and execution
// contexts of the runtime. It defines the core abstractions for:
//
//   - Agents (units of autonomous / orchestrated work)
//   - Sessions (stateful conversational containers with an append-only event log)
//   - Events (immutable communication + orchestration records)
//   - State (scoped key/value data materialized from event deltas)
//   - InvocationContext / CallbackContext / ToolContext (scoped execution)
//   - Pluggable services for session state, artifacts and memory recall/search
//
// Implementation concerns (persistence, runner orchestration, concrete
// agents) live in the packages above; core exposes small interfaces for
// custom backends and extensions. Everything higher up communicates through
// the types defined here, which keeps the layering acyclic: core has no
// dependency on the agent, flow, tool or runner packages.
package core
