// Package flow implements the model-interaction pipeline that drives an
// LLM-backed agent through one activation: request assembly, the model call
// with streamed partials, parallel function-call execution with request-order
// reconciliation, and the transfer handshake between agents.
//
// Two variants exist. The single flow serves leaf agents that keep control
// for the whole activation. The auto flow additionally advertises the
// transfer_to_agent tool and hands the rest of the invocation to the chosen
// target; Select picks it whenever an agent has transfer targets.
package flow
