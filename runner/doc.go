// Package runner exposes the top-level driver that turns a user message into
// an ordered stream of events.
//
// A Runner owns one agent tree plus the services runs depend on (session,
// artifact, memory). Run loads the session, validates resumption messages
// against the open function calls in the log, appends the user event and then
// drives the resolved agent in its own goroutine. Every event the agent emits
// travels through a single pump that persists it (partials excluded),
// forwards it to the caller and only then releases the producing agent, so a
// caller never observes an event that is not yet durable.
//
// Cancellation is cooperative: once the context fires the pump stops
// forwarding, tool results that still arrive are appended with the
// Interrupted flag, and already-appended events stay untouched.
package runner
