// Package session houses concrete implementations of core.SessionService.
// The interface itself (and the Session struct) live in the core package to
// centralize domain contracts. Keeping only implementations here prevents
// higher level packages (agents, runner) from depending on concrete storage.
//
// Services are responsible for the state scoping rules: app- and user-scoped
// keys are shared across sessions, temp-scoped keys are discarded on append,
// and a replay of a session's event log reproduces its materialized state.
//
// Add additional backends (Redis, Postgres, Firestore, etc.) in sub-packages
// without changing any calling code - only the wiring layer needs to decide
// which implementation to instantiate.
package session
