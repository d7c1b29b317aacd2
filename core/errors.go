package core

import (
	"errors"
	"fmt"
)

// Sentinel errors surfaced by service implementations and the runner.
var (
	// ErrSessionNotFound is returned when a session lookup misses.
	ErrSessionNotFound = errors.New("session not found")

	// ErrSessionExists is returned when creating a session whose id is taken.
	ErrSessionExists = errors.New("session already exists")

	// ErrModelCallsLimitExceeded aborts a run that performed more model calls
	// than its RunConfig allows.
	ErrModelCallsLimitExceeded = errors.New("max model calls exceeded")

	// ErrNoMatchingFunctionCall rejects a resumption message whose function
	// response id does not match any open function call in the session.
	ErrNoMatchingFunctionCall = errors.New("no matching open function call")
)

// ResumeError reports a malformed resumption attempt. It wraps
// ErrNoMatchingFunctionCall so callers can test with errors.Is.
type ResumeError struct {
	CallID string // The function call id the caller tried to resolve
	Reason string
}

// Error implements the error interface.
func (e *ResumeError) Error() string {
	return fmt.Sprintf("invalid resumption for call id %q: %s", e.CallID, e.Reason)
}

// Unwrap exposes the sentinel for errors.Is checks.
func (e *ResumeError) Unwrap() error { return ErrNoMatchingFunctionCall }
