package testutil

import (
	"github.com/hupe1980/agentloop/core"
)

// SessionBuilder assembles sessions with pre-populated histories for tests.
//
//	sess := NewSessionBuilder("sess-1").ForApp("app", "u1").Events(ev1, ev2).Build()
type SessionBuilder struct {
	appName string
	userID  string
	id      string
	events  []core.Event
}

// NewSessionBuilder creates a builder for a session with the given id under
// default app/user identifiers.
func NewSessionBuilder(id string) *SessionBuilder {
	return &SessionBuilder{appName: "test-app", userID: "test-user", id: id}
}

// ForApp overrides the app name and user id the session belongs to (chainable).
func (b *SessionBuilder) ForApp(appName, userID string) *SessionBuilder {
	b.appName = appName
	b.userID = userID
	return b
}

// Events appends events to the session history (chainable).
func (b *SessionBuilder) Events(evs ...core.Event) *SessionBuilder {
	b.events = append(b.events, evs...)
	return b
}

// Build returns a *core.Session with the events applied in order, folding
// their state deltas the way the session service would.
func (b *SessionBuilder) Build() *core.Session {
	s := core.NewSession(b.appName, b.userID, b.id, nil)
	for _, ev := range b.events {
		s.AddEvent(ev)
	}
	return s
}
