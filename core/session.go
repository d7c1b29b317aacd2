package core

import (
	"context"
	"sync"
	"time"
)

// Session is a stateful conversational container identified by the triple
// (app name, user id, session id). It owns an append-only, totally ordered
// event log plus the key/value state materialized from the events' deltas.
// It is safe for concurrent access.
//
// Contract:
//   - The session service owns every Session instance; the runner and the
//     execution contexts hold references for the duration of a run, not copies.
//   - Accessors return defensive copies so callers cannot mutate internals.
//   - AddEvent applies an event's delta and appends the event under one lock,
//     so readers never observe the event without its delta or vice versa.
//   - Clone performs deep copies of maps/slices for safe divergence.
type Session struct {
	ID      string `json:"id"`
	AppName string `json:"app_name"`
	UserID  string `json:"user_id"`

	mu      sync.RWMutex
	state   map[string]any
	events  []Event
	updated time.Time
}

// NewSession creates a session for (appName, userID, sessionID) seeded with
// an optional initial state. A nil state is allowed.
func NewSession(appName, userID, sessionID string, state map[string]any) *Session {
	s := &Session{
		ID:      sessionID,
		AppName: appName,
		UserID:  userID,
		state:   map[string]any{},
		updated: time.Now().UTC(),
	}
	for k, v := range state {
		s.state[k] = v
	}
	return s
}

// GetState returns the value and existence flag for a state key.
func (s *Session) GetState(key string) (any, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	v, ok := s.state[key]
	return v, ok
}

// StateMap returns a defensive copy of the materialized state.
func (s *Session) StateMap() map[string]any {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make(map[string]any, len(s.state))
	for k, v := range s.state {
		out[k] = v
	}
	return out
}

// GetEvents returns a defensive copy of the full event slice in append order.
func (s *Session) GetEvents() []Event {
	s.mu.RLock()
	defer s.mu.RUnlock()
	events := make([]Event, len(s.events))
	copy(events, s.events)
	return events
}

// EventCount returns the number of appended events.
func (s *Session) EventCount() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.events)
}

// LastUpdateTime returns the time of the most recent append or state change.
func (s *Session) LastUpdateTime() time.Time {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.updated
}

// GetConversationHistory returns filtered events suitable for providing
// conversational context to models (excludes partials and non-conversational
// roles).
func (s *Session) GetConversationHistory() []Event {
	s.mu.RLock()
	defer s.mu.RUnlock()
	allowed := map[string]bool{"user": true, "assistant": true, "tool": true}
	res := make([]Event, 0, len(s.events))
	for _, ev := range s.events {
		if ev.Content == nil || !allowed[ev.Content.Role] {
			continue
		}
		if ev.IsPartial() {
			continue
		}
		res = append(res, ev)
	}
	return res
}

// AddEvent merges the event's state delta (invocation-scoped keys excluded)
// and appends the event under a single lock. Intended for SessionService
// implementations; all other code must go through the service.
func (s *Session) AddEvent(ev Event) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for k, v := range ev.Actions.StateDelta {
		if IsTempStateKey(k) {
			continue
		}
		s.state[k] = v
	}
	s.events = append(s.events, ev)
	s.updated = ev.Timestamp
}

// ApplyStateDelta merges the provided key/value pairs into the materialized
// state without appending an event. Intended for SessionService
// implementations (e.g. seeding scope tables on load).
func (s *Session) ApplyStateDelta(delta map[string]any) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for k, v := range delta {
		if IsTempStateKey(k) {
			continue
		}
		s.state[k] = v
	}
	s.updated = time.Now().UTC()
}

// Meta returns a copy carrying only the identifying fields and update time,
// with no events and no state. Used for listings.
func (s *Session) Meta() *Session {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return &Session{
		ID:      s.ID,
		AppName: s.AppName,
		UserID:  s.UserID,
		state:   map[string]any{},
		updated: s.updated,
	}
}

// Clone returns a deep copy of the session (state & events) safe for
// independent mutation, e.g. for history-narrowed views.
func (s *Session) Clone() *Session {
	s.mu.RLock()
	defer s.mu.RUnlock()
	clone := &Session{
		ID:      s.ID,
		AppName: s.AppName,
		UserID:  s.UserID,
		state:   make(map[string]any, len(s.state)),
		events:  make([]Event, len(s.events)),
		updated: s.updated,
	}
	for k, v := range s.state {
		clone.state[k] = v
	}
	copy(clone.events, s.events)
	return clone
}

// TruncateEvents narrows the event log in place according to opts. Only for
// SessionService implementations, and only on detached copies.
func (s *Session) TruncateEvents(opts GetSessionOptions) {
	s.mu.Lock()
	defer s.mu.Unlock()
	events := s.events
	if !opts.AfterTimestamp.IsZero() {
		kept := events[:0:0]
		for _, ev := range events {
			if ev.Timestamp.After(opts.AfterTimestamp) {
				kept = append(kept, ev)
			}
		}
		events = kept
	}
	if opts.NumRecentEvents > 0 && len(events) > opts.NumRecentEvents {
		events = events[len(events)-opts.NumRecentEvents:]
	}
	s.events = events
}

// GetSessionOptions narrows the event history returned by SessionService.Get.
// The zero value returns the full log.
type GetSessionOptions struct {
	// NumRecentEvents keeps only the trailing N events when > 0.
	NumRecentEvents int

	// AfterTimestamp drops events at or before the given instant when set.
	AfterTimestamp time.Time
}

// WithNumRecentEvents limits the returned history to the trailing n events.
func WithNumRecentEvents(n int) func(o *GetSessionOptions) {
	return func(o *GetSessionOptions) { o.NumRecentEvents = n }
}

// WithAfterTimestamp drops events at or before t from the returned history.
func WithAfterTimestamp(t time.Time) func(o *GetSessionOptions) {
	return func(o *GetSessionOptions) { o.AfterTimestamp = t }
}

// SessionService manages session persistence. Implementations must preserve
// event order, serialize appends per session id, and support returning the
// full event list plus materialized state for replay. Different sessions
// proceed fully independently.
type SessionService interface {
	// Create registers a new session. An empty sessionID asks the service to
	// generate one. Returns ErrSessionExists when the id is already taken.
	Create(ctx context.Context, appName, userID, sessionID string, state map[string]any) (*Session, error)

	// Get returns the session or ErrSessionNotFound. The returned state
	// includes app- and user-scoped entries merged under their prefixed keys.
	// Options narrow the event history; a narrowed session is a detached copy.
	Get(ctx context.Context, appName, userID, sessionID string, optFns ...func(o *GetSessionOptions)) (*Session, error)

	// List returns the sessions of (app, user) without events and without
	// state.
	List(ctx context.Context, appName, userID string) ([]*Session, error)

	// Delete removes a session. Deleting an absent session is not an error.
	Delete(ctx context.Context, appName, userID, sessionID string) error

	// AppendEvent applies the event's state delta (temp-scoped keys stripped,
	// app/user-scoped keys routed to their shared tables), appends the event
	// to the log and bumps the update time, atomically per session. Partial
	// events are returned unchanged without touching the session. Returns the
	// stored event.
	AppendEvent(ctx context.Context, sess *Session, ev Event) (Event, error)
}
