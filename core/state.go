package core

import "strings"

// State key prefixes partition a flat key/value map into scopes:
//
//   - StateAppPrefix: shared by every user of the application, persists.
//   - StateUserPrefix: shared by every session of the same (app, user), persists.
//   - StateTempPrefix: scoped to the current invocation, never persisted.
//   - No prefix: scoped to the session, persists for its lifetime.
//
// Session services are responsible for routing prefixed keys to their backing
// scope tables and for discarding temporary keys on append.
const (
	StateAppPrefix  = "app:"
	StateUserPrefix = "user:"
	StateTempPrefix = "temp:"
)

// IsTempStateKey reports whether the key lives in the invocation-scoped
// namespace that is discarded when the invocation ends.
func IsTempStateKey(key string) bool { return strings.HasPrefix(key, StateTempPrefix) }

// State is a read/write view over a base value map plus an uncommitted delta.
// Reads consult the delta first, so staged writes are visible to in-process
// callers immediately while the base map stays untouched until the owning
// event is appended (two-phase visibility).
type State struct {
	value map[string]any
	delta map[string]any
}

// NewState builds a state view. Nil maps are replaced with empty ones; the
// maps are referenced, not copied, so writes through Set are observable by
// the owner of the delta map.
func NewState(value, delta map[string]any) *State {
	if value == nil {
		value = map[string]any{}
	}
	if delta == nil {
		delta = map[string]any{}
	}
	return &State{value: value, delta: delta}
}

// Get returns the staged value for key if present, else the base value.
func (s *State) Get(key string) (any, bool) {
	if v, ok := s.delta[key]; ok {
		return v, true
	}
	v, ok := s.value[key]
	return v, ok
}

// Has reports whether the key exists in either layer.
func (s *State) Has(key string) bool {
	_, ok := s.Get(key)
	return ok
}

// Set stages a write. The value becomes immediately readable through Get and
// is recorded in the delta for later persistence.
func (s *State) Set(key string, value any) {
	s.value[key] = value
	s.delta[key] = value
}

// Delta returns a copy of the uncommitted delta.
func (s *State) Delta() map[string]any {
	out := make(map[string]any, len(s.delta))
	for k, v := range s.delta {
		out[k] = v
	}
	return out
}

// HasDelta reports whether any writes are staged.
func (s *State) HasDelta() bool { return len(s.delta) > 0 }

// All returns a merged copy of base and delta, delta winning per key.
func (s *State) All() map[string]any {
	out := make(map[string]any, len(s.value)+len(s.delta))
	for k, v := range s.value {
		out[k] = v
	}
	for k, v := range s.delta {
		out[k] = v
	}
	return out
}
