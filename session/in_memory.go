package session

import (
	"context"
	"fmt"
	"strings"
	"sync"

	"github.com/google/uuid"

	"github.com/hupe1980/agentloop/core"
)

// InMemoryService is a volatile SessionService implementation storing
// sessions in process local maps keyed by (app name, user id, session id).
// App- and user-scoped state lives in shared tables so sessions of the same
// app or user observe each other's writes. It is safe for concurrent access
// and best suited for tests or ephemeral demo servers.
type InMemoryService struct {
	mu sync.RWMutex

	// app -> user -> session id -> session
	sessions map[string]map[string]map[string]*core.Session

	// app -> key (prefix stripped) -> value
	appState map[string]map[string]any

	// app -> user -> key (prefix stripped) -> value
	userState map[string]map[string]map[string]any
}

// NewInMemoryService constructs an empty in-memory session service.
func NewInMemoryService() *InMemoryService {
	return &InMemoryService{
		sessions:  make(map[string]map[string]map[string]*core.Session),
		appState:  make(map[string]map[string]any),
		userState: make(map[string]map[string]map[string]any),
	}
}

// Create registers a new session. An empty sessionID asks the service to
// generate one. App- and user-scoped keys in the initial state are routed to
// their shared tables.
func (s *InMemoryService) Create(ctx context.Context, appName, userID, sessionID string, state map[string]any) (*core.Session, error) {
	if sessionID == "" {
		sessionID = uuid.NewString()
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.lookupLocked(appName, userID, sessionID); ok {
		return nil, fmt.Errorf("%w: %s", core.ErrSessionExists, sessionID)
	}

	sessionState := make(map[string]any, len(state))
	for k, v := range state {
		switch {
		case core.IsTempStateKey(k):
			continue
		case strings.HasPrefix(k, core.StateAppPrefix):
			s.setAppStateLocked(appName, strings.TrimPrefix(k, core.StateAppPrefix), v)
		case strings.HasPrefix(k, core.StateUserPrefix):
			s.setUserStateLocked(appName, userID, strings.TrimPrefix(k, core.StateUserPrefix), v)
		default:
			sessionState[k] = v
		}
	}

	sess := core.NewSession(appName, userID, sessionID, sessionState)
	if s.sessions[appName] == nil {
		s.sessions[appName] = make(map[string]map[string]*core.Session)
	}
	if s.sessions[appName][userID] == nil {
		s.sessions[appName][userID] = make(map[string]*core.Session)
	}
	s.sessions[appName][userID][sessionID] = sess

	sess.ApplyStateDelta(s.scopedStateLocked(appName, userID))
	return sess, nil
}

// Get returns the stored session with app- and user-scoped state merged in
// under the prefixed keys, or ErrSessionNotFound. Without options the live
// instance is returned; with narrowing options a detached copy is returned.
func (s *InMemoryService) Get(ctx context.Context, appName, userID, sessionID string, optFns ...func(o *core.GetSessionOptions)) (*core.Session, error) {
	var opts core.GetSessionOptions
	for _, fn := range optFns {
		fn(&opts)
	}

	s.mu.RLock()
	sess, ok := s.lookupLocked(appName, userID, sessionID)
	var scoped map[string]any
	if ok {
		scoped = s.scopedStateLocked(appName, userID)
	}
	s.mu.RUnlock()

	if !ok {
		return nil, fmt.Errorf("%w: %s", core.ErrSessionNotFound, sessionID)
	}

	sess.ApplyStateDelta(scoped)
	if opts == (core.GetSessionOptions{}) {
		return sess, nil
	}

	narrowed := sess.Clone()
	narrowed.TruncateEvents(opts)
	return narrowed, nil
}

// List returns the sessions of (appName, userID) without events and without
// state.
func (s *InMemoryService) List(ctx context.Context, appName, userID string) ([]*core.Session, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	byID := s.sessions[appName][userID]
	out := make([]*core.Session, 0, len(byID))
	for _, sess := range byID {
		out = append(out, sess.Meta())
	}
	return out, nil
}

// Delete removes a session. Deleting an absent session is not an error.
func (s *InMemoryService) Delete(ctx context.Context, appName, userID, sessionID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	byID := s.sessions[appName][userID]
	delete(byID, sessionID)
	if len(byID) == 0 {
		delete(s.sessions[appName], userID)
	}
	if len(s.sessions[appName]) == 0 {
		delete(s.sessions, appName)
	}
	return nil
}

// AppendEvent applies the event's state delta and appends the event to the
// session log atomically per session. Temp-scoped keys are stripped from the
// stored event so a replay of the log reproduces the state exactly; app- and
// user-scoped keys are routed to the shared tables in addition to the
// session's own materialized state. Partial events are returned unchanged
// without touching the session.
func (s *InMemoryService) AppendEvent(ctx context.Context, sess *core.Session, ev core.Event) (core.Event, error) {
	if ev.IsPartial() {
		return ev, nil
	}

	stored := stripTempKeys(ev)

	s.mu.Lock()
	target, ok := s.lookupLocked(sess.AppName, sess.UserID, sess.ID)
	if !ok {
		s.mu.Unlock()
		return core.Event{}, fmt.Errorf("%w: %s", core.ErrSessionNotFound, sess.ID)
	}
	for k, v := range stored.Actions.StateDelta {
		switch {
		case strings.HasPrefix(k, core.StateAppPrefix):
			s.setAppStateLocked(sess.AppName, strings.TrimPrefix(k, core.StateAppPrefix), v)
		case strings.HasPrefix(k, core.StateUserPrefix):
			s.setUserStateLocked(sess.AppName, sess.UserID, strings.TrimPrefix(k, core.StateUserPrefix), v)
		}
	}
	s.mu.Unlock()

	target.AddEvent(stored)
	if target != sess {
		// Caller holds a detached (e.g. history-narrowed) copy; keep it in step.
		sess.AddEvent(stored)
	}
	return stored, nil
}

func (s *InMemoryService) lookupLocked(appName, userID, sessionID string) (*core.Session, bool) {
	sess, ok := s.sessions[appName][userID][sessionID]
	return sess, ok
}

func (s *InMemoryService) setAppStateLocked(appName, key string, value any) {
	if s.appState[appName] == nil {
		s.appState[appName] = make(map[string]any)
	}
	s.appState[appName][key] = value
}

func (s *InMemoryService) setUserStateLocked(appName, userID, key string, value any) {
	if s.userState[appName] == nil {
		s.userState[appName] = make(map[string]map[string]any)
	}
	if s.userState[appName][userID] == nil {
		s.userState[appName][userID] = make(map[string]any)
	}
	s.userState[appName][userID][key] = value
}

// scopedStateLocked builds the prefixed view of the shared app/user tables.
func (s *InMemoryService) scopedStateLocked(appName, userID string) map[string]any {
	merged := make(map[string]any)
	for k, v := range s.appState[appName] {
		merged[core.StateAppPrefix+k] = v
	}
	for k, v := range s.userState[appName][userID] {
		merged[core.StateUserPrefix+k] = v
	}
	return merged
}

// stripTempKeys returns a copy of the event whose state delta no longer
// carries invocation-scoped keys.
func stripTempKeys(ev core.Event) core.Event {
	if len(ev.Actions.StateDelta) == 0 {
		return ev
	}
	delta := make(map[string]any, len(ev.Actions.StateDelta))
	for k, v := range ev.Actions.StateDelta {
		if core.IsTempStateKey(k) {
			continue
		}
		delta[k] = v
	}
	ev.Actions.StateDelta = delta
	return ev
}
