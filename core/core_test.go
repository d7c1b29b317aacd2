package core

import (
	"context"
	"fmt"
	"sort"
	"sync"
)

// In-package fakes shared by the context tests. They implement the service
// interfaces with just enough behavior to observe interactions.

type fakeSessionService struct {
	mu       sync.Mutex
	sessions map[string]*Session
	appended []Event
}

func newFakeSessionService() *fakeSessionService {
	return &fakeSessionService{sessions: map[string]*Session{}}
}

func sessKey(appName, userID, sessionID string) string {
	return appName + "/" + userID + "/" + sessionID
}

func (s *fakeSessionService) Create(_ context.Context, appName, userID, sessionID string, state map[string]any) (*Session, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	key := sessKey(appName, userID, sessionID)
	if _, ok := s.sessions[key]; ok {
		return nil, ErrSessionExists
	}
	sess := NewSession(appName, userID, sessionID, state)
	s.sessions[key] = sess
	return sess, nil
}

func (s *fakeSessionService) Get(_ context.Context, appName, userID, sessionID string, optFns ...func(o *GetSessionOptions)) (*Session, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	sess, ok := s.sessions[sessKey(appName, userID, sessionID)]
	if !ok {
		return nil, ErrSessionNotFound
	}
	return sess, nil
}

func (s *fakeSessionService) List(_ context.Context, appName, userID string) ([]*Session, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []*Session
	for _, sess := range s.sessions {
		if sess.AppName == appName && sess.UserID == userID {
			out = append(out, sess)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

func (s *fakeSessionService) Delete(_ context.Context, appName, userID, sessionID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.sessions, sessKey(appName, userID, sessionID))
	return nil
}

func (s *fakeSessionService) AppendEvent(_ context.Context, sess *Session, ev Event) (Event, error) {
	if ev.IsPartial() {
		return ev, nil
	}
	s.mu.Lock()
	s.appended = append(s.appended, ev)
	s.mu.Unlock()
	sess.AddEvent(ev)
	return ev, nil
}

type fakeArtifactService struct {
	mu    sync.Mutex
	blobs map[string][]Artifact // key -> versions
}

func newFakeArtifactService() *fakeArtifactService {
	return &fakeArtifactService{blobs: map[string][]Artifact{}}
}

func (a *fakeArtifactService) key(appName, userID, sessionID, filename string) string {
	if IsUserScopedArtifact(filename) {
		return fmt.Sprintf("%s/%s/%s", appName, userID, filename)
	}
	return fmt.Sprintf("%s/%s/%s/%s", appName, userID, sessionID, filename)
}

func (a *fakeArtifactService) Save(_ context.Context, appName, userID, sessionID, filename string, data []byte, mimeType string) (int, error) {
	a.mu.Lock()
	defer a.mu.Unlock()
	k := a.key(appName, userID, sessionID, filename)
	version := len(a.blobs[k])
	a.blobs[k] = append(a.blobs[k], Artifact{Data: append([]byte{}, data...), MIMEType: mimeType, Version: version})
	return version, nil
}

func (a *fakeArtifactService) Get(_ context.Context, appName, userID, sessionID, filename string, optFns ...func(o *GetArtifactOptions)) (*Artifact, error) {
	opts := GetArtifactOptions{Version: -1}
	for _, fn := range optFns {
		fn(&opts)
	}
	a.mu.Lock()
	defer a.mu.Unlock()
	versions := a.blobs[a.key(appName, userID, sessionID, filename)]
	if len(versions) == 0 {
		return nil, ErrArtifactNotFound
	}
	idx := opts.Version
	if idx < 0 {
		idx = len(versions) - 1
	}
	if idx >= len(versions) {
		return nil, ErrArtifactNotFound
	}
	art := versions[idx]
	return &art, nil
}

func (a *fakeArtifactService) List(_ context.Context, appName, userID, sessionID string) ([]string, error) {
	return nil, nil
}

func (a *fakeArtifactService) Delete(_ context.Context, appName, userID, sessionID, filename string) error {
	a.mu.Lock()
	defer a.mu.Unlock()
	delete(a.blobs, a.key(appName, userID, sessionID, filename))
	return nil
}

func (a *fakeArtifactService) Versions(_ context.Context, appName, userID, sessionID, filename string) ([]int, error) {
	a.mu.Lock()
	defer a.mu.Unlock()
	versions := a.blobs[a.key(appName, userID, sessionID, filename)]
	out := make([]int, len(versions))
	for i := range versions {
		out[i] = i
	}
	return out, nil
}

type fakeMemoryService struct {
	mu      sync.Mutex
	added   []*Session
	results []MemorySearchResult
}

func (m *fakeMemoryService) AddSession(_ context.Context, sess *Session) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.added = append(m.added, sess)
	return nil
}

func (m *fakeMemoryService) Search(_ context.Context, appName, userID, query string) ([]MemorySearchResult, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.results, nil
}

// Compile-time interface compliance for the fakes.
var (
	_ SessionService  = (*fakeSessionService)(nil)
	_ ArtifactService = (*fakeArtifactService)(nil)
	_ MemoryService   = (*fakeMemoryService)(nil)
)

// newTestInvocationContext wires a root context over fresh fakes with
// buffered channels so tests can emit without a running consumer.
func newTestInvocationContext(sess *Session) (*InvocationContext, chan Event, chan struct{}) {
	emit := make(chan Event, 16)
	resume := make(chan struct{}, 16)
	ictx := NewInvocationContext(context.Background(), InvocationContextConfig{
		InvocationID:    NewInvocationID(),
		AppName:         sess.AppName,
		UserID:          sess.UserID,
		Session:         sess,
		SessionService:  newFakeSessionService(),
		ArtifactService: newFakeArtifactService(),
		MemoryService:   &fakeMemoryService{},
		Emit:            emit,
		Resume:          resume,
	})
	return ictx, emit, resume
}
