package artifact

import (
	"context"
	"fmt"
	"sort"
	"sync"

	"github.com/hupe1980/agentloop/core"
)

// InMemoryService is an in-process ArtifactService implementation useful for
// tests, examples and single-process prototypes. Artifacts are versioned:
// every Save appends a new immutable version and versions number up from 0.
// Data is copied on save and load to avoid accidental external mutation of
// internal buffers.
//
// Layout: scope path -> filename -> ordered versions, where the scope path is
// app/user/session for plain filenames and app/user for "user:" prefixed
// filenames, which are visible from every session of the same user.
//
// This implementation does not enforce retention limits, size quotas, or
// eviction. For production, prefer a durable implementation (e.g. S3 / GCS /
// database) that can scale and survive process restarts.
type InMemoryService struct {
	mu        sync.RWMutex
	artifacts map[string]map[string][]core.Artifact
}

// NewInMemoryService returns an empty in-memory artifact service.
func NewInMemoryService() *InMemoryService {
	return &InMemoryService{artifacts: make(map[string]map[string][]core.Artifact)}
}

// scopePath computes the map key an artifact lives under. User-scoped names
// drop the session component so all sessions of the user share them.
func scopePath(appName, userID, sessionID, filename string) string {
	if core.IsUserScopedArtifact(filename) {
		return fmt.Sprintf("%s/%s", appName, userID)
	}
	return fmt.Sprintf("%s/%s/%s", appName, userID, sessionID)
}

// Save stores a new version of the artifact and returns its version number.
// The input slice is copied before storage.
func (a *InMemoryService) Save(ctx context.Context, appName, userID, sessionID, filename string, data []byte, mimeType string) (int, error) {
	a.mu.Lock()
	defer a.mu.Unlock()

	scope := scopePath(appName, userID, sessionID, filename)
	if a.artifacts[scope] == nil {
		a.artifacts[scope] = make(map[string][]core.Artifact)
	}

	cp := make([]byte, len(data))
	copy(cp, data)
	version := len(a.artifacts[scope][filename])
	a.artifacts[scope][filename] = append(a.artifacts[scope][filename], core.Artifact{
		Data:     cp,
		MIMEType: mimeType,
		Version:  version,
	})
	return version, nil
}

// Get loads an artifact version (latest by default) or returns
// ErrArtifactNotFound. The returned data is a copy.
func (a *InMemoryService) Get(ctx context.Context, appName, userID, sessionID, filename string, optFns ...func(o *core.GetArtifactOptions)) (*core.Artifact, error) {
	opts := core.GetArtifactOptions{Version: -1}
	for _, fn := range optFns {
		fn(&opts)
	}

	a.mu.RLock()
	defer a.mu.RUnlock()

	versions := a.artifacts[scopePath(appName, userID, sessionID, filename)][filename]
	if len(versions) == 0 {
		return nil, fmt.Errorf("%w: %s", core.ErrArtifactNotFound, filename)
	}

	idx := opts.Version
	if idx < 0 {
		idx = len(versions) - 1
	}
	if idx >= len(versions) {
		return nil, fmt.Errorf("%w: %s version %d", core.ErrArtifactNotFound, filename, opts.Version)
	}

	stored := versions[idx]
	cp := make([]byte, len(stored.Data))
	copy(cp, stored.Data)
	return &core.Artifact{Data: cp, MIMEType: stored.MIMEType, Version: stored.Version}, nil
}

// List returns the artifact filenames visible from the session, sorted. Both
// session-scoped and user-scoped names are included.
func (a *InMemoryService) List(ctx context.Context, appName, userID, sessionID string) ([]string, error) {
	a.mu.RLock()
	defer a.mu.RUnlock()

	names := make([]string, 0)
	for filename := range a.artifacts[fmt.Sprintf("%s/%s/%s", appName, userID, sessionID)] {
		names = append(names, filename)
	}
	for filename := range a.artifacts[fmt.Sprintf("%s/%s", appName, userID)] {
		names = append(names, filename)
	}
	sort.Strings(names)
	return names, nil
}

// Delete removes all versions of an artifact. Deleting an absent artifact is
// not an error.
func (a *InMemoryService) Delete(ctx context.Context, appName, userID, sessionID, filename string) error {
	a.mu.Lock()
	defer a.mu.Unlock()

	scope := scopePath(appName, userID, sessionID, filename)
	delete(a.artifacts[scope], filename)
	if len(a.artifacts[scope]) == 0 {
		delete(a.artifacts, scope)
	}
	return nil
}

// Versions returns the stored version numbers for a filename, ascending.
func (a *InMemoryService) Versions(ctx context.Context, appName, userID, sessionID, filename string) ([]int, error) {
	a.mu.RLock()
	defer a.mu.RUnlock()

	stored := a.artifacts[scopePath(appName, userID, sessionID, filename)][filename]
	versions := make([]int, 0, len(stored))
	for _, art := range stored {
		versions = append(versions, art.Version)
	}
	return versions, nil
}
