package core

import (
	"context"
	"errors"
	"strings"
)

// ErrArtifactNotFound is returned when an artifact (or requested version)
// does not exist.
var ErrArtifactNotFound = errors.New("artifact not found")

// Artifact is one stored version of a named binary blob.
type Artifact struct {
	Data     []byte
	MIMEType string
	Version  int
}

// IsUserScopedArtifact reports whether the filename addresses the user-wide
// namespace shared across all sessions of the same (app, user) pair.
func IsUserScopedArtifact(filename string) bool {
	return strings.HasPrefix(filename, StateUserPrefix)
}

// GetArtifactOptions select a specific stored version. The zero value loads
// the latest one.
type GetArtifactOptions struct {
	// Version selects an explicit version when >= 0. Defaults to -1 (latest).
	Version int
}

// WithArtifactVersion requests a specific stored version.
func WithArtifactVersion(v int) func(o *GetArtifactOptions) {
	return func(o *GetArtifactOptions) { o.Version = v }
}

// ArtifactService stores versioned binary artifacts keyed by
// (app name, user id, session id, filename). Filenames carrying the "user:"
// prefix are session independent and visible from every session of the same
// user. Implementations must version writes monotonically from 0.
type ArtifactService interface {
	// Save stores a new version of the artifact and returns its version.
	Save(ctx context.Context, appName, userID, sessionID, filename string, data []byte, mimeType string) (int, error)

	// Get loads an artifact version (latest by default) or returns
	// ErrArtifactNotFound.
	Get(ctx context.Context, appName, userID, sessionID, filename string, optFns ...func(o *GetArtifactOptions)) (*Artifact, error)

	// List returns the artifact filenames visible from the session, sorted.
	List(ctx context.Context, appName, userID, sessionID string) ([]string, error)

	// Delete removes all versions of an artifact. Absent artifacts are not an
	// error.
	Delete(ctx context.Context, appName, userID, sessionID, filename string) error

	// Versions returns the stored version numbers for a filename, ascending.
	Versions(ctx context.Context, appName, userID, sessionID, filename string) ([]int, error)
}
