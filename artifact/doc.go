// Package artifact contains concrete implementations of core.ArtifactService.
//
// The canonical ArtifactService interface lives in the core package to avoid
// dependency cycles and keep domain contracts central. Implementation packages
// like this one (in-memory, cloud object stores, databases, etc.) provide
// storage backends that can be swapped without touching calling code.
//
// Artifacts are versioned append-only blobs addressed by
// (app, user, session, filename); filenames with the "user:" prefix are
// shared across all sessions of the same user. Callers should depend on the
// core interface rather than concrete types so they can substitute
// alternative persistence layers in tests or production.
package artifact
