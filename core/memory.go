package core

import (
	"context"
	"time"
)

// MemorySearchResult is a retrieved memory item with a relevance score.
type MemorySearchResult struct {
	Content   Content        `json:"content"`
	Author    string         `json:"author"`
	Timestamp time.Time      `json:"timestamp"`
	Score     float64        `json:"score"`
	Metadata  map[string]any `json:"metadata,omitempty"`
}

// MemoryService provides long-term recall across sessions. Sessions are
// ingested wholesale; retrieval is query based. Implementations choose their
// own matching strategy (substring, embeddings, external index).
type MemoryService interface {
	// AddSession ingests the session's non-partial content events into the
	// memory corpus of (app, user).
	AddSession(ctx context.Context, sess *Session) error

	// Search returns matching memories for (app, user), best first.
	Search(ctx context.Context, appName, userID, query string) ([]MemorySearchResult, error)
}
