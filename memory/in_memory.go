package memory

import (
	"context"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/hupe1980/agentloop/core"
)

// storedMemory is the internal representation persisted by InMemoryService.
// It keeps the full content so retrieved memories can be fed back to a model
// verbatim.
type storedMemory struct {
	content   core.Content
	author    string
	timestamp time.Time
	sessionID string
}

// InMemoryService is a naive process-local MemoryService. Sessions are
// ingested wholesale: every non-partial event with text content becomes one
// memory entry under the (app, user) corpus.
//
// Concurrency: protected by RWMutex.
// Search: linear scan with case insensitive word matching. Every hit scores
// by the fraction of query words found. Suitable only for tests / demos; swap
// for a vector DB or semantic index for production retrieval.
type InMemoryService struct {
	mu sync.RWMutex

	// app/user -> entries
	corpus map[string][]storedMemory
}

// NewInMemoryService creates a new in-memory memory service.
func NewInMemoryService() *InMemoryService {
	return &InMemoryService{corpus: make(map[string][]storedMemory)}
}

func corpusKey(appName, userID string) string { return appName + "/" + userID }

// AddSession ingests the session's non-partial text-bearing events into the
// memory corpus of (app, user). Re-adding the same session replaces its
// previous entries.
func (m *InMemoryService) AddSession(ctx context.Context, sess *core.Session) error {
	key := corpusKey(sess.AppName, sess.UserID)

	m.mu.Lock()
	defer m.mu.Unlock()

	// Drop entries from an earlier ingestion of this session.
	kept := m.corpus[key][:0:0]
	for _, entry := range m.corpus[key] {
		if entry.sessionID != sess.ID {
			kept = append(kept, entry)
		}
	}

	for _, ev := range sess.GetEvents() {
		if ev.IsPartial() || ev.Content == nil || ev.Content.Text() == "" {
			continue
		}
		kept = append(kept, storedMemory{
			content:   *ev.Content,
			author:    ev.Author,
			timestamp: ev.Timestamp,
			sessionID: sess.ID,
		})
	}
	m.corpus[key] = kept
	return nil
}

// Search performs case insensitive word matching over stored memories for
// (app, user). Results are ordered best first (match fraction, then recency).
func (m *InMemoryService) Search(ctx context.Context, appName, userID, query string) ([]core.MemorySearchResult, error) {
	words := strings.Fields(strings.ToLower(query))

	m.mu.RLock()
	defer m.mu.RUnlock()

	results := make([]core.MemorySearchResult, 0)
	for _, entry := range m.corpus[corpusKey(appName, userID)] {
		score := matchScore(entry.content.Text(), words)
		if score == 0 {
			continue
		}
		results = append(results, core.MemorySearchResult{
			Content:   entry.content,
			Author:    entry.author,
			Timestamp: entry.timestamp,
			Score:     score,
			Metadata:  map[string]any{"session_id": entry.sessionID},
		})
	}

	sort.SliceStable(results, func(i, j int) bool {
		if results[i].Score != results[j].Score {
			return results[i].Score > results[j].Score
		}
		return results[i].Timestamp.After(results[j].Timestamp)
	})
	return results, nil
}

// matchScore returns the fraction of query words contained in the text. An
// empty query matches everything with score 1.
func matchScore(text string, words []string) float64 {
	if len(words) == 0 {
		return 1
	}
	lower := strings.ToLower(text)
	hits := 0
	for _, w := range words {
		if strings.Contains(lower, w) {
			hits++
		}
	}
	return float64(hits) / float64(len(words))
}
