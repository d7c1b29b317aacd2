package testutil

import (
	"time"

	"github.com/hupe1980/agentloop/core"
)

// EventBuilder assembles core.Event values for tests without going through
// the runtime. Chain only the parts a test needs; everything else keeps the
// shape NewEvent produces.
//
//	ev := NewEventBuilder().Invocation("e-1").AssistantText("hello").Build()
type EventBuilder struct {
	author       string
	invocationID string
	role         string
	textParts    []string
	partial      *bool
	stateDelta   map[string]any
	timestamp    *time.Time
}

// NewEventBuilder creates a builder with default author "agent".
func NewEventBuilder() *EventBuilder { return &EventBuilder{author: "agent"} }

// Invocation sets the invocation id the event belongs to (chainable).
func (b *EventBuilder) Invocation(id string) *EventBuilder { b.invocationID = id; return b }

// UserText appends a user text part and flips the author to the reserved
// user name (chainable).
func (b *EventBuilder) UserText(t string) *EventBuilder {
	b.role = "user"
	b.author = core.UserAuthor
	b.textParts = append(b.textParts, t)
	return b
}

// AssistantText appends an assistant text part (chainable).
func (b *EventBuilder) AssistantText(t string) *EventBuilder {
	b.role = "assistant"
	b.textParts = append(b.textParts, t)
	return b
}

// Partial marks the event as a streaming chunk (chainable).
func (b *EventBuilder) Partial(p bool) *EventBuilder { b.partial = &p; return b }

// StateDelta merges key/value pairs into the event's delta (chainable).
func (b *EventBuilder) StateDelta(kv map[string]any) *EventBuilder {
	if b.stateDelta == nil {
		b.stateDelta = map[string]any{}
	}
	for k, v := range kv {
		b.stateDelta[k] = v
	}
	return b
}

// At overrides the event timestamp, for tests that depend on ordering or
// recency (chainable).
func (b *EventBuilder) At(t time.Time) *EventBuilder { b.timestamp = &t; return b }

// Build constructs the core.Event value.
func (b *EventBuilder) Build() core.Event {
	ev := core.NewEvent(b.invocationID, b.author)
	if b.partial != nil {
		ev.Partial = b.partial
	}
	if b.timestamp != nil {
		ev.Timestamp = *b.timestamp
	}
	if len(b.stateDelta) > 0 {
		ev.Actions.StateDelta = b.stateDelta
	}
	if len(b.textParts) > 0 {
		parts := make([]core.Part, 0, len(b.textParts))
		for _, t := range b.textParts {
			parts = append(parts, core.TextPart{Text: t})
		}
		ev.Content = &core.Content{Role: b.role, Parts: parts}
	}
	return ev
}
