package model

import (
	"context"

	"github.com/hupe1980/agentloop/core"
)

// ToolDeclaration declaratively exposes a callable function to the model.
// Parameters is a JSON Schema object (draft agnostic, minimal subset expected).
type ToolDeclaration struct {
	Name        string         `json:"name"`
	Description string         `json:"description"`
	Parameters  map[string]any `json:"parameters"` // JSON Schema
}

// Request captures the normalized model input produced by flows.
type Request struct {
	Instructions string            `json:"instructions"` // System instructions for the model
	Contents     []core.Content    `json:"contents"`     // Conversation history converted to provider messages
	Tools        []ToolDeclaration `json:"tools,omitempty"`
	Stream       bool              `json:"stream,omitempty"`
}

// TokenUsage captures token usage statistics for a response.
type TokenUsage struct {
	PromptTokens     int `json:"prompt_tokens"`
	CompletionTokens int `json:"completion_tokens"`
	TotalTokens      int `json:"total_tokens"`
}

// Response is a (partial or final) chunk emitted by a model. Partial chunks
// carry incremental deltas; the final chunk carries the assembled content,
// TurnComplete set and (when the provider reports it) token usage.
type Response struct {
	ID           string        `json:"id,omitempty"`
	Partial      bool          `json:"partial"`
	Content      *core.Content `json:"content,omitempty"`
	TurnComplete bool          `json:"turn_complete"`
	FinishReason string        `json:"finish_reason,omitempty"` // "stop", "length", "tool_calls", etc.
	Usage        *TokenUsage   `json:"usage,omitempty"`
}

// Info contains metadata about a model implementation.
type Info struct {
	Name          string `json:"name"`
	Provider      string `json:"provider"` // "openai", "anthropic", "mock", etc.
	SupportsTools bool   `json:"supports_tools"`
}

// Model is the minimal interface required by flows & agents to drive generation.
// Generate returns immediately; both channels are closed by the implementation
// when the turn is finished or an error occurred.
type Model interface {
	Generate(ctx context.Context, req Request) (<-chan Response, <-chan error)

	// Info returns information about the model implementation.
	Info() Info
}
