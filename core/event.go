package core

import (
	"strings"
	"time"

	"github.com/google/uuid"
)

// EventActions encodes side-effects or orchestration signals attached to an
// Event. All fields are optional pointers / maps so absence can be
// distinguished from zero values. The runner and flows interpret these when
// the owning event is processed.
type EventActions struct {
	SkipSummarization    *bool          `json:"skip_summarization,omitempty"`
	StateDelta           map[string]any `json:"state_delta,omitempty"`
	ArtifactDelta        map[string]int `json:"artifact_delta,omitempty"`
	TransferToAgent      *string        `json:"transfer_to_agent,omitempty"`
	Escalate             *bool          `json:"escalate,omitempty"`
	RequestedAuthConfigs map[string]any `json:"requested_auth_configs,omitempty"`
}

// Merge folds the non-empty fields of other into the receiver. Map entries
// from other overwrite existing keys; scalar signals are adopted when set.
func (a *EventActions) Merge(other EventActions) {
	if other.SkipSummarization != nil {
		a.SkipSummarization = other.SkipSummarization
	}
	if len(other.StateDelta) > 0 {
		if a.StateDelta == nil {
			a.StateDelta = map[string]any{}
		}
		for k, v := range other.StateDelta {
			a.StateDelta[k] = v
		}
	}
	if len(other.ArtifactDelta) > 0 {
		if a.ArtifactDelta == nil {
			a.ArtifactDelta = map[string]int{}
		}
		for k, v := range other.ArtifactDelta {
			a.ArtifactDelta[k] = v
		}
	}
	if other.TransferToAgent != nil {
		a.TransferToAgent = other.TransferToAgent
	}
	if other.Escalate != nil {
		a.Escalate = other.Escalate
	}
	if len(other.RequestedAuthConfigs) > 0 {
		if a.RequestedAuthConfigs == nil {
			a.RequestedAuthConfigs = map[string]any{}
		}
		for k, v := range other.RequestedAuthConfigs {
			a.RequestedAuthConfigs[k] = v
		}
	}
}

// Event is the primary unit of communication between agents, the runner and
// external clients. After emission it should be treated as immutable. It
// captures:
//   - Correlation (InvocationID, ID, Author, Branch)
//   - Conversational content (optional role-based Parts)
//   - Orchestration directives (Actions)
//   - Tool / long-running operation hints (LongRunningToolIDs)
//   - Error / interruption metadata
//   - High precision UTC timestamp
//
// Content may be nil for control or error-only events.
type Event struct {
	ID                 string         `json:"id"`
	InvocationID       string         `json:"invocation_id"`
	Author             string         `json:"author"`
	Actions            EventActions   `json:"actions"`
	LongRunningToolIDs []string       `json:"long_running_tool_ids,omitempty"`
	Branch             *string        `json:"branch,omitempty"`
	Timestamp          time.Time      `json:"timestamp"`
	Content            *Content       `json:"content,omitempty"`
	Partial            *bool          `json:"partial,omitempty"`
	TurnComplete       *bool          `json:"turn_complete,omitempty"`
	ErrorCode          *string        `json:"error_code,omitempty"`
	ErrorMessage       *string        `json:"error_message,omitempty"`
	Interrupted        *bool          `json:"interrupted,omitempty"`
	CustomMetadata     map[string]any `json:"custom_metadata,omitempty"`
}

// NewEvent creates a bare event authored by 'author' bound to an invocation.
// Prefer the helper constructors for common semantic categories (message,
// function call/response, error, escalation).
func NewEvent(invocationID, author string) Event {
	return Event{
		ID:           NewEventID(),
		InvocationID: invocationID,
		Author:       author,
		Timestamp:    time.Now().UTC(),
		Actions:      EventActions{},
	}
}

// NewMessageEvent creates a non-user assistant message event with a single
// text part. Author can be an agent name or system identifier.
func NewMessageEvent(invocationID, author, message string) Event {
	e := NewEvent(invocationID, author)
	e.Content = NewTextContent("assistant", message)
	return e
}

// NewUserMessageEvent creates a user-authored text message event.
func NewUserMessageEvent(invocationID, message string) Event {
	e := NewEvent(invocationID, UserAuthor)
	e.Content = NewTextContent("user", message)
	return e
}

// NewUserContentEvent creates a user-authored event with arbitrary Content.
// Useful for cases where the Content is not just a simple text message, e.g.
// a function response resuming a long-running tool call.
func NewUserContentEvent(invocationID string, content *Content) Event {
	e := NewEvent(invocationID, UserAuthor)
	e.Content = content
	return e
}

// NewFunctionCallEvent represents an agent requesting execution of a named
// function/tool with the given argument map.
func NewFunctionCallEvent(invocationID, author, functionName string, args map[string]any) Event {
	e := NewEvent(invocationID, author)
	e.Content = &Content{
		Role: "assistant",
		Parts: []Part{
			FunctionCallPart{FunctionCall: FunctionCall{ID: NewFunctionCallID(), Name: functionName, Args: args}},
		},
	}
	return e
}

// NewFunctionResponseEvent records the completion result (or error) of a
// previously emitted function call. If err is non-nil its message is copied
// into the response.Error field.
func NewFunctionResponseEvent(invocationID, author, id, functionName string, result any, err error) Event {
	e := NewEvent(invocationID, author)
	fr := FunctionResponse{ID: id, Name: functionName, Response: result}
	if err != nil {
		fr.Error = err.Error()
	}
	e.Content = &Content{Role: "tool", Parts: []Part{FunctionResponsePart{FunctionResponse: fr}}}
	return e
}

// NewErrorEvent records a non-fatal error as a normal event so it is visible
// in the replay log and to the reasoning model.
func NewErrorEvent(invocationID, author, code, message string) Event {
	e := NewEvent(invocationID, author)
	e.ErrorCode = &code
	e.ErrorMessage = &message
	return e
}

// NewEscalationEvent constructs an event signalling escalation to the parent
// coordinator (e.g. to stop a LoopAgent). Content may be nil.
func NewEscalationEvent(invocationID, author string, content *Content) Event {
	escalate := true
	e := NewEvent(invocationID, author)
	e.Actions.Escalate = &escalate
	e.Content = content
	return e
}

// UserAuthor is the reserved author name for caller-submitted events.
const UserAuthor = "user"

// NewEventID generates a unique identifier for events.
func NewEventID() string { return uuid.NewString() }

// NewInvocationID generates an invocation identifier. The "e-" prefix keeps
// invocation ids visually distinct from event and call ids in logs.
func NewInvocationID() string { return "e-" + uuid.NewString() }

// NewFunctionCallID generates an identifier for a function call issued on
// behalf of a model response that did not supply its own id.
func NewFunctionCallID() string { return "fc-" + uuid.NewString() }

// IsPartial reports whether this event represents a streaming / incomplete
// fragment that will be followed by additional events composing the final
// assistant turn.
func (e Event) IsPartial() bool { return e.Partial != nil && *e.Partial }

// GetFunctionCalls returns any FunctionCall parts contained within the event
// content preserving their original order.
func (e Event) GetFunctionCalls() []FunctionCall {
	if e.Content == nil {
		return nil
	}
	var calls []FunctionCall
	for _, p := range e.Content.Parts {
		if fc, ok := p.(FunctionCallPart); ok {
			calls = append(calls, fc.FunctionCall)
		}
	}
	return calls
}

// GetFunctionResponses returns any FunctionResponse parts contained within the
// event content preserving their original order.
func (e Event) GetFunctionResponses() []FunctionResponse {
	if e.Content == nil {
		return nil
	}
	var responses []FunctionResponse
	for _, p := range e.Content.Parts {
		if fr, ok := p.(FunctionResponsePart); ok {
			responses = append(responses, fr.FunctionResponse)
		}
	}
	return responses
}

// TextContent concatenates the text parts of the event content, if any.
func (e Event) TextContent() string { return e.Content.Text() }

// InBranch reports whether the event is visible from the given branch. An
// event belongs to a branch when its own branch label is empty or an ancestor
// (dot-separated prefix) of the current one.
func (e Event) InBranch(branch string) bool {
	if e.Branch == nil || *e.Branch == "" || branch == *e.Branch {
		return true
	}
	return strings.HasPrefix(branch, *e.Branch+".")
}

// IsFinalResponse implements the rule used by higher layers to decide when an
// assistant turn is complete. Skipped summarization and pending long-running
// tool calls force finality; otherwise the event is final when it carries no
// function calls or responses and is not a streaming fragment.
func (e Event) IsFinalResponse() bool {
	if (e.Actions.SkipSummarization != nil && *e.Actions.SkipSummarization) || len(e.LongRunningToolIDs) > 0 {
		return true
	}

	return len(e.GetFunctionCalls()) == 0 &&
		len(e.GetFunctionResponses()) == 0 &&
		!e.IsPartial()
}

// UnixSeconds returns the timestamp as fractional seconds since Unix epoch.
// Useful for metrics & numeric serialization paths.
func (e Event) UnixSeconds() float64 { return float64(e.Timestamp.UnixNano()) / 1e9 }
