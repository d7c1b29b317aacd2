package core

import (
	"encoding/json"
	"fmt"
)

// Part represents a polymorphic segment of role-based content. Concrete part
// types implement the unexported isPart marker enabling a closed set.
type Part interface{ isPart() }

// TextPart is a plain text content segment.
type TextPart struct {
	Text string // Plain UTF-8 text
}

// isPart implements the Part interface for TextPart.
func (TextPart) isPart() {}

// DataPart is a structured data segment (e.g. a JSON object map).
type DataPart struct {
	Data map[string]any // Structured key/value payload
}

// isPart implements the Part interface for DataPart.
func (DataPart) isPart() {}

// FilePart references binary data, either inlined or stored externally (for
// example as a named session artifact or at a retrieval URI).
type FilePart struct {
	Name     string `json:"name,omitempty"`      // Filename / artifact name
	MIMEType string `json:"mime_type,omitempty"` // Optional MIME type
	URI      string `json:"uri,omitempty"`       // External retrieval URI (if not inlined)
	Bytes    []byte `json:"bytes,omitempty"`     // Inlined raw contents
}

// isPart implements the Part interface for FilePart.
func (FilePart) isPart() {}

// FunctionCall describes a tool/function invocation request.
type FunctionCall struct {
	ID   string         `json:"id,omitempty"` // Stable call id (populated before emission)
	Name string         `json:"name"`         // Tool / function name
	Args map[string]any `json:"args,omitempty"`
}

// FunctionCallPart wraps a FunctionCall as a content part.
type FunctionCallPart struct {
	FunctionCall FunctionCall
}

// isPart implements the Part interface for FunctionCallPart.
func (FunctionCallPart) isPart() {}

// FunctionResponse describes the outcome of a function call. ID and Name echo
// the originating FunctionCall so the two can be paired after the fact.
type FunctionResponse struct {
	ID       string `json:"id,omitempty"`
	Name     string `json:"name"`
	Response any    `json:"response,omitempty"` // Successful result (any shape)
	Error    string `json:"error,omitempty"`    // Populated on failure
}

// FunctionResponsePart wraps a FunctionResponse as a content part.
type FunctionResponsePart struct {
	FunctionResponse FunctionResponse
}

// isPart implements the Part interface for FunctionResponsePart.
func (FunctionResponsePart) isPart() {}

// Content holds role + ordered parts.
type Content struct {
	Role  string `json:"role,omitempty"` // Conversation role (user, assistant, tool, system,...)
	Parts []Part `json:"parts"`          // Ordered heterogeneous parts
}

// NewTextContent builds a Content with a single text part.
func NewTextContent(role, text string) *Content {
	return &Content{Role: role, Parts: []Part{TextPart{Text: text}}}
}

// Text concatenates all text parts in order. Non-text parts are skipped.
func (c *Content) Text() string {
	if c == nil {
		return ""
	}
	var out string
	for _, p := range c.Parts {
		if tp, ok := p.(TextPart); ok {
			out += tp.Text
		}
	}
	return out
}

// Part wire discriminators used by the JSON envelope.
const (
	partTypeText             = "text"
	partTypeData             = "data"
	partTypeFile             = "file"
	partTypeFunctionCall     = "function_call"
	partTypeFunctionResponse = "function_response"
)

// partEnvelope is the serialized form of a Part. Exactly one payload field is
// set, selected by Type.
type partEnvelope struct {
	Type             string            `json:"type"`
	Text             string            `json:"text,omitempty"`
	Data             map[string]any    `json:"data,omitempty"`
	File             *FilePart         `json:"file,omitempty"`
	FunctionCall     *FunctionCall     `json:"function_call,omitempty"`
	FunctionResponse *FunctionResponse `json:"function_response,omitempty"`
}

// MarshalJSON encodes the heterogeneous part list using a type-discriminated
// envelope so the closed part set survives a round trip through storage.
func (c Content) MarshalJSON() ([]byte, error) {
	envs := make([]partEnvelope, 0, len(c.Parts))
	for _, p := range c.Parts {
		switch v := p.(type) {
		case TextPart:
			envs = append(envs, partEnvelope{Type: partTypeText, Text: v.Text})
		case DataPart:
			envs = append(envs, partEnvelope{Type: partTypeData, Data: v.Data})
		case FilePart:
			f := v
			envs = append(envs, partEnvelope{Type: partTypeFile, File: &f})
		case FunctionCallPart:
			fc := v.FunctionCall
			envs = append(envs, partEnvelope{Type: partTypeFunctionCall, FunctionCall: &fc})
		case FunctionResponsePart:
			fr := v.FunctionResponse
			envs = append(envs, partEnvelope{Type: partTypeFunctionResponse, FunctionResponse: &fr})
		default:
			return nil, fmt.Errorf("unsupported part type %T", p)
		}
	}
	return json.Marshal(struct {
		Role  string         `json:"role,omitempty"`
		Parts []partEnvelope `json:"parts"`
	}{Role: c.Role, Parts: envs})
}

// UnmarshalJSON restores the concrete part types from their envelopes.
func (c *Content) UnmarshalJSON(data []byte) error {
	var raw struct {
		Role  string         `json:"role"`
		Parts []partEnvelope `json:"parts"`
	}
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}
	c.Role = raw.Role
	c.Parts = make([]Part, 0, len(raw.Parts))
	for _, env := range raw.Parts {
		switch env.Type {
		case partTypeText:
			c.Parts = append(c.Parts, TextPart{Text: env.Text})
		case partTypeData:
			c.Parts = append(c.Parts, DataPart{Data: env.Data})
		case partTypeFile:
			if env.File == nil {
				return fmt.Errorf("file part without file payload")
			}
			c.Parts = append(c.Parts, *env.File)
		case partTypeFunctionCall:
			if env.FunctionCall == nil {
				return fmt.Errorf("function_call part without payload")
			}
			c.Parts = append(c.Parts, FunctionCallPart{FunctionCall: *env.FunctionCall})
		case partTypeFunctionResponse:
			if env.FunctionResponse == nil {
				return fmt.Errorf("function_response part without payload")
			}
			c.Parts = append(c.Parts, FunctionResponsePart{FunctionResponse: *env.FunctionResponse})
		default:
			return fmt.Errorf("unknown part type %q", env.Type)
		}
	}
	return nil
}
