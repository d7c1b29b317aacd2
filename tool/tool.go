// Package tool implements the function calling subsystem: capabilities an
// agent exposes to the model as declared functions, with schema-validated
// arguments, uniform error reporting and support for calls that finish
// out-of-band (human approval, external jobs).
package tool

import (
	"fmt"

	"github.com/hupe1980/agentloop/core"
)

// Tool is a capability an agent exposes to the model as a callable function.
//
// Call receives a ToolContext scoped to the invoking function call. Through it
// a tool reads and writes session state, sets control actions such as transfer
// or escalation, requests user confirmation, and reaches memory and artifact
// storage. Results marshal to JSON and return to the model as function
// responses; errors travel the same road as error responses instead of
// aborting the run.
//
// Tools invoked in parallel run on separate goroutines, so implementations
// touching shared resources outside the ToolContext must synchronize.
type Tool interface {
	// Name returns the unique identifier for this tool.
	// Names should be descriptive and follow function naming conventions (snake_case recommended).
	Name() string

	// Description returns a human-readable description of what this tool does.
	// This description is provided to the LLM to help it understand when and how to use the tool.
	Description() string

	// Parameters returns a JSON schema describing the expected input format.
	// This schema is used for parameter validation and LLM function calling.
	Parameters() map[string]any

	// IsLongRunning reports whether the tool completes out-of-band. Calls to a
	// long-running tool produce no immediate final result; the caller supplies
	// the result later as a function response in a new message, and the
	// emitting event carries the call id in LongRunningToolIDs so clients know
	// the turn is legitimately suspended.
	IsLongRunning() bool

	// Call executes the tool with structured arguments and ToolContext.
	// This method provides tools with access to session state, agent actions,
	// authentication, memory, and artifact management capabilities.
	// Arguments are parsed from JSON and validated against the tool's schema.
	Call(toolCtx *core.ToolContext, args map[string]any) (any, error)
}

// Error codes attached to ToolError for uniform downstream handling.
const (
	// ErrCodeValidation marks schema / argument mismatches.
	ErrCodeValidation = "VALIDATION_ERROR"
	// ErrCodeExecution marks failures inside the tool implementation.
	ErrCodeExecution = "EXECUTION_ERROR"
	// ErrCodeUnknownTool marks calls to names no registered tool answers to.
	ErrCodeUnknownTool = "UNKNOWN_TOOL"
)

// ToolError represents errors that occur during tool execution. Tool errors
// are not fatal to the run: the flow records them as error function responses
// so the model can observe and react to the failure.
type ToolError struct {
	Tool    string `json:"tool"`              // Name of the tool that failed
	Message string `json:"message"`           // Error message
	Code    string `json:"code"`              // Error code for categorization
	Details any    `json:"details,omitempty"` // Additional error details
}

func (e *ToolError) Error() string {
	if e.Code != "" {
		return fmt.Sprintf("tool error [%s] in %s: %s", e.Code, e.Tool, e.Message)
	}
	return fmt.Sprintf("tool error in %s: %s", e.Tool, e.Message)
}

// NewToolError creates a new ToolError with the specified details.
func NewToolError(tool, message, code string) *ToolError {
	return &ToolError{
		Tool:    tool,
		Message: message,
		Code:    code,
	}
}
