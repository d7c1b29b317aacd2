package tool

import (
	"github.com/hupe1980/agentloop/core"
)

// LongRunningFunctionTool wraps a FunctionTool whose real result arrives
// out-of-band. The wrapped function typically starts the operation (creates a
// ticket, notifies an approver) and returns either nil or an interim status
// payload; the definitive result is supplied later by the caller as a
// function response carrying the original call id.
//
// The flow marks events carrying calls to long-running tools via
// LongRunningToolIDs so clients can distinguish a legitimately suspended turn
// from a finished one.
type LongRunningFunctionTool struct {
	*FunctionTool
}

// NewLongRunningFunctionTool constructs a long-running tool from explicit
// schema and function. See NewFunctionTool for the argument conventions.
func NewLongRunningFunctionTool(
	name, description string,
	parameters map[string]any,
	fn func(toolCtx *core.ToolContext, args map[string]any) (any, error),
) *LongRunningFunctionTool {
	return &LongRunningFunctionTool{FunctionTool: NewFunctionTool(name, description, parameters, fn)}
}

// NewLongRunningFunctionToolFromStruct derives the parameter schema from a
// struct using reflection, like NewFunctionToolFromStruct.
func NewLongRunningFunctionToolFromStruct(
	name, description string,
	structType any,
	fn func(toolCtx *core.ToolContext, args map[string]any) (any, error),
) *LongRunningFunctionTool {
	return &LongRunningFunctionTool{FunctionTool: NewFunctionToolFromStruct(name, description, structType, fn)}
}

// IsLongRunning reports true: results for this tool arrive in a later message.
func (t *LongRunningFunctionTool) IsLongRunning() bool { return true }
