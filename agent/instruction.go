package agent

import "github.com/hupe1980/agentloop/core"

// InstructionProvider supplies instruction text at runtime. Implementations
// can derive the text from session state, the triggering message or external
// systems.
type InstructionProvider interface {
	Instruction(ictx *core.InvocationContext) (string, error)
}

// InstructionFunc adapts an ordinary function to the InstructionProvider
// interface.
type InstructionFunc func(ictx *core.InvocationContext) (string, error)

// Instruction implements InstructionProvider.
func (f InstructionFunc) Instruction(ictx *core.InvocationContext) (string, error) { return f(ictx) }

// Instruction is either a static instruction string or a dynamic provider,
// mirroring a string | provider union in a Go-idiomatic way. The zero value
// resolves to the empty string.
type Instruction struct {
	text     string
	provider InstructionProvider
}

// NewInstructionFromText creates an Instruction from a static string.
// Template placeholders like {{.key}} are rendered against session state by
// the flow layer.
func NewInstructionFromText(text string) Instruction { return Instruction{text: text} }

// NewInstructionFromProvider creates an Instruction from a dynamic provider.
func NewInstructionFromProvider(p InstructionProvider) Instruction { return Instruction{provider: p} }

// NewInstructionFromFunc creates an Instruction from a function.
func NewInstructionFromFunc(f func(ictx *core.InvocationContext) (string, error)) Instruction {
	return Instruction{provider: InstructionFunc(f)}
}

// IsStatic reports whether the instruction is backed by a static string.
func (i Instruction) IsStatic() bool { return i.provider == nil }

// Resolve returns the instruction text, invoking the provider if present.
func (i Instruction) Resolve(ictx *core.InvocationContext) (string, error) {
	if i.provider != nil {
		return i.provider.Instruction(ictx)
	}
	return i.text, nil
}
