package generation

import "github.com/hupe1980/quill/internal/util"

// DefaultInstruction asks the model for a plain continuation of the text.
const DefaultInstruction = `You are a writing assistant. Continue the user's text seamlessly.
Reply with the continuation only: do not repeat the given text, do not add commentary.`

// Provider supplies instruction text at runtime, derived from the text that
// is about to be continued.
type Provider interface {
	Instruction(text string) (string, error)
}

// Func is a functional adapter to allow ordinary functions to be used as Providers.
type Func func(text string) (string, error)

// Instruction implements Provider.
func (f Func) Instruction(text string) (string, error) { return f(text) }

// Instruction represents either a static (optionally templated) instruction
// string or a dynamic provider.
//
// Static text may reference {{.Text}}, {{.Words}} and {{.Length}} which are
// filled from the text being continued.
type Instruction struct {
	text     string
	provider Provider
}

// NewInstructionFromText creates an Instruction from a static string or template.
func NewInstructionFromText(text string) Instruction { return Instruction{text: text} }

// NewInstructionFromProvider creates an Instruction from a dynamic provider.
func NewInstructionFromProvider(p Provider) Instruction { return Instruction{provider: p} }

// NewInstructionFromFunc creates an Instruction from a function.
func NewInstructionFromFunc(f func(text string) (string, error)) Instruction {
	return Instruction{provider: Func(f)}
}

// IsStatic returns true if the instruction is backed by a static string.
func (i Instruction) IsStatic() bool { return i.provider == nil }

// Resolve returns the instruction text for the given input text.
func (i Instruction) Resolve(text string) (string, error) {
	if i.provider != nil {
		return i.provider.Instruction(text)
	}
	return util.RenderTemplate(i.text, map[string]any{
		"Text":   text,
		"Words":  util.WordCount(text),
		"Length": len(text),
	})
}
