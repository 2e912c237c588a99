// Package prompt builds the user message sent for a turn from the raw prompt
// and the editor selection.
package prompt

import (
	"errors"
	"fmt"

	"github.com/raphaelgruber/codechat/internal/config"
	"github.com/raphaelgruber/codechat/internal/editor"
)

// ErrContextBudget indicates the prompt plus the reserved response tokens
// exceed the model's context window.
var ErrContextBudget = errors.New("prompt exceeds model context budget")

// ErrUnknownPreset indicates a preset name with no configured prefix.
var ErrUnknownPreset = errors.New("unknown preset")

// Preset names for the editor's quick commands.
const (
	PresetExplain       = "explain"
	PresetRefactor      = "refactor"
	PresetOptimize      = "optimize"
	PresetFindProblems  = "findProblems"
	PresetDocumentation = "documentation"
)

// Presets lists the preset names in menu order.
var Presets = []string{PresetExplain, PresetRefactor, PresetOptimize, PresetFindProblems, PresetDocumentation}

// Assemble combines raw with the selection. With no selection (nil or empty
// text) it returns raw unchanged.
func Assemble(raw string, sel *editor.Selection, s config.Settings) string {
	if sel == nil || sel.Text == "" {
		return raw
	}

	if s.SelectedInsideCodeblock {
		lang := ""
		if s.CodeblockWithLanguageID {
			lang = sel.LanguageID
		}
		return raw + "\n```" + lang + "\n" + sel.Text + "\n```"
	}
	return raw + "\n" + sel.Text + "\n"
}

// Preset returns the configured prompt prefix for name.
func Preset(name string, s config.Settings) (string, error) {
	p := s.PromptPrefix
	switch name {
	case PresetExplain:
		return p.Explain, nil
	case PresetRefactor:
		return p.Refactor, nil
	case PresetOptimize:
		return p.Optimize, nil
	case PresetFindProblems:
		return p.FindProblems, nil
	case PresetDocumentation:
		return p.Documentation, nil
	}
	return "", fmt.Errorf("%w: %q", ErrUnknownPreset, name)
}

// CheckBudget fails when promptTokens plus the reserved response tokens do
// not fit in the model's context window.
func CheckBudget(promptTokens int, s config.Settings) error {
	if promptTokens+s.MaxResponseTokens > s.MaxModelTokens {
		return fmt.Errorf("%w: %d prompt + %d response > %d",
			ErrContextBudget, promptTokens, s.MaxResponseTokens, s.MaxModelTokens)
	}
	return nil
}
