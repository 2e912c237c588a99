package view

import (
	"encoding/json"
	"fmt"
)

// Event type tags as sent by the view.
const (
	TypePrompt                = "prompt"
	TypePromptNoQuery         = "promptNoQuery"
	TypeCodeSelected          = "codeSelected"
	TypeCheckboxChanged       = "checkboxChanged"
	TypeMessageContentChanged = "messageContentChanged"
	TypeSelectionChanged      = "selectionChanged"
	TypeResetConversation     = "resetConversation"
	TypeRunPreset             = "runPreset"
)

// Event is one view-to-host event. The set of implementations is closed.
type Event interface {
	Type() string
	isEvent()
}

// Prompt asks for a completion of Value plus the current selection.
type Prompt struct{ Value string }

// PromptNoQuery appends Value plus the current selection without a request.
type PromptNoQuery struct{ Value string }

// CodeSelected reports a click on a rendered code block.
type CodeSelected struct{ Value string }

// CheckboxChanged toggles the inclusion flag of the message named by ID.
type CheckboxChanged struct {
	ID      string
	Checked bool
}

// MessageContentChanged replaces the text of the message named by ID.
type MessageContentChanged struct {
	ID    string
	Value string
}

// SelectionChanged reports the editor's current selection.
type SelectionChanged struct {
	Text       string
	LanguageID string
}

// ResetConversation drops the conversation back to its seed.
type ResetConversation struct{}

// RunPreset runs one of the canned prompt prefixes against the selection.
type RunPreset struct{ Name string }

func (Prompt) Type() string                { return TypePrompt }
func (PromptNoQuery) Type() string         { return TypePromptNoQuery }
func (CodeSelected) Type() string          { return TypeCodeSelected }
func (CheckboxChanged) Type() string       { return TypeCheckboxChanged }
func (MessageContentChanged) Type() string { return TypeMessageContentChanged }
func (SelectionChanged) Type() string      { return TypeSelectionChanged }
func (ResetConversation) Type() string     { return TypeResetConversation }
func (RunPreset) Type() string             { return TypeRunPreset }

func (Prompt) isEvent()                {}
func (PromptNoQuery) isEvent()         {}
func (CodeSelected) isEvent()          {}
func (CheckboxChanged) isEvent()       {}
func (MessageContentChanged) isEvent() {}
func (SelectionChanged) isEvent()      {}
func (ResetConversation) isEvent()     {}
func (RunPreset) isEvent()             {}

// wireEvent is the flat JSON shape used on the view channel.
type wireEvent struct {
	Type       string `json:"type"`
	Value      string `json:"value,omitempty"`
	ID         string `json:"id,omitempty"`
	Checked    bool   `json:"checked,omitempty"`
	Text       string `json:"text,omitempty"`
	LanguageID string `json:"languageId,omitempty"`
}

// Decode parses a view event. Unknown tags and malformed payloads yield
// ErrUnknownEvent.
func Decode(data []byte) (Event, error) {
	var w wireEvent
	if err := json.Unmarshal(data, &w); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrUnknownEvent, err)
	}

	switch w.Type {
	case TypePrompt:
		return Prompt{Value: w.Value}, nil
	case TypePromptNoQuery:
		return PromptNoQuery{Value: w.Value}, nil
	case TypeCodeSelected:
		return CodeSelected{Value: w.Value}, nil
	case TypeCheckboxChanged:
		return CheckboxChanged{ID: w.ID, Checked: w.Checked}, nil
	case TypeMessageContentChanged:
		return MessageContentChanged{ID: w.ID, Value: w.Value}, nil
	case TypeSelectionChanged:
		return SelectionChanged{Text: w.Text, LanguageID: w.LanguageID}, nil
	case TypeResetConversation:
		return ResetConversation{}, nil
	case TypeRunPreset:
		return RunPreset{Name: w.Value}, nil
	}
	return nil, fmt.Errorf("%w: type %q", ErrUnknownEvent, w.Type)
}

// Encode serializes ev in the wire shape Decode accepts.
func Encode(ev Event) ([]byte, error) {
	w := wireEvent{Type: ev.Type()}
	switch e := ev.(type) {
	case Prompt:
		w.Value = e.Value
	case PromptNoQuery:
		w.Value = e.Value
	case CodeSelected:
		w.Value = e.Value
	case CheckboxChanged:
		w.ID, w.Checked = e.ID, e.Checked
	case MessageContentChanged:
		w.ID, w.Value = e.ID, e.Value
	case SelectionChanged:
		w.Text, w.LanguageID = e.Text, e.LanguageID
	case ResetConversation:
	case RunPreset:
		w.Value = e.Name
	}
	return json.Marshal(w)
}

// CheckboxID returns the element id of the inclusion toggle of message i.
func CheckboxID(i int) string {
	return fmt.Sprintf("message-checkbox-%d", i)
}

// ContentID returns the element id of the editable body of message i.
func ContentID(i int) string {
	return fmt.Sprintf("message-content-%d", i)
}
