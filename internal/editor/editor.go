// Package editor models the active editor selection that prompts can carry.
package editor

import (
	"sync"
)

// Selection is the highlighted text in the active editor and the editor's
// language identifier for the document.
type Selection struct {
	Text       string `json:"text"`
	LanguageID string `json:"languageId"`
}

// Empty reports whether the selection carries no text.
func (s Selection) Empty() bool {
	return s.Text == ""
}

// Provider returns the current selection, if any.
type Provider interface {
	Current() (Selection, bool)
}

// Static is a fixed selection, used by the one-shot CLI.
type Static struct {
	Selection Selection
}

// Current returns the fixed selection; ok is false when it is empty.
func (s Static) Current() (Selection, bool) {
	return s.Selection, !s.Selection.Empty()
}

// None never has a selection.
type None struct{}

// Current always reports no selection.
func (None) Current() (Selection, bool) {
	return Selection{}, false
}

// Tracker holds the last selection reported by an editor bridge.
type Tracker struct {
	mu  sync.RWMutex
	sel Selection
}

// NewTracker creates an empty tracker.
func NewTracker() *Tracker {
	return &Tracker{}
}

// Set records sel as the current selection. An empty selection clears it.
func (t *Tracker) Set(sel Selection) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.sel = sel
}

// Current returns the last reported selection.
func (t *Tracker) Current() (Selection, bool) {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return t.sel, !t.sel.Empty()
}
