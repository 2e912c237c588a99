// Package view defines the messages exchanged between the chat host and its
// view: host messages that update the panel and the closed set of events the
// panel raises.
package view

import (
	"errors"
	"fmt"
	"strconv"
	"strings"
	"sync"
)

// Sentinel errors for the view channel.
var (
	// ErrUnknownEvent indicates a payload that is not a recognised event.
	ErrUnknownEvent = errors.New("unknown view event")

	// ErrMalformedIdentifier indicates a message element id that does not
	// have the form <prefix>-<prefix2>-<index>.
	ErrMalformedIdentifier = errors.New("malformed message identifier")
)

// Host message types.
const (
	TypeSetPrompt     = "setPrompt"
	TypeAddResponse   = "addResponse"
	TypeInsertSnippet = "insertSnippet"
)

// HostMessage updates the view. setPrompt replaces the input box content,
// addResponse replaces the whole rendered transcript and insertSnippet asks
// the editor bridge to paste code at the cursor.
type HostMessage struct {
	Type  string `json:"type"`
	Value string `json:"value"`
}

// SetPrompt builds a setPrompt message.
func SetPrompt(v string) HostMessage { return HostMessage{Type: TypeSetPrompt, Value: v} }

// AddResponse builds an addResponse message.
func AddResponse(v string) HostMessage { return HostMessage{Type: TypeAddResponse, Value: v} }

// InsertSnippet builds an insertSnippet message.
func InsertSnippet(v string) HostMessage { return HostMessage{Type: TypeInsertSnippet, Value: v} }

// Sink receives host messages in the order they are posted.
type Sink interface {
	Post(msg HostMessage)
}

// SinkFunc adapts a function to Sink.
type SinkFunc func(HostMessage)

// Post calls f(msg).
func (f SinkFunc) Post(msg HostMessage) { f(msg) }

// Recorder is a Sink that keeps every message, for tests and one-shot use.
type Recorder struct {
	mu   sync.Mutex
	msgs []HostMessage
}

// Post records msg.
func (r *Recorder) Post(msg HostMessage) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.msgs = append(r.msgs, msg)
}

// Messages returns a copy of everything posted so far.
func (r *Recorder) Messages() []HostMessage {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]HostMessage, len(r.msgs))
	copy(out, r.msgs)
	return out
}

// Values returns the values of all messages of the given type, in order.
func (r *Recorder) Values(typ string) []string {
	var out []string
	for _, m := range r.Messages() {
		if m.Type == typ {
			out = append(out, m.Value)
		}
	}
	return out
}

// Last returns the value of the most recent message of the given type.
func (r *Recorder) Last(typ string) (string, bool) {
	vals := r.Values(typ)
	if len(vals) == 0 {
		return "", false
	}
	return vals[len(vals)-1], true
}

// ParseMessageIndex extracts the message index from an element id such as
// "message-checkbox-3". The id must have exactly three dash-separated parts
// and end in a non-negative decimal integer.
func ParseMessageIndex(id string) (int, error) {
	parts := strings.Split(id, "-")
	if len(parts) != 3 {
		return 0, fmt.Errorf("%w: %q", ErrMalformedIdentifier, id)
	}
	last := parts[2]
	if last == "" || strings.TrimLeft(last, "0123456789") != "" {
		return 0, fmt.Errorf("%w: %q", ErrMalformedIdentifier, id)
	}
	n, err := strconv.Atoi(last)
	if err != nil {
		return 0, fmt.Errorf("%w: %q", ErrMalformedIdentifier, id)
	}
	return n, nil
}
