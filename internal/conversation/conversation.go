// Package conversation holds the ordered chat transcript and the per-message
// inclusion flags that decide what is sent on the next request.
package conversation

import (
	"errors"
	"fmt"
)

// DefaultSystemPrompt seeds every new or reset conversation.
const DefaultSystemPrompt = "You are a helpful assistant."

// Sentinel errors for conversation operations.
var (
	// ErrOutOfRange indicates an index that does not address an existing message.
	ErrOutOfRange = errors.New("message index out of range")

	// ErrInvalidMessageRole indicates a message whose role is not user, assistant or system.
	ErrInvalidMessageRole = errors.New("invalid message role")
)

// Role identifies the author of a message.
type Role string

const (
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
	RoleSystem    Role = "system"
)

// Valid reports whether r is one of the known roles.
func (r Role) Valid() bool {
	switch r {
	case RoleUser, RoleAssistant, RoleSystem:
		return true
	}
	return false
}

// ParseRole converts s into a Role, rejecting unknown values.
func ParseRole(s string) (Role, error) {
	r := Role(s)
	if !r.Valid() {
		return "", fmt.Errorf("%w: %q", ErrInvalidMessageRole, s)
	}
	return r, nil
}

// Message is one transcript entry. Its identity is its position.
type Message struct {
	Role     Role
	Content  string
	Selected bool
}

// Entry is the projection of a selected message that goes upstream.
type Entry struct {
	Role    Role   `json:"role"`
	Content string `json:"content"`
}

// Conversation is an ordered sequence of messages. It is not safe for
// concurrent use; the owning session serializes access.
type Conversation struct {
	messages []Message
}

// New returns a conversation seeded with the default system message.
func New() *Conversation {
	c := &Conversation{}
	c.Reset()
	return c
}

// Reset drops every message and reseeds the default system message.
func (c *Conversation) Reset() {
	c.messages = []Message{{Role: RoleSystem, Content: DefaultSystemPrompt, Selected: true}}
}

// Append adds a selected message at the end.
func (c *Conversation) Append(role Role, content string) {
	c.AppendMessage(Message{Role: role, Content: content, Selected: true})
}

// AppendMessage adds m at the end as given.
func (c *Conversation) AppendMessage(m Message) {
	c.messages = append(c.messages, m)
}

// Len returns the number of messages.
func (c *Conversation) Len() int {
	return len(c.messages)
}

// Messages returns a copy of the transcript.
func (c *Conversation) Messages() []Message {
	out := make([]Message, len(c.messages))
	copy(out, c.messages)
	return out
}

// SetSelected toggles whether message i is sent on the next request.
func (c *Conversation) SetSelected(i int, selected bool) error {
	if err := c.checkIndex(i); err != nil {
		return err
	}
	c.messages[i].Selected = selected
	return nil
}

// SetContent replaces the text of message i.
func (c *Conversation) SetContent(i int, content string) error {
	if err := c.checkIndex(i); err != nil {
		return err
	}
	c.messages[i].Content = content
	return nil
}

// SelectedEntries returns the selected messages in order, without the flag.
func (c *Conversation) SelectedEntries() []Entry {
	entries := make([]Entry, 0, len(c.messages))
	for _, m := range c.messages {
		if m.Selected {
			entries = append(entries, Entry{Role: m.Role, Content: m.Content})
		}
	}
	return entries
}

// Validate checks that every message carries a known role.
func (c *Conversation) Validate() error {
	for i, m := range c.messages {
		if !m.Role.Valid() {
			return fmt.Errorf("%w: %q at index %d", ErrInvalidMessageRole, m.Role, i)
		}
	}
	return nil
}

func (c *Conversation) checkIndex(i int) error {
	if i < 0 || i >= len(c.messages) {
		return fmt.Errorf("%w: %d (have %d messages)", ErrOutOfRange, i, len(c.messages))
	}
	return nil
}
