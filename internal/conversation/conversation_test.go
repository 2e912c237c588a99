package conversation

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewSeedsSystemMessage(t *testing.T) {
	c := New()

	require.Equal(t, 1, c.Len())
	msgs := c.Messages()
	assert.Equal(t, RoleSystem, msgs[0].Role)
	assert.Equal(t, DefaultSystemPrompt, msgs[0].Content)
	assert.True(t, msgs[0].Selected)
}

func TestResetIsIdempotent(t *testing.T) {
	c := New()
	c.Append(RoleUser, "hello")
	c.Append(RoleAssistant, "hi")
	require.NoError(t, c.SetContent(0, "edited system prompt"))

	for i := 0; i < 3; i++ {
		c.Reset()
		assert.Equal(t, New().Messages(), c.Messages(), "reset #%d", i+1)
	}
}

func TestSelectedEntries(t *testing.T) {
	tests := []struct {
		name     string
		selected []bool
		want     []Entry
	}{
		{
			name:     "all selected keeps order",
			selected: []bool{true, true, true},
			want: []Entry{
				{Role: RoleSystem, Content: DefaultSystemPrompt},
				{Role: RoleUser, Content: "q1"},
				{Role: RoleAssistant, Content: "a1"},
			},
		},
		{
			name:     "middle message dropped",
			selected: []bool{true, false, true},
			want: []Entry{
				{Role: RoleSystem, Content: DefaultSystemPrompt},
				{Role: RoleAssistant, Content: "a1"},
			},
		},
		{
			name:     "none selected",
			selected: []bool{false, false, false},
			want:     []Entry{},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c := New()
			c.Append(RoleUser, "q1")
			c.Append(RoleAssistant, "a1")
			for i, sel := range tt.selected {
				require.NoError(t, c.SetSelected(i, sel))
			}

			assert.Equal(t, tt.want, c.SelectedEntries())
		})
	}
}

func TestSelectedEntriesDoesNotMutate(t *testing.T) {
	c := New()
	c.Append(RoleUser, "q")
	require.NoError(t, c.SetSelected(1, false))

	before := c.Messages()
	_ = c.SelectedEntries()
	assert.Equal(t, before, c.Messages())
}

func TestIndexedMutationOutOfRange(t *testing.T) {
	c := New()
	before := c.Messages()

	for _, i := range []int{-1, 1, 42} {
		err := c.SetSelected(i, false)
		assert.True(t, errors.Is(err, ErrOutOfRange), "SetSelected(%d)", i)

		err = c.SetContent(i, "x")
		assert.True(t, errors.Is(err, ErrOutOfRange), "SetContent(%d)", i)
	}

	assert.Equal(t, before, c.Messages())
}

func TestSetContentEditsSystemMessage(t *testing.T) {
	c := New()
	c.Append(RoleUser, "q")

	require.NoError(t, c.SetContent(0, "You are terse."))
	assert.Equal(t, "You are terse.", c.SelectedEntries()[0].Content)
}

func TestMessagesReturnsCopy(t *testing.T) {
	c := New()
	msgs := c.Messages()
	msgs[0].Content = "changed"

	assert.Equal(t, DefaultSystemPrompt, c.Messages()[0].Content)
}

func TestValidate(t *testing.T) {
	c := New()
	c.Append(RoleUser, "q")
	assert.NoError(t, c.Validate())

	c.AppendMessage(Message{Role: Role("tool"), Content: "x", Selected: true})
	err := c.Validate()
	assert.ErrorIs(t, err, ErrInvalidMessageRole)
}

func TestParseRole(t *testing.T) {
	for _, s := range []string{"user", "assistant", "system"} {
		r, err := ParseRole(s)
		require.NoError(t, err)
		assert.Equal(t, Role(s), r)
	}

	_, err := ParseRole("USER")
	assert.ErrorIs(t, err, ErrInvalidMessageRole)
}
