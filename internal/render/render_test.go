package render

import (
	"errors"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/raphaelgruber/codechat/internal/config"
	"github.com/raphaelgruber/codechat/internal/conversation"
)

func sampleMessages() []conversation.Message {
	return []conversation.Message{
		{Role: conversation.RoleSystem, Content: conversation.DefaultSystemPrompt, Selected: true},
		{Role: conversation.RoleUser, Content: "fix <this>", Selected: false},
		{Role: conversation.RoleAssistant, Content: "Use:\n```go\nx := 1\n```", Selected: true},
	}
}

func TestTranscriptWebview(t *testing.T) {
	s := config.DefaultSettings()
	got := Transcript(sampleMessages(), 120, Usage{PromptTokens: 30, CompletionTokens: 12}, s, StyleWebview)

	want := "\n# <u> <input id='message-checkbox-0' type='checkbox' checked onchange='myFunction(this)'> SYSTEM</u>:" +
		" <div id='message-content-0' contenteditable='false' onclick='makeEditable(this)' onblur='saveContent(this)'>You are a helpful assistant.</div>" +
		"\n# <u> <input id='message-checkbox-1' type='checkbox'  onchange='myFunction(this)'> USER</u>:" +
		" <div id='message-content-1' contenteditable='false' onclick='makeEditable(this)' onblur='saveContent(this)'>fix &lt;this&gt;</div>" +
		"\n# <u> <input id='message-checkbox-2' type='checkbox' checked onchange='myFunction(this)'> ASSISTANT</u>:\nUse:\n```go\nx := 1\n```" +
		"\n\n---\n*<sub>Total Tokens: 120,  Tokens used: 42 (30+12), model: gpt-3.5-turbo, maxModelTokens: 4000, maxResponseTokens: 1000</sub>* \n\n---\n\n\n\n\n\n\n"

	assert.Equal(t, want, got)
}

func TestTranscriptTerminal(t *testing.T) {
	s := config.DefaultSettings()
	got := Transcript(sampleMessages(), 7, Usage{PromptTokens: 7}, s, StyleTerminal)

	assert.True(t, strings.HasPrefix(got, "\n# [x] 0 SYSTEM:\nYou are a helpful assistant."))
	assert.Contains(t, got, "\n# [ ] 1 USER:\nfix <this>")
	assert.Contains(t, got, "\n# [x] 2 ASSISTANT:\nUse:\n```go")
	assert.True(t, strings.HasSuffix(got, "*Total Tokens: 7,  Tokens used: 7 (7+0), model: gpt-3.5-turbo, maxModelTokens: 4000, maxResponseTokens: 1000*\n"))
	assert.NotContains(t, got, "<sub>")
}

func TestTranscriptIsReferentiallyTransparent(t *testing.T) {
	s := config.DefaultSettings()
	msgs := sampleMessages()
	first := Transcript(msgs, 10, Usage{PromptTokens: 5, CompletionTokens: 5}, s, StyleWebview)

	for i := 0; i < 3; i++ {
		assert.Equal(t, first, Transcript(msgs, 10, Usage{PromptTokens: 5, CompletionTokens: 5}, s, StyleWebview))
	}
	assert.Equal(t, sampleMessages(), msgs)
}

func TestListContentIsRich(t *testing.T) {
	msgs := []conversation.Message{{Role: conversation.RoleAssistant, Content: "Steps:\n1. build\n2. test", Selected: true}}
	got := Transcript(msgs, 0, Usage{}, config.DefaultSettings(), StyleWebview)

	assert.Contains(t, got, "ASSISTANT</u>:\nSteps:\n1. build")
	assert.NotContains(t, got, "message-content-0")
}

func TestPromptText(t *testing.T) {
	got := PromptText(sampleMessages())

	want := "\n# <u>SYSTEM</u>:\nYou are a helpful assistant." +
		"\n# <u>ASSISTANT</u>:\nUse:\n```go\nx := 1\n```"
	assert.Equal(t, want, got)
	assert.Equal(t, "", PromptText(nil))
}

func TestErrorAnnotation(t *testing.T) {
	got := ErrorAnnotation("transcript", errors.New("connection reset"))
	assert.Equal(t, "transcript\n\n---\n[ERROR] connection reset", got)
}

func TestCloseOpenFence(t *testing.T) {
	assert.Equal(t, "```js\nlet\n```", CloseOpenFence("```js\nlet"))
	assert.Equal(t, "Hello", CloseOpenFence("Hello"))
}
