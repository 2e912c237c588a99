// Package render turns a conversation into the transcript string shown in the
// chat panel. Every function here is pure.
package render

import (
	"fmt"
	"html"
	"strings"

	"github.com/raphaelgruber/codechat/internal/config"
	"github.com/raphaelgruber/codechat/internal/conversation"
	"github.com/raphaelgruber/codechat/internal/parser"
)

// NotConfiguredMessage is shown instead of a transcript when no endpoint or
// credential is configured.
const NotConfiguredMessage = `[ERROR] "API key or API URL not set, please go to extension settings (read README.md for more info)"`

// Pending is shown while the first fragment of a response is awaited.
const Pending = "..."

// Style selects the markup flavour of the transcript.
type Style int

const (
	// StyleWebview emits the HTML-in-Markdown the webview front-end expects.
	StyleWebview Style = iota
	// StyleTerminal emits plain Markdown for terminal rendering.
	StyleTerminal
)

// Usage is the token usage of the current turn.
type Usage struct {
	PromptTokens     int
	CompletionTokens int
}

// Total returns prompt plus completion tokens.
func (u Usage) Total() int {
	return u.PromptTokens + u.CompletionTokens
}

// Transcript renders msgs followed by the usage summary line.
func Transcript(msgs []conversation.Message, total int, usage Usage, s config.Settings, style Style) string {
	var b strings.Builder
	for i, m := range msgs {
		switch style {
		case StyleTerminal:
			writeTerminalMessage(&b, i, m)
		default:
			writeWebviewMessage(&b, i, m)
		}
	}
	b.WriteString(usageLine(total, usage, s, style))
	return b.String()
}

func writeWebviewMessage(b *strings.Builder, i int, m conversation.Message) {
	checked := ""
	if m.Selected {
		checked = "checked"
	}
	role := strings.ToUpper(string(m.Role))

	fmt.Fprintf(b, "\n# <u> <input id='message-checkbox-%d' type='checkbox' %s onchange='myFunction(this)'> %s</u>:", i, checked, role)
	if parser.IsRich(m.Content) {
		b.WriteString("\n")
		b.WriteString(m.Content)
		return
	}
	fmt.Fprintf(b, " <div id='message-content-%d' contenteditable='false' onclick='makeEditable(this)' onblur='saveContent(this)'>%s</div>",
		i, html.EscapeString(m.Content))
}

func writeTerminalMessage(b *strings.Builder, i int, m conversation.Message) {
	mark := " "
	if m.Selected {
		mark = "x"
	}
	fmt.Fprintf(b, "\n# [%s] %d %s:\n%s", mark, i, strings.ToUpper(string(m.Role)), m.Content)
}

func usageLine(total int, u Usage, s config.Settings, style Style) string {
	summary := fmt.Sprintf("Total Tokens: %d,  Tokens used: %d (%d+%d), model: %s, maxModelTokens: %d, maxResponseTokens: %d",
		total, u.Total(), u.PromptTokens, u.CompletionTokens, s.Model, s.MaxModelTokens, s.MaxResponseTokens)
	if style == StyleTerminal {
		return "\n\n---\n*" + summary + "*\n"
	}
	return "\n\n---\n*<sub>" + summary + "</sub>* \n\n---\n\n\n\n\n\n\n"
}

// PromptText is the text whose token count is reported as the prompt tokens
// of a turn: every selected message with its role header.
func PromptText(msgs []conversation.Message) string {
	var b strings.Builder
	for _, m := range msgs {
		if !m.Selected {
			continue
		}
		b.WriteString("\n# <u>")
		b.WriteString(strings.ToUpper(string(m.Role)))
		b.WriteString("</u>:\n")
		b.WriteString(m.Content)
	}
	return b.String()
}

// ErrorAnnotation appends an error block to a transcript.
func ErrorAnnotation(transcript string, err error) string {
	return transcript + "\n\n---\n[ERROR] " + err.Error()
}

// CloseOpenFence balances the code fences of partial output.
func CloseOpenFence(text string) string {
	return parser.CloseOpenFence(text)
}
