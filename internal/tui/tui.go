// Package tui is a terminal front-end for a chat session. It plays the role
// of the editor panel: it renders the transcript the session posts and turns
// input lines into view events.
package tui

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"charm.land/bubbles/v2/textinput"
	"charm.land/bubbles/v2/viewport"
	tea "charm.land/bubbletea/v2"
	"github.com/charmbracelet/glamour"
	"github.com/charmbracelet/lipgloss"

	"github.com/raphaelgruber/codechat/internal/conversation"
	"github.com/raphaelgruber/codechat/internal/view"
)

// Panel is the session surface the terminal front-end drives.
// *session.Session implements it.
type Panel interface {
	HandleEvent(ctx context.Context, ev view.Event) error
	Refresh()
	Messages() []conversation.Message
}

// Theme holds the color scheme of the panel.
type Theme struct {
	Title  lipgloss.Color
	Status lipgloss.Color
	Error  lipgloss.Color
	Hint   lipgloss.Color
	Border lipgloss.Color
}

var defaultTheme = Theme{
	Title:  lipgloss.Color("#5FAFD7"), // light blue
	Status: lipgloss.Color("#00D787"), // green
	Error:  lipgloss.Color("#FF005F"), // red
	Hint:   lipgloss.Color("#6C6C6C"), // dim gray
	Border: lipgloss.Color("#3A3A3A"), // dark gray
}

func (t Theme) titleStyle() lipgloss.Style {
	return lipgloss.NewStyle().Foreground(t.Title).Bold(true)
}

func (t Theme) statusStyle() lipgloss.Style {
	return lipgloss.NewStyle().Foreground(t.Status)
}

func (t Theme) errorStyle() lipgloss.Style {
	return lipgloss.NewStyle().Foreground(t.Error).Bold(true)
}

func (t Theme) hintStyle() lipgloss.Style {
	return lipgloss.NewStyle().Foreground(t.Hint).Italic(true)
}

func (t Theme) borderStyle() lipgloss.Style {
	return lipgloss.NewStyle().Foreground(t.Border)
}

// Markdown renders transcript text for the terminal.
type Markdown func(width int, text string) string

// GlamourMarkdown returns a Markdown that renders with glamour, falling back
// to the raw text when rendering fails. The style is detected from the
// terminal unless opts set one. The renderer is rebuilt only when the width
// changes.
func GlamourMarkdown(opts ...glamour.TermRendererOption) Markdown {
	if len(opts) == 0 {
		opts = []glamour.TermRendererOption{glamour.WithAutoStyle()}
	}
	var (
		renderer *glamour.TermRenderer
		width    int
	)
	return func(w int, text string) string {
		w = max(w, 20)
		if renderer == nil || w != width {
			r, err := glamour.NewTermRenderer(append(opts[:len(opts):len(opts)], glamour.WithWordWrap(w))...)
			if err != nil {
				return text
			}
			renderer, width = r, w
		}
		out, err := renderer.Render(text)
		if err != nil {
			return text
		}
		return out
	}
}

// Plain returns text unchanged.
func Plain(_ int, text string) string { return text }

// Options configures a Model.
type Options struct {
	Markdown Markdown
	Logger   *slog.Logger
}

// Model is the bubbletea model of the panel.
type Model struct {
	ctx    context.Context
	panel  Panel
	sink   *Sink
	logger *slog.Logger
	render Markdown
	theme  Theme

	viewport   viewport.Model
	input      textinput.Model
	transcript string
	status     string
	err        error
	width      int
	height     int
	quitting   bool
}

// NewModel creates the panel model. sink must be the Sink the session posts
// host messages to.
func NewModel(ctx context.Context, panel Panel, sink *Sink, opts Options) Model {
	if opts.Markdown == nil {
		opts.Markdown = GlamourMarkdown()
	}
	if opts.Logger == nil {
		opts.Logger = slog.Default()
	}

	in := textinput.New()
	in.Placeholder = "Ask about the selection, or /help"
	in.Prompt = "> "
	in.Focus()

	return Model{
		ctx:      ctx,
		panel:    panel,
		sink:     sink,
		logger:   opts.Logger,
		render:   opts.Markdown,
		theme:    defaultTheme,
		viewport: viewport.New(viewport.WithWidth(80), viewport.WithHeight(20)),
		input:    in,
		width:    80,
		height:   24,
	}
}

// Init starts listening for host messages and asks for the first render.
func (m Model) Init() tea.Cmd {
	return tea.Batch(
		m.sink.wait(m.ctx),
		func() tea.Msg {
			m.panel.Refresh()
			return nil
		},
	)
}

// Update handles messages and returns the updated model.
func (m Model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	var cmds []tea.Cmd

	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		m.width, m.height = msg.Width, msg.Height
		m.layout()
		m.viewport.SetContent(m.render(m.viewport.Width(), m.transcript))

	case tea.KeyPressMsg:
		switch msg.String() {
		case "ctrl+c":
			m.quitting = true
			return m, tea.Quit
		case "pgup":
			m.viewport.PageUp()
			return m, nil
		case "pgdown":
			m.viewport.PageDown()
			return m, nil
		case "enter":
			return m.submit()
		}

	case hostMsgs:
		cmds = append(cmds, m.apply(msg)...)
		cmds = append(cmds, m.sink.wait(m.ctx))
	}

	var cmd tea.Cmd
	m.input, cmd = m.input.Update(msg)
	cmds = append(cmds, cmd)
	return m, tea.Batch(cmds...)
}

// submit turns the input line into a view event.
func (m Model) submit() (tea.Model, tea.Cmd) {
	line := m.input.Value()
	c, err := parseCommand(line, m.panel.Messages())
	if err != nil {
		m.err = err
		return m, nil
	}
	m.err = nil

	switch {
	case c.quit:
		m.quitting = true
		return m, tea.Quit
	case c.help:
		m.status = helpText
		m.input.Reset()
		return m, nil
	case c.event == nil:
		return m, nil
	}

	if err := m.panel.HandleEvent(m.ctx, c.event); err != nil {
		m.logger.Warn("event rejected", "type", c.event.Type(), "error", err)
		m.err = err
		return m, nil
	}
	m.status = ""
	if _, ok := c.event.(view.Prompt); !ok {
		// prompts are cleared by the session once the turn completes
		m.input.Reset()
	}
	if c.refresh {
		m.panel.Refresh()
	}
	return m, nil
}

// apply reflects host messages in the model.
func (m *Model) apply(msgs []view.HostMessage) []tea.Cmd {
	var cmds []tea.Cmd
	for _, msg := range msgs {
		switch msg.Type {
		case view.TypeAddResponse:
			m.transcript = msg.Value
			m.viewport.SetContent(m.render(m.viewport.Width(), msg.Value))
			m.viewport.GotoBottom()
		case view.TypeSetPrompt:
			m.input.SetValue(msg.Value)
			m.input.CursorEnd()
		case view.TypeInsertSnippet:
			cmds = append(cmds, tea.SetClipboard(msg.Value))
			m.status = fmt.Sprintf("copied %d lines to the clipboard", strings.Count(msg.Value, "\n")+1)
		default:
			m.logger.Debug("ignoring host message", "type", msg.Type)
		}
	}
	return cmds
}

func (m *Model) layout() {
	// title, separator, input, status
	chrome := 4
	h := m.height - chrome
	if h < 1 {
		h = 1
	}
	m.viewport.SetWidth(m.width)
	m.viewport.SetHeight(h)
	m.input.SetWidth(m.width - len(m.input.Prompt) - 1)
}

// View renders the panel.
func (m Model) View() tea.View {
	v := tea.NewView(m.renderContent())
	v.AltScreen = true
	return v
}

func (m Model) renderContent() string {
	if m.quitting {
		return ""
	}

	var b strings.Builder
	b.WriteString(m.theme.titleStyle().Render("codechat"))
	b.WriteString("\n")
	b.WriteString(m.viewport.View())
	b.WriteString("\n")
	b.WriteString(m.theme.borderStyle().Render(strings.Repeat("─", max(m.width, 1))))
	b.WriteString("\n")
	b.WriteString(m.input.View())
	b.WriteString("\n")
	switch {
	case m.err != nil:
		b.WriteString(m.theme.errorStyle().Render(m.err.Error()))
	case m.status != "":
		b.WriteString(m.theme.statusStyle().Render(m.status))
	default:
		b.WriteString(m.theme.hintStyle().Render("enter to send · pgup/pgdown to scroll · ctrl+c to quit"))
	}
	return b.String()
}

// Run runs the interactive panel until the user quits.
func Run(ctx context.Context, panel Panel, sink *Sink, opts Options) error {
	p := tea.NewProgram(NewModel(ctx, panel, sink, opts), tea.WithContext(ctx))
	if _, err := p.Run(); err != nil && !errors.Is(err, tea.ErrProgramKilled) {
		return fmt.Errorf("run panel: %w", err)
	}
	return nil
}
