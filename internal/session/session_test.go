package session

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/raphaelgruber/codechat/internal/config"
	"github.com/raphaelgruber/codechat/internal/conversation"
	"github.com/raphaelgruber/codechat/internal/editor"
	"github.com/raphaelgruber/codechat/internal/llm"
	"github.com/raphaelgruber/codechat/internal/metrics"
	"github.com/raphaelgruber/codechat/internal/models"
	"github.com/raphaelgruber/codechat/internal/prompt"
	"github.com/raphaelgruber/codechat/internal/render"
	"github.com/raphaelgruber/codechat/internal/tokenizer"
	"github.com/raphaelgruber/codechat/internal/view"
)

var errConnReset = errors.New("connection reset by peer")

type fakeStreamer struct {
	mu       sync.Mutex
	requests []llm.Request
	produce  llm.ProduceFunc
}

func (f *fakeStreamer) Stream(ctx context.Context, req llm.Request) (*llm.Stream, error) {
	f.mu.Lock()
	f.requests = append(f.requests, req)
	produce := f.produce
	f.mu.Unlock()
	return llm.Pump(ctx, tokenizer.Whitespace{}, 0, produce), nil
}

func (f *fakeStreamer) calls() []llm.Request {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]llm.Request(nil), f.requests...)
}

func fragments(err error, parts ...string) llm.ProduceFunc {
	return func(ctx context.Context, emit llm.EmitFunc) error {
		for _, p := range parts {
			if e := emit(p); e != nil {
				return e
			}
		}
		return err
	}
}

// blocking emits nothing and returns once its context is cancelled or
// release is closed. started is closed when the request begins.
func blocking(started, release chan struct{}) llm.ProduceFunc {
	return func(ctx context.Context, emit llm.EmitFunc) error {
		close(started)
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-release:
			return emit("late")
		}
	}
}

type fakeLedger struct {
	mu        sync.Mutex
	records   []models.TokenUsageInput
	deadlines []time.Time
}

func (l *fakeLedger) RecordTokenUsage(ctx context.Context, in models.TokenUsageInput) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.records = append(l.records, in)
	deadline, _ := ctx.Deadline()
	l.deadlines = append(l.deadlines, deadline)
	return nil
}

type fixture struct {
	session  *Session
	streamer *fakeStreamer
	sink     *view.Recorder
	store    *config.Store
	ledger   *fakeLedger
	metrics  *metrics.Collector
}

func testSettings() config.Settings {
	s := config.DefaultSettings()
	s.APIKey = "sk-test"
	return s
}

func newFixture(t *testing.T, s config.Settings, sel editor.Provider, produce llm.ProduceFunc) *fixture {
	t.Helper()
	f := &fixture{
		streamer: &fakeStreamer{produce: produce},
		sink:     &view.Recorder{},
		store:    config.NewStore(s),
		ledger:   &fakeLedger{},
		metrics:  metrics.NewCollector(),
	}
	f.session = New(Dependencies{
		Streamer:  f.streamer,
		Counter:   tokenizer.Whitespace{},
		Selection: sel,
		Sink:      f.sink,
		Settings:  f.store,
		Usage:     f.ledger,
		Metrics:   f.metrics,
		Logger:    slog.New(slog.NewTextHandler(io.Discard, nil)),
	})
	return f
}

func TestSearchStreamsAndAppends(t *testing.T) {
	f := newFixture(t, testSettings(), nil, fragments(nil, "Hel", "lo"))

	err := f.session.Search(context.Background(), "hi")
	require.NoError(t, err)

	msgs := f.session.Messages()
	require.Len(t, msgs, 3)
	assert.Equal(t, conversation.Message{Role: conversation.RoleUser, Content: "hi", Selected: true}, msgs[1])
	assert.Equal(t, conversation.Message{Role: conversation.RoleAssistant, Content: "Hello", Selected: true}, msgs[2])

	responses := f.sink.Values(view.TypeAddResponse)
	require.Len(t, responses, 4)
	assert.Equal(t, render.Pending, responses[0])
	assert.Equal(t, "Hel", responses[1])
	assert.Equal(t, "Hello", responses[2])
	assert.Equal(t, f.session.Transcript(), responses[3])

	assert.Equal(t, []string{"hi", ""}, f.sink.Values(view.TypeSetPrompt))

	promptTokens := tokenizer.Whitespace{}.Count(render.PromptText(msgs[:2]))
	assert.Equal(t, promptTokens+2, f.session.Total())
	assert.Contains(t, f.session.Transcript(), "Tokens used: ")
	assert.False(t, f.session.Pending())

	calls := f.streamer.calls()
	require.Len(t, calls, 1)
	assert.Equal(t, []conversation.Entry{
		{Role: conversation.RoleSystem, Content: conversation.DefaultSystemPrompt},
		{Role: conversation.RoleUser, Content: "hi"},
	}, calls[0].Messages)
	assert.Equal(t, 1000, calls[0].MaxTokens)
}

func TestSearchTransportErrorKeepsPartialText(t *testing.T) {
	f := newFixture(t, testSettings(), nil, fragments(errConnReset, "Hel", "lo"))

	err := f.session.Search(context.Background(), "hi")
	require.Error(t, err)
	assert.ErrorIs(t, err, errConnReset)

	var se *llm.StreamError
	require.ErrorAs(t, err, &se)
	assert.Equal(t, "Hello", se.Partial)

	msgs := f.session.Messages()
	require.Len(t, msgs, 3)
	assert.Equal(t, "Hello", msgs[2].Content)

	transcript := f.session.Transcript()
	assert.True(t, strings.HasSuffix(transcript, "\n\n---\n[ERROR] "+err.Error()), transcript)
	assert.Equal(t, transcript, f.sink.Values(view.TypeAddResponse)[3])

	require.Len(t, f.ledger.records, 1)
	assert.Equal(t, "transport", f.ledger.records[0].Outcome)
	assert.Equal(t, int64(1), f.metrics.Snapshot().Errors["transport"])
}

func TestSearchNotConfigured(t *testing.T) {
	s := testSettings()
	s.APIKey = ""
	f := newFixture(t, s, nil, fragments(nil, "x"))

	err := f.session.Search(context.Background(), "hi")
	assert.ErrorIs(t, err, llm.ErrNotConfigured)

	assert.Equal(t, []view.HostMessage{view.AddResponse(render.NotConfiguredMessage)}, f.sink.Messages())
	assert.Len(t, f.session.Messages(), 1)
	assert.Empty(t, f.streamer.calls())
}

func TestSearchValidationErrors(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(*config.Settings)
		wantErr error
	}{
		{
			name:    "empty model",
			mutate:  func(s *config.Settings) { s.Model = "" },
			wantErr: llm.ErrInvalidModel,
		},
		{
			name:    "context budget",
			mutate:  func(s *config.Settings) { s.MaxModelTokens = 1001 },
			wantErr: prompt.ErrContextBudget,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			s := testSettings()
			tt.mutate(&s)
			f := newFixture(t, s, nil, fragments(nil, "x"))

			err := f.session.Search(context.Background(), "hello there")
			assert.ErrorIs(t, err, tt.wantErr)
			assert.Empty(t, f.streamer.calls(), "no request may be sent")

			msgs := f.session.Messages()
			require.Len(t, msgs, 2)
			assert.Equal(t, conversation.RoleUser, msgs[1].Role)
			assert.Equal(t, 0, f.session.Total())
			assert.Contains(t, f.session.Transcript(), "[ERROR] ")
			assert.Empty(t, f.ledger.records)
			assert.False(t, f.session.Pending())
		})
	}
}

func TestSearchInvalidRole(t *testing.T) {
	f := newFixture(t, testSettings(), nil, fragments(nil, "x"))
	f.session.conv.AppendMessage(conversation.Message{Role: "tool", Content: "?", Selected: true})

	err := f.session.Search(context.Background(), "hi")
	assert.ErrorIs(t, err, conversation.ErrInvalidMessageRole)
	assert.Empty(t, f.streamer.calls())
}

func TestSearchWithSelection(t *testing.T) {
	s := testSettings()
	s.SelectedInsideCodeblock = true
	s.CodeblockWithLanguageID = true
	sel := editor.Static{Selection: editor.Selection{Text: "let x = 1", LanguageID: "javascript"}}
	f := newFixture(t, s, sel, fragments(nil, "ok"))

	require.NoError(t, f.session.Search(context.Background(), "fix this"))

	msgs := f.session.Messages()
	assert.Equal(t, "fix this\n```javascript\nlet x = 1\n```", msgs[1].Content)
	raw, full := f.session.LastPrompt()
	assert.Equal(t, "fix this", raw)
	assert.Equal(t, msgs[1].Content, full)
	// the input box shows the raw prompt, not the assembled one
	assert.Equal(t, "fix this", f.sink.Values(view.TypeSetPrompt)[0])
}

func TestSearchEmptyPromptAppendsNoUserMessage(t *testing.T) {
	f := newFixture(t, testSettings(), nil, fragments(nil, "hi"))

	require.NoError(t, f.session.Search(context.Background(), ""))

	msgs := f.session.Messages()
	require.Len(t, msgs, 2)
	assert.Equal(t, conversation.RoleAssistant, msgs[1].Role)
}

func TestSearchWithoutKeepConversation(t *testing.T) {
	s := testSettings()
	s.KeepConversation = false
	f := newFixture(t, s, nil, fragments(nil, "answer"))

	require.NoError(t, f.session.Search(context.Background(), "one"))
	require.NoError(t, f.session.Search(context.Background(), "two"))

	msgs := f.session.Messages()
	require.Len(t, msgs, 3)
	assert.Equal(t, "two", msgs[1].Content)
}

func TestTotalIsMonotonic(t *testing.T) {
	f := newFixture(t, testSettings(), nil, fragments(nil, "a b c"))

	prev := 0
	for _, p := range []string{"first", "second", "third"} {
		require.NoError(t, f.session.Search(context.Background(), p))
		total := f.session.Total()
		assert.Greater(t, total, prev)
		prev = total
	}
	require.Len(t, f.ledger.records, 3)
	assert.Equal(t, models.OutcomeOK, f.ledger.records[2].Outcome)
	assert.Equal(t, f.session.ID(), f.ledger.records[0].SessionID)
}

func TestSearchRejectsOverlap(t *testing.T) {
	started, release := make(chan struct{}), make(chan struct{})
	f := newFixture(t, testSettings(), nil, blocking(started, release))

	done := make(chan error, 1)
	go func() { done <- f.session.Search(context.Background(), "first") }()
	<-started

	err := f.session.Search(context.Background(), "second")
	assert.ErrorIs(t, err, ErrTurnInProgress)
	assert.ErrorIs(t, f.session.PromptNoQuery("third"), ErrTurnInProgress)

	close(release)
	require.NoError(t, <-done)

	msgs := f.session.Messages()
	require.Len(t, msgs, 3)
	assert.Equal(t, "first", msgs[1].Content)
	assert.Equal(t, "late", msgs[2].Content)
}

func TestResetDuringTurnDiscardsLateResult(t *testing.T) {
	started, release := make(chan struct{}), make(chan struct{})
	defer close(release)
	f := newFixture(t, testSettings(), nil, blocking(started, release))

	done := make(chan error, 1)
	go func() { done <- f.session.Search(context.Background(), "first") }()
	<-started

	f.session.Reset()

	select {
	case err := <-done:
		assert.ErrorIs(t, err, ErrTurnCancelled)
	case <-time.After(2 * time.Second):
		t.Fatal("turn was not cancelled by reset")
	}

	msgs := f.session.Messages()
	require.Len(t, msgs, 1)
	assert.Equal(t, conversation.RoleSystem, msgs[0].Role)
	assert.Equal(t, 0, f.session.Total())
	assert.False(t, f.session.Pending())
	assert.Empty(t, f.ledger.records)

	last, ok := f.sink.Last(view.TypeAddResponse)
	require.True(t, ok)
	assert.Equal(t, f.session.Transcript(), last)
	assert.NotContains(t, last, "[ERROR]")
}

func TestResetIsIdempotent(t *testing.T) {
	f := newFixture(t, testSettings(), nil, fragments(nil, "x"))
	require.NoError(t, f.session.Search(context.Background(), "hi"))

	for range 3 {
		f.session.Reset()
		msgs := f.session.Messages()
		require.Len(t, msgs, 1)
		assert.Equal(t, conversation.Message{Role: conversation.RoleSystem, Content: conversation.DefaultSystemPrompt, Selected: true}, msgs[0])
		assert.Equal(t, 0, f.session.Total())
	}
	last, _ := f.sink.Last(view.TypeSetPrompt)
	assert.Equal(t, "", last)
}

func TestPromptNoQuery(t *testing.T) {
	f := newFixture(t, testSettings(), nil, fragments(nil, "x"))

	require.NoError(t, f.session.PromptNoQuery("remember this"))

	msgs := f.session.Messages()
	require.Len(t, msgs, 2)
	assert.Equal(t, "remember this", msgs[1].Content)
	assert.Empty(t, f.streamer.calls())
	assert.Equal(t, 0, f.session.Total())

	last, ok := f.sink.Last(view.TypeAddResponse)
	require.True(t, ok)
	assert.Contains(t, last, "remember this")
}

func TestSetSelectedAndContent(t *testing.T) {
	f := newFixture(t, testSettings(), nil, fragments(nil, "x"))
	require.NoError(t, f.session.Search(context.Background(), "hi"))

	require.NoError(t, f.session.SetSelected("message-checkbox-1", false))
	require.NoError(t, f.session.SetContent("message-content-0", "Be terse."))

	msgs := f.session.Messages()
	assert.False(t, msgs[1].Selected)
	assert.Equal(t, "Be terse.", msgs[0].Content)

	assert.ErrorIs(t, f.session.SetSelected("message-checkbox-9", false), conversation.ErrOutOfRange)
	assert.ErrorIs(t, f.session.SetSelected("checkbox-1", false), view.ErrMalformedIdentifier)
	assert.ErrorIs(t, f.session.SetContent("message-content-x", "nope"), view.ErrMalformedIdentifier)
	assert.Equal(t, msgs, f.session.Messages(), "rejected changes must not mutate")

	// deselected messages are not sent
	require.NoError(t, f.session.Search(context.Background(), "again"))
	calls := f.streamer.calls()
	for _, e := range calls[1].Messages {
		assert.NotEqual(t, "hi", e.Content)
	}
	assert.Equal(t, "Be terse.", calls[1].Messages[0].Content)
}

func TestCodeSelected(t *testing.T) {
	f := newFixture(t, testSettings(), nil, nil)
	f.session.CodeSelected("fmt.Println()")
	assert.Equal(t, []string{"fmt.Println()"}, f.sink.Values(view.TypeInsertSnippet))

	s := testSettings()
	s.PasteOnClick = false
	f.store.Set(s)
	f.session.CodeSelected("ignored")
	assert.Len(t, f.sink.Values(view.TypeInsertSnippet), 1)
}

func TestHandleEvent(t *testing.T) {
	tracker := editor.NewTracker()
	f := newFixture(t, testSettings(), tracker, fragments(nil, "done"))
	ctx := context.Background()

	require.NoError(t, f.session.HandleEvent(ctx, view.SelectionChanged{Text: "x := 1", LanguageID: "go"}))
	require.NoError(t, f.session.HandleEvent(ctx, view.Prompt{Value: "explain"}))
	f.session.Wait()

	msgs := f.session.Messages()
	require.Len(t, msgs, 3)
	assert.Equal(t, "explain\nx := 1\n", msgs[1].Content)

	require.NoError(t, f.session.HandleEvent(ctx, view.CheckboxChanged{ID: view.CheckboxID(1), Checked: false}))
	assert.False(t, f.session.Messages()[1].Selected)

	require.NoError(t, f.session.HandleEvent(ctx, view.ResetConversation{}))
	assert.Len(t, f.session.Messages(), 1)

	assert.ErrorIs(t, f.session.HandleEvent(ctx, nil), view.ErrUnknownEvent)
}

func TestHandleEventRunPreset(t *testing.T) {
	sel := editor.Static{Selection: editor.Selection{Text: "a+b"}}
	f := newFixture(t, testSettings(), sel, fragments(nil, "sum"))
	ctx := context.Background()

	require.NoError(t, f.session.HandleEvent(ctx, view.RunPreset{Name: prompt.PresetExplain}))
	f.session.Wait()

	msgs := f.session.Messages()
	require.Len(t, msgs, 3)
	assert.Equal(t, "Explain what this code does: \na+b\n", msgs[1].Content)

	assert.ErrorIs(t, f.session.HandleEvent(ctx, view.RunPreset{Name: "poem"}), prompt.ErrUnknownPreset)
}

func TestSettingsChangesApplyBetweenTurns(t *testing.T) {
	f := newFixture(t, testSettings(), nil, fragments(nil, "x"))
	require.NoError(t, f.session.Search(context.Background(), "one"))

	s := testSettings()
	s.Model = "gpt-4o"
	f.store.Set(s)
	require.NoError(t, f.session.Search(context.Background(), "two"))

	calls := f.streamer.calls()
	assert.Equal(t, "gpt-3.5-turbo", calls[0].Model)
	assert.Equal(t, "gpt-4o", calls[1].Model)
	assert.Contains(t, f.session.Transcript(), "model: gpt-4o")
}

func TestRefreshRerenders(t *testing.T) {
	f := newFixture(t, testSettings(), nil, fragments(nil, "x"))
	require.NoError(t, f.session.Search(context.Background(), "hi"))
	require.NoError(t, f.session.SetSelected(view.CheckboxID(1), false))

	f.session.Refresh()

	last, _ := f.sink.Last(view.TypeAddResponse)
	assert.Contains(t, last, "id='message-checkbox-1' type='checkbox'  onchange")
	assert.Equal(t, f.session.Transcript(), last)
}

func TestLedgerWriteHasOwnTimeout(t *testing.T) {
	f := newFixture(t, testSettings(), nil, fragments(nil, "ok"))

	start := time.Now()
	require.NoError(t, f.session.Search(context.Background(), "hi"))

	require.Len(t, f.ledger.deadlines, 1)
	deadline := f.ledger.deadlines[0]
	require.False(t, deadline.IsZero())
	assert.WithinDuration(t, start.Add(ledgerTimeout), deadline, 2*time.Second)
	assert.Equal(t, 10*time.Second, ledgerTimeout)
}
