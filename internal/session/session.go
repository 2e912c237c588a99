// Package session owns the state of one chat panel: the conversation, the
// token counters and the single in-flight turn.
package session

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"

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

var (
	// ErrTurnInProgress is returned when a prompt arrives while a turn is pending.
	ErrTurnInProgress = errors.New("a response is still streaming")
	// ErrTurnCancelled is returned by a turn that was abandoned by Reset.
	ErrTurnCancelled = errors.New("turn cancelled by reset")
)

// ledgerTimeout bounds a single usage ledger write.
const ledgerTimeout = 10 * time.Second

// Streamer opens completion streams. *llm.Client implements it.
type Streamer interface {
	Stream(ctx context.Context, req llm.Request) (*llm.Stream, error)
}

// SettingsSource yields the settings snapshot for the next operation.
type SettingsSource interface {
	Settings() config.Settings
}

// UsageRecorder persists per-turn token usage. *db.Client implements it.
type UsageRecorder interface {
	RecordTokenUsage(ctx context.Context, in models.TokenUsageInput) error
}

// selectionSetter is implemented by providers that accept selection updates
// from the view.
type selectionSetter interface {
	Set(sel editor.Selection)
}

// Dependencies holds the collaborators of a Session.
// Streamer, Settings and Sink are required.
type Dependencies struct {
	Streamer  Streamer
	Counter   tokenizer.Counter
	Selection editor.Provider
	Sink      view.Sink
	Settings  SettingsSource
	Usage     UsageRecorder // optional
	Metrics   *metrics.Collector
	Logger    *slog.Logger
	Style     render.Style
}

// turn is the pending state of a request in flight.
type turn struct {
	generation uint64
	cancel     context.CancelFunc
	started    time.Time
}

// Session is the host side of one chat panel. Every method is safe for
// concurrent use, but at most one turn runs at a time.
//
// Host messages are posted while the session lock is held, so a Sink must
// not call back into the Session.
type Session struct {
	id   string
	deps Dependencies

	mu         sync.Mutex
	conv       *conversation.Conversation
	total      int
	usage      render.Usage
	lastPrompt string
	fullPrompt string
	transcript string
	pending    *turn
	generation uint64

	wg sync.WaitGroup
}

// New creates a session seeded with the default system message.
func New(deps Dependencies) *Session {
	if deps.Counter == nil {
		deps.Counter = tokenizer.Whitespace{}
	}
	if deps.Selection == nil {
		deps.Selection = editor.None{}
	}
	if deps.Logger == nil {
		deps.Logger = slog.Default()
	}
	if deps.Metrics == nil {
		deps.Metrics = metrics.NewCollector()
	}
	id := uuid.NewString()
	deps.Logger = deps.Logger.With("session", id)
	return &Session{
		id:   id,
		deps: deps,
		conv: conversation.New(),
	}
}

// ID returns the session identifier.
func (s *Session) ID() string {
	return s.id
}

// Search runs one turn for raw: the prompt is combined with the current
// editor selection, appended to the conversation and sent upstream. Each
// fragment is posted to the view before the next one is awaited.
func (s *Session) Search(ctx context.Context, raw string) error {
	s.mu.Lock()
	if s.pending != nil {
		s.mu.Unlock()
		s.deps.Logger.Warn("prompt rejected, turn in progress")
		return ErrTurnInProgress
	}

	settings := s.deps.Settings.Settings()
	if !settings.Configured() {
		s.deps.Sink.Post(view.AddResponse(render.NotConfiguredMessage))
		s.mu.Unlock()
		s.deps.Metrics.RecordError(llm.ErrorKind(llm.ErrNotConfigured))
		s.deps.Logger.Warn("completion endpoint not configured", "provider", settings.Provider)
		return llm.ErrNotConfigured
	}

	if !settings.KeepConversation {
		s.resetLocked()
	}

	full := s.assembleLocked(raw, settings)
	s.deps.Sink.Post(view.SetPrompt(raw))
	s.deps.Sink.Post(view.AddResponse(render.Pending))
	if full != "" {
		s.conv.Append(conversation.RoleUser, full)
	}

	promptTokens := s.deps.Counter.Count(render.PromptText(s.conv.Messages()))
	req := llm.RequestFromSettings(settings, s.conv.SelectedEntries())

	turnCtx, cancel := context.WithCancel(ctx)
	defer cancel()
	s.generation++
	t := &turn{generation: s.generation, cancel: cancel, started: time.Now()}
	s.pending = t
	s.mu.Unlock()

	s.deps.Logger.Debug("turn started",
		"generation", t.generation,
		"model", settings.Model,
		"messages", len(req.Messages),
		"prompt_tokens", promptTokens)

	res := result{promptTokens: promptTokens}
	if err := validate(req, promptTokens, settings); err != nil {
		res.err = err
	} else {
		s.stream(turnCtx, t, req, &res)
	}
	return s.finish(ctx, t, settings, res)
}

// result is what a turn produced.
type result struct {
	promptTokens     int
	completionTokens int
	text             string
	reached          bool // the request was handed to the provider
	err              error
}

func validate(req llm.Request, promptTokens int, s config.Settings) error {
	if err := req.Validate(); err != nil {
		return err
	}
	return prompt.CheckBudget(promptTokens, s)
}

func (s *Session) stream(ctx context.Context, t *turn, req llm.Request, res *result) {
	st, err := s.deps.Streamer.Stream(ctx, req)
	if err != nil {
		res.err = err
		return
	}
	defer st.Close()
	res.reached = true

	first := true
	for {
		_, err := st.Recv()
		if err != nil {
			res.text = st.Text()
			res.completionTokens = st.CompletionTokens()
			if !errors.Is(err, io.EOF) {
				res.err = err
			}
			return
		}
		if first {
			s.deps.Metrics.RecordTiming(metrics.OpFirstFragment, time.Since(t.started))
			first = false
		}

		s.mu.Lock()
		if s.pending == t {
			s.deps.Sink.Post(view.AddResponse(render.CloseOpenFence(st.Text())))
		}
		s.mu.Unlock()
	}
}

func (s *Session) finish(ctx context.Context, t *turn, settings config.Settings, res result) error {
	elapsed := time.Since(t.started)

	s.mu.Lock()
	if s.pending != t {
		s.mu.Unlock()
		s.deps.Logger.Info("discarding result of cancelled turn", "generation", t.generation)
		return ErrTurnCancelled
	}
	s.pending = nil

	var se *llm.StreamError
	if errors.As(res.err, &se) {
		res.text = se.Partial
	}
	if res.err == nil || res.text != "" {
		s.conv.Append(conversation.RoleAssistant, res.text)
	}

	usage := render.Usage{PromptTokens: res.promptTokens}
	if res.reached {
		usage.CompletionTokens = res.completionTokens
		s.total += usage.Total()
	}
	s.usage = usage

	outcome := models.OutcomeOK
	if res.err != nil {
		outcome = llm.ErrorKind(res.err)
		s.deps.Metrics.RecordError(outcome)
		s.deps.Logger.Error("turn failed", "generation", t.generation, "kind", outcome, "error", res.err)
	} else {
		s.deps.Logger.Info("turn completed",
			"generation", t.generation,
			"prompt_tokens", usage.PromptTokens,
			"completion_tokens", usage.CompletionTokens,
			"duration_ms", elapsed.Milliseconds())
	}
	if res.reached {
		s.deps.Metrics.RecordTurn(elapsed, int64(usage.PromptTokens), int64(usage.CompletionTokens))
	}

	transcript := render.Transcript(s.conv.Messages(), s.total, usage, settings, s.deps.Style)
	if res.err != nil {
		transcript = render.ErrorAnnotation(transcript, res.err)
	}
	s.transcript = transcript
	s.deps.Sink.Post(view.AddResponse(transcript))
	s.deps.Sink.Post(view.SetPrompt(""))
	s.mu.Unlock()

	if res.reached {
		s.recordUsage(ctx, settings, usage, elapsed, outcome)
	}
	return res.err
}

func (s *Session) recordUsage(ctx context.Context, settings config.Settings, usage render.Usage, elapsed time.Duration, outcome string) {
	if s.deps.Usage == nil {
		return
	}
	ctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), ledgerTimeout)
	defer cancel()

	start := time.Now()
	err := s.deps.Usage.RecordTokenUsage(ctx, models.TokenUsageInput{
		SessionID:        s.id,
		Provider:         settings.Provider,
		Model:            settings.Model,
		PromptTokens:     usage.PromptTokens,
		CompletionTokens: usage.CompletionTokens,
		DurationMs:       elapsed.Milliseconds(),
		Outcome:          outcome,
	})
	s.deps.Metrics.RecordTiming(metrics.OpLedgerWrite, time.Since(start))
	if err != nil {
		s.deps.Logger.Warn("failed to record token usage", "error", err)
	}
}

// PromptNoQuery adds raw (with the selection) to the conversation as a user
// message without requesting a completion.
func (s *Session) PromptNoQuery(raw string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.pending != nil {
		s.deps.Logger.Warn("prompt rejected, turn in progress")
		return ErrTurnInProgress
	}

	settings := s.deps.Settings.Settings()
	full := s.assembleLocked(raw, settings)
	if full != "" {
		s.conv.Append(conversation.RoleUser, full)
	}
	msgs := s.conv.Messages()
	s.usage = render.Usage{PromptTokens: s.deps.Counter.Count(render.PromptText(msgs))}
	s.transcript = render.Transcript(msgs, s.total, s.usage, settings, s.deps.Style)
	s.deps.Sink.Post(view.AddResponse(s.transcript))
	return nil
}

// SetSelected toggles the inclusion flag of the message addressed by id
// (for example "message-checkbox-2").
func (s *Session) SetSelected(id string, checked bool) error {
	i, err := view.ParseMessageIndex(id)
	if err != nil {
		s.deps.Logger.Warn("ignoring checkbox change", "id", id, "error", err)
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.conv.SetSelected(i, checked); err != nil {
		s.deps.Logger.Warn("ignoring checkbox change", "id", id, "error", err)
		return err
	}
	return nil
}

// SetContent replaces the content of the message addressed by id
// (for example "message-content-2").
func (s *Session) SetContent(id, value string) error {
	i, err := view.ParseMessageIndex(id)
	if err != nil {
		s.deps.Logger.Warn("ignoring content change", "id", id, "error", err)
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.conv.SetContent(i, value); err != nil {
		s.deps.Logger.Warn("ignoring content change", "id", id, "error", err)
		return err
	}
	return nil
}

// CodeSelected asks the editor to insert code when paste-on-click is on.
func (s *Session) CodeSelected(code string) {
	if !s.deps.Settings.Settings().PasteOnClick {
		return
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.deps.Sink.Post(view.InsertSnippet(code))
}

// Reset cancels any turn in flight and reseeds the conversation. A cancelled
// turn's late result is discarded.
func (s *Session) Reset() {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.pending != nil {
		s.deps.Logger.Info("cancelling turn on reset", "generation", s.pending.generation)
		s.pending.cancel()
		s.pending = nil
	}
	s.generation++
	s.resetLocked()

	settings := s.deps.Settings.Settings()
	msgs := s.conv.Messages()
	s.usage = render.Usage{PromptTokens: s.deps.Counter.Count(render.PromptText(msgs))}
	s.transcript = render.Transcript(msgs, s.total, s.usage, settings, s.deps.Style)
	s.deps.Sink.Post(view.SetPrompt(""))
	s.deps.Sink.Post(view.AddResponse(s.transcript))
}

// Refresh re-renders the transcript from the current state and posts it.
func (s *Session) Refresh() {
	s.mu.Lock()
	defer s.mu.Unlock()
	settings := s.deps.Settings.Settings()
	s.transcript = render.Transcript(s.conv.Messages(), s.total, s.usage, settings, s.deps.Style)
	s.deps.Sink.Post(view.AddResponse(s.transcript))
}

// HandleEvent dispatches one view event. Prompt events start the turn on
// a goroutine; Wait joins it.
func (s *Session) HandleEvent(ctx context.Context, ev view.Event) error {
	switch e := ev.(type) {
	case view.Prompt:
		s.startTurn(ctx, e.Value)
	case view.PromptNoQuery:
		return s.PromptNoQuery(e.Value)
	case view.CodeSelected:
		s.CodeSelected(e.Value)
	case view.CheckboxChanged:
		return s.SetSelected(e.ID, e.Checked)
	case view.MessageContentChanged:
		return s.SetContent(e.ID, e.Value)
	case view.SelectionChanged:
		setter, ok := s.deps.Selection.(selectionSetter)
		if !ok {
			s.deps.Logger.Debug("selection provider is read-only, ignoring update")
			return nil
		}
		setter.Set(editor.Selection{Text: e.Text, LanguageID: e.LanguageID})
	case view.ResetConversation:
		s.Reset()
	case view.RunPreset:
		prefix, err := prompt.Preset(e.Name, s.deps.Settings.Settings())
		if err != nil {
			s.deps.Logger.Warn("ignoring preset", "name", e.Name, "error", err)
			return err
		}
		s.startTurn(ctx, prefix)
	default:
		return view.ErrUnknownEvent
	}
	return nil
}

func (s *Session) startTurn(ctx context.Context, raw string) {
	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		// failures are rendered into the transcript and logged by Search
		_ = s.Search(ctx, raw)
	}()
}

// Wait blocks until every turn started by HandleEvent has returned.
func (s *Session) Wait() {
	s.wg.Wait()
}

// Close cancels the turn in flight and waits for it to return.
func (s *Session) Close() {
	s.mu.Lock()
	if s.pending != nil {
		s.pending.cancel()
	}
	s.mu.Unlock()
	s.Wait()
}

// Messages returns a copy of the conversation.
func (s *Session) Messages() []conversation.Message {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.conv.Messages()
}

// Total returns the cumulative token count since the last reset.
func (s *Session) Total() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.total
}

// Transcript returns the last rendered transcript.
func (s *Session) Transcript() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.transcript
}

// LastPrompt returns the last raw prompt and its assembled form.
func (s *Session) LastPrompt() (raw, full string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.lastPrompt, s.fullPrompt
}

// Pending reports whether a turn is in flight.
func (s *Session) Pending() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.pending != nil
}

// Generation returns the number of turns started plus the number of resets.
func (s *Session) Generation() uint64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.generation
}

func (s *Session) assembleLocked(raw string, settings config.Settings) string {
	var sel *editor.Selection
	if cur, ok := s.deps.Selection.Current(); ok {
		sel = &cur
	}
	full := prompt.Assemble(raw, sel, settings)
	s.lastPrompt = raw
	s.fullPrompt = full
	return full
}

func (s *Session) resetLocked() {
	s.conv.Reset()
	s.total = 0
	s.usage = render.Usage{}
	s.lastPrompt = ""
	s.fullPrompt = ""
}
