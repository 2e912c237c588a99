// Package llm streams chat completions from hosted providers through
// langchaingo.
package llm

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/tmc/langchaingo/llms"

	"github.com/raphaelgruber/codechat/internal/config"
	"github.com/raphaelgruber/codechat/internal/conversation"
	"github.com/raphaelgruber/codechat/internal/tokenizer"
)

// Request is one completion request.
type Request struct {
	Provider  string
	APIURL    string
	APIKey    string
	Model     string
	MaxTokens int
	AWSRegion string
	Timeout   time.Duration
	Messages  []conversation.Entry
}

// RequestFromSettings builds a request for entries from a settings snapshot.
func RequestFromSettings(s config.Settings, entries []conversation.Entry) Request {
	return Request{
		Provider:  s.Provider,
		APIURL:    s.APIURL,
		APIKey:    s.APIKey,
		Model:     s.Model,
		MaxTokens: s.MaxResponseTokens,
		AWSRegion: s.AWSRegion,
		Timeout:   s.Timeout(),
		Messages:  entries,
	}
}

// Validate checks the request without touching the network.
func (r Request) Validate() error {
	settings := config.Settings{Provider: r.Provider, APIURL: r.APIURL, APIKey: r.APIKey}
	if !settings.Configured() {
		return ErrNotConfigured
	}
	if r.Model == "" {
		return ErrInvalidModel
	}
	for i, m := range r.Messages {
		if !m.Role.Valid() {
			return fmt.Errorf("%w: %q at index %d", conversation.ErrInvalidMessageRole, m.Role, i)
		}
	}
	return nil
}

// Client streams completions.
type Client struct {
	counter  tokenizer.Counter
	logger   *slog.Logger
	newModel ModelFactory
}

// Option configures a Client.
type Option func(*Client)

// WithModelFactory replaces the provider factory, mainly for tests.
func WithModelFactory(f ModelFactory) Option {
	return func(c *Client) { c.newModel = f }
}

// NewClient creates a client that counts fragments with counter.
func NewClient(counter tokenizer.Counter, logger *slog.Logger, opts ...Option) *Client {
	if logger == nil {
		logger = slog.Default()
	}
	c := &Client{
		counter:  counter,
		logger:   logger,
		newModel: NewModel(nil),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Stream validates req and starts streaming its completion.
func (c *Client) Stream(ctx context.Context, req Request) (*Stream, error) {
	if err := req.Validate(); err != nil {
		return nil, err
	}

	model, err := c.newModel(ctx, req)
	if err != nil {
		return nil, err
	}

	messages := make([]llms.MessageContent, 0, len(req.Messages))
	for _, m := range req.Messages {
		messages = append(messages, llms.TextParts(messageType(m.Role), m.Content))
	}

	c.logger.Debug("starting completion stream",
		"provider", req.Provider,
		"model", req.Model,
		"messages", len(messages),
		"max_tokens", req.MaxTokens,
	)

	return Pump(ctx, c.counter, req.Timeout, func(ctx context.Context, emit EmitFunc) error {
		emitted := false
		resp, err := model.GenerateContent(ctx, messages,
			llms.WithModel(req.Model),
			llms.WithMaxTokens(req.MaxTokens),
			llms.WithStreamingFunc(func(ctx context.Context, chunk []byte) error {
				if len(chunk) > 0 {
					emitted = true
				}
				return emit(string(chunk))
			}),
		)
		if err != nil {
			return wrapFatalError(err)
		}

		// Providers without streaming support only return the final content.
		if !emitted && resp != nil && len(resp.Choices) > 0 && resp.Choices[0].Content != "" {
			return emit(resp.Choices[0].Content)
		}
		return nil
	}), nil
}

func messageType(r conversation.Role) llms.ChatMessageType {
	switch r {
	case conversation.RoleSystem:
		return llms.ChatMessageTypeSystem
	case conversation.RoleAssistant:
		return llms.ChatMessageTypeAI
	default:
		return llms.ChatMessageTypeHuman
	}
}
