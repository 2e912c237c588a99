// Package tokenizer counts tokens for display and budgeting.
// Counts are advisory; they are not billing-accurate.
package tokenizer

import (
	"log/slog"
	"strings"

	"github.com/pkoukk/tiktoken-go"
)

// fallbackEncoding is tried when the model has no registered encoding.
const fallbackEncoding = "cl100k_base"

// Counter counts the tokens in a text. Implementations are pure and
// deterministic, and return 0 for an empty string.
type Counter interface {
	Count(text string) int
}

// Whitespace approximates tokens as whitespace-separated fields.
type Whitespace struct{}

// Count returns the number of whitespace-separated fields in text.
func (Whitespace) Count(text string) int {
	return len(strings.Fields(text))
}

// encoder is the subset of *tiktoken.Tiktoken used here.
type encoder interface {
	EncodeOrdinary(text string) []int
}

// Tiktoken counts with a BPE encoding.
type Tiktoken struct {
	enc      encoder
	encoding string
}

// Count returns the number of BPE tokens in text.
func (t *Tiktoken) Count(text string) int {
	if text == "" {
		return 0
	}
	return len(t.enc.EncodeOrdinary(text))
}

// Encoding returns the name of the encoding in use.
func (t *Tiktoken) Encoding() string {
	return t.encoding
}

// New returns a Counter for model. It prefers the model's own encoding, then
// cl100k_base, and falls back to Whitespace when no encoding can be loaded
// (for example when the BPE ranks cannot be fetched).
func New(model string, logger *slog.Logger) Counter {
	if logger == nil {
		logger = slog.Default()
	}

	if name := encodingForModel(model); name != "" {
		if enc, err := tiktoken.GetEncoding(name); err == nil {
			return &Tiktoken{enc: enc, encoding: name}
		}
	}

	enc, err := tiktoken.GetEncoding(fallbackEncoding)
	if err != nil {
		logger.Warn("tokenizer unavailable, using whitespace approximation",
			"model", model,
			"error", err,
		)
		return Whitespace{}
	}

	logger.Debug("no encoding registered for model, using fallback", "model", model, "encoding", fallbackEncoding)
	return &Tiktoken{enc: enc, encoding: fallbackEncoding}
}

// encodingForModel returns the encoding name registered for model, by exact
// name first and then by prefix, or "" when none is registered.
func encodingForModel(model string) string {
	if name, ok := tiktoken.MODEL_TO_ENCODING[model]; ok {
		return name
	}
	for prefix, name := range tiktoken.MODEL_PREFIX_TO_ENCODING {
		if strings.HasPrefix(model, prefix) {
			return name
		}
	}
	return ""
}
