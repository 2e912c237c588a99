package models

import (
	"sort"
	"time"

	surrealmodels "github.com/surrealdb/surrealdb.go/pkg/models"
)

// OutcomeOK marks a turn whose stream ended cleanly. Failed turns carry the
// error kind instead ("transport", "setup_timeout", ...).
const OutcomeOK = "ok"

// TokenUsage records the token consumption of one completion turn.
// Conversation content is never stored.
type TokenUsage struct {
	ID surrealmodels.RecordID `json:"id"`

	SessionID        string `json:"session_id"`
	Provider         string `json:"provider"`
	Model            string `json:"model"`
	PromptTokens     int    `json:"prompt_tokens"`
	CompletionTokens int    `json:"completion_tokens"`
	TotalTokens      int    `json:"total_tokens"`
	DurationMs       int64  `json:"duration_ms"`
	Outcome          string `json:"outcome"`

	CreatedAt time.Time `json:"created_at"`
}

// TokenUsageInput is the input structure for recording token usage.
type TokenUsageInput struct {
	SessionID        string `json:"session_id"`
	Provider         string `json:"provider"`
	Model            string `json:"model"`
	PromptTokens     int    `json:"prompt_tokens"`
	CompletionTokens int    `json:"completion_tokens"`
	DurationMs       int64  `json:"duration_ms"`
	Outcome          string `json:"outcome"`
}

// UsageGroup is one row of the grouped usage query.
type UsageGroup struct {
	Model            string `json:"model"`
	Outcome          string `json:"outcome"`
	Turns            int    `json:"turns"`
	PromptTokens     int    `json:"prompt_tokens"`
	CompletionTokens int    `json:"completion_tokens"`
}

// TokenUsageSummary provides aggregated token usage statistics.
type TokenUsageSummary struct {
	Turns            int                `json:"turns"`
	PromptTokens     int                `json:"prompt_tokens"`
	CompletionTokens int                `json:"completion_tokens"`
	TotalTokens      int                `json:"total_tokens"`
	ByModel          map[string]int     `json:"by_model"`        // model -> token count
	ByOutcome        map[string]int     `json:"by_outcome"`      // outcome -> turn count
	OutcomePercent   map[string]float64 `json:"outcome_percent"` // outcome -> share of turns
}

// SummarizeUsage folds grouped rows into a summary.
func SummarizeUsage(groups []UsageGroup) TokenUsageSummary {
	s := TokenUsageSummary{
		ByModel:        make(map[string]int),
		ByOutcome:      make(map[string]int),
		OutcomePercent: make(map[string]float64),
	}
	for _, g := range groups {
		tokens := g.PromptTokens + g.CompletionTokens
		s.Turns += g.Turns
		s.PromptTokens += g.PromptTokens
		s.CompletionTokens += g.CompletionTokens
		s.TotalTokens += tokens
		s.ByModel[g.Model] += tokens
		s.ByOutcome[g.Outcome] += g.Turns
	}
	if s.Turns > 0 {
		for outcome, n := range s.ByOutcome {
			s.OutcomePercent[outcome] = float64(n) * 100 / float64(s.Turns)
		}
	}
	return s
}

// ModelsByTokens returns the models of s ordered by descending token count.
func (s TokenUsageSummary) ModelsByTokens() []string {
	out := make([]string, 0, len(s.ByModel))
	for m := range s.ByModel {
		out = append(out, m)
	}
	sort.Slice(out, func(i, j int) bool {
		if s.ByModel[out[i]] != s.ByModel[out[j]] {
			return s.ByModel[out[i]] > s.ByModel[out[j]]
		}
		return out[i] < out[j]
	})
	return out
}
