package db

import (
	"context"
	"fmt"
	"time"

	"github.com/surrealdb/surrealdb.go"

	"github.com/raphaelgruber/codechat/internal/models"
)

// RecordTokenUsage writes one turn's usage record.
func (c *Client) RecordTokenUsage(ctx context.Context, in models.TokenUsageInput) error {
	_, err := surrealdb.Query[any](ctx, c.db, `
		CREATE token_usage CONTENT {
			session_id: $session_id,
			provider: $provider,
			model: $model,
			prompt_tokens: $prompt_tokens,
			completion_tokens: $completion_tokens,
			total_tokens: $prompt_tokens + $completion_tokens,
			duration_ms: $duration_ms,
			outcome: $outcome
		}
	`, map[string]any{
		"session_id":        in.SessionID,
		"provider":          in.Provider,
		"model":             in.Model,
		"prompt_tokens":     in.PromptTokens,
		"completion_tokens": in.CompletionTokens,
		"duration_ms":       in.DurationMs,
		"outcome":           in.Outcome,
	})
	if err != nil {
		return fmt.Errorf("record token usage: %w", wrapQueryError(err))
	}
	return nil
}

// GetTokenUsageSummary aggregates usage recorded at or after since.
func (c *Client) GetTokenUsageSummary(ctx context.Context, since time.Time) (*models.TokenUsageSummary, error) {
	results, err := surrealdb.Query[[]models.UsageGroup](ctx, c.db, `
		SELECT
			model,
			outcome,
			count() AS turns,
			math::sum(prompt_tokens) AS prompt_tokens,
			math::sum(completion_tokens) AS completion_tokens
		FROM token_usage
		WHERE created_at >= <datetime>$since
		GROUP BY model, outcome
	`, map[string]any{"since": since.UTC().Format(time.RFC3339)})
	if err != nil {
		return nil, fmt.Errorf("token usage summary: %w", err)
	}

	var groups []models.UsageGroup
	if results != nil && len(*results) > 0 {
		groups = (*results)[0].Result
	}
	summary := models.SummarizeUsage(groups)
	return &summary, nil
}

// ListSessionUsage returns the most recent records of a session, newest first.
func (c *Client) ListSessionUsage(ctx context.Context, sessionID string, limit int) ([]models.TokenUsage, error) {
	results, err := surrealdb.Query[[]models.TokenUsage](ctx, c.db, `
		SELECT * FROM token_usage
		WHERE session_id = $session_id
		ORDER BY created_at DESC
		LIMIT $limit
	`, map[string]any{"session_id": sessionID, "limit": limit})
	if err != nil {
		return nil, fmt.Errorf("list session usage: %w", err)
	}

	if results == nil || len(*results) == 0 {
		return []models.TokenUsage{}, nil
	}
	return (*results)[0].Result, nil
}
