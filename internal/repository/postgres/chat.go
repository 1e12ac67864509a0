package postgres

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/campuswell/wellbeing-api/internal/model"
)

func (r *chatRepository) CreateExchange(ctx context.Context, ex *model.ChatExchange) error {
	query := `
		INSERT INTO chat_exchanges (
			id, user_id, prompt, response_text, tokens_used, estimated_cost,
			crisis_level, created_at
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
	`
	if ex.ID == uuid.Nil {
		ex.ID = uuid.New()
	}
	ex.CreatedAt = time.Now()

	_, err := r.db.ExecContext(ctx, query,
		ex.ID,
		ex.UserID,
		ex.Prompt,
		ex.ResponseText,
		ex.TokensUsed,
		ex.EstimatedCost,
		ex.CrisisLevel,
		ex.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to create chat exchange: %w", err)
	}
	return nil
}
