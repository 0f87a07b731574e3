package postgres

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"

	"github.com/jwalitptl/ckd-api/internal/model"
	"github.com/jwalitptl/ckd-api/internal/repository"
)

type tokenRepository struct {
	*BaseRepository
}

func NewTokenRepository(base *BaseRepository) repository.TokenRepository {
	return &tokenRepository{base}
}

// Store replaces any outstanding token of the same type for the user.
func (r *tokenRepository) Store(ctx context.Context, token *model.UserToken) error {
	token.CreatedAt = time.Now().UTC()
	return r.WithTx(ctx, func(tx *sqlx.Tx) error {
		query := `
			INSERT INTO user_tokens (user_id, token, type, expires_at, created_at)
			VALUES ($1, $2, $3, $4, $5)
			ON CONFLICT (user_id, type) DO UPDATE
			SET token = $2, expires_at = $4, used_at = NULL, created_at = $5
		`
		_, err := tx.ExecContext(ctx, query, token.UserID, token.Token, token.Type, token.ExpiresAt, token.CreatedAt)
		return mapError("store token", err)
	})
}

func (r *tokenRepository) Consume(ctx context.Context, token string, tokenType model.TokenType) (uuid.UUID, error) {
	query := `
		UPDATE user_tokens
		SET used_at = NOW()
		WHERE token = $1
		AND type = $2
		AND expires_at > NOW()
		AND used_at IS NULL
		RETURNING user_id
	`

	var userID uuid.UUID
	if err := r.GetDB().GetContext(ctx, &userID, query, token, tokenType); err != nil {
		return uuid.Nil, mapError("consume token", err)
	}
	return userID, nil
}
