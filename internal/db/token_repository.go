package db

import (
	"context"

	"pix-gateway/internal/model"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/pkg/errors"
)

// TokenRepository is an append-only cache: rows are inserted, never updated,
// and readers take the one expiring last.
type TokenRepository struct {
	pool *pgxpool.Pool
}

func NewTokenRepository(pool *pgxpool.Pool) *TokenRepository {
	return &TokenRepository{pool: pool}
}

// Latest returns the token with the furthest expiry, expired or not, or nil
// when none was ever cached.
func (r *TokenRepository) Latest(ctx context.Context, acquirer model.Acquirer, scope string) (*model.CachedToken, error) {
	token := model.CachedToken{Acquirer: acquirer, Scope: scope}
	err := r.pool.QueryRow(ctx, `SELECT id, access_token, expires_at, created_at FROM acquirer_tokens
		WHERE acquirer = $1 AND scope = $2
		ORDER BY expires_at DESC, id DESC
		LIMIT 1`, string(acquirer), scope).Scan(&token.ID, &token.AccessToken, &token.ExpiresAt, &token.CreatedAt)
	if err != nil {
		if errors.Is(notFound(err), ErrNotFound) {
			return nil, nil
		}
		return nil, errors.Wrap(err, "load cached token")
	}
	return &token, nil
}

func (r *TokenRepository) Insert(ctx context.Context, token *model.CachedToken) error {
	err := r.pool.QueryRow(ctx, `INSERT INTO acquirer_tokens (acquirer, scope, access_token, expires_at)
		VALUES ($1, $2, $3, $4) RETURNING id, created_at`,
		string(token.Acquirer), token.Scope, token.AccessToken, token.ExpiresAt).Scan(&token.ID, &token.CreatedAt)
	return errors.Wrap(err, "cache token")
}
