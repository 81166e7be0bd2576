package db

import (
	"context"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/pkg/errors"
)

type SettingsRepository struct {
	pool *pgxpool.Pool
}

func NewSettingsRepository(pool *pgxpool.Pool) *SettingsRepository {
	return &SettingsRepository{pool: pool}
}

// Get returns the value stored for key in exactly the given scope; a nil
// merchantID addresses the global row.
func (r *SettingsRepository) Get(ctx context.Context, key string, merchantID *uuid.UUID) (string, bool, error) {
	var value string
	err := r.pool.QueryRow(ctx,
		`SELECT value FROM settings WHERE key = $1 AND merchant_id IS NOT DISTINCT FROM $2`,
		key, merchantID).Scan(&value)
	if err != nil {
		if errors.Is(notFound(err), ErrNotFound) {
			return "", false, nil
		}
		return "", false, errors.Wrapf(err, "load setting %s", key)
	}
	return value, true, nil
}

func (r *SettingsRepository) Set(ctx context.Context, key, value string, merchantID *uuid.UUID) error {
	_, err := r.pool.Exec(ctx, `INSERT INTO settings (key, value, merchant_id) VALUES ($1, $2, $3)
		ON CONFLICT (key, COALESCE(merchant_id, '00000000-0000-0000-0000-000000000000'::uuid))
		DO UPDATE SET value = EXCLUDED.value, updated_at = now()`,
		key, value, merchantID)
	return errors.Wrapf(err, "store setting %s", key)
}
