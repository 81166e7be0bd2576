package db

import (
	"context"

	"pix-gateway/internal/model"

	"github.com/jackc/pgx/v5/pgxpool"
)

type EventRepository struct {
	pool *pgxpool.Pool
}

func NewEventRepository(pool *pgxpool.Pool) *EventRepository {
	return &EventRepository{pool: pool}
}

func (r *EventRepository) Insert(ctx context.Context, event *model.AcquirerEvent) error {
	return r.pool.QueryRow(ctx, `INSERT INTO acquirer_events (acquirer, kind, excerpt, latency_ms, txid)
		VALUES ($1, $2, $3, $4, NULLIF($5, '')) RETURNING id, created_at`,
		string(event.Acquirer), event.Kind, event.Excerpt, event.Latency.Milliseconds(), event.Txid).
		Scan(&event.ID, &event.CreatedAt)
}
