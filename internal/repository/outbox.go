package repository

import (
	"context"

	"github.com/jmehdipour/email-gateway/internal/model"
	"github.com/jmoiron/sqlx"
)

// OutboxRepository defines persistence methods for the outbox table.
type OutboxRepository interface {
	// Insert writes a single outbox event. If tx is nil, it will open/commit
	// an internal transaction; otherwise it uses the given tx.
	Insert(ctx context.Context, tx *sqlx.Tx, aggregate, aggregateID, topic string, payload []byte) error
	// FetchBatch returns the oldest pending events.
	FetchBatch(ctx context.Context, limit int) ([]model.OutboxEvent, error)
	Delete(ctx context.Context, ids []int64) error
	IncrementAttempts(ctx context.Context, ids []int64) error
}

// OutboxRepositoryImpl is a sqlx-backed implementation.
type OutboxRepositoryImpl struct {
	db *sqlx.DB
}

// NewOutboxRepository constructs an OutboxRepositoryImpl.
func NewOutboxRepository(db *sqlx.DB) *OutboxRepositoryImpl {
	return &OutboxRepositoryImpl{db: db}
}

var _ OutboxRepository = (*OutboxRepositoryImpl)(nil)

// Insert adds an event row to outbox. The relay worker publishes it to Kafka
// based on the `topic` column.
func (r *OutboxRepositoryImpl) Insert(ctx context.Context, tx *sqlx.Tx, aggregate, aggregateID, topic string, payload []byte) error {
	const q = `
		INSERT INTO outbox (aggregate, aggregate_id, topic, payload, attempts, created_at, updated_at)
		VALUES (?, ?, ?, ?, 0, NOW(), NOW())
	`
	return withTx(ctx, r.db, tx, func(tx *sqlx.Tx) error {
		_, err := tx.ExecContext(ctx, q, aggregate, aggregateID, topic, payload)

		return err
	})
}

func (r *OutboxRepositoryImpl) FetchBatch(ctx context.Context, limit int) ([]model.OutboxEvent, error) {
	if limit <= 0 {
		limit = 100
	}
	var rows []model.OutboxEvent
	err := r.db.SelectContext(ctx, &rows, `
		SELECT id, aggregate, aggregate_id, topic, payload, attempts, created_at, updated_at
		  FROM outbox
		 ORDER BY id
		 LIMIT ?
	`, limit)
	return rows, err
}

func (r *OutboxRepositoryImpl) Delete(ctx context.Context, ids []int64) error {
	return r.execIn(ctx, `DELETE FROM outbox WHERE id IN (?)`, ids)
}

func (r *OutboxRepositoryImpl) IncrementAttempts(ctx context.Context, ids []int64) error {
	return r.execIn(ctx, `UPDATE outbox SET attempts = attempts + 1, updated_at = NOW() WHERE id IN (?)`, ids)
}

func (r *OutboxRepositoryImpl) execIn(ctx context.Context, base string, ids []int64) error {
	if len(ids) == 0 {
		return nil
	}
	query, args, err := sqlx.In(base, ids)
	if err != nil {
		return err
	}
	_, err = r.db.ExecContext(ctx, r.db.Rebind(query), args...)
	return err
}
