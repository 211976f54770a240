package postgres

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/NordCoder/Passage/internal/domain/outbox"
	"github.com/jackc/pgx/v5"
)

var _ outbox.Repository = (*OutboxRepo)(nil)

// OutboxRepo stores account events until the relay publishes them. Enqueue
// joins the caller's transaction when one is on the context; the relay side
// always runs on the pool.
type OutboxRepo struct{ db *DB }

func NewOutboxRepo(db *DB) *OutboxRepo { return &OutboxRepo{db: db} }

const (
	qEnqueue = `
INSERT INTO outbox (idempotency_key, kind, data)
VALUES ($1, $2, $3)
ON CONFLICT (idempotency_key) DO NOTHING;`

	// SKIP LOCKED lets several relay workers claim disjoint batches; a claim
	// older than $2 seconds is considered abandoned and taken over.
	qClaim = `
UPDATE outbox o
SET status = 'IN_PROGRESS', updated_at = now()
WHERE o.idempotency_key IN (
    SELECT idempotency_key
    FROM outbox
    WHERE status = 'CREATED'
       OR (status = 'IN_PROGRESS' AND updated_at < now() - make_interval(secs => $2))
    ORDER BY created_at
    LIMIT $1
    FOR UPDATE SKIP LOCKED
)
RETURNING o.idempotency_key, o.kind, o.data, o.status, o.created_at, o.updated_at;`

	qMarkSuccess = `
UPDATE outbox
SET status = 'SUCCESS', updated_at = now()
WHERE idempotency_key = ANY($1) AND status = 'IN_PROGRESS';`
)

func (r *OutboxRepo) Enqueue(ctx context.Context, key string, kind outbox.Kind, data []byte) error {
	ctx, cancel := r.db.withTimeout(ctx)
	defer cancel()

	if _, err := r.db.execQueryer(ctx).Exec(ctx, qEnqueue, key, int(kind), data); err != nil {
		return fmt.Errorf("outbox enqueue: %w", err)
	}
	return nil
}

func (r *OutboxRepo) PickBatch(ctx context.Context, batch int, inProgressTTL time.Duration) ([]outbox.Message, error) {
	if batch <= 0 {
		return nil, errors.New("batch must be > 0")
	}
	ctx, cancel := r.db.withTimeout(ctx)
	defer cancel()

	rows, err := r.db.Pool.Query(ctx, qClaim, batch, inProgressTTL.Seconds())
	if err != nil {
		return nil, fmt.Errorf("outbox claim: %w", err)
	}
	msgs, err := pgx.CollectRows(rows, scanMessage)
	if err != nil {
		return nil, fmt.Errorf("outbox scan: %w", err)
	}
	return msgs, nil
}

func scanMessage(row pgx.CollectableRow) (outbox.Message, error) {
	var (
		m      outbox.Message
		kind   int
		status string
	)
	if err := row.Scan(&m.IdempotencyKey, &kind, &m.Data, &status, &m.CreatedAt, &m.UpdatedAt); err != nil {
		return outbox.Message{}, err
	}
	m.Kind = outbox.Kind(kind)
	m.Status = outbox.Status(status)
	return m, nil
}

func (r *OutboxRepo) MarkSuccess(ctx context.Context, keys []string) error {
	if len(keys) == 0 {
		return nil
	}
	ctx, cancel := r.db.withTimeout(ctx)
	defer cancel()
	if _, err := r.db.Pool.Exec(ctx, qMarkSuccess, keys); err != nil {
		return fmt.Errorf("outbox mark success: %w", err)
	}
	return nil
}
