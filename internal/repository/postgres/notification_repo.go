package postgres

import (
	"context"
	"fmt"

	"github.com/NordCoder/Passage/internal/domain/notification"
	"github.com/google/uuid"
)

var _ notification.Repo = (*NotificationRepo)(nil)

// NotificationRepo is the notifier's delivery ledger. The unique
// (user_id, kind, event_at) constraint makes redelivered events detectable.
type NotificationRepo struct{ db *DB }

func NewNotificationRepo(db *DB) *NotificationRepo { return &NotificationRepo{db: db} }

const (
	qNotifRecord = `
INSERT INTO notifications (user_id, kind, event_at, recipient, subject, body, sent_at)
VALUES ($1, $2, $3, $4, $5, $6, COALESCE($7, now()))
RETURNING id, sent_at;`

	qNotifSent = `
SELECT EXISTS (
    SELECT 1 FROM notifications
    WHERE user_id = $1 AND kind = $2 AND event_at = $3
);`

	qNotifByUser = `
SELECT id, user_id, kind, event_at, recipient, subject, body, sent_at
FROM notifications
WHERE user_id = $1
ORDER BY sent_at DESC
LIMIT $2;`
)

func (r *NotificationRepo) Record(ctx context.Context, n *notification.Notification) error {
	ctx, cancel := r.db.withTimeout(ctx)
	defer cancel()

	var sentAt any
	if !n.SentAt.IsZero() {
		sentAt = n.SentAt
	}
	err := r.db.execQueryer(ctx).QueryRow(ctx, qNotifRecord,
		n.UserID, n.Kind, n.EventAt, n.Recipient, n.Subject, n.Body, sentAt,
	).Scan(&n.ID, &n.SentAt)
	if err != nil {
		if isUniqueViolation(err) {
			return notification.ErrAlreadySent
		}
		return fmt.Errorf("insert notification: %w", err)
	}
	return nil
}

func (r *NotificationRepo) Sent(ctx context.Context, key notification.Key) (bool, error) {
	ctx, cancel := r.db.withTimeout(ctx)
	defer cancel()

	var ok bool
	if err := r.db.execQueryer(ctx).QueryRow(ctx, qNotifSent, key.UserID, key.Kind, key.EventAt).Scan(&ok); err != nil {
		return false, fmt.Errorf("check notification: %w", err)
	}
	return ok, nil
}

func (r *NotificationRepo) ListByUser(ctx context.Context, userID uuid.UUID, limit int) ([]*notification.Notification, error) {
	if limit <= 0 || limit > 200 {
		limit = 50
	}

	ctx, cancel := r.db.withTimeout(ctx)
	defer cancel()

	rows, err := r.db.execQueryer(ctx).Query(ctx, qNotifByUser, userID, limit)
	if err != nil {
		return nil, fmt.Errorf("query notifications: %w", err)
	}
	defer rows.Close()

	var out []*notification.Notification
	for rows.Next() {
		n := &notification.Notification{}
		if err := rows.Scan(&n.ID, &n.UserID, &n.Kind, &n.EventAt, &n.Recipient, &n.Subject, &n.Body, &n.SentAt); err != nil {
			return nil, fmt.Errorf("scan notification: %w", err)
		}
		out = append(out, n)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("rows: %w", err)
	}
	return out, nil
}
