package notification

import (
	"context"

	"github.com/google/uuid"
)

type Repo interface {
	// Record stores n, failing with ErrAlreadySent when n.Key is taken.
	Record(ctx context.Context, n *Notification) error
	Sent(ctx context.Context, key Key) (bool, error)
	ListByUser(ctx context.Context, userID uuid.UUID, limit int) ([]*Notification, error)
}
