package outbox

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/NordCoder/Passage/internal/domain/outbox"
	"github.com/NordCoder/Passage/internal/domain/user"
	"github.com/google/uuid"
)

// EnqueueAccountEvent records an event for u. Call it inside the transaction
// that performs the state change so both commit together.
func EnqueueAccountEvent(ctx context.Context, repo outbox.Repository, kind outbox.Kind, u *user.User, at time.Time) error {
	data, err := json.Marshal(outbox.AccountEvent{
		Kind:     kind.String(),
		UserID:   u.ID,
		Username: u.Username,
		Email:    u.Email,
		At:       at.UTC(),
	})
	if err != nil {
		return fmt.Errorf("marshal %s: %w", kind, err)
	}
	key := kind.String() + ":" + uuid.NewString()
	if err := repo.Enqueue(ctx, key, kind, data); err != nil {
		return fmt.Errorf("enqueue %s: %w", kind, err)
	}
	return nil
}
