package notification

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
)

// ErrAlreadySent is returned by Repo.Record when the same notice for the same
// event was recorded before, which happens on Kafka redelivery.
var ErrAlreadySent = errors.New("notification already sent")

// Key identifies one notice: one kind of account event for one user at one
// instant. Redelivered events carry the same key.
type Key struct {
	UserID  uuid.UUID
	Kind    string
	EventAt time.Time
}

// Notification is a sent e-mail as kept in the delivery ledger.
type Notification struct {
	ID int64
	Key
	Recipient string
	Subject   string
	Body      string
	SentAt    time.Time
}

type EmailSender interface {
	Send(ctx context.Context, to, subject, body string) error
}

type Clock interface {
	Now() time.Time
}
