package outbox

import (
	"context"
	"time"

	"github.com/google/uuid"
)

type Status string

const (
	StatusCreated    Status = "CREATED"
	StatusInProgress Status = "IN_PROGRESS"
	StatusSuccess    Status = "SUCCESS"
)

type Kind int

const (
	KindAccountRegistered Kind = 1
	KindSessionStarted    Kind = 2
	KindSessionEnded      Kind = 3
	KindPasswordChanged   Kind = 4
)

var kindNames = map[Kind]string{
	KindAccountRegistered: "account.registered",
	KindSessionStarted:    "session.started",
	KindSessionEnded:      "session.ended",
	KindPasswordChanged:   "password.changed",
}

func (k Kind) String() string {
	if n, ok := kindNames[k]; ok {
		return n
	}
	return "unknown"
}

// AccountEvent is the payload stored in the outbox and published to Kafka.
type AccountEvent struct {
	Kind     string    `json:"kind"`
	UserID   uuid.UUID `json:"user_id"`
	Username string    `json:"username"`
	Email    string    `json:"email"`
	At       time.Time `json:"at"`
}

type Message struct {
	IdempotencyKey string
	Kind           Kind
	Data           []byte
	Status         Status
	CreatedAt      time.Time
	UpdatedAt      time.Time
}

type Repository interface {
	Enqueue(ctx context.Context, key string, kind Kind, data []byte) error

	PickBatch(ctx context.Context, batch int, inProgressTTL time.Duration) ([]Message, error)

	MarkSuccess(ctx context.Context, keys []string) error
}

type KindHandler func(ctx context.Context, data []byte) error

type GlobalHandler func(kind Kind) (KindHandler, error)
