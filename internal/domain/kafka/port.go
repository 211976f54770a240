package kafka

import (
	"context"

	"github.com/NordCoder/Passage/internal/domain/outbox"
)

type AccountEvents interface {
	PublishAccountEvent(ctx context.Context, ev outbox.AccountEvent) error
}
