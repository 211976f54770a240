package kafka

import (
	"context"

	"github.com/NordCoder/Passage/internal/domain/kafka"
	"github.com/NordCoder/Passage/internal/domain/outbox"
)

// AccountEventsKafka publishes account events keyed by user id, so every event
// of one account lands on the same partition in order.
type AccountEventsKafka struct {
	p *Producer
}

func NewAccountEventsKafka(p *Producer) *AccountEventsKafka { return &AccountEventsKafka{p: p} }

var _ kafka.AccountEvents = (*AccountEventsKafka)(nil)

func (e *AccountEventsKafka) PublishAccountEvent(ctx context.Context, ev outbox.AccountEvent) error {
	return e.p.PublishJSON(ctx, []byte(ev.UserID.String()), ev)
}
