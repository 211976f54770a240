package notifier

import (
	"context"
	"errors"

	"github.com/NordCoder/Passage/internal/domain/outbox"
	kafkax "github.com/NordCoder/Passage/internal/repository/kafka"
	"go.uber.org/zap"
)

type Controller struct {
	Log *zap.Logger
	Sub *kafkax.Consumer
	UC  *Handler
}

func (c *Controller) Run(ctx context.Context) error {
	handler := kafkax.JSONHandler(func(ctx context.Context, _ []byte, ev outbox.AccountEvent) error {
		if ev.Kind == "" {
			c.Log.Warn("account event without kind")
			return nil
		}
		return c.UC.HandleAccountEvent(ctx, ev)
	})
	if err := c.Sub.Consume(ctx, handler); err != nil && !errors.Is(err, context.Canceled) {
		return err
	}
	return nil
}
