package retry

import (
	"context"
	"errors"
	"time"

	"go.uber.org/zap"
)

// transient treats everything but caller cancellation as worth retrying.
func transient(err error) bool {
	return err != nil && !errors.Is(err, context.Canceled) && !errors.Is(err, context.DeadlineExceeded)
}

// logged fills the attempt and exhaust hooks of p with warnings on log.
func logged(p Policy, log *zap.Logger) Policy {
	if log == nil {
		return p
	}
	log = log.With(zap.String("retry", p.Name))
	p.OnAttempt = func(i int, err error) {
		log.Warn("attempt failed", zap.Int("attempt", i+1), zap.Int("of", p.Attempts), zap.Error(err))
	}
	p.OnExhaust = func(err error) {
		if transient(err) {
			log.Error("retries exhausted", zap.Error(err))
		}
	}
	return p
}

// DefaultKafkaPolicy retries publishes from the outbox relay. A row that
// still fails stays IN_PROGRESS and is picked up again after its TTL.
func DefaultKafkaPolicy(log *zap.Logger) Policy {
	return logged(Policy{
		Name:      "kafka_publish",
		Attempts:  6,
		Backoff:   ExpoJitter{Base: 200 * time.Millisecond, Max: 30 * time.Second, Jitter: 0.2},
		Retryable: transient,
	}, log)
}

// SMTPPolicy retries outgoing mail a few times before giving up on an event.
func SMTPPolicy(log *zap.Logger) Policy {
	return logged(Policy{
		Name:      "smtp_send",
		Attempts:  4,
		Backoff:   ExpoJitter{Base: 500 * time.Millisecond, Max: 10 * time.Second, Jitter: 0.2},
		Retryable: transient,
	}, log)
}
