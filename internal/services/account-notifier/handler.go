package notifier

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/NordCoder/Passage/internal/domain/notification"
	"github.com/NordCoder/Passage/internal/domain/outbox"
	"github.com/NordCoder/Passage/internal/obs"
	"github.com/NordCoder/Passage/internal/obs/retry"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"go.uber.org/zap"
)

var (
	mConsumed = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "account_notifier_events_consumed_total",
		Help: "Account events consumed, by kind.",
	}, []string{"kind"})
	mSent = promauto.NewCounter(prometheus.CounterOpts{
		Name: "account_notifier_emails_sent_total",
		Help: "Emails sent.",
	})
	mDuplicates = promauto.NewCounter(prometheus.CounterOpts{
		Name: "account_notifier_duplicates_total",
		Help: "Redelivered events whose notice was already sent.",
	})
	mErrors = promauto.NewCounter(prometheus.CounterOpts{
		Name: "account_notifier_errors_total",
		Help: "Errors while handling account events.",
	})
)

type Handler struct {
	Store notification.Repo
	Out   notification.EmailSender
	Clock notification.Clock
	Retry retry.Policy
	Log   *zap.Logger
}

type message struct {
	subject string
	body    string
}

// render returns false for kinds that produce no e-mail.
func render(ev outbox.AccountEvent) (message, bool) {
	at := ev.At.UTC().Format(time.RFC1123)
	switch ev.Kind {
	case outbox.KindAccountRegistered.String():
		return message{
			subject: "Welcome to Passage",
			body: fmt.Sprintf("Hello %s,\n\nyour account was created on %s.\n\nPassage",
				ev.Username, at),
		}, true
	case outbox.KindSessionStarted.String():
		return message{
			subject: "New sign-in to your account",
			body: fmt.Sprintf("Hello %s,\n\na new session was started on %s. "+
				"Any session opened earlier on another device has been signed out.\n"+
				"If this was not you, change your password.\n\nPassage", ev.Username, at),
		}, true
	case outbox.KindPasswordChanged.String():
		return message{
			subject: "Your password was changed",
			body: fmt.Sprintf("Hello %s,\n\nthe password of your account was changed on %s.\n"+
				"If this was not you, contact support.\n\nPassage", ev.Username, at),
		}, true
	default:
		return message{}, false
	}
}

func (h *Handler) HandleAccountEvent(ctx context.Context, ev outbox.AccountEvent) error {
	mConsumed.WithLabelValues(ev.Kind).Inc()
	log := obs.WithTrace(ctx, h.Log).With(zap.String("kind", ev.Kind), zap.String("user_id", ev.UserID.String()))

	msg, ok := render(ev)
	if !ok {
		log.Debug("no notice for event kind")
		return nil
	}
	if ev.Email == "" {
		log.Warn("account event without email")
		return nil
	}

	key := notification.Key{UserID: ev.UserID, Kind: ev.Kind, EventAt: ev.At.UTC()}
	if h.Store != nil {
		sent, err := h.Store.Sent(ctx, key)
		if err != nil {
			// sending twice beats not sending
			log.Warn("check ledger", zap.Error(err))
		} else if sent {
			mDuplicates.Inc()
			log.Debug("notice already sent")
			return nil
		}
	}

	send := func() error { return h.Out.Send(ctx, ev.Email, msg.subject, msg.body) }
	if err := retry.Do(ctx, send, h.Retry); err != nil {
		mErrors.Inc()
		return fmt.Errorf("send email: %w", err)
	}
	mSent.Inc()

	if h.Store == nil {
		return nil
	}
	err := h.Store.Record(ctx, &notification.Notification{
		Key:       key,
		Recipient: ev.Email,
		Subject:   msg.subject,
		Body:      msg.body,
		SentAt:    h.Clock.Now().UTC(),
	})
	switch {
	case errors.Is(err, notification.ErrAlreadySent):
		// a concurrent delivery of the same event got there first
		mDuplicates.Inc()
	case err != nil:
		// the mail is out; failing here would only resend it
		mErrors.Inc()
		log.Warn("record notification", zap.Error(err))
	}
	return nil
}
