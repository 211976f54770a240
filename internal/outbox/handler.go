package outbox

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/NordCoder/Passage/internal/domain/kafka"
	"github.com/NordCoder/Passage/internal/domain/outbox"
	"github.com/NordCoder/Passage/internal/obs/retry"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

var (
	publishLatency = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "outbox_publish_latency_seconds",
		Help:    "Time to publish one account event, retries included.",
		Buckets: prometheus.DefBuckets,
	}, []string{"kind"})
	publishErrors = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "outbox_publish_errors_total",
		Help: "Account events not published, by kind and reason.",
	}, []string{"kind", "reason"})
)

var relayKinds = map[outbox.Kind]bool{
	outbox.KindAccountRegistered: true,
	outbox.KindSessionStarted:    true,
	outbox.KindSessionEnded:      true,
	outbox.KindPasswordChanged:   true,
}

// decodeEvent parses a row payload. An empty kind is filled from the row; a
// different kind means the row is corrupt.
func decodeEvent(kind string, data []byte) (outbox.AccountEvent, error) {
	var ev outbox.AccountEvent
	if err := json.Unmarshal(data, &ev); err != nil {
		return ev, fmt.Errorf("unmarshal %s payload: %w", kind, err)
	}
	if ev.Kind == "" {
		ev.Kind = kind
	}
	if ev.Kind != kind {
		return ev, fmt.Errorf("payload kind %q does not match %q", ev.Kind, kind)
	}
	return ev, nil
}

// MakeGlobalOutboxHandler routes every account event kind to pub. Payloads
// are decoded once; only the publish is retried under pol.
func MakeGlobalOutboxHandler(pub kafka.AccountEvents, pol retry.Policy) outbox.GlobalHandler {
	tr := otel.Tracer("outbox.relay")
	return func(kind outbox.Kind) (outbox.KindHandler, error) {
		if !relayKinds[kind] {
			return nil, fmt.Errorf("unsupported outbox kind: %d", kind)
		}
		name := kind.String()
		p := pol
		if p.Name == "" {
			p.Name = "outbox_" + name
		}

		return func(ctx context.Context, data []byte) error {
			ctx, span := tr.Start(ctx, "outbox.publish", trace.WithAttributes(attribute.String("outbox.kind", name)))
			defer span.End()

			ev, err := decodeEvent(name, data)
			if err != nil {
				span.RecordError(err)
				span.SetStatus(codes.Error, "bad payload")
				publishErrors.WithLabelValues(name, "decode").Inc()
				return err
			}

			start := time.Now()
			err = retry.Do(ctx, func() error { return pub.PublishAccountEvent(ctx, ev) }, p)
			publishLatency.WithLabelValues(name).Observe(time.Since(start).Seconds())
			if err != nil {
				span.RecordError(err)
				span.SetStatus(codes.Error, "publish failed")
				publishErrors.WithLabelValues(name, "publish").Inc()
				return fmt.Errorf("publish %s: %w", name, err)
			}
			return nil
		}, nil
	}
}
