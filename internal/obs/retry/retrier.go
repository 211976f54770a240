package retry

import (
	"context"
	"math"
	"math/rand/v2"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
)

// Backoff returns the pause before retry number attempt (zero based).
type Backoff interface {
	Next(attempt int) time.Duration
}

// Constant waits the same duration between every attempt.
type Constant time.Duration

func (c Constant) Next(int) time.Duration { return time.Duration(c) }

// ExpoJitter doubles Base on every attempt up to Max and spreads the result
// by +/- Jitter (a fraction, 0.2 means 20%).
type ExpoJitter struct {
	Base   time.Duration
	Max    time.Duration
	Jitter float64
}

// DefaultBackoff is used when a Policy leaves Backoff nil.
var DefaultBackoff Backoff = ExpoJitter{Base: 100 * time.Millisecond, Max: 5 * time.Second, Jitter: 0.2}

// maxShift keeps Base<<attempt inside float64 range for absurd attempt counts.
const maxShift = 62

func (b ExpoJitter) Next(attempt int) time.Duration {
	attempt = min(max(attempt, 0), maxShift)
	d := float64(b.Base) * math.Exp2(float64(attempt))
	if b.Max > 0 {
		d = math.Min(d, float64(b.Max))
	}
	if b.Jitter > 0 {
		d *= 1 + (rand.Float64()*2-1)*b.Jitter
	}
	return time.Duration(d)
}

// Policy describes how Do retries one operation. Zero values are usable:
// one attempt, DefaultBackoff, any non-nil error retryable.
type Policy struct {
	// Name labels metrics and span events.
	Name      string
	Attempts  int
	Backoff   Backoff
	Retryable func(error) bool
	OnAttempt func(attempt int, err error)
	OnExhaust func(lastErr error)
}

func (p Policy) withDefaults() Policy {
	if p.Name == "" {
		p.Name = "default"
	}
	if p.Attempts <= 0 {
		p.Attempts = 1
	}
	if p.Backoff == nil {
		p.Backoff = DefaultBackoff
	}
	if p.Retryable == nil {
		p.Retryable = func(err error) bool { return err != nil }
	}
	return p
}

var (
	retryAttempts = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "passage_retry_attempts_total",
		Help: "Attempts made inside retry.Do, the final one included.",
	}, []string{"name"})
	retryExhausted = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "passage_retry_exhausted_total",
		Help: "Operations that gave up, either out of attempts or on a permanent error.",
	}, []string{"name"})
	retryLatency = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "passage_retry_duration_seconds",
		Help:    "Wall time spent inside retry.Do.",
		Buckets: prometheus.DefBuckets,
	}, []string{"name"})
)

// Do calls fn until it succeeds, returns a non retryable error, runs out of
// attempts or ctx is done. The last error from fn is returned unwrapped.
func Do(ctx context.Context, fn func() error, p Policy) error {
	p = p.withDefaults()
	start := time.Now()
	defer func() { retryLatency.WithLabelValues(p.Name).Observe(time.Since(start).Seconds()) }()

	span := trace.SpanFromContext(ctx)
	for attempt := 0; ; attempt++ {
		err := fn()
		retryAttempts.WithLabelValues(p.Name).Inc()
		if err == nil {
			return nil
		}
		if p.OnAttempt != nil {
			p.OnAttempt(attempt, err)
		}
		if span.IsRecording() {
			span.AddEvent("retry.attempt", trace.WithAttributes(
				attribute.String("retry.name", p.Name),
				attribute.Int("retry.attempt", attempt+1),
				attribute.String("error", err.Error()),
			))
		}

		if !p.Retryable(err) || attempt+1 >= p.Attempts {
			retryExhausted.WithLabelValues(p.Name).Inc()
			if p.OnExhaust != nil {
				p.OnExhaust(err)
			}
			return err
		}

		if werr := sleep(ctx, p.Backoff.Next(attempt)); werr != nil {
			return werr
		}
	}
}

func sleep(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}
