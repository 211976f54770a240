package kafka

import (
	"context"
	"errors"
	"io"
	"time"

	"github.com/NordCoder/Passage/internal/obs/retry"
	"github.com/segmentio/kafka-go"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/codes"
	semconv "go.opentelemetry.io/otel/semconv/v1.24.0"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"
)

type Handler func(ctx context.Context, key, value []byte) error

// messageReader is the part of *kafka.Reader the consumer drives.
type messageReader interface {
	FetchMessage(ctx context.Context) (kafka.Message, error)
	CommitMessages(ctx context.Context, msgs ...kafka.Message) error
	Close() error
}

type ConsumerConfig struct {
	Brokers       []string
	GroupID       string
	Topic         string
	FromBeginning bool
	Logger        *zap.Logger
}

// Consumer feeds one topic of a consumer group to a Handler. A message whose
// handler fails is logged and committed anyway; handlers own their retries.
type Consumer struct {
	r            messageReader
	topic, group string
	log          *zap.Logger
	fetchBackoff retry.Backoff
}

func NewConsumer(cfg *ConsumerConfig) *Consumer {
	start := kafka.LastOffset
	if cfg.FromBeginning {
		start = kafka.FirstOffset
	}
	r := kafka.NewReader(kafka.ReaderConfig{
		Brokers:               cfg.Brokers,
		GroupID:               cfg.GroupID,
		Topic:                 cfg.Topic,
		StartOffset:           start,
		WatchPartitionChanges: true,

		MinBytes:          1e3,
		MaxBytes:          10e6,
		SessionTimeout:    10 * time.Second,
		RebalanceTimeout:  15 * time.Second,
		HeartbeatInterval: 3 * time.Second,
	})
	return newConsumer(r, cfg.Topic, cfg.GroupID, cfg.Logger)
}

func newConsumer(r messageReader, topic, group string, log *zap.Logger) *Consumer {
	c := &Consumer{
		r:            r,
		topic:        topic,
		group:        group,
		fetchBackoff: retry.ExpoJitter{Base: 200 * time.Millisecond, Max: 5 * time.Second, Jitter: 0.1},
	}
	return c.WithLogger(log)
}

// WithLogger returns a copy logging through l. A nil l falls back to zap.L().
func (c *Consumer) WithLogger(l *zap.Logger) *Consumer {
	if l == nil {
		l = zap.L()
	}
	cp := *c
	cp.log = l.With(
		zap.String("component", "kafka.consumer"),
		zap.String("topic", c.topic),
		zap.String("group", c.group),
	)
	return &cp
}

// Consume blocks until ctx is done, returning ctx.Err().
func (c *Consumer) Consume(ctx context.Context, h Handler) error {
	c.log.Info("consumer started")
	defer c.log.Info("consumer stopped")

	failures := 0
	for {
		msg, err := c.r.FetchMessage(ctx)
		if err != nil {
			if ctx.Err() != nil {
				return ctx.Err()
			}
			wait := c.fetchBackoff.Next(failures)
			failures++
			if errors.Is(err, io.EOF) {
				c.log.Debug("fetch eof", zap.Duration("backoff", wait))
			} else {
				c.log.Warn("fetch failed", zap.Error(err), zap.Duration("backoff", wait))
			}
			if !pause(ctx, wait) {
				return ctx.Err()
			}
			continue
		}
		failures = 0

		c.dispatch(ctx, msg, h)

		if err := c.r.CommitMessages(ctx, msg); err != nil {
			if ctx.Err() != nil {
				return ctx.Err()
			}
			// a later commit covers this offset too
			c.log.Warn("commit failed", zap.Int64("offset", msg.Offset), zap.Error(err))
		}
	}
}

func (c *Consumer) dispatch(ctx context.Context, msg kafka.Message, h Handler) {
	mctx := otel.GetTextMapPropagator().Extract(ctx, headerCarrier{&msg.Headers})
	mctx, span := otel.Tracer("kafka.consumer").Start(mctx, "kafka.consume "+c.topic,
		trace.WithSpanKind(trace.SpanKindConsumer),
		trace.WithAttributes(
			semconv.MessagingSystemKafka,
			semconv.MessagingDestinationName(c.topic),
			semconv.MessagingKafkaConsumerGroup(c.group),
			semconv.MessagingKafkaDestinationPartition(msg.Partition),
			semconv.MessagingKafkaMessageOffset(int(msg.Offset)),
		),
	)
	defer span.End()

	if err := h(mctx, msg.Key, msg.Value); err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "handler failed")
		c.log.Error("handler failed, message skipped",
			zap.Int("partition", msg.Partition),
			zap.Int64("offset", msg.Offset),
			zap.Error(err),
		)
	}
}

func pause(ctx context.Context, d time.Duration) bool {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return false
	case <-t.C:
		return true
	}
}

func (c *Consumer) Close() error { return c.r.Close() }
