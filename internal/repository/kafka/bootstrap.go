package kafka

import (
	"context"
	"time"

	"go.uber.org/zap"
)

// Account events are keyed by user id; three partitions keep per-user order
// while letting the notifier scale to three replicas.
const accountEventPartitions = 3

// BootstrapConsumer makes a best effort to create the topic before
// subscribing. kafka-init owns topic creation in deployed environments, so a
// failure here is only logged.
func BootstrapConsumer(ctx context.Context, cfg *ConsumerConfig, logger *zap.Logger) *Consumer {
	ensureBestEffort(ctx, cfg.Brokers, cfg.Topic, logger)
	return NewConsumer(cfg).WithLogger(logger)
}

func BootstrapProducer(ctx context.Context, brokers []string, topic string, logger *zap.Logger) *Producer {
	ensureBestEffort(ctx, brokers, topic, logger)
	return NewProducer(brokers, topic).WithLogger(logger)
}

func ensureBestEffort(ctx context.Context, brokers []string, topic string, logger *zap.Logger) {
	err := EnsureTopic(ctx, brokers, TopicSpec{
		Name:              topic,
		NumPartitions:     accountEventPartitions,
		ReplicationFactor: 1,
		MaxWait:           5 * time.Second,
	}, logger)
	if err != nil && logger != nil {
		logger.Warn("ensure topic", zap.String("topic", topic), zap.Error(err))
	}
}
