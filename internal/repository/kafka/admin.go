package kafka

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/segmentio/kafka-go"
	"go.uber.org/zap"
)

var ErrTopicNotReady = errors.New("kafka: topic not ready")

type TopicSpec struct {
	Name              string
	NumPartitions     int
	ReplicationFactor int
	// MaxWait bounds how long EnsureTopic polls metadata after creation.
	MaxWait time.Duration
}

func (s TopicSpec) withDefaults() TopicSpec {
	if s.NumPartitions <= 0 {
		s.NumPartitions = 1
	}
	if s.ReplicationFactor <= 0 {
		s.ReplicationFactor = 1
	}
	if s.MaxWait <= 0 {
		s.MaxWait = 5 * time.Second
	}
	return s
}

// topicAdmin is the slice of *kafka.Client EnsureTopic needs.
type topicAdmin interface {
	CreateTopics(ctx context.Context, req *kafka.CreateTopicsRequest) (*kafka.CreateTopicsResponse, error)
	Metadata(ctx context.Context, req *kafka.MetadataRequest) (*kafka.MetadataResponse, error)
}

// EnsureTopic creates the topic if missing and waits until the cluster
// reports at least one partition for it. An existing topic is left as is.
func EnsureTopic(ctx context.Context, brokers []string, spec TopicSpec, log *zap.Logger) error {
	if len(brokers) == 0 {
		return errors.New("kafka: no brokers configured")
	}
	client := &kafka.Client{Addr: kafka.TCP(brokers...), Timeout: 10 * time.Second}
	return ensureTopic(ctx, client, spec, log)
}

const readyPoll = 200 * time.Millisecond

func ensureTopic(ctx context.Context, admin topicAdmin, spec TopicSpec, log *zap.Logger) error {
	if log == nil {
		log = zap.NewNop()
	}
	spec = spec.withDefaults()
	log = log.With(zap.String("topic", spec.Name))

	res, err := admin.CreateTopics(ctx, &kafka.CreateTopicsRequest{
		Topics: []kafka.TopicConfig{{
			Topic:             spec.Name,
			NumPartitions:     spec.NumPartitions,
			ReplicationFactor: spec.ReplicationFactor,
		}},
	})
	if err != nil {
		return fmt.Errorf("create topic %s: %w", spec.Name, err)
	}
	if terr := res.Errors[spec.Name]; terr != nil {
		if !errors.Is(terr, kafka.TopicAlreadyExists) {
			return fmt.Errorf("create topic %s: %w", spec.Name, terr)
		}
		log.Debug("topic already exists")
	}

	ctx, cancel := context.WithTimeout(ctx, spec.MaxWait)
	defer cancel()
	t := time.NewTicker(readyPoll)
	defer t.Stop()
	for {
		if topicReady(ctx, admin, spec.Name) {
			log.Info("topic ready")
			return nil
		}
		select {
		case <-ctx.Done():
			log.Warn("topic not confirmed ready in time", zap.Duration("max_wait", spec.MaxWait))
			return fmt.Errorf("%w: %s", ErrTopicNotReady, spec.Name)
		case <-t.C:
		}
	}
}

func topicReady(ctx context.Context, admin topicAdmin, name string) bool {
	md, err := admin.Metadata(ctx, &kafka.MetadataRequest{Topics: []string{name}})
	if err != nil {
		return false
	}
	for _, tp := range md.Topics {
		if tp.Name == name && tp.Error == nil && len(tp.Partitions) > 0 {
			return true
		}
	}
	return false
}
