package kafka

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/segmentio/kafka-go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

type fakeAdmin struct {
	createErr   error
	topicErr    error
	readyAfter  int
	metaCalls   int
	createdWith kafka.TopicConfig
}

func (a *fakeAdmin) CreateTopics(_ context.Context, req *kafka.CreateTopicsRequest) (*kafka.CreateTopicsResponse, error) {
	if a.createErr != nil {
		return nil, a.createErr
	}
	a.createdWith = req.Topics[0]
	res := &kafka.CreateTopicsResponse{Errors: map[string]error{}}
	if a.topicErr != nil {
		res.Errors[req.Topics[0].Topic] = a.topicErr
	}
	return res, nil
}

func (a *fakeAdmin) Metadata(_ context.Context, req *kafka.MetadataRequest) (*kafka.MetadataResponse, error) {
	a.metaCalls++
	if a.metaCalls <= a.readyAfter {
		return &kafka.MetadataResponse{}, nil
	}
	return &kafka.MetadataResponse{Topics: []kafka.Topic{{
		Name:       req.Topics[0],
		Partitions: []kafka.Partition{{Topic: req.Topics[0], ID: 0}},
	}}}, nil
}

func TestEnsureTopic_AppliesDefaults(t *testing.T) {
	a := &fakeAdmin{}
	require.NoError(t, ensureTopic(context.Background(), a, TopicSpec{Name: "passage.account.events"}, zap.NewNop()))
	assert.Equal(t, 1, a.createdWith.NumPartitions)
	assert.Equal(t, 1, a.createdWith.ReplicationFactor)
}

func TestEnsureTopic_ExistingTopicIsFine(t *testing.T) {
	a := &fakeAdmin{topicErr: kafka.TopicAlreadyExists, readyAfter: 1}
	err := ensureTopic(context.Background(), a, TopicSpec{Name: "t", MaxWait: 2 * time.Second}, nil)
	require.NoError(t, err)
	assert.Equal(t, 2, a.metaCalls)
}

func TestEnsureTopic_Errors(t *testing.T) {
	boom := errors.New("dial refused")
	err := ensureTopic(context.Background(), &fakeAdmin{createErr: boom}, TopicSpec{Name: "t"}, nil)
	assert.ErrorIs(t, err, boom)

	err = ensureTopic(context.Background(), &fakeAdmin{topicErr: kafka.InvalidReplicationFactor}, TopicSpec{Name: "t"}, nil)
	assert.ErrorIs(t, err, kafka.InvalidReplicationFactor)

	err = ensureTopic(context.Background(), &fakeAdmin{readyAfter: 1 << 30}, TopicSpec{Name: "t", MaxWait: 50 * time.Millisecond}, nil)
	assert.ErrorIs(t, err, ErrTopicNotReady)
}

func TestEnsureTopic_NoBrokers(t *testing.T) {
	assert.Error(t, EnsureTopic(context.Background(), nil, TopicSpec{Name: "t"}, nil))
}
