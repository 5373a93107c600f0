package kafka

import (
	"context"
	"testing"
	"time"

	"github.com/segmentio/kafka-go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestTopicSpecConfig(t *testing.T) {
	tc := TopicSpec{Name: "rooms", Retention: 90 * time.Minute}.config()
	assert.Equal(t, "rooms", tc.Topic)
	assert.Equal(t, 1, tc.NumPartitions)
	assert.Equal(t, 1, tc.ReplicationFactor)
	require.Len(t, tc.ConfigEntries, 1)
	assert.Equal(t, kafka.ConfigEntry{ConfigName: "retention.ms", ConfigValue: "5400000"}, tc.ConfigEntries[0])

	assert.Empty(t, TopicSpec{Name: "rooms", NumPartitions: 3}.config().ConfigEntries)
}

func TestAllHaveLeader(t *testing.T) {
	assert.True(t, allHaveLeader([]kafka.Partition{{Leader: kafka.Broker{ID: 1}}}))
	assert.False(t, allHaveLeader([]kafka.Partition{{Leader: kafka.Broker{ID: 1}}, {Leader: kafka.Broker{ID: -1}}}))
}

func TestEnsureTopicWithoutBrokers(t *testing.T) {
	require.Error(t, EnsureTopic(context.Background(), nil, TopicSpec{Name: "rooms"}, nil))
}
