package realtime_bus_config

import (
	"os"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoad_KafkaDefaults(t *testing.T) {
	t.Setenv("AUTH_INTERNAL_API_KEY", "k")
	t.Setenv("AUTH_JWT_SECRET", "s")

	cfg, err := Load("")
	require.NoError(t, err)
	assert.False(t, cfg.Kafka.Enable)
	assert.Equal(t, "helpdesk.realtime.rooms", cfg.Kafka.Topic)
	assert.Equal(t, time.Hour, cfg.Kafka.Retention)
	assert.Equal(t, 64, cfg.Server.SendBuffer)
	assert.Equal(t, ":9101", cfg.Metrics.Addr)
}

func TestLoad_ConsumerGroupIsStablePerInstance(t *testing.T) {
	t.Setenv("AUTH_INTERNAL_API_KEY", "k")
	t.Setenv("AUTH_JWT_SECRET", "s")

	host, err := os.Hostname()
	require.NoError(t, err)
	cfg, err := Load("")
	require.NoError(t, err)
	assert.Equal(t, host, cfg.Kafka.InstanceID)

	t.Setenv("KAFKA_INSTANCE_ID", "realtime-bus-0")
	first, err := Load("")
	require.NoError(t, err)
	again, err := Load("")
	require.NoError(t, err)
	assert.Equal(t, "realtime-bus-realtime-bus-0", first.Kafka.ConsumerGroup())
	assert.Equal(t, first.Kafka.ConsumerGroup(), again.Kafka.ConsumerGroup())
}
