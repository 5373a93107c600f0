package realtime_bus_config

import (
	"time"

	common "github.com/shubhankar-shipowl/help-desk-sub004/internal/config/common"
	bus "github.com/shubhankar-shipowl/help-desk-sub004/internal/services/realtime-bus"
)

// Kafka relays room events between bus instances. Disabled means a single
// instance fans out locally only.
type Kafka struct {
	Enable     bool          `mapstructure:"enable"`
	Brokers    []string      `mapstructure:"brokers"`
	Topic      string        `mapstructure:"topic"`
	GroupID    string        `mapstructure:"group_id"`
	InstanceID string        `mapstructure:"instance_id"`
	Partitions int           `mapstructure:"partitions"`
	Retention  time.Duration `mapstructure:"retention"`
}

// ConsumerGroup is unique per instance and stable across its restarts.
func (k Kafka) ConsumerGroup() string {
	return k.GroupID + "-" + k.InstanceID
}

type Config struct {
	App     common.App       `mapstructure:"app"`
	Server  bus.ServerConfig `mapstructure:"server"`
	OTEL    common.OTEL      `mapstructure:"otel"`
	Log     common.Log       `mapstructure:"log"`
	Metrics common.Metrics   `mapstructure:"metrics"`
	Auth    common.Auth      `mapstructure:"auth"`
	Kafka   Kafka            `mapstructure:"kafka"`
}
