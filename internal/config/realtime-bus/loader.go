package realtime_bus_config

import (
	"os"

	common "github.com/shubhankar-shipowl/help-desk-sub004/internal/config/common"
)

func Load(path string) (*Config, error) {
	v := common.NewViper(path, "realtime-bus")
	common.SetAuthDefaults(v)

	v.SetDefault("server.addr", ":8090")
	v.SetDefault("server.read_timeout", "10s")
	v.SetDefault("server.idle_timeout", "120s")
	v.SetDefault("server.graceful_timeout", "10s")
	v.SetDefault("server.cors_origins", []string{"http://localhost:3000"})
	v.SetDefault("server.send_buffer", 64)

	v.SetDefault("metrics.addr", ":9101")

	v.SetDefault("kafka.enable", false)
	v.SetDefault("kafka.brokers", []string{"localhost:9094"})
	v.SetDefault("kafka.topic", "helpdesk.realtime.rooms")
	v.SetDefault("kafka.group_id", "realtime-bus")
	v.SetDefault("kafka.partitions", 1)
	v.SetDefault("kafka.retention", "1h")
	if host, err := os.Hostname(); err == nil {
		v.SetDefault("kafka.instance_id", host)
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, err
	}
	switch {
	case cfg.Auth.InternalAPIKey == "":
		return nil, common.ErrConfig("auth.internal_api_key is required")
	case cfg.Auth.JWTSecret == "":
		return nil, common.ErrConfig("auth.jwt_secret is required")
	case cfg.Kafka.Enable && len(cfg.Kafka.Brokers) == 0:
		return nil, common.ErrConfig("kafka.brokers is required when kafka is enabled")
	case cfg.Kafka.Enable && cfg.Kafka.InstanceID == "":
		return nil, common.ErrConfig("kafka.instance_id is required when kafka is enabled")
	}
	return &cfg, nil
}
