package dispatcher_config

import (
	common "github.com/shubhankar-shipowl/help-desk-sub004/internal/config/common"
)

func Load(path string) (*Config, error) {
	v := common.NewViper(path, "dispatcher")
	common.SetDBDefaults(v)
	common.SetAuthDefaults(v)

	v.SetDefault("server.addr", ":8080")
	v.SetDefault("server.read_timeout", "5s")
	v.SetDefault("server.write_timeout", "10s")
	v.SetDefault("server.idle_timeout", "60s")
	v.SetDefault("server.graceful_timeout", "15s")
	v.SetDefault("server.cors_origins", []string{"http://localhost:3000"})

	v.SetDefault("metrics.addr", ":9100")

	v.SetDefault("bus.url", "http://localhost:8090")
	v.SetDefault("bus.timeout", "3s")

	v.SetDefault("redis.enable", false)
	v.SetDefault("redis.addr", "localhost:6379")
	v.SetDefault("redis.password", "")
	v.SetDefault("redis.db", 0)
	v.SetDefault("redis.dedup_ttl", "24h")

	v.SetDefault("delivery.max_attempts", 5)

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, err
	}
	switch {
	case cfg.DB.URL == "":
		return nil, common.ErrConfig("db.dsn is required")
	case cfg.Auth.InternalAPIKey == "":
		return nil, common.ErrConfig("auth.internal_api_key is required")
	case cfg.Auth.JWTSecret == "":
		return nil, common.ErrConfig("auth.jwt_secret is required")
	}
	return &cfg, nil
}
