package dispatcher_config

import (
	"time"

	common "github.com/shubhankar-shipowl/help-desk-sub004/internal/config/common"
	pg "github.com/shubhankar-shipowl/help-desk-sub004/internal/repository/postgres"
	redisrepo "github.com/shubhankar-shipowl/help-desk-sub004/internal/repository/redis"
	"github.com/shubhankar-shipowl/help-desk-sub004/internal/services/dispatcher"
)

type Bus struct {
	URL     string        `mapstructure:"url"`
	Timeout time.Duration `mapstructure:"timeout"`
}

// Redis backs trigger idempotency keys. Disabled means Idempotency-Key
// headers are ignored.
type Redis struct {
	Enable   bool          `mapstructure:"enable"`
	Addr     string        `mapstructure:"addr"`
	Password string        `mapstructure:"password"`
	DB       int           `mapstructure:"db"`
	DedupTTL time.Duration `mapstructure:"dedup_ttl"`
}

func (r *Redis) AsClientConfig() redisrepo.Config {
	return redisrepo.Config{Addr: r.Addr, Password: r.Password, DB: r.DB}
}

type Delivery struct {
	MaxAttempts int `mapstructure:"max_attempts"`
}

type Config struct {
	App      common.App              `mapstructure:"app"`
	Server   dispatcher.ServerConfig `mapstructure:"server"`
	DB       pg.Config               `mapstructure:"db"`
	OTEL     common.OTEL             `mapstructure:"otel"`
	Log      common.Log              `mapstructure:"log"`
	Metrics  common.Metrics          `mapstructure:"metrics"`
	Auth     common.Auth             `mapstructure:"auth"`
	Bus      Bus                     `mapstructure:"bus"`
	Redis    Redis                   `mapstructure:"redis"`
	Delivery Delivery                `mapstructure:"delivery"`
}
