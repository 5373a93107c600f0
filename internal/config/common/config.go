package common_config

import (
	"time"

	"github.com/shubhankar-shipowl/help-desk-sub004/internal/delivery"
	"github.com/shubhankar-shipowl/help-desk-sub004/internal/domain/notification"
	"github.com/shubhankar-shipowl/help-desk-sub004/internal/obs"
	"github.com/shubhankar-shipowl/help-desk-sub004/internal/obs/retry"
)

type App struct {
	Name    string `mapstructure:"name"`
	Env     string `mapstructure:"env"`
	Version string `mapstructure:"version"`
}

type OTEL struct {
	Enable       bool    `mapstructure:"enable"`
	OTLPEndpoint string  `mapstructure:"otlp_endpoint"`
	ServiceName  string  `mapstructure:"service_name"`
	SampleRatio  float64 `mapstructure:"sample_ratio"`
}

func (oc *OTEL) AsOTELConfig(app App) *obs.OTELConfig {
	return &obs.OTELConfig{
		Enable:      oc.Enable,
		Endpoint:    oc.OTLPEndpoint,
		ServiceName: oc.ServiceName,
		SampleRatio: oc.SampleRatio,
		Env:         app.Env,
		Version:     app.Version,
	}
}

type Log struct {
	Level  string `mapstructure:"level"`
	Pretty bool   `mapstructure:"pretty"`
}

func (lc *Log) AsLoggerConfig(app App) obs.LogConfig {
	return obs.LogConfig{
		Level:  lc.Level,
		Pretty: lc.Pretty,
		App:    "helpdesk/" + app.Name,
		Env:    app.Env,
		Ver:    app.Version,
	}
}

type Metrics struct {
	Addr string `mapstructure:"addr"`
}

type Auth struct {
	InternalAPIKey string `mapstructure:"internal_api_key"`
	JWTSecret      string `mapstructure:"jwt_secret"`
}

// Delivery tunes a channel worker's task runner.
type Delivery struct {
	Workers      int           `mapstructure:"workers"`
	BatchSize    int           `mapstructure:"batch_size"`
	PollInterval time.Duration `mapstructure:"poll_interval"`
	StaleTTL     time.Duration `mapstructure:"stale_ttl"`
	BackoffBase  time.Duration `mapstructure:"backoff_base"`
	BackoffMax   time.Duration `mapstructure:"backoff_max"`
}

func (d *Delivery) AsRunnerConfig(ch notification.Channel) delivery.Config {
	return delivery.Config{
		Channel:      ch,
		Workers:      d.Workers,
		BatchSize:    d.BatchSize,
		PollInterval: d.PollInterval,
		StaleTTL:     d.StaleTTL,
		Backoff:      retry.ExpoJitter{Base: d.BackoffBase, Max: d.BackoffMax, Jitter: 0.2},
	}
}

type ErrConfig string

func (e ErrConfig) Error() string { return string(e) }
