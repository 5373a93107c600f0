package email_worker_config

import (
	common "github.com/shubhankar-shipowl/help-desk-sub004/internal/config/common"
	pg "github.com/shubhankar-shipowl/help-desk-sub004/internal/repository/postgres"
	notifier "github.com/shubhankar-shipowl/help-desk-sub004/internal/services/email-worker"
)

type Config struct {
	App      common.App      `mapstructure:"app"`
	DB       pg.Config       `mapstructure:"db"`
	OTEL     common.OTEL     `mapstructure:"otel"`
	Log      common.Log      `mapstructure:"log"`
	Metrics  common.Metrics  `mapstructure:"metrics"`
	SMTP     notifier.SMTP   `mapstructure:"smtp"`
	Delivery common.Delivery `mapstructure:"delivery"`
}
