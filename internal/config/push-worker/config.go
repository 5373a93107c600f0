package push_worker_config

import (
	common "github.com/shubhankar-shipowl/help-desk-sub004/internal/config/common"
	pg "github.com/shubhankar-shipowl/help-desk-sub004/internal/repository/postgres"
	pusher "github.com/shubhankar-shipowl/help-desk-sub004/internal/services/push-worker"
)

type Config struct {
	App      common.App      `mapstructure:"app"`
	DB       pg.Config       `mapstructure:"db"`
	OTEL     common.OTEL     `mapstructure:"otel"`
	Log      common.Log      `mapstructure:"log"`
	Metrics  common.Metrics  `mapstructure:"metrics"`
	VAPID    pusher.VAPID    `mapstructure:"vapid"`
	Delivery common.Delivery `mapstructure:"delivery"`
}
