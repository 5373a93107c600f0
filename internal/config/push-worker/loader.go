package push_worker_config

import (
	common "github.com/shubhankar-shipowl/help-desk-sub004/internal/config/common"
)

func Load(path string) (*Config, error) {
	v := common.NewViper(path, "push-worker")
	common.SetDBDefaults(v)
	common.SetDeliveryDefaults(v)

	v.SetDefault("metrics.addr", ":9103")

	v.SetDefault("vapid.public_key", "")
	v.SetDefault("vapid.private_key", "")
	v.SetDefault("vapid.subject", "mailto:support@helpdesk.local")
	v.SetDefault("vapid.ttl", "24h")
	v.SetDefault("vapid.timeout", "10s")

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, err
	}
	if cfg.VAPID.PublicKey == "" || cfg.VAPID.PrivateKey == "" {
		return nil, common.ErrConfig("vapid.public_key and vapid.private_key are required")
	}
	return &cfg, nil
}
