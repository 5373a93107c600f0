package email_worker_config

import (
	common "github.com/shubhankar-shipowl/help-desk-sub004/internal/config/common"
)

func Load(path string) (*Config, error) {
	v := common.NewViper(path, "email-worker")
	common.SetDBDefaults(v)
	common.SetDeliveryDefaults(v)

	v.SetDefault("metrics.addr", ":9102")

	v.SetDefault("smtp.addr", "localhost:1025")
	v.SetDefault("smtp.user", "")
	v.SetDefault("smtp.password", "")
	v.SetDefault("smtp.from", "Help Desk <no-reply@helpdesk.local>")
	v.SetDefault("smtp.use_tls", false)
	v.SetDefault("smtp.insecure_skip_verify", false)
	v.SetDefault("smtp.timeout", "15s")
	v.SetDefault("smtp.subject_prefix", "")

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, err
	}
	if cfg.SMTP.Addr == "" || cfg.SMTP.From == "" {
		return nil, common.ErrConfig("smtp.addr and smtp.from are required")
	}
	return &cfg, nil
}
