package common_config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/shubhankar-shipowl/help-desk-sub004/internal/domain/notification"
	"github.com/shubhankar-shipowl/help-desk-sub004/internal/obs/retry"
)

type sample struct {
	App      App      `mapstructure:"app"`
	Log      Log      `mapstructure:"log"`
	Auth     Auth     `mapstructure:"auth"`
	Delivery Delivery `mapstructure:"delivery"`
}

func TestNewViper_FileDefaultsAndEnv(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "svc.yaml")
	require.NoError(t, os.WriteFile(path, []byte("log:\n  level: debug\ndelivery:\n  workers: 8\n"), 0o600))
	t.Setenv("AUTH_JWT_SECRET", "from-env")

	v := NewViper(path, "email-worker")
	SetAuthDefaults(v)
	SetDeliveryDefaults(v)

	var cfg sample
	require.NoError(t, v.Unmarshal(&cfg))

	assert.Equal(t, "email-worker", cfg.App.Name)
	assert.Equal(t, "debug", cfg.Log.Level)
	assert.Equal(t, "from-env", cfg.Auth.JWTSecret)
	assert.Equal(t, 8, cfg.Delivery.Workers)
	assert.Equal(t, 20, cfg.Delivery.BatchSize)
	assert.Equal(t, 30*time.Second, cfg.Delivery.BackoffBase)

	lc := cfg.Log.AsLoggerConfig(cfg.App)
	assert.Equal(t, "helpdesk/email-worker", lc.App)

	rc := cfg.Delivery.AsRunnerConfig(notification.ChannelEmail)
	assert.Equal(t, notification.ChannelEmail, rc.Channel)
	assert.Equal(t, retry.ExpoJitter{Base: 30 * time.Second, Max: time.Hour, Jitter: 0.2}, rc.Backoff)
}
