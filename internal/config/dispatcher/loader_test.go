package dispatcher_config

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	common "github.com/shubhankar-shipowl/help-desk-sub004/internal/config/common"
)

func TestLoad_RequiresSecrets(t *testing.T) {
	t.Setenv("AUTH_INTERNAL_API_KEY", "")
	t.Setenv("AUTH_JWT_SECRET", "")

	_, err := Load("")
	var ce common.ErrConfig
	require.ErrorAs(t, err, &ce)
	assert.Contains(t, err.Error(), "internal_api_key")
}

func TestLoad_Defaults(t *testing.T) {
	t.Setenv("AUTH_INTERNAL_API_KEY", "k")
	t.Setenv("AUTH_JWT_SECRET", "s")
	t.Setenv("REDIS_ENABLE", "true")

	cfg, err := Load("")
	require.NoError(t, err)
	assert.Equal(t, ":8080", cfg.Server.Addr)
	assert.Equal(t, 5, cfg.Delivery.MaxAttempts)
	assert.True(t, cfg.Redis.Enable)
	assert.Equal(t, "localhost:6379", cfg.Redis.AsClientConfig().Addr)
	assert.Equal(t, 24*time.Hour, cfg.Redis.DedupTTL)
	assert.Equal(t, "dispatcher", cfg.App.Name)
	assert.Equal(t, "helpdesk-dispatcher", cfg.DB.AppName)
}
