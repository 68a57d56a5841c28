package config

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoad_Defaults(t *testing.T) {
	cfg, err := Load("config_test")
	require.NoError(t, err)

	assert.Equal(t, "info", cfg.LogLevel)
	assert.Equal(t, 8080, cfg.HTTPPort)
	assert.Equal(t, StoreDriverBadger, cfg.StoreDriver)
	assert.Equal(t, "sms.incoming.raw.*", cfg.InboundSubject)
	assert.Equal(t, 100, cfg.InboundBufferSize)
	assert.Equal(t, time.Duration(0), cfg.ExpirySweepInterval)
	assert.Equal(t, 15*time.Second, cfg.ShutdownTimeout)
}

func TestLoad_EnvironmentOverrides(t *testing.T) {
	t.Setenv("APP_HTTP_PORT", "9090")
	t.Setenv("APP_STORE_DRIVER", "Postgres")
	t.Setenv("APP_EXPIRY_SWEEP_INTERVAL", "45s")
	t.Setenv("APP_NATS_URL", "nats://broker:4222")

	cfg, err := Load("config_test")
	require.NoError(t, err)

	assert.Equal(t, 9090, cfg.HTTPPort)
	assert.Equal(t, StoreDriverPostgres, cfg.StoreDriver)
	assert.Equal(t, 45*time.Second, cfg.ExpirySweepInterval)
	assert.Equal(t, "nats://broker:4222", cfg.NATSUrl)
}
