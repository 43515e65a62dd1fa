package config

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadDefaults(t *testing.T) {
	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, 8080, cfg.PortWeb)
	assert.Equal(t, 2*time.Second, cfg.ProjectionPollInterval)
	assert.Equal(t, 100, cfg.ProjectionBatchSize)
	assert.False(t, cfg.RelayEnabled)
	assert.Equal(t, "json", cfg.LogFormat)
}

func TestLoadOverrides(t *testing.T) {
	t.Setenv("PORT_WEB", "9090")
	t.Setenv("PROJECTION_POLL_INTERVAL", "500ms")
	t.Setenv("KAFKA_BROKERS", "broker-1:9092,broker-2:9092")
	t.Setenv("RELAY_ENABLED", "true")
	t.Setenv("LOG_LEVEL", "debug")

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, 9090, cfg.PortWeb)
	assert.Equal(t, 500*time.Millisecond, cfg.ProjectionPollInterval)
	assert.Equal(t, []string{"broker-1:9092", "broker-2:9092"}, cfg.KafkaBrokers)
	assert.True(t, cfg.RelayEnabled)
	assert.Equal(t, "debug", cfg.LogLevel)
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(*Config)
		wantErr string
	}{
		{
			name:    "missing database url",
			mutate:  func(c *Config) { c.DatabaseURL = "" },
			wantErr: "DATABASE_URL",
		},
		{
			name:    "zero batch size",
			mutate:  func(c *Config) { c.ProjectionBatchSize = 0 },
			wantErr: "PROJECTION_BATCH_SIZE",
		},
		{
			name:    "zero poll interval",
			mutate:  func(c *Config) { c.ProjectionPollInterval = 0 },
			wantErr: "PROJECTION_POLL_INTERVAL",
		},
		{
			name: "relay enabled without brokers",
			mutate: func(c *Config) {
				c.RelayEnabled = true
				c.KafkaBrokers = nil
			},
			wantErr: "KAFKA_BROKERS",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg, err := Load()
			require.NoError(t, err)

			tt.mutate(cfg)
			err = cfg.validate()
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.wantErr)
		})
	}
}
