package config

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestFromEnvDefaults(t *testing.T) {
	t.Setenv("MONITOR_INTERFACES", "")
	t.Setenv("WEB_PORT", "")
	t.Setenv("DATABASE_URL", "")
	t.Setenv("DATA_RETENTION_DAYS", "")
	t.Setenv("CHANNEL_BUFFER_SIZE", "")

	cfg := FromEnv()
	assert.Empty(t, cfg.Interfaces)
	assert.Equal(t, DefaultWebPort, cfg.WebPort)
	assert.Equal(t, DefaultRetentionDays, cfg.RetentionDays)
	assert.Equal(t, DefaultChannelBufferSize, cfg.ChannelBufferSize)
}

func TestFromEnvOverrides(t *testing.T) {
	t.Setenv("MONITOR_INTERFACES", "eth0, 2 ,wlan0")
	t.Setenv("WEB_PORT", "9090")
	t.Setenv("DATABASE_URL", "/var/lib/netwatch/net.db")
	t.Setenv("DATA_RETENTION_DAYS", "30")
	t.Setenv("CHANNEL_BUFFER_SIZE", "1000")

	cfg := FromEnv()
	assert.Equal(t, []string{"eth0", "2", "wlan0"}, cfg.Interfaces)
	assert.Equal(t, 9090, cfg.WebPort)
	assert.Equal(t, "/var/lib/netwatch/net.db", cfg.DatabaseURL)
	assert.Equal(t, 30, cfg.RetentionDays)
	assert.Equal(t, 1000, cfg.ChannelBufferSize)
}

func TestFromEnvIgnoresGarbage(t *testing.T) {
	t.Setenv("WEB_PORT", "not-a-port")
	t.Setenv("DATA_RETENTION_DAYS", "-5")
	t.Setenv("CHANNEL_BUFFER_SIZE", "zero")

	cfg := FromEnv()
	assert.Equal(t, DefaultWebPort, cfg.WebPort)
	assert.Equal(t, DefaultRetentionDays, cfg.RetentionDays)
	assert.Equal(t, DefaultChannelBufferSize, cfg.ChannelBufferSize)
}

func TestResolveDatabaseURL(t *testing.T) {
	cfg := Config{}
	assert.Equal(t, "eth0.db", cfg.ResolveDatabaseURL([]string{"eth0"}))
	assert.Equal(t, "network.db", cfg.ResolveDatabaseURL([]string{"eth0", "wlan0"}))
	assert.Equal(t, "network.db", cfg.ResolveDatabaseURL(nil))

	cfg.DatabaseURL = "custom.db"
	assert.Equal(t, "custom.db", cfg.ResolveDatabaseURL([]string{"eth0"}))
}
