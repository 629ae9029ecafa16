// Package config resolves startup configuration from CLI flags and
// environment variables. CLI flags always override the environment.
package config

import (
	"os"
	"strconv"
	"strings"
)

// Defaults for tunables that can also be overridden via the settings table.
const (
	DefaultWebPort           = 8080
	DefaultChannelBufferSize = 10_000_000
	DefaultRetentionDays     = 7
)

// Config is the resolved startup configuration.
type Config struct {
	// Interfaces holds explicit interface selections: names or 1-based
	// indices, as the user typed them. Empty means auto-select.
	Interfaces []string
	// WebPort is the HTTP listen port on 127.0.0.1.
	WebPort int
	// DatabaseURL is the SQLite file path.
	DatabaseURL string
	// RetentionDays bounds how long communication rows are kept.
	RetentionDays int
	// ChannelBufferSize bounds the capture frame channel.
	ChannelBufferSize int
}

// FromEnv builds a Config from environment variables alone; the CLI layer
// overlays flag values afterwards.
func FromEnv() Config {
	cfg := Config{
		WebPort:           DefaultWebPort,
		RetentionDays:     DefaultRetentionDays,
		ChannelBufferSize: DefaultChannelBufferSize,
	}

	if v := os.Getenv("MONITOR_INTERFACES"); v != "" {
		for _, part := range strings.Split(v, ",") {
			if part = strings.TrimSpace(part); part != "" {
				cfg.Interfaces = append(cfg.Interfaces, part)
			}
		}
	}
	if v := os.Getenv("WEB_PORT"); v != "" {
		if port, err := strconv.Atoi(v); err == nil && port > 0 && port < 65536 {
			cfg.WebPort = port
		}
	}
	cfg.DatabaseURL = os.Getenv("DATABASE_URL")
	if v := os.Getenv("DATA_RETENTION_DAYS"); v != "" {
		if days, err := strconv.Atoi(v); err == nil && days > 0 {
			cfg.RetentionDays = days
		}
	}
	if v := os.Getenv("CHANNEL_BUFFER_SIZE"); v != "" {
		if size, err := strconv.Atoi(v); err == nil && size > 0 {
			cfg.ChannelBufferSize = size
		}
	}

	return cfg
}

// ResolveDatabaseURL fills in the default database path once the monitored
// interfaces are known: "<interface>.db" when exactly one interface is
// monitored, "network.db" otherwise.
func (c *Config) ResolveDatabaseURL(interfaces []string) string {
	if c.DatabaseURL != "" {
		return c.DatabaseURL
	}
	if len(interfaces) == 1 {
		return interfaces[0] + ".db"
	}
	return "network.db"
}
