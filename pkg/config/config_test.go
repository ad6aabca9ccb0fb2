// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gopkg.in/yaml.v3"
)

func writeConfig(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "hotlink.yaml")
	require.NoError(t, os.WriteFile(path, []byte(body), 0o600))
	return path
}

func TestLoad_Defaults(t *testing.T) {
	cfg, err := Decode(New())
	require.NoError(t, err)

	assert.Equal(t, RoleBridge, cfg.Node.Role)
	assert.Equal(t, 10*time.Millisecond, cfg.Node.TickInterval)
	assert.Equal(t, 60*time.Second, cfg.Node.IdleTimeout)
	assert.Equal(t, 10*time.Second, cfg.Node.StaleTimeout)
	assert.Zero(t, cfg.Node.PingInterval, "heartbeat is opt-in")
	assert.Equal(t, "wired", cfg.Node.PreferredLink)
	assert.Equal(t, 64, cfg.Node.MaxBytesPerPoll)
	assert.Equal(t, 115200, cfg.Wired.Baud)
	assert.True(t, cfg.Wired.Enabled)
	assert.False(t, cfg.Wireless.Enabled)
	assert.Empty(t, cfg.Wireless.Policy)
	assert.Equal(t, "latch", cfg.Wireless.PolicyFor(RoleDisplay))
	assert.Equal(t, "queue", cfg.Wireless.PolicyFor(RoleBridge))
	assert.Equal(t, 8, cfg.Wireless.QueueDepth)
	assert.Equal(t, "info", cfg.Logging.Level)
	assert.False(t, cfg.Metrics.Enabled)
}

func TestLoad_File(t *testing.T) {
	path := writeConfig(t, `
node:
  role: display
  idleTimeout: 30s
  preferredLink: wireless
wired:
  enabled: false
wireless:
  enabled: true
  policy: latch
  address: "02:00:00:00:00:09"
metrics:
  enabled: true
  addr: ":9999"
`)
	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, RoleDisplay, cfg.Node.Role)
	assert.Equal(t, 30*time.Second, cfg.Node.IdleTimeout)
	assert.Equal(t, "wireless", cfg.Node.PreferredLink)
	assert.False(t, cfg.Wired.Enabled)
	assert.True(t, cfg.Wireless.Enabled)
	assert.Equal(t, "latch", cfg.Wireless.Policy)
	assert.Equal(t, "latch", cfg.Wireless.PolicyFor(RoleBridge))
	assert.Equal(t, "02:00:00:00:00:09", cfg.Wireless.Address)
	assert.True(t, cfg.Metrics.Enabled)
	assert.Equal(t, ":9999", cfg.Metrics.Addr)
	// untouched keys keep their defaults
	assert.Equal(t, 10*time.Second, cfg.Node.StaleTimeout)
}

func TestLoad_EnvOverride(t *testing.T) {
	t.Setenv("HOTLINK_NODE_ROLE", "display")
	t.Setenv("HOTLINK_WIRELESS_QUEUEDEPTH", "16")

	cfg, err := Decode(New())
	require.NoError(t, err)
	assert.Equal(t, RoleDisplay, cfg.Node.Role)
	assert.Equal(t, 16, cfg.Wireless.QueueDepth)
}

func TestLoad_MissingFile(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "absent.yaml"))
	assert.Error(t, err)
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*Config)
		want   error
	}{
		{"bad role", func(c *Config) { c.Node.Role = "router" }, ErrInvalidRole},
		{"bad policy", func(c *Config) { c.Wireless.Policy = "fifo" }, ErrInvalidPolicy},
		{"bad link", func(c *Config) { c.Node.PreferredLink = "ir" }, ErrInvalidLink},
		{"zero idle", func(c *Config) { c.Node.IdleTimeout = 0 }, ErrInvalidDuration},
		{"negative stale", func(c *Config) { c.Node.StaleTimeout = -time.Second }, ErrInvalidDuration},
		{"negative ping", func(c *Config) { c.Node.PingInterval = -time.Second }, ErrInvalidDuration},
		{"no transport", func(c *Config) { c.Wired.Enabled = false }, ErrNoTransport},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg, err := Decode(New())
			require.NoError(t, err)
			tt.mutate(cfg)
			assert.ErrorIs(t, cfg.Validate(), tt.want)
		})
	}

	cfg, err := Decode(New())
	require.NoError(t, err)
	cfg.Node.PingInterval = 0
	assert.NoError(t, cfg.Validate(), "a zero ping interval disables pings")
}

func TestYAML(t *testing.T) {
	cfg, err := Decode(New())
	require.NoError(t, err)

	out, err := cfg.YAML()
	require.NoError(t, err)
	assert.Contains(t, string(out), "role: bridge")
	assert.Contains(t, string(out), "idleTimeout: 1m0s")

	var back map[string]any
	require.NoError(t, yaml.Unmarshal(out, &back))
	assert.Contains(t, back, "wireless")
}
