// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

// Package config loads hotlink node configuration from a file, HOTLINK_
// environment variables and built-in defaults.
package config

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"
	"gopkg.in/yaml.v3"
)

// EnvPrefix prefixes every environment override, e.g. HOTLINK_NODE_ROLE.
const EnvPrefix = "HOTLINK"

// Roles
const (
	RoleDisplay = "display"
	RoleBridge  = "bridge"
)

// NodeConfig configures the node loop.
type NodeConfig struct {
	Role            string        `mapstructure:"role" yaml:"role"`
	Name            string        `mapstructure:"name" yaml:"name"`
	TickInterval    time.Duration `mapstructure:"tickInterval" yaml:"tickInterval"`
	IdleTimeout     time.Duration `mapstructure:"idleTimeout" yaml:"idleTimeout"`
	StaleTimeout    time.Duration `mapstructure:"staleTimeout" yaml:"staleTimeout"`
	PingInterval    time.Duration `mapstructure:"pingInterval" yaml:"pingInterval"`
	PreferredLink   string        `mapstructure:"preferredLink" yaml:"preferredLink"`
	MaxBytesPerPoll int           `mapstructure:"maxBytesPerPoll" yaml:"maxBytesPerPoll"`
}

// WiredConfig configures the serial or WebSocket line.
type WiredConfig struct {
	Enabled       bool          `mapstructure:"enabled" yaml:"enabled"`
	Port          string        `mapstructure:"port" yaml:"port"`
	Baud          int           `mapstructure:"baud" yaml:"baud"`
	URL           string        `mapstructure:"url" yaml:"url"`
	Username      string        `mapstructure:"username" yaml:"username"`
	NoSSLVerify   bool          `mapstructure:"noSSLVerify" yaml:"noSSLVerify"`
	ReconnectWait time.Duration `mapstructure:"reconnectWait" yaml:"reconnectWait"`
}

// WirelessConfig configures the emulated radio.
type WirelessConfig struct {
	Enabled    bool   `mapstructure:"enabled" yaml:"enabled"`
	Address    string `mapstructure:"address" yaml:"address"`
	Listen     string `mapstructure:"listen" yaml:"listen"`
	Broadcast  string `mapstructure:"broadcast" yaml:"broadcast"`
	Policy     string `mapstructure:"policy" yaml:"policy"`
	QueueDepth int    `mapstructure:"queueDepth" yaml:"queueDepth"`
}

// PolicyFor returns the handoff policy for role. An unset policy selects
// latch on the display, which only needs the newest ack or telemetry, and
// queue on the bridge, where command bursts must not overwrite each other.
func (w WirelessConfig) PolicyFor(role string) string {
	if w.Policy != "" {
		return w.Policy
	}
	if role == RoleDisplay {
		return "latch"
	}
	return "queue"
}

// LumberjackConfig configures log file rotation.
type LumberjackConfig struct {
	Filename   string `mapstructure:"filename" yaml:"filename"`
	MaxSizeMB  int    `mapstructure:"maxSize" yaml:"maxSize"`
	MaxBackups int    `mapstructure:"maxBackups" yaml:"maxBackups"`
	MaxAgeDays int    `mapstructure:"maxAge" yaml:"maxAge"`
	Compress   bool   `mapstructure:"compress" yaml:"compress"`
}

// LoggingConfig configures the zap logger.
type LoggingConfig struct {
	Level  string           `mapstructure:"level" yaml:"level"`
	Format string           `mapstructure:"format" yaml:"format"`
	File   LumberjackConfig `mapstructure:"file" yaml:"file"`
}

// MetricsConfig configures the metrics and status endpoint.
type MetricsConfig struct {
	Enabled bool   `mapstructure:"enabled" yaml:"enabled"`
	Addr    string `mapstructure:"addr" yaml:"addr"`
	Path    string `mapstructure:"path" yaml:"path"`
}

// Config is the complete node configuration.
type Config struct {
	Node     NodeConfig     `mapstructure:"node" yaml:"node"`
	Wired    WiredConfig    `mapstructure:"wired" yaml:"wired"`
	Wireless WirelessConfig `mapstructure:"wireless" yaml:"wireless"`
	Logging  LoggingConfig  `mapstructure:"logging" yaml:"logging"`
	Metrics  MetricsConfig  `mapstructure:"metrics" yaml:"metrics"`
}

// Validation errors
var (
	ErrInvalidRole     = errors.New("config: invalid node role")
	ErrInvalidPolicy   = errors.New("config: invalid wireless policy")
	ErrInvalidLink     = errors.New("config: invalid preferred link")
	ErrInvalidDuration = errors.New("config: durations must be positive")
	ErrNoTransport     = errors.New("config: neither wired nor wireless is enabled")
)

// Load reads configuration from path (or ./hotlink.yaml, ./configs/hotlink.yaml
// when empty), applies HOTLINK_ environment overrides and validates it.
func Load(path string) (*Config, error) {
	v := New()
	if err := Read(v, path); err != nil {
		return nil, err
	}
	return Decode(v)
}

// Read loads the config file into v. A missing file is not an error unless
// path names it explicitly.
func Read(v *viper.Viper, path string) error {
	if path != "" {
		v.SetConfigFile(path)
	}
	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) {
			return fmt.Errorf("read config: %w", err)
		}
	}
	return nil
}

// New returns a viper instance with defaults and environment binding but no
// file loaded yet. Command flags bind onto it before Decode.
func New() *viper.Viper {
	v := viper.New()
	v.AddConfigPath(".")
	v.AddConfigPath("./configs")
	v.SetConfigName("hotlink")
	v.SetConfigType("yaml")

	setDefaults(v)

	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()
	return v
}

// Decode unmarshals and validates the configuration held by v
func Decode(v *viper.Viper) (*Config, error) {
	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("unmarshal config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("node.role", RoleBridge)
	v.SetDefault("node.name", "hotlink")
	v.SetDefault("node.tickInterval", "10ms")
	v.SetDefault("node.idleTimeout", "60s")
	v.SetDefault("node.staleTimeout", "10s")
	v.SetDefault("node.pingInterval", "0s")
	v.SetDefault("node.preferredLink", "wired")
	v.SetDefault("node.maxBytesPerPoll", 64)

	v.SetDefault("wired.enabled", true)
	v.SetDefault("wired.port", "")
	v.SetDefault("wired.baud", 115200)
	v.SetDefault("wired.url", "")
	v.SetDefault("wired.username", "")
	v.SetDefault("wired.noSSLVerify", false)
	v.SetDefault("wired.reconnectWait", "2s")

	v.SetDefault("wireless.enabled", false)
	v.SetDefault("wireless.address", "02:00:00:00:00:01")
	v.SetDefault("wireless.listen", ":47474")
	v.SetDefault("wireless.broadcast", "255.255.255.255:47474")
	v.SetDefault("wireless.policy", "")
	v.SetDefault("wireless.queueDepth", 8)

	v.SetDefault("logging.level", "info")
	v.SetDefault("logging.format", "console")
	v.SetDefault("logging.file.filename", "")
	v.SetDefault("logging.file.maxSize", 20)
	v.SetDefault("logging.file.maxBackups", 3)
	v.SetDefault("logging.file.maxAge", 14)
	v.SetDefault("logging.file.compress", true)

	v.SetDefault("metrics.enabled", false)
	v.SetDefault("metrics.addr", "127.0.0.1:9470")
	v.SetDefault("metrics.path", "/metrics")
}

// Validate checks enumerations and durations
func (c *Config) Validate() error {
	switch strings.ToLower(c.Node.Role) {
	case RoleDisplay, RoleBridge:
	default:
		return fmt.Errorf("%w: %q (use display or bridge)", ErrInvalidRole, c.Node.Role)
	}

	switch strings.ToLower(c.Node.PreferredLink) {
	case "wired", "wireless":
	default:
		return fmt.Errorf("%w: %q (use wired or wireless)", ErrInvalidLink, c.Node.PreferredLink)
	}

	switch strings.ToLower(c.Wireless.Policy) {
	case "", "latch", "queue":
	default:
		return fmt.Errorf("%w: %q (use latch or queue)", ErrInvalidPolicy, c.Wireless.Policy)
	}

	durations := map[string]time.Duration{
		"node.tickInterval": c.Node.TickInterval,
		"node.idleTimeout":  c.Node.IdleTimeout,
		"node.staleTimeout": c.Node.StaleTimeout,
	}
	for name, d := range durations {
		if d <= 0 {
			return fmt.Errorf("%w: %s=%s", ErrInvalidDuration, name, d)
		}
	}
	if c.Node.PingInterval < 0 {
		return fmt.Errorf("%w: node.pingInterval=%s", ErrInvalidDuration, c.Node.PingInterval)
	}
	if c.Node.MaxBytesPerPoll <= 0 {
		return fmt.Errorf("config: node.maxBytesPerPoll must be positive, got %d", c.Node.MaxBytesPerPoll)
	}
	if c.Wireless.QueueDepth <= 0 {
		return fmt.Errorf("config: wireless.queueDepth must be positive, got %d", c.Wireless.QueueDepth)
	}

	if !c.Wired.Enabled && !c.Wireless.Enabled {
		return ErrNoTransport
	}
	return nil
}

// YAML renders the effective configuration
func (c *Config) YAML() ([]byte, error) {
	out, err := yaml.Marshal(c)
	if err != nil {
		return nil, fmt.Errorf("marshal config: %w", err)
	}
	return out, nil
}
