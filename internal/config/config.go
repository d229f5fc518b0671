// Package config loads and validates the feedgate YAML configuration.
package config

import "time"

// Config is the root configuration for the feedgate binary.
type Config struct {
	Instance InstanceConfig `yaml:"instance"`
	Log      LogConfig      `yaml:"log"`
	Upstream UpstreamConfig `yaml:"upstream"`
	Polling  PollingConfig  `yaml:"polling"`
	Server   ServerConfig   `yaml:"server"`
	History  HistoryConfig  `yaml:"history"`
	Tenants  []TenantSeed   `yaml:"tenants"`
}

// InstanceConfig identifies this gateway instance.
type InstanceConfig struct {
	ID string `yaml:"id"`
}

// LogConfig controls logging output.
type LogConfig struct {
	Level string `yaml:"level"` // debug, info, warn, error
}

// UpstreamConfig points at the venue REST gateway.
type UpstreamConfig struct {
	BaseURL      string        `yaml:"base_url"`
	APIKey       string        `yaml:"api_key"`
	Timeout      time.Duration `yaml:"timeout"`
	MaxRetries   int           `yaml:"max_retries"`
	RetryBackoff time.Duration `yaml:"retry_backoff"`
}

// PollingConfig holds per-kind cadences and the failure backoff multiplier.
type PollingConfig struct {
	TickCadence      time.Duration `yaml:"tick_cadence"`
	OrderBookCadence time.Duration `yaml:"orderbook_cadence"`
	PositionCadence  time.Duration `yaml:"position_cadence"`
	FailureBackoff   int           `yaml:"failure_backoff"`
	TickTTL          time.Duration `yaml:"tick_ttl"`
}

// ServerConfig configures the REST/WebSocket surface.
type ServerConfig struct {
	Addr          string `yaml:"addr"`
	ListenerQueue int    `yaml:"listener_queue"` // Per-listener delivery queue size
}

// HistoryConfig configures the optional update recorder.
type HistoryConfig struct {
	Enabled       bool          `yaml:"enabled"`
	Postgres      DBConfig      `yaml:"postgres"`
	BatchSize     int           `yaml:"batch_size"`
	FlushInterval time.Duration `yaml:"flush_interval"`
	BufferSize    int           `yaml:"buffer_size"`
}

// DBConfig holds Postgres connection settings.
type DBConfig struct {
	Host     string `yaml:"host"`
	Port     int    `yaml:"port"`
	Name     string `yaml:"name"`
	User     string `yaml:"user"`
	Password string `yaml:"password"`
	SSLMode  string `yaml:"ssl_mode"`
	MaxConns int    `yaml:"max_conns"`
	MinConns int    `yaml:"min_conns"`
}

// TenantSeed is one tenant loaded into the registry at startup.
type TenantSeed struct {
	ID     string `yaml:"id"`
	Name   string `yaml:"name"`
	Status string `yaml:"status"` // active (default) or suspended
}
