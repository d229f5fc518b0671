package config

import "time"

// Default values for optional configuration fields.
const (
	DefaultLogLevel         = "info"
	DefaultUpstreamTimeout  = 5 * time.Second
	DefaultMaxRetries       = 3
	DefaultRetryBackoff     = 250 * time.Millisecond
	DefaultTickCadence      = 100 * time.Millisecond
	DefaultOrderBookCadence = 250 * time.Millisecond
	DefaultPositionCadence  = 100 * time.Millisecond
	DefaultFailureBackoff   = 10
	DefaultTickTTL          = 1 * time.Second
	DefaultServerAddr       = ":8080"
	DefaultListenerQueue    = 64
	DefaultDBPort           = 5432
	DefaultDBSSLMode        = "prefer"
	DefaultMaxConns         = 10
	DefaultMinConns         = 2
	DefaultBatchSize        = 500
	DefaultFlushInterval    = 1 * time.Second
	DefaultBufferSize       = 4096
)

func (c *Config) applyDefaults() {
	if c.Log.Level == "" {
		c.Log.Level = DefaultLogLevel
	}

	// Upstream defaults
	if c.Upstream.Timeout == 0 {
		c.Upstream.Timeout = DefaultUpstreamTimeout
	}
	if c.Upstream.MaxRetries == 0 {
		c.Upstream.MaxRetries = DefaultMaxRetries
	}
	if c.Upstream.RetryBackoff == 0 {
		c.Upstream.RetryBackoff = DefaultRetryBackoff
	}

	// Polling defaults
	if c.Polling.TickCadence == 0 {
		c.Polling.TickCadence = DefaultTickCadence
	}
	if c.Polling.OrderBookCadence == 0 {
		c.Polling.OrderBookCadence = DefaultOrderBookCadence
	}
	if c.Polling.PositionCadence == 0 {
		c.Polling.PositionCadence = DefaultPositionCadence
	}
	if c.Polling.FailureBackoff == 0 {
		c.Polling.FailureBackoff = DefaultFailureBackoff
	}
	if c.Polling.TickTTL == 0 {
		c.Polling.TickTTL = DefaultTickTTL
	}

	// Server defaults
	if c.Server.Addr == "" {
		c.Server.Addr = DefaultServerAddr
	}
	if c.Server.ListenerQueue == 0 {
		c.Server.ListenerQueue = DefaultListenerQueue
	}

	// History defaults
	if c.History.Enabled {
		applyDBDefaults(&c.History.Postgres)
	}
	if c.History.BatchSize == 0 {
		c.History.BatchSize = DefaultBatchSize
	}
	if c.History.FlushInterval == 0 {
		c.History.FlushInterval = DefaultFlushInterval
	}
	if c.History.BufferSize == 0 {
		c.History.BufferSize = DefaultBufferSize
	}
}

func applyDBDefaults(db *DBConfig) {
	if db.Port == 0 {
		db.Port = DefaultDBPort
	}
	if db.SSLMode == "" {
		db.SSLMode = DefaultDBSSLMode
	}
	if db.MaxConns == 0 {
		db.MaxConns = DefaultMaxConns
	}
	if db.MinConns == 0 {
		db.MinConns = DefaultMinConns
	}
}
