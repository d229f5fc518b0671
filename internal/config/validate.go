package config

import (
	"errors"
	"fmt"
)

// Validate checks that all required fields are set and values are valid.
func (c *Config) Validate() error {
	if c.Instance.ID == "" {
		return errors.New("instance.id is required")
	}

	switch c.Log.Level {
	case "debug", "info", "warn", "error":
	default:
		return fmt.Errorf("log.level must be debug, info, warn, or error, got %q", c.Log.Level)
	}

	if c.Upstream.BaseURL == "" {
		return errors.New("upstream.base_url is required")
	}

	if c.Polling.TickCadence <= 0 {
		return errors.New("polling.tick_cadence must be positive")
	}
	if c.Polling.OrderBookCadence <= 0 {
		return errors.New("polling.orderbook_cadence must be positive")
	}
	if c.Polling.PositionCadence <= 0 {
		return errors.New("polling.position_cadence must be positive")
	}
	if c.Polling.FailureBackoff < 1 {
		return errors.New("polling.failure_backoff must be >= 1")
	}

	if c.Server.ListenerQueue < 1 {
		return errors.New("server.listener_queue must be >= 1")
	}

	if c.History.Enabled {
		if err := c.History.Postgres.validate("history.postgres"); err != nil {
			return err
		}
		if c.History.BatchSize < 1 {
			return errors.New("history.batch_size must be >= 1")
		}
		if c.History.BufferSize < 1 {
			return errors.New("history.buffer_size must be >= 1")
		}
	}

	seen := make(map[string]bool, len(c.Tenants))
	for i, t := range c.Tenants {
		if t.ID == "" {
			return fmt.Errorf("tenants[%d].id is required", i)
		}
		if seen[t.ID] {
			return fmt.Errorf("tenants[%d].id %q is duplicated", i, t.ID)
		}
		seen[t.ID] = true
		switch t.Status {
		case "", "active", "suspended":
		default:
			return fmt.Errorf("tenants[%d].status must be active or suspended, got %q", i, t.Status)
		}
	}

	return nil
}

func (db *DBConfig) validate(prefix string) error {
	if db.Host == "" {
		return fmt.Errorf("%s.host is required", prefix)
	}
	if db.Name == "" {
		return fmt.Errorf("%s.name is required", prefix)
	}
	if db.User == "" {
		return fmt.Errorf("%s.user is required", prefix)
	}
	if db.Password == "" {
		return fmt.Errorf("%s.password is required", prefix)
	}
	if db.MaxConns < 1 {
		return fmt.Errorf("%s.max_conns must be >= 1", prefix)
	}
	if db.MinConns < 0 {
		return fmt.Errorf("%s.min_conns must be >= 0", prefix)
	}
	if db.MinConns > db.MaxConns {
		return fmt.Errorf("%s.min_conns (%d) cannot exceed max_conns (%d)", prefix, db.MinConns, db.MaxConns)
	}
	return nil
}
