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

	if c.Upstream.Addr == "" {
		return errors.New("upstream.addr is required")
	}

	if c.Pool.Size < 0 {
		return errors.New("pool.size must be >= 0")
	}

	if c.Backoff.MinDelay <= 0 {
		return errors.New("backoff.min_delay must be > 0")
	}
	if c.Backoff.MaxDelay < c.Backoff.MinDelay {
		return fmt.Errorf("backoff.max_delay (%s) cannot be less than min_delay (%s)",
			c.Backoff.MaxDelay, c.Backoff.MinDelay)
	}

	if c.Prober.Enabled {
		if c.Prober.Interval <= 0 {
			return errors.New("prober.interval must be > 0")
		}
		if c.Prober.Concurrency < 1 {
			return errors.New("prober.concurrency must be >= 1")
		}
		if c.Prober.CallTimeout <= 0 {
			return errors.New("prober.call_timeout must be > 0")
		}
	}

	if c.Metrics.Port < 1 || c.Metrics.Port > 65535 {
		return fmt.Errorf("metrics.port must be between 1 and 65535, got %d", c.Metrics.Port)
	}

	if c.Audit.Enabled {
		if err := c.Audit.Postgres.validate("audit.postgres"); err != nil {
			return err
		}
		if c.Audit.BatchSize < 1 {
			return errors.New("audit.batch_size must be >= 1")
		}
		if c.Audit.BufferSize < 1 {
			return errors.New("audit.buffer_size must be >= 1")
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
