package config

import "time"

// Default values for optional configuration fields.
const (
	DefaultHandshakeTimeout = 10 * time.Second
	DefaultWriteTimeout     = 5 * time.Second
	DefaultPingInterval     = 30 * time.Second
	DefaultPongTimeout      = 90 * time.Second
	DefaultMinDelay         = 1 * time.Second
	DefaultMaxDelay         = 60 * time.Second
	DefaultProbeInterval    = 15 * time.Second
	DefaultProbeConcurrency = 4
	DefaultCallTimeout      = 5 * time.Second
	DefaultDBPort           = 5432
	DefaultDBSSLMode        = "prefer"
	DefaultMaxConns         = 10
	DefaultMinConns         = 2
	DefaultBatchSize        = 500
	DefaultFlushInterval    = 1 * time.Second
	DefaultBufferSize       = 10000
	DefaultMetricsPort      = 9090
	DefaultMetricsPath      = "/metrics"
)

// applyDefaults fills unset optional fields. Pool.Size and
// Pool.StatusInterval are left alone: zero is a meaningful value for both
// (empty pool, reporting disabled).
func (c *Config) applyDefaults() {
	// Upstream defaults
	if c.Upstream.HandshakeTimeout == 0 {
		c.Upstream.HandshakeTimeout = Duration(DefaultHandshakeTimeout)
	}
	if c.Upstream.WriteTimeout == 0 {
		c.Upstream.WriteTimeout = Duration(DefaultWriteTimeout)
	}
	if c.Upstream.PingInterval == 0 {
		c.Upstream.PingInterval = Duration(DefaultPingInterval)
	}
	if c.Upstream.PongTimeout == 0 {
		c.Upstream.PongTimeout = Duration(DefaultPongTimeout)
	}

	// Backoff defaults
	if c.Backoff.MinDelay == 0 {
		c.Backoff.MinDelay = Duration(DefaultMinDelay)
	}
	if c.Backoff.MaxDelay == 0 {
		c.Backoff.MaxDelay = Duration(DefaultMaxDelay)
	}

	// Prober defaults
	if c.Prober.Interval == 0 {
		c.Prober.Interval = Duration(DefaultProbeInterval)
	}
	if c.Prober.Concurrency == 0 {
		c.Prober.Concurrency = DefaultProbeConcurrency
	}
	if c.Prober.CallTimeout == 0 {
		c.Prober.CallTimeout = Duration(DefaultCallTimeout)
	}

	// Audit defaults
	if c.Audit.BatchSize == 0 {
		c.Audit.BatchSize = DefaultBatchSize
	}
	if c.Audit.FlushInterval == 0 {
		c.Audit.FlushInterval = Duration(DefaultFlushInterval)
	}
	if c.Audit.BufferSize == 0 {
		c.Audit.BufferSize = DefaultBufferSize
	}
	applyDBDefaults(&c.Audit.Postgres)

	// Metrics defaults
	if c.Metrics.Port == 0 {
		c.Metrics.Port = DefaultMetricsPort
	}
	if c.Metrics.Path == "" {
		c.Metrics.Path = DefaultMetricsPath
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
