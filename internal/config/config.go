// Package config loads and validates YAML configuration for the pool
// daemon and tools.
package config

// Config is the full configuration for the prober daemon.
type Config struct {
	Instance InstanceConfig `yaml:"instance"`
	Upstream UpstreamConfig `yaml:"upstream"`
	Pool     PoolConfig     `yaml:"pool"`
	Backoff  BackoffConfig  `yaml:"backoff"`
	Prober   ProberConfig   `yaml:"prober"`
	Metrics  MetricsConfig  `yaml:"metrics"`
	Audit    AuditConfig    `yaml:"audit"`
}

// InstanceConfig identifies this process in logs and audit rows.
type InstanceConfig struct {
	ID string `yaml:"id"`
}

// UpstreamConfig describes the RPC endpoint every slot dials.
type UpstreamConfig struct {
	Addr             string   `yaml:"addr"`
	AuthKey          string   `yaml:"auth_key"`
	HandshakeTimeout Duration `yaml:"handshake_timeout"`
	WriteTimeout     Duration `yaml:"write_timeout"`
	PingInterval     Duration `yaml:"ping_interval"`
	PongTimeout      Duration `yaml:"pong_timeout"`
}

// PoolConfig sizes the pool. Size zero is valid and yields an always-empty
// pool; StatusInterval zero disables periodic status reporting.
type PoolConfig struct {
	Size           int      `yaml:"size"`
	StatusInterval Duration `yaml:"status_interval"`
}

// BackoffConfig bounds reconnect delays.
type BackoffConfig struct {
	MinDelay Duration `yaml:"min_delay"`
	MaxDelay Duration `yaml:"max_delay"`
}

// ProberConfig drives the periodic probe loop.
type ProberConfig struct {
	Enabled     bool     `yaml:"enabled"`
	Interval    Duration `yaml:"interval"`
	Concurrency int      `yaml:"concurrency"`
	CallTimeout Duration `yaml:"call_timeout"`
}

// MetricsConfig configures the Prometheus scrape endpoint.
type MetricsConfig struct {
	Port int    `yaml:"port"`
	Path string `yaml:"path"`
}

// AuditConfig configures the Postgres lifecycle audit trail.
type AuditConfig struct {
	Enabled       bool     `yaml:"enabled"`
	BatchSize     int      `yaml:"batch_size"`
	FlushInterval Duration `yaml:"flush_interval"`
	BufferSize    int      `yaml:"buffer_size"`
	Postgres      DBConfig `yaml:"postgres"`
}

// DBConfig holds Postgres connection settings.
type DBConfig struct {
	Host     string `yaml:"host"`
	Port     int    `yaml:"port"`
	Name     string `yaml:"name"`
	User     string `yaml:"user"`
	Password string `yaml:"password"`
	SSLMode  string `yaml:"sslmode"`
	MaxConns int    `yaml:"max_conns"`
	MinConns int    `yaml:"min_conns"`
}
