package audit

import "time"

// Event kinds stored in the channel_events table.
const (
	KindConnect        = "connect"
	KindConnectFailure = "connect_failure"
	KindDisconnect     = "disconnect"
)

// Config controls audit writer batching.
type Config struct {
	// Instance identifies this process in the audit trail.
	Instance string

	// BatchSize is the number of rows to accumulate before flushing.
	BatchSize int

	// FlushInterval is the maximum time between flushes.
	FlushInterval time.Duration

	// BufferSize is the capacity of the ingestion buffer. Events
	// arriving while it is full are dropped.
	BufferSize int
}

// DefaultConfig returns sensible defaults.
func DefaultConfig() Config {
	return Config{
		BatchSize:     500,
		FlushInterval: time.Second,
		BufferSize:    10000,
	}
}

// eventRow represents a row to be inserted into the channel_events table.
type eventRow struct {
	OccurredAt int64 // Microseconds
	Instance   string
	Slot       int
	Kind       string
	ConnID     string // UUID, empty when the event has no connection
	DurationUs int64
	Detail     string
}

// Metrics tracks writer activity.
type Metrics struct {
	Inserts int64
	Errors  int64
	Flushes int64
	Dropped int64
}
