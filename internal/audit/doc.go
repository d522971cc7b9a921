// Package audit persists channel lifecycle transitions to PostgreSQL.
//
// The writer is an event sink: connect, connect-failure, and disconnect
// events are buffered in memory and batch-inserted into the
// channel_events table. Selection events are not audited; they are
// covered by metrics.
//
// Ingestion never blocks the caller. When the buffer is full, events
// are dropped and counted.
//
// Expected table:
//
//	CREATE TABLE channel_events (
//	    occurred_at BIGINT NOT NULL,  -- microseconds since epoch
//	    instance    TEXT   NOT NULL,
//	    slot        INT    NOT NULL,
//	    kind        TEXT   NOT NULL,  -- connect | connect_failure | disconnect
//	    conn_id     TEXT   NOT NULL,  -- empty when the event has no connection
//	    duration_us BIGINT NOT NULL,  -- dial duration or uptime
//	    detail      TEXT   NOT NULL   -- error text, empty on success
//	);
package audit
