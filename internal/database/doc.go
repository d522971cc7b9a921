// Package database provides PostgreSQL connection pool construction.
//
// The daemon keeps one pool for the audit store, which holds the
// channel_events lifecycle trail written by the audit writer.
package database
