package wsrpc

import (
	"encoding/json"
	"errors"
	"fmt"
	"time"
)

// Errors
var (
	ErrClosed = errors.New("wsrpc: connection closed")
	ErrStale  = errors.New("wsrpc: connection stale (no pong)")
)

// Config holds transport settings shared by every connection a Dialer
// produces.
type Config struct {
	AuthKey          string        // Optional bearer token sent on dial
	HandshakeTimeout time.Duration // WebSocket handshake deadline
	WriteTimeout     time.Duration // Per-write deadline
	PingInterval     time.Duration // Keepalive ping period
	PongTimeout      time.Duration // Staleness threshold since last pong
}

// DefaultConfig returns sensible defaults.
func DefaultConfig() Config {
	return Config{
		HandshakeTimeout: 10 * time.Second,
		WriteTimeout:     5 * time.Second,
		PingInterval:     30 * time.Second,
		PongTimeout:      90 * time.Second,
	}
}

// withDefaults fills zero fields so a partial Config is always usable.
func (cfg Config) withDefaults() Config {
	def := DefaultConfig()
	if cfg.HandshakeTimeout <= 0 {
		cfg.HandshakeTimeout = def.HandshakeTimeout
	}
	if cfg.WriteTimeout <= 0 {
		cfg.WriteTimeout = def.WriteTimeout
	}
	if cfg.PingInterval <= 0 {
		cfg.PingInterval = def.PingInterval
	}
	if cfg.PongTimeout <= 0 {
		cfg.PongTimeout = def.PongTimeout
	}
	return cfg
}

// request is a single call frame sent to the server.
type request struct {
	ID     uint64 `json:"id"`
	Method string `json:"method"`
	Params any    `json:"params,omitempty"`
}

// response is the server's reply frame.
type response struct {
	ID     uint64          `json:"id"`
	Result json.RawMessage `json:"result,omitempty"`
	Error  *wireError      `json:"error,omitempty"`
}

type wireError struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

// RemoteError is a failure the server reported for one call. The connection
// itself is still healthy.
type RemoteError struct {
	Code    string
	Message string
}

func (e *RemoteError) Error() string {
	return fmt.Sprintf("remote error %s: %s", e.Code, e.Message)
}
