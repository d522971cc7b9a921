package event

import (
	"time"

	"github.com/google/uuid"
)

// -----------------------------------------------------------------------------
// Lifecycle Events
// -----------------------------------------------------------------------------

// ConnectEvent is emitted when a channel establishes a connection.
type ConnectEvent struct {
	Slot     int           // Slot index within the pool (0 for standalone channels)
	ConnID   uuid.UUID     // Identity of this connection incarnation
	Duration time.Duration // How long the successful dial took
}

// ConnectFailureEvent is emitted when a connect attempt fails.
type ConnectFailureEvent struct {
	Slot     int           // Slot index within the pool
	Duration time.Duration // How long the failed dial took
	Err      error         // The dial error
}

// DisconnectEvent is emitted when a live connection is lost.
type DisconnectEvent struct {
	Slot   int           // Slot index within the pool
	ConnID uuid.UUID     // Identity of the connection that was lost
	Uptime time.Duration // How long the connection had been live
	Err    error         // Loss reason reported by the transport (may be nil)
}

// -----------------------------------------------------------------------------
// Selection Events
// -----------------------------------------------------------------------------

// GetEvent is emitted on every Channel.Get call.
type GetEvent struct {
	Slot      int           // Slot index within the pool
	Latency   time.Duration // Time spent answering the call
	Connected bool          // Whether a connection was handed out
}

// PoolGetEvent is emitted on every Pool.GetChannel call.
type PoolGetEvent struct {
	Latency   time.Duration // Time spent answering the call
	Live      int           // Live member count at snapshot time
	Slot      int           // Selected slot index (-1 on miss)
	Connected bool          // Whether a connection was handed out
}

// StatusEvent is a periodic pool health snapshot.
type StatusEvent struct {
	Expected int // Configured pool size
	Current  int // Live member count
}

// -----------------------------------------------------------------------------
// Sink
// -----------------------------------------------------------------------------

// Sink consumes observability events emitted by channels and pools.
//
// Events are fire-and-forget: implementations must not block and can never
// influence channel or pool control flow. Methods may be called concurrently
// from multiple goroutines.
type Sink interface {
	ConnectSucceeded(e ConnectEvent)
	ConnectFailed(e ConnectFailureEvent)
	Disconnected(e DisconnectEvent)
	ChannelGet(e GetEvent)
	PoolGet(e PoolGetEvent)
	PoolStatus(e StatusEvent)
}

// Nop is a Sink that discards all events.
type Nop struct{}

func (Nop) ConnectSucceeded(ConnectEvent)     {}
func (Nop) ConnectFailed(ConnectFailureEvent) {}
func (Nop) Disconnected(DisconnectEvent)      {}
func (Nop) ChannelGet(GetEvent)               {}
func (Nop) PoolGet(PoolGetEvent)              {}
func (Nop) PoolStatus(StatusEvent)            {}

// Multi fans events out to several sinks in order.
func Multi(sinks ...Sink) Sink {
	return multi(sinks)
}

type multi []Sink

func (m multi) ConnectSucceeded(e ConnectEvent) {
	for _, s := range m {
		s.ConnectSucceeded(e)
	}
}

func (m multi) ConnectFailed(e ConnectFailureEvent) {
	for _, s := range m {
		s.ConnectFailed(e)
	}
}

func (m multi) Disconnected(e DisconnectEvent) {
	for _, s := range m {
		s.Disconnected(e)
	}
}

func (m multi) ChannelGet(e GetEvent) {
	for _, s := range m {
		s.ChannelGet(e)
	}
}

func (m multi) PoolGet(e PoolGetEvent) {
	for _, s := range m {
		s.PoolGet(e)
	}
}

func (m multi) PoolStatus(e StatusEvent) {
	for _, s := range m {
		s.PoolStatus(e)
	}
}
