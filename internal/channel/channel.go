// Package channel keeps a single RPC connection alive. Each Channel owns one
// connection lifecycle: it dials through a Connector, watches the connection's
// loss signal, and redials with backoff until stopped. Callers read the
// current connection through Get without ever blocking on reconnection.
package channel

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"

	"github.com/rickgao/rpcpool/internal/backoff"
	"github.com/rickgao/rpcpool/internal/event"
)

// ErrNotConnected is returned by Get when no live connection is held. It is
// an expected condition, not a failure: the channel keeps retrying on its own
// and callers are expected to try again later.
var ErrNotConnected = errors.New("channel: not connected")

// -----------------------------------------------------------------------------
// Contracts
// -----------------------------------------------------------------------------

// Conn is the connection handle a Connector produces. Once established, a
// conn reports its own loss out of band: Done yields exactly one value (or
// closes) when the underlying transport detects the connection is gone.
type Conn interface {
	// Done signals asynchronous connection loss to the owning channel.
	Done() <-chan error

	// Close releases the connection. Called by the owning channel on loss
	// and on shutdown.
	Close() error
}

// Connector establishes connections to an address. Implementations own the
// transport details (dialing, TLS, protocol handshake); the channel only
// drives the lifecycle.
type Connector[C Conn] interface {
	Connect(ctx context.Context, addr string) (C, error)
}

// ConnectorFunc adapts a plain function to a Connector.
type ConnectorFunc[C Conn] func(ctx context.Context, addr string) (C, error)

// Connect calls f.
func (f ConnectorFunc[C]) Connect(ctx context.Context, addr string) (C, error) {
	return f(ctx, addr)
}

// Watcher observes a channel's membership transitions. ChannelUp is called
// after a successful connect with the new conn; ChannelDown is called when
// the connection is lost or the channel stops. Both run on the channel's own
// goroutine, so implementations must not block for long.
type Watcher[C Conn] interface {
	ChannelUp(index int, conn C)
	ChannelDown(index int)
}

// State is a channel's position in the connect lifecycle.
type State int32

const (
	Disconnected State = iota
	Connecting
	Connected
)

// String returns the lowercase state name.
func (s State) String() string {
	switch s {
	case Disconnected:
		return "disconnected"
	case Connecting:
		return "connecting"
	case Connected:
		return "connected"
	default:
		return "unknown"
	}
}

// -----------------------------------------------------------------------------
// Channel
// -----------------------------------------------------------------------------

// snapshot is one connection incarnation. Replaced wholesale on reconnect,
// never mutated in place.
type snapshot[C Conn] struct {
	conn  C
	id    uuid.UUID
	since time.Time
}

// Channel drives one connection's lifecycle on a dedicated goroutine. All
// state transitions are serialized on that goroutine; Get and RetryNow are
// safe to call concurrently from any goroutine.
type Channel[C Conn] struct {
	index     int
	addr      string
	connector Connector[C]
	strategy  backoff.Strategy
	watcher   Watcher[C]
	sink      event.Sink
	logger    *slog.Logger

	state    atomic.Int32
	current  atomic.Pointer[snapshot[C]]
	retryNow chan struct{}

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup
}

// Option configures a Channel.
type Option[C Conn] func(*Channel[C])

// WithIndex sets the channel's slot index within a pool. Standalone channels
// keep the default index 0.
func WithIndex[C Conn](index int) Option[C] {
	return func(ch *Channel[C]) { ch.index = index }
}

// WithStrategy replaces the default exponential backoff strategy.
func WithStrategy[C Conn](s backoff.Strategy) Option[C] {
	return func(ch *Channel[C]) { ch.strategy = s }
}

// WithWatcher registers a membership watcher.
func WithWatcher[C Conn](w Watcher[C]) Option[C] {
	return func(ch *Channel[C]) { ch.watcher = w }
}

// WithSink registers an observability sink.
func WithSink[C Conn](s event.Sink) Option[C] {
	return func(ch *Channel[C]) { ch.sink = s }
}

// WithLogger sets the logger.
func WithLogger[C Conn](logger *slog.Logger) Option[C] {
	return func(ch *Channel[C]) { ch.logger = logger }
}

// New creates a channel for addr. The channel does nothing until Start.
func New[C Conn](addr string, connector Connector[C], opts ...Option[C]) *Channel[C] {
	ch := &Channel[C]{
		addr:      addr,
		connector: connector,
		strategy:  backoff.DefaultExponential(),
		sink:      event.Nop{},
		retryNow:  make(chan struct{}, 1),
	}
	for _, opt := range opts {
		opt(ch)
	}
	if ch.logger == nil {
		ch.logger = slog.Default()
	}
	ch.logger = ch.logger.With("slot", ch.index)
	return ch
}

// Index returns the channel's slot index.
func (ch *Channel[C]) Index() int { return ch.index }

// State returns the current lifecycle state.
func (ch *Channel[C]) State() State { return State(ch.state.Load()) }

// Get returns the current connection, or ErrNotConnected when the channel
// holds none. It never blocks waiting for a reconnect and is safe to call
// during a transition.
func (ch *Channel[C]) Get() (C, error) {
	start := time.Now()
	snap := ch.current.Load()
	if snap == nil {
		var zero C
		ch.sink.ChannelGet(event.GetEvent{Slot: ch.index, Latency: time.Since(start)})
		return zero, ErrNotConnected
	}
	ch.sink.ChannelGet(event.GetEvent{Slot: ch.index, Latency: time.Since(start), Connected: true})
	return snap.conn, nil
}

// RetryNow asks the channel to skip the remainder of a backoff wait and dial
// immediately. While connected it is a no-op: a live connection is never
// redialed. Signals coalesce, so callers may fire it freely.
func (ch *Channel[C]) RetryNow() {
	select {
	case ch.retryNow <- struct{}{}:
	default:
	}
}

// Start launches the channel's goroutine and begins the first connect
// attempt. Call it once.
func (ch *Channel[C]) Start(ctx context.Context) error {
	ch.ctx, ch.cancel = context.WithCancel(ctx)

	ch.wg.Add(1)
	go ch.run()

	return nil
}

// Stop tears the channel down: it cancels any pending retry, closes a held
// connection, and waits for the goroutine to exit or ctx to expire.
func (ch *Channel[C]) Stop(ctx context.Context) error {
	if ch.cancel == nil {
		return nil
	}
	ch.cancel()

	done := make(chan struct{})
	go func() {
		ch.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// -----------------------------------------------------------------------------
// Actor loop
// -----------------------------------------------------------------------------

// run processes lifecycle events one at a time: connect outcomes, loss
// notifications, retry timers, and retry nudges, until the context ends.
func (ch *Channel[C]) run() {
	defer ch.wg.Done()

	st := ch.strategy.New()
	for ch.ctx.Err() == nil {
		snap := ch.dial()
		if snap == nil {
			if ch.ctx.Err() != nil {
				return
			}
			var delay time.Duration
			delay, st = ch.strategy.Next(st)
			if !ch.waitRetry(delay) {
				return
			}
			continue
		}

		st = ch.strategy.Reset(st)
		if !ch.serve(snap) {
			return
		}
		// Connection lost; dial again right away. Backoff only applies to
		// consecutive failed attempts.
	}
}

// dial runs a single connect attempt and publishes the result. It returns
// nil when the attempt failed or the channel is shutting down.
func (ch *Channel[C]) dial() *snapshot[C] {
	ch.state.Store(int32(Connecting))

	start := time.Now()
	conn, err := ch.connector.Connect(ch.ctx, ch.addr)
	elapsed := time.Since(start)
	if err != nil {
		ch.state.Store(int32(Disconnected))
		if ch.ctx.Err() != nil {
			return nil
		}
		ch.logger.Warn("connect failed", "err", err, "elapsed", elapsed)
		ch.sink.ConnectFailed(event.ConnectFailureEvent{Slot: ch.index, Duration: elapsed, Err: err})
		return nil
	}

	snap := &snapshot[C]{conn: conn, id: uuid.New(), since: time.Now()}
	ch.current.Store(snap)
	ch.state.Store(int32(Connected))
	if ch.watcher != nil {
		ch.watcher.ChannelUp(ch.index, conn)
	}
	ch.logger.Info("connected", "conn_id", snap.id, "elapsed", elapsed)
	ch.sink.ConnectSucceeded(event.ConnectEvent{Slot: ch.index, ConnID: snap.id, Duration: elapsed})
	return snap
}

// serve holds the channel in Connected until the conn reports loss. It
// returns false when the channel is shutting down. Loss notifications from a
// replaced conn can never arrive here: only the current conn's Done channel
// is selected.
func (ch *Channel[C]) serve(snap *snapshot[C]) bool {
	for {
		select {
		case <-ch.ctx.Done():
			ch.teardown(snap)
			return false
		case err := <-snap.conn.Done():
			ch.down(snap, err)
			return true
		case <-ch.retryNow:
			// Already connected. A live connection is never redialed.
			ch.logger.Debug("retry requested while connected, ignoring")
		}
	}
}

// down handles a loss notification: deregister, clear the read snapshot,
// release the conn, then let run redial.
func (ch *Channel[C]) down(snap *snapshot[C], err error) {
	if ch.watcher != nil {
		ch.watcher.ChannelDown(ch.index)
	}
	ch.current.Store(nil)
	ch.state.Store(int32(Disconnected))
	_ = snap.conn.Close()

	uptime := time.Since(snap.since)
	ch.logger.Warn("connection lost", "conn_id", snap.id, "uptime", uptime, "err", err)
	ch.sink.Disconnected(event.DisconnectEvent{Slot: ch.index, ConnID: snap.id, Uptime: uptime, Err: err})
}

// teardown releases the held connection on shutdown.
func (ch *Channel[C]) teardown(snap *snapshot[C]) {
	if ch.watcher != nil {
		ch.watcher.ChannelDown(ch.index)
	}
	ch.current.Store(nil)
	ch.state.Store(int32(Disconnected))
	_ = snap.conn.Close()
	ch.logger.Info("channel stopped", "conn_id", snap.id)
}

// waitRetry blocks until the backoff delay elapses, a RetryNow nudge
// collapses it, or the channel shuts down. It returns false on shutdown.
// The timer here is the channel's only retry timer: a second one is never
// armed while this one is pending.
func (ch *Channel[C]) waitRetry(delay time.Duration) bool {
	ch.logger.Debug("retry scheduled", "delay", delay)

	timer := time.NewTimer(delay)
	defer timer.Stop()

	select {
	case <-ch.ctx.Done():
		return false
	case <-timer.C:
		return true
	case <-ch.retryNow:
		ch.logger.Debug("retry requested, skipping backoff wait")
		return true
	}
}
