// Package pool spreads RPC calls across a fixed-size set of self-healing
// channels. The pool tracks which slots currently hold a live connection and
// serves GetChannel by round-robin over that live set only. Selection is
// lock-free: membership is published as a copy-on-write snapshot and the
// rotation cursor is a shared atomic counter.
package pool

import (
	"context"
	"log/slog"
	"sort"
	"sync"
	"sync/atomic"
	"time"

	"github.com/rickgao/rpcpool/internal/backoff"
	"github.com/rickgao/rpcpool/internal/channel"
	"github.com/rickgao/rpcpool/internal/event"
)

// Config holds pool configuration.
type Config struct {
	Addr           string        // Upstream address shared by all slots
	Size           int           // Number of slots; zero yields an always-empty pool
	StatusInterval time.Duration // Health snapshot period; zero disables reporting
}

// DefaultConfig returns sensible defaults.
func DefaultConfig() Config {
	return Config{
		Size:           3,
		StatusInterval: 30 * time.Second,
	}
}

// member is one live slot in the published snapshot. Entries carry the conn
// handle so selection never reaches into a slot that may be mid-transition.
type member[C channel.Conn] struct {
	index int
	conn  C
}

// Stats is a point-in-time pool health snapshot.
type Stats struct {
	Expected int // configured size
	Live     int // slots currently connected
}

// Pool owns N channels and selects among the live ones.
type Pool[C channel.Conn] struct {
	cfg      Config
	strategy backoff.Strategy
	sink     event.Sink
	logger   *slog.Logger

	channels []*channel.Channel[C]

	mu      sync.Mutex // serializes membership writes
	live    map[int]C
	members atomic.Pointer[[]member[C]]
	cursor  atomic.Uint64

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup
}

// Option configures a Pool.
type Option[C channel.Conn] func(*Pool[C])

// WithStrategy replaces the default exponential backoff for every slot.
func WithStrategy[C channel.Conn](s backoff.Strategy) Option[C] {
	return func(p *Pool[C]) { p.strategy = s }
}

// WithSink registers an observability sink, shared by the pool and its slots.
func WithSink[C channel.Conn](s event.Sink) Option[C] {
	return func(p *Pool[C]) { p.sink = s }
}

// WithLogger sets the logger.
func WithLogger[C channel.Conn](logger *slog.Logger) Option[C] {
	return func(p *Pool[C]) { p.logger = logger }
}

// New creates a pool of cfg.Size channels sharing one address and connector.
// Nothing dials until Start.
func New[C channel.Conn](cfg Config, connector channel.Connector[C], opts ...Option[C]) *Pool[C] {
	if cfg.Size < 0 {
		cfg.Size = 0
	}

	p := &Pool[C]{
		cfg:      cfg,
		strategy: backoff.DefaultExponential(),
		sink:     event.Nop{},
		live:     make(map[int]C),
	}
	for _, opt := range opts {
		opt(p)
	}
	if p.logger == nil {
		p.logger = slog.Default()
	}
	p.members.Store(&[]member[C]{})

	p.channels = make([]*channel.Channel[C], cfg.Size)
	for i := range p.channels {
		p.channels[i] = channel.New(cfg.Addr, connector,
			channel.WithIndex[C](i),
			channel.WithWatcher[C](p),
			channel.WithStrategy[C](p.strategy),
			channel.WithSink[C](p.sink),
			channel.WithLogger[C](p.logger),
		)
	}
	return p
}

// Start launches every slot and the status reporter.
func (p *Pool[C]) Start(ctx context.Context) error {
	p.ctx, p.cancel = context.WithCancel(ctx)

	for _, ch := range p.channels {
		if err := ch.Start(p.ctx); err != nil {
			return err
		}
	}

	if p.cfg.StatusInterval > 0 {
		p.wg.Add(1)
		go p.statusLoop()
	}

	p.logger.Info("pool started", "size", p.cfg.Size, "addr", p.cfg.Addr)
	return nil
}

// Stop tears down every slot and waits for the reporter to exit.
func (p *Pool[C]) Stop(ctx context.Context) error {
	if p.cancel == nil {
		return nil
	}
	p.cancel()

	for _, ch := range p.channels {
		if err := ch.Stop(ctx); err != nil {
			return err
		}
	}

	done := make(chan struct{})
	go func() {
		p.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		p.logger.Info("pool stopped")
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// GetChannel returns the next live connection in round-robin order, or
// ErrNotConnected when no slot is live. Fairness is exact while membership
// is stable; a membership change mid-rotation may skip or repeat one member
// at most once.
func (p *Pool[C]) GetChannel() (C, error) {
	start := time.Now()

	members := *p.members.Load()
	if len(members) == 0 {
		var zero C
		p.sink.PoolGet(event.PoolGetEvent{Latency: time.Since(start), Slot: -1})
		return zero, channel.ErrNotConnected
	}

	idx := p.cursor.Add(1) - 1
	m := members[idx%uint64(len(members))]
	p.sink.PoolGet(event.PoolGetEvent{
		Latency:   time.Since(start),
		Live:      len(members),
		Slot:      m.index,
		Connected: true,
	})
	return m.conn, nil
}

// GetAllMembers returns the connections of all live slots in ascending slot
// order.
func (p *Pool[C]) GetAllMembers() []C {
	members := *p.members.Load()
	conns := make([]C, len(members))
	for i, m := range members {
		conns[i] = m.conn
	}
	return conns
}

// Stats reports configured versus live slot counts.
func (p *Pool[C]) Stats() Stats {
	return Stats{Expected: len(p.channels), Live: len(*p.members.Load())}
}

// States reports each slot's lifecycle state in slot order.
func (p *Pool[C]) States() []channel.State {
	states := make([]channel.State, len(p.channels))
	for i, ch := range p.channels {
		states[i] = ch.State()
	}
	return states
}

// RetryNow nudges every slot that is waiting out a backoff delay to dial
// immediately. Connected slots ignore the nudge.
func (p *Pool[C]) RetryNow() {
	for _, ch := range p.channels {
		ch.RetryNow()
	}
}

// -----------------------------------------------------------------------------
// Membership (channel.Watcher)
// -----------------------------------------------------------------------------

// ChannelUp registers a slot's fresh connection. Called on the slot's own
// goroutine, synchronously with its transition to Connected.
func (p *Pool[C]) ChannelUp(index int, conn C) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.live[index] = conn
	p.publishLocked()
}

// ChannelDown removes a slot whose connection was lost or stopped.
func (p *Pool[C]) ChannelDown(index int) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if _, ok := p.live[index]; !ok {
		return
	}
	delete(p.live, index)
	p.publishLocked()
}

// publishLocked rebuilds the member snapshot from the live set, sorted by
// slot index so rotation order is stable and deterministic.
func (p *Pool[C]) publishLocked() {
	members := make([]member[C], 0, len(p.live))
	for index, conn := range p.live {
		members = append(members, member[C]{index: index, conn: conn})
	}
	sort.Slice(members, func(i, j int) bool { return members[i].index < members[j].index })
	p.members.Store(&members)
}

// -----------------------------------------------------------------------------
// Status reporting
// -----------------------------------------------------------------------------

func (p *Pool[C]) statusLoop() {
	defer p.wg.Done()

	ticker := time.NewTicker(p.cfg.StatusInterval)
	defer ticker.Stop()

	for {
		select {
		case <-p.ctx.Done():
			return
		case <-ticker.C:
			stats := p.Stats()
			if stats.Live < stats.Expected {
				p.logger.Warn("pool degraded", "expected", stats.Expected, "live", stats.Live)
			}
			p.sink.PoolStatus(event.StatusEvent{Expected: stats.Expected, Current: stats.Live})
		}
	}
}
