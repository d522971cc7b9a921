package prober

import (
	"context"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"golang.org/x/sync/semaphore"
)

// probeMethod is the call issued on each live connection. Servers answer
// it like any other call; the reply body is ignored.
const probeMethod = "ping"

// Caller issues a single RPC call.
type Caller interface {
	Call(ctx context.Context, method string, params, result any) error
}

// Source provides the live connections to probe.
type Source interface {
	Members() []Caller
}

// SourceFunc is a function adapter for Source.
type SourceFunc func() []Caller

func (f SourceFunc) Members() []Caller { return f() }

// Config holds prober configuration.
type Config struct {
	Interval    time.Duration // Probe cycle interval (default: 15s)
	Concurrency int           // Max concurrent probes (default: 4)
	CallTimeout time.Duration // Per-probe timeout (default: 5s)
}

// DefaultConfig returns sensible defaults.
func DefaultConfig() Config {
	return Config{
		Interval:    15 * time.Second,
		Concurrency: 4,
		CallTimeout: 5 * time.Second,
	}
}

// Stats counts prober activity since start.
type Stats struct {
	Cycles   int64
	Probes   int64
	Failures int64
}

// Prober periodically verifies live connections with a ping call.
type Prober struct {
	cfg    Config
	source Source
	logger *slog.Logger

	cycles   atomic.Int64
	probes   atomic.Int64
	failures atomic.Int64

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup
}

// New creates a new Prober. Zero config fields fall back to
// DefaultConfig values.
func New(cfg Config, source Source, logger *slog.Logger) *Prober {
	if logger == nil {
		logger = slog.Default()
	}
	def := DefaultConfig()
	if cfg.Interval <= 0 {
		cfg.Interval = def.Interval
	}
	if cfg.Concurrency < 1 {
		cfg.Concurrency = def.Concurrency
	}
	if cfg.CallTimeout <= 0 {
		cfg.CallTimeout = def.CallTimeout
	}
	return &Prober{
		cfg:    cfg,
		source: source,
		logger: logger,
	}
}

// Start begins the probe loop.
func (p *Prober) Start(ctx context.Context) error {
	p.ctx, p.cancel = context.WithCancel(ctx)

	p.wg.Add(1)
	go p.run()

	p.logger.Info("prober started",
		"interval", p.cfg.Interval,
		"concurrency", p.cfg.Concurrency,
	)

	return nil
}

// Stop gracefully shuts down the prober.
func (p *Prober) Stop(ctx context.Context) error {
	if p.cancel != nil {
		p.cancel()
	}

	done := make(chan struct{})
	go func() {
		p.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		p.logger.Info("prober stopped")
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Stats returns counters accumulated since start.
func (p *Prober) Stats() Stats {
	return Stats{
		Cycles:   p.cycles.Load(),
		Probes:   p.probes.Load(),
		Failures: p.failures.Load(),
	}
}

// run is the main probe loop.
func (p *Prober) run() {
	defer p.wg.Done()

	ticker := time.NewTicker(p.cfg.Interval)
	defer ticker.Stop()

	// Probe immediately on start.
	p.probeAll()

	for {
		select {
		case <-p.ctx.Done():
			return
		case <-ticker.C:
			p.probeAll()
		}
	}
}

// probeAll pings every live connection concurrently.
func (p *Prober) probeAll() {
	start := time.Now()

	members := p.source.Members()
	if len(members) == 0 {
		p.logger.Debug("no live connections to probe")
		return
	}

	// Semaphore for bounded concurrency.
	sem := semaphore.NewWeighted(int64(p.cfg.Concurrency))
	var wg sync.WaitGroup
	var failed atomic.Int64

	for i, member := range members {
		wg.Add(1)
		go func(i int, c Caller) {
			defer wg.Done()

			if err := sem.Acquire(p.ctx, 1); err != nil {
				return
			}
			defer sem.Release(1)

			p.probes.Add(1)
			if err := p.probe(c); err != nil {
				p.logger.Warn("probe failed",
					"member", i,
					"err", err,
				)
				failed.Add(1)
			}
		}(i, member)
	}

	wg.Wait()

	p.cycles.Add(1)
	p.failures.Add(failed.Load())

	p.logger.Info("probe cycle complete",
		"members", len(members),
		"failures", failed.Load(),
		"duration", time.Since(start),
	)
}

// probe issues a single ping call with a timeout.
func (p *Prober) probe(c Caller) error {
	ctx, cancel := context.WithTimeout(p.ctx, p.cfg.CallTimeout)
	defer cancel()

	return c.Call(ctx, probeMethod, nil, nil)
}
