package prober

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"
	"time"
)

// fakeCaller counts calls and returns a fixed error.
type fakeCaller struct {
	calls atomic.Int32
	delay time.Duration
	err   error
}

func (c *fakeCaller) Call(ctx context.Context, method string, params, result any) error {
	c.calls.Add(1)
	if c.delay > 0 {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(c.delay):
		}
	}
	return c.err
}

func fixedSource(callers ...*fakeCaller) Source {
	return SourceFunc(func() []Caller {
		out := make([]Caller, len(callers))
		for i, c := range callers {
			out[i] = c
		}
		return out
	})
}

func TestProber_ProbeAll(t *testing.T) {
	callers := []*fakeCaller{{}, {}, {}}

	cfg := Config{
		Interval:    time.Hour, // Long interval, we'll trigger manually.
		Concurrency: 10,
		CallTimeout: 5 * time.Second,
	}

	p := New(cfg, fixedSource(callers...), nil)

	// Call probeAll directly.
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	p.ctx = ctx

	p.probeAll()

	for i, c := range callers {
		if got := c.calls.Load(); got != 1 {
			t.Errorf("caller %d calls = %d, want 1", i, got)
		}
	}

	stats := p.Stats()
	if stats.Cycles != 1 {
		t.Errorf("Cycles = %d, want 1", stats.Cycles)
	}
	if stats.Probes != 3 {
		t.Errorf("Probes = %d, want 3", stats.Probes)
	}
	if stats.Failures != 0 {
		t.Errorf("Failures = %d, want 0", stats.Failures)
	}
}

func TestProber_CountsFailures(t *testing.T) {
	healthy := &fakeCaller{}
	broken := &fakeCaller{err: errors.New("connection reset")}

	cfg := Config{
		Interval:    time.Hour,
		Concurrency: 10,
		CallTimeout: 5 * time.Second,
	}

	p := New(cfg, fixedSource(healthy, broken), nil)

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	p.ctx = ctx

	p.probeAll()

	stats := p.Stats()
	if stats.Probes != 2 {
		t.Errorf("Probes = %d, want 2", stats.Probes)
	}
	if stats.Failures != 1 {
		t.Errorf("Failures = %d, want 1", stats.Failures)
	}
}

func TestProber_EmptySource(t *testing.T) {
	cfg := Config{
		Interval:    time.Hour,
		Concurrency: 10,
		CallTimeout: 5 * time.Second,
	}

	p := New(cfg, fixedSource(), nil)

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	p.ctx = ctx

	p.probeAll()

	stats := p.Stats()
	if stats.Cycles != 0 || stats.Probes != 0 || stats.Failures != 0 {
		t.Errorf("Stats = %+v, want all zero", stats)
	}
}

func TestProber_StartStop(t *testing.T) {
	caller := &fakeCaller{}

	cfg := Config{
		Interval:    100 * time.Millisecond,
		Concurrency: 10,
		CallTimeout: 5 * time.Second,
	}

	p := New(cfg, fixedSource(caller), nil)

	ctx := context.Background()
	if err := p.Start(ctx); err != nil {
		t.Fatalf("Start failed: %v", err)
	}

	// Wait for at least the immediate first cycle.
	time.Sleep(50 * time.Millisecond)

	stopCtx, cancel := context.WithTimeout(ctx, time.Second)
	defer cancel()

	if err := p.Stop(stopCtx); err != nil {
		t.Fatalf("Stop failed: %v", err)
	}

	if caller.calls.Load() == 0 {
		t.Error("caller was never probed")
	}
}

func TestProber_Concurrency(t *testing.T) {
	var inFlight atomic.Int32
	var maxInFlight atomic.Int32

	track := func(ctx context.Context, d time.Duration) {
		current := inFlight.Add(1)
		defer inFlight.Add(-1)

		// Track max concurrent probes.
		for {
			old := maxInFlight.Load()
			if current <= old || maxInFlight.CompareAndSwap(old, current) {
				break
			}
		}

		select {
		case <-ctx.Done():
		case <-time.After(d):
		}
	}

	// 20 slow callers, limit to 5 concurrent.
	var callers []Caller
	for i := 0; i < 20; i++ {
		callers = append(callers, callerFunc(func(ctx context.Context) error {
			track(ctx, 50*time.Millisecond)
			return nil
		}))
	}

	cfg := Config{
		Interval:    time.Hour,
		Concurrency: 5,
		CallTimeout: 5 * time.Second,
	}

	p := New(cfg, SourceFunc(func() []Caller { return callers }), nil)

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	p.ctx = ctx

	p.probeAll()

	if got := maxInFlight.Load(); got > 5 {
		t.Errorf("maxInFlight = %d, want <= 5", got)
	}
}

// callerFunc adapts a plain function to Caller for tests.
type callerFunc func(ctx context.Context) error

func (f callerFunc) Call(ctx context.Context, method string, params, result any) error {
	return f(ctx)
}

func TestNew_Defaults(t *testing.T) {
	p := New(Config{}, fixedSource(), nil)

	def := DefaultConfig()
	if p.cfg.Interval != def.Interval {
		t.Errorf("Interval = %v, want %v", p.cfg.Interval, def.Interval)
	}
	if p.cfg.Concurrency != def.Concurrency {
		t.Errorf("Concurrency = %d, want %d", p.cfg.Concurrency, def.Concurrency)
	}
	if p.cfg.CallTimeout != def.CallTimeout {
		t.Errorf("CallTimeout = %v, want %v", p.cfg.CallTimeout, def.CallTimeout)
	}
}
