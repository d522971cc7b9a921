// Package backoff provides retry delay strategies for reconnecting channels.
//
// A Strategy is pure: state is threaded through Next and Reset as an opaque
// value, so a strategy instance can be shared by many channels without
// synchronization.
package backoff

import (
	"math/rand/v2"
	"time"
)

// Default delay bounds for the exponential strategy.
const (
	DefaultMinDelay = 1 * time.Second
	DefaultMaxDelay = 60 * time.Second
)

// State is an opaque snapshot of a strategy's retry posture. Channels thread
// it through Next and Reset without inspecting it.
type State any

// Strategy produces retry delays from failure history.
type Strategy interface {
	// New returns the initial state. Called once per channel at creation.
	New() State

	// Next returns the delay to wait before the next connect attempt and
	// the successor state. Called after every failed attempt.
	Next(s State) (time.Duration, State)

	// Reset returns the strategy to its initial posture so a future failure
	// starts from the minimum delay again. Called after every successful
	// connect.
	Reset(s State) State
}

// growthFactor bounds how much a single step may stretch the previous delay.
const growthFactor = 3

// Exponential is a capped exponential strategy with jitter.
//
// The first delay after New or Reset is drawn uniformly from [Min, 3*Min].
// Each later delay is drawn from [prev, 3*prev], so the sequence never
// decreases while it grows. Once delays reach Max/3 they are drawn uniformly
// from [Max/3, Max], which keeps a fleet of channels from retrying in
// lockstep against a down upstream. Every delay stays within [Min, Max].
type Exponential struct {
	Min time.Duration // lower bound for every delay; must be > 0
	Max time.Duration // upper bound for every delay; must be >= Min
}

// DefaultExponential returns the exponential strategy with default bounds.
func DefaultExponential() Exponential {
	return Exponential{Min: DefaultMinDelay, Max: DefaultMaxDelay}
}

type expState struct {
	cur time.Duration // last delay handed out; 0 means fresh
}

// New returns a fresh state.
func (e Exponential) New() State {
	return expState{}
}

// Next draws the next delay and threads the state forward.
func (e Exponential) Next(s State) (time.Duration, State) {
	st, _ := s.(expState) // a foreign or nil state is treated as fresh
	min, max := e.bounds()

	var lo, hi time.Duration
	switch {
	case st.cur <= 0:
		lo, hi = min, growthFactor*min
	case st.cur >= max/growthFactor:
		lo, hi = max/growthFactor, max
	default:
		lo, hi = st.cur, growthFactor*st.cur
	}
	if hi > max {
		hi = max
	}
	if lo > hi {
		lo = hi
	}

	d := lo + time.Duration(rand.Int64N(int64(hi-lo)+1))
	if d < min {
		d = min
	}
	return d, expState{cur: d}
}

// Reset discards accumulated growth.
func (e Exponential) Reset(State) State {
	return expState{}
}

// bounds sanitizes the configured bounds so the invariant holds even for a
// zero-value Exponential.
func (e Exponential) bounds() (min, max time.Duration) {
	min, max = e.Min, e.Max
	if min <= 0 {
		min = DefaultMinDelay
	}
	if max < min {
		max = min
	}
	return min, max
}

// Constant waits the same delay before every attempt. Useful in tests and
// for channels that should hammer a local upstream.
type Constant time.Duration

// New returns a fresh state.
func (c Constant) New() State { return nil }

// Next returns the fixed delay.
func (c Constant) Next(s State) (time.Duration, State) {
	d := time.Duration(c)
	if d < 0 {
		d = 0
	}
	return d, s
}

// Reset is a no-op for a constant strategy.
func (c Constant) Reset(s State) State { return s }
