// Package metrics exposes channel and pool activity as Prometheus metrics.
//
// Key metrics:
//   - Connect attempts, durations, and losses per slot
//   - Connection uptime distribution
//   - Selection latency and hit/miss rates
//   - Expected versus live pool size
package metrics
