// Package prober implements active end-to-end health probing.
//
// The prober:
//   - Issues a lightweight ping call on every live connection each cycle
//   - Runs probes concurrently with a bounded semaphore
//   - Catches connections that look live but no longer answer calls
//
// Transport-level loss detection reacts faster; the prober exists for
// the failure modes it cannot see.
package prober
