// Package wsrpc implements the default connector: a WebSocket transport
// carrying JSON request/response frames.
//
// A wsrpc connection:
//   - Correlates concurrent calls by request ID
//   - Detects loss through read errors and ping staleness
//   - Reports loss to its owning channel exactly once via Done
package wsrpc
