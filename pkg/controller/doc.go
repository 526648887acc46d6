// Package controller contains the HTTP middlewares and helper handlers of the
// status server.
//
//   - WithLogger attaches a request-scoped logger and request ID to the
//     context and writes an access log entry.
//   - WithRecover turns a handler panic into a 500 response.
//   - RegisterPprof mounts the net/http/pprof handlers.
//   - WriteJSON encodes a response body.
package controller
