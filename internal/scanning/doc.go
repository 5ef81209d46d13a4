// Package scanning provides the per-target path enumeration engine for Pathorama.
//
// A Scanner owns one target origin and a read-only set of dictionary paths.
// It runs a fixed-size pool of worker goroutines that drain a shared path
// queue, probe each "{target}/{path}" URL and forward hits to a handler.
//
// # Lifecycle
//
// A Scanner moves through the following states:
//
//	Idle -> Running -> Completed   (every path probed)
//	Idle -> Running -> Cancelled -> Stopped   (Cancel called)
//
// Scanners are single use. Once Completed or Stopped, construct a new one.
//
// # Concurrency
//
// Probes run outside the scanner lock so workers overlap on network I/O. The
// lock covers only counter updates and the hit handler invocation, which
// means the handler is never called concurrently for one Scanner and should
// return quickly.
//
// Cancel is best effort: it drains the remaining queue, cancels in-flight
// probe contexts and waits a bounded time for each worker to exit.
//
// # Hits
//
// A probe is a hit when its status is 200, 403 or any 3xx. Redirects are
// never followed, so the redirect response itself is the hit.
package scanning
