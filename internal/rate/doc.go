// Package rate implements the fixed-window request counter behind the
// engine's rate limiting.
//
// # Window semantics
//
// Each check atomically increments the counter for the identifier's current
// window; the first increment of a fresh key attaches an expiry equal to the
// window length so the counter self-clears. Keys embed the limit and window
// so differently-configured callers never share a counter.
//
// # Backends
//
// A Redis backend (INCR + PTTL in one pipelined round trip, EXPIRE on the
// window's first hit) when a client is configured, otherwise an in-process
// map swept periodically. Backend errors fail open: availability of the
// protected endpoint takes priority over strict enforcement during a
// limiter outage.
//
// # What this package must NOT do
//
//   - Define policy presets (those live with the engine config).
//   - Be imported outside the authcore module.
package rate
