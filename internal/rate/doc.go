// Package rate provides the fixed-window request limiter built on the
// atomic counter in internal/cache.
//
// # Window semantics
//
// The first hit for a key creates the counter with TTL = window. Later hits
// in the same window only increment it; the TTL is never extended, so a
// window always ends exactly window after its first hit. Key prefixes used by
// the engine:
//   - rl:u:  per-identifier login and code requests
//   - rl:ip: per-client-IP requests
//
// # What this package must NOT do
//
//   - Touch lockout state. Throttling volume and counting wrong passwords are
//     separate concerns.
//   - Be imported outside the module.
package rate
