// Package stores provides the Redis-backed, self-expiring records behind
// one-time codes and token revocation.
//
// # Design
//
// One-time codes are stored as SHA-256 digests with a sibling attempt
// counter. Verification is a single Lua script so the compare, the attempt
// increment and the exhaustion delete cannot interleave with another request.
// Revocation entries carry a TTL equal to the remaining token lifetime, and
// account invalidation stamps carry the configured grace window. Nothing here
// needs a background sweep.
//
// # What this package must NOT do
//
//   - Import the root package or generate codes.
//   - Log or store plaintext codes or tokens.
package stores
