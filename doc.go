// Package authcore is an account-identity and session-security engine: it
// decides whether a credential attempt is allowed, issues and revokes
// signed tokens, throttles abuse and reconciles social identities with
// first-party accounts.
//
// An [Engine] is assembled with [Builder] and is safe for concurrent use.
// All shared state lives in two collaborators: a Redis-compatible cache for
// counters, one-time codes and revocation state, and a relational [Store]
// for accounts and social bindings.
//
// # Results and errors
//
// Expected outcomes (rate limited, locked, wrong code, revoked token,
// identity conflict) are returned as result values carrying an [Outcome].
// The error return carries infrastructure faults, all of which satisfy
// errors.Is(err, [ErrInfrastructureUnavailable]), and invalid input.
// Security checks fail closed: when the cache cannot be reached, lockout
// reports locked and revocation reports revoked.
//
// [PublicMessage] maps any error to a message that is safe to show a user
// and never reveals whether an identifier is registered.
//
// # Architecture boundaries
//
// authcore is the public surface. Counter, lockout, code and revocation
// state is implemented under internal/ and never exported. Persistence
// lives in store/memory and store/postgres; provider adapters in oauth;
// code delivery in notify.
package authcore
