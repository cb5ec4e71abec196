// Package identity reconciles external identities with first-party accounts
// and allocates account identifiers.
//
// # Failure units
//
// A new account and its first binding are inserted through
// store.Store.InsertAccountWithBinding, so a failed creation never leaves a
// binding without an account or an account without the binding that caused
// it. Identifier collisions on insert are retried with a new candidate.
// Duplicate bindings or emails on insert mean a concurrent resolution won,
// and resolution restarts from the lookup step.
package identity
