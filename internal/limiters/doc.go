// Package limiters holds the failure-driven guards that sit in front of
// password checks.
//
// # Lockout
//
// [LockoutGuard] keeps two keys per normalized identifier:
//   - alo:<id>  failure counter, TTL = attempt window from the first failure
//   - alk:<id>  lock flag, TTL = lock duration
//
// Reaching the threshold sets the lock and clears the counter in one Lua
// script. The lock then expires on its own, independent of further activity.
//
// # What this package must NOT do
//
//   - Throttle request volume (internal/rate does that).
//   - Decide what a caller does while locked; the engine makes that call.
package limiters
