// Package store defines the account model and the persistence contract the
// authentication core consumes.
//
// # Architecture boundaries
//
// Implementations live in sub-packages ([memory] for tests and local use,
// [postgres] for production). Every implementation must enforce uniqueness of
// account ids, case-folded emails, phone numbers, (provider, external id) and
// (provider, union id) pairs, and report violations as [ErrDuplicate]
// variants rather than generic failures. Callers rely on that contract to
// retry identifier generation instead of failing.
//
// # What this package must NOT do
//
//   - Import the root authcore package or any internal package.
//   - Physically delete accounts. Disabling is a status change.
package store
