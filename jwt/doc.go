// Package jwt issues and verifies the access/refresh token pair.
//
// Lifetime is chosen by role and not by kind: an administrator's tokens
// live for the short admin TTL and a standard account's for the long
// standard TTL, whichever kind they are. Verification here is purely
// cryptographic and temporal; revocation is checked by the caller.
package jwt
