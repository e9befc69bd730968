// Package auth implements bearer-token verification and user identity for
// the shuttertag access-control core.
//
// Tokens are verified against a remote JWKS key set (signature, expiry,
// audience); the key set is fetched lazily and cached, so key rotation does
// not require a restart. A shared-secret HS256 verifier is available for
// local development. Verified subjects map to UserProfile rows; all tenant
// access is gated on the profile's active flag, and the super-admin flag
// bypasses tenant-scoped checks entirely.
package auth
