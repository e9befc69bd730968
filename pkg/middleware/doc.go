// Package middleware provides the HTTP guard chain: request logging,
// bearer-token authentication, tenant resolution, and the access checks
// (super admin, tenant membership, per-permission) that route handlers
// compose via gorilla/mux.
package middleware
