// Package api exposes the HTTP surface: tenant administration, member and
// invitation management, role and permission editing, and the caller's own
// profile and effective permissions. Route handlers stay thin; access
// decisions live in the middleware guards and domain logic in the stores.
package api
