package rbac

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/shuttertag/shuttertag/pkg/observability"
)

// Resolver computes effective permission sets for tenant members.
type Resolver struct {
	store *Store
	cache *Cache
}

// NewResolver creates a resolver over the given database with a cache of
// the given TTL.
func NewResolver(db *sql.DB, cacheTTL time.Duration, metrics *observability.Metrics) *Resolver {
	return &Resolver{
		store: NewStore(db),
		cache: NewCache(cacheTTL, metrics),
	}
}

// Cache exposes the resolver's cache for invalidation wiring.
func (r *Resolver) Cache() *Cache {
	return r.cache
}

// Store exposes the resolver's role store.
func (r *Resolver) Store() *Store {
	return r.store
}

// EffectivePermissions resolves the permission set subjectID holds in
// tenantID. The result is a set of permission keys: explicit allow rows
// from the member's structured role, expanded through the implication
// table, minus explicit deny rows. A member without a structured role, or
// with an inactive or foreign role, resolves to the empty set. Results are
// cached per (tenant, subject) until the TTL or an invalidation.
func (r *Resolver) EffectivePermissions(ctx context.Context, tenantID, subjectID string) (map[string]bool, error) {
	if cached := r.cache.Get(tenantID, subjectID); cached != nil {
		return cached, nil
	}

	roleID, err := r.store.GetMemberRoleID(ctx, tenantID, subjectID)
	if err != nil {
		return nil, fmt.Errorf("failed to resolve member role: %w", err)
	}

	perms := map[string]bool{}
	if roleID != nil {
		rows, err := r.store.ListRolePermissions(ctx, tenantID, *roleID)
		if err != nil {
			return nil, fmt.Errorf("failed to load role permissions: %w", err)
		}
		perms = resolvePermissionSet(rows)
	}

	r.cache.Set(tenantID, subjectID, perms)
	return perms, nil
}

// Allowed reports whether subjectID holds permission in tenantID.
func (r *Resolver) Allowed(ctx context.Context, tenantID, subjectID, permission string) (bool, error) {
	perms, err := r.EffectivePermissions(ctx, tenantID, subjectID)
	if err != nil {
		return false, err
	}
	return perms[permission], nil
}

// Invalidate drops cached permission sets for the given scope; see
// Cache.Invalidate for the scoping rules.
func (r *Resolver) Invalidate(subjectID, tenantID string) {
	r.cache.Invalidate(subjectID, tenantID)
}

// resolvePermissionSet turns a role's raw allow/deny rows into the final
// permission set. Deny always wins: a denied key is never added by the
// implication expansion and is subtracted from the result even when an
// allow row names it too.
func resolvePermissionSet(rows []*RolePermission) map[string]bool {
	allowed := make(map[string]bool)
	denied := make(map[string]bool)
	for _, row := range rows {
		switch row.Effect {
		case EffectDeny:
			denied[row.PermissionKey] = true
		default:
			allowed[row.PermissionKey] = true
		}
	}

	// Expand implications to a fixed point. Each pass adds keys implied
	// by anything already allowed, skipping denied keys; the key space is
	// finite so the loop terminates.
	for {
		added := false
		for key := range allowed {
			for _, implied := range Implications[key] {
				if allowed[implied] || denied[implied] {
					continue
				}
				allowed[implied] = true
				added = true
			}
		}
		if !added {
			break
		}
	}

	for key := range denied {
		delete(allowed, key)
	}
	return allowed
}
