package rbac

import (
	"time"

	"github.com/hashicorp/golang-lru/v2/expirable"

	"github.com/shuttertag/shuttertag/pkg/observability"
)

// DefaultCacheTTL bounds how stale a resolved permission set may be after
// a role edit that the invalidation path missed.
const DefaultCacheTTL = 30 * time.Second

const defaultCacheSize = 8192

type cacheKey struct {
	TenantID  string
	SubjectID string
}

// Cache holds resolved permission sets keyed by (tenant, subject).
// Entries expire after the TTL; scoped invalidation drops them earlier.
type Cache struct {
	lru     *expirable.LRU[cacheKey, map[string]bool]
	metrics *observability.Metrics
}

// NewCache creates a permission cache. A zero or negative ttl falls back
// to DefaultCacheTTL.
func NewCache(ttl time.Duration, metrics *observability.Metrics) *Cache {
	if ttl <= 0 {
		ttl = DefaultCacheTTL
	}
	return &Cache{
		lru:     expirable.NewLRU[cacheKey, map[string]bool](defaultCacheSize, nil, ttl),
		metrics: metrics,
	}
}

// Get returns a copy of the cached permission set for (tenantID,
// subjectID), or nil if absent or expired. Copying keeps callers from
// mutating the cached entry.
func (c *Cache) Get(tenantID, subjectID string) map[string]bool {
	perms, ok := c.lru.Get(cacheKey{TenantID: tenantID, SubjectID: subjectID})
	if !ok {
		if c.metrics != nil {
			c.metrics.PermissionCacheMissesTotal.Inc()
		}
		return nil
	}
	if c.metrics != nil {
		c.metrics.PermissionCacheHitsTotal.Inc()
	}
	return copySet(perms)
}

// Set stores the permission set for (tenantID, subjectID).
func (c *Cache) Set(tenantID, subjectID string, perms map[string]bool) {
	c.lru.Add(cacheKey{TenantID: tenantID, SubjectID: subjectID}, copySet(perms))
}

func copySet(perms map[string]bool) map[string]bool {
	out := make(map[string]bool, len(perms))
	for key := range perms {
		out[key] = true
	}
	return out
}

// Invalidate drops cached entries matching the given scope. With both a
// subject and a tenant it drops that single pair; with only one of them it
// drops every entry for that subject or tenant; with neither it clears the
// whole cache.
func (c *Cache) Invalidate(subjectID, tenantID string) {
	switch {
	case subjectID != "" && tenantID != "":
		c.lru.Remove(cacheKey{TenantID: tenantID, SubjectID: subjectID})
		c.countInvalidation("pair")
	case subjectID != "":
		for _, key := range c.lru.Keys() {
			if key.SubjectID == subjectID {
				c.lru.Remove(key)
			}
		}
		c.countInvalidation("subject")
	case tenantID != "":
		for _, key := range c.lru.Keys() {
			if key.TenantID == tenantID {
				c.lru.Remove(key)
			}
		}
		c.countInvalidation("tenant")
	default:
		c.lru.Purge()
		c.countInvalidation("all")
	}
}

// Len returns the number of live entries.
func (c *Cache) Len() int {
	return c.lru.Len()
}

func (c *Cache) countInvalidation(scope string) {
	if c.metrics != nil {
		c.metrics.PermissionCacheInvalidations.WithLabelValues(scope).Inc()
	}
}
