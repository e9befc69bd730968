package rbac

import (
	"fmt"
	"time"
)

// Permission keys known to the catalog. Roles may also carry keys outside
// this list; the resolver treats keys opaquely.
const (
	PermImageView          = "image.view"
	PermImageRate          = "image.rate"
	PermImageTag           = "image.tag"
	PermImageNoteEdit      = "image.note.edit"
	PermImageVariantManage = "image.variant.manage"
	PermAssetsRead         = "assets.read"
	PermAssetsWrite        = "assets.write"
	PermKeywordsRead       = "keywords.read"
	PermKeywordsWrite      = "keywords.write"
	PermPeopleRead         = "people.read"
	PermPeopleWrite        = "people.write"
	PermTenantManage       = "tenant.manage"
	PermMembersManage      = "members.manage"
)

// Effect values for a role permission row.
const (
	EffectAllow = "allow"
	EffectDeny  = "deny"
)

// TenantRole is a named, tenant-scoped role that permission rows attach to.
type TenantRole struct {
	ID          int64     `json:"id"`
	TenantID    string    `json:"tenant_id"`
	RoleKey     string    `json:"role_key"`
	Name        string    `json:"name"`
	Description string    `json:"description,omitempty"`
	IsSystem    bool      `json:"is_system"`
	IsActive    bool      `json:"is_active"`
	CreatedAt   time.Time `json:"created_at"`
	UpdatedAt   time.Time `json:"updated_at"`
}

// RolePermission is a single allow or deny row on a role.
type RolePermission struct {
	ID            int64     `json:"id"`
	RoleID        int64     `json:"role_id"`
	PermissionKey string    `json:"permission_key"`
	Effect        string    `json:"effect"`
	CreatedAt     time.Time `json:"created_at"`
}

// CatalogEntry describes a permission key for admin UIs.
type CatalogEntry struct {
	Key         string    `json:"key"`
	Description string    `json:"description"`
	Category    string    `json:"category"`
	CreatedAt   time.Time `json:"created_at"`
}

// Implications maps a permission key to the keys it implies. Expansion is
// one-way: holding the key on the left grants the keys on the right, never
// the reverse. Coarse asset permissions fan out to the fine-grained image
// permissions, and image.view aliases back to assets.read so either
// spelling of "can see images" satisfies a read check.
var Implications = map[string][]string{
	PermAssetsRead: {PermImageView},
	PermAssetsWrite: {
		PermImageRate,
		PermImageTag,
		PermImageNoteEdit,
		PermImageVariantManage,
	},
	PermImageView: {PermAssetsRead},
}

// writePermissions marks the keys that mutate tenant data. Used only to
// validate the implication table at startup.
var writePermissions = map[string]bool{
	PermImageRate:          true,
	PermImageTag:           true,
	PermImageNoteEdit:      true,
	PermImageVariantManage: true,
	PermAssetsWrite:        true,
	PermKeywordsWrite:      true,
	PermPeopleWrite:        true,
	PermTenantManage:       true,
	PermMembersManage:      true,
}

// IsWritePermission reports whether key mutates tenant data.
func IsWritePermission(key string) bool {
	return writePermissions[key]
}

// ValidateImplications checks the implication table for write escalation:
// no read-only permission may transitively imply a write permission. Run
// at startup so a bad table edit fails the process instead of silently
// widening access.
func ValidateImplications() error {
	for key := range Implications {
		if IsWritePermission(key) {
			continue
		}
		for implied := range expandClosure(key) {
			if IsWritePermission(implied) {
				return fmt.Errorf("implication table escalates %q to write permission %q", key, implied)
			}
		}
	}
	return nil
}

// expandClosure returns the transitive implication closure of key,
// excluding key itself.
func expandClosure(key string) map[string]bool {
	closure := make(map[string]bool)
	frontier := []string{key}
	for len(frontier) > 0 {
		next := frontier[0]
		frontier = frontier[1:]
		for _, implied := range Implications[next] {
			if implied == key || closure[implied] {
				continue
			}
			closure[implied] = true
			frontier = append(frontier, implied)
		}
	}
	return closure
}
