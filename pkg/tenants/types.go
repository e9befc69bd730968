package tenants

import (
	"time"
)

// Tenant represents an isolated customer workspace. The id, identifier and
// key prefix are immutable after creation; the resolver relies on that.
type Tenant struct {
	ID         string         `json:"id"`
	Identifier string         `json:"identifier"`
	KeyPrefix  string         `json:"key_prefix"`
	Name       string         `json:"name"`
	IsActive   bool           `json:"is_active"`
	Settings   map[string]any `json:"settings,omitempty"`
	CreatedAt  time.Time      `json:"created_at"`
	UpdatedAt  time.Time      `json:"updated_at"`
}

// Membership joins a user profile to a tenant with an assigned role.
// AcceptedAt IS NULL means pending; a pending membership never grants
// access. TenantRoleID links to the structured RBAC role when one exists;
// Role is the legacy free-text role key (e.g. "admin").
type Membership struct {
	SubjectID    string     `json:"subject_id"`
	TenantID     string     `json:"tenant_id"`
	Role         string     `json:"role"`
	TenantRoleID *int64     `json:"tenant_role_id,omitempty"`
	InvitedBy    *string    `json:"invited_by,omitempty"`
	InvitedAt    *time.Time `json:"invited_at,omitempty"`
	AcceptedAt   *time.Time `json:"accepted_at,omitempty"`
	CreatedAt    time.Time  `json:"created_at"`
}

// Accepted reports whether the membership is active.
func (m *Membership) Accepted() bool {
	return m.AcceptedAt != nil
}

// RoleAdmin is the legacy free-text role that grants tenant administration
// outside the structured permission tables.
const RoleAdmin = "admin"

// Invitation is a token-addressable, time-boxed offer of a (tenant, role)
// pair to an email address. Claimable only while accepted_at is NULL and
// expires_at is in the future.
type Invitation struct {
	ID         int64      `json:"id"`
	Email      string     `json:"email"`
	TenantID   string     `json:"tenant_id"`
	Role       string     `json:"role"`
	Token      string     `json:"token"`
	InvitedBy  *string    `json:"invited_by,omitempty"`
	ExpiresAt  time.Time  `json:"expires_at"`
	AcceptedAt *time.Time `json:"accepted_at,omitempty"`
	CreatedAt  time.Time  `json:"created_at"`
}
