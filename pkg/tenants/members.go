package tenants

import (
	"context"
	"database/sql"
	"fmt"
	"time"
)

// GetMembership retrieves the membership row for (subject, tenant) whether
// accepted or pending. Returns (nil, nil) when none exists.
func (s *Store) GetMembership(ctx context.Context, subjectID, tenantID string) (*Membership, error) {
	query := membershipSelect + ` WHERE subject_id = $1 AND tenant_id = $2`
	m, err := s.scanMembership(s.db.QueryRowContext(ctx, query, subjectID, tenantID))
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get membership: %w", err)
	}
	return m, nil
}

// GetAcceptedMembership retrieves the membership only if it has been
// accepted. Pending rows never satisfy an access check.
func (s *Store) GetAcceptedMembership(ctx context.Context, subjectID, tenantID string) (*Membership, error) {
	query := membershipSelect + ` WHERE subject_id = $1 AND tenant_id = $2 AND accepted_at IS NOT NULL`
	m, err := s.scanMembership(s.db.QueryRowContext(ctx, query, subjectID, tenantID))
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get membership: %w", err)
	}
	return m, nil
}

// ListMembers retrieves all accepted memberships of a tenant
func (s *Store) ListMembers(ctx context.Context, tenantID string) ([]*Membership, error) {
	query := membershipSelect + ` WHERE tenant_id = $1 AND accepted_at IS NOT NULL ORDER BY created_at ASC`
	rows, err := s.db.QueryContext(ctx, query, tenantID)
	if err != nil {
		return nil, fmt.Errorf("failed to list members: %w", err)
	}
	defer rows.Close()

	var members []*Membership
	for rows.Next() {
		m, err := s.scanMembership(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan membership: %w", err)
		}
		members = append(members, m)
	}
	return members, rows.Err()
}

// ListMembershipsForSubject retrieves all accepted memberships of a user
func (s *Store) ListMembershipsForSubject(ctx context.Context, subjectID string) ([]*Membership, error) {
	query := membershipSelect + ` WHERE subject_id = $1 AND accepted_at IS NOT NULL ORDER BY created_at ASC`
	rows, err := s.db.QueryContext(ctx, query, subjectID)
	if err != nil {
		return nil, fmt.Errorf("failed to list memberships: %w", err)
	}
	defer rows.Close()

	var memberships []*Membership
	for rows.Next() {
		m, err := s.scanMembership(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan membership: %w", err)
		}
		memberships = append(memberships, m)
	}
	return memberships, rows.Err()
}

// CreateMembership inserts a membership row
func (s *Store) CreateMembership(ctx context.Context, m *Membership) error {
	query := `
		INSERT INTO user_tenants (subject_id, tenant_id, role, tenant_role_id, invited_by, invited_at, accepted_at, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
	`
	if m.CreatedAt.IsZero() {
		m.CreatedAt = time.Now().UTC()
	}
	_, err := s.db.ExecContext(ctx, query,
		m.SubjectID, m.TenantID, m.Role, m.TenantRoleID,
		m.InvitedBy, m.InvitedAt, m.AcceptedAt, m.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to create membership: %w", err)
	}
	return nil
}

// UpdateMemberRole changes a member's role assignment. Callers must
// invalidate the permission cache for (tenant, subject) afterwards.
func (s *Store) UpdateMemberRole(ctx context.Context, tenantID, subjectID, role string, tenantRoleID *int64) error {
	query := `
		UPDATE user_tenants SET role = $1, tenant_role_id = $2
		WHERE tenant_id = $3 AND subject_id = $4
	`
	result, err := s.db.ExecContext(ctx, query, role, tenantRoleID, tenantID, subjectID)
	if err != nil {
		return fmt.Errorf("failed to update member role: %w", err)
	}
	rows, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to get rows affected: %w", err)
	}
	if rows == 0 {
		return fmt.Errorf("member not found")
	}
	return nil
}

// RemoveMember deletes a membership. Callers must invalidate the permission
// cache for (tenant, subject) afterwards.
func (s *Store) RemoveMember(ctx context.Context, tenantID, subjectID string) error {
	query := `DELETE FROM user_tenants WHERE tenant_id = $1 AND subject_id = $2`
	result, err := s.db.ExecContext(ctx, query, tenantID, subjectID)
	if err != nil {
		return fmt.Errorf("failed to remove member: %w", err)
	}
	rows, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to get rows affected: %w", err)
	}
	if rows == 0 {
		return fmt.Errorf("member not found")
	}
	return nil
}

// IsTenantAdmin reports whether the subject holds an accepted membership
// with the legacy admin role in the tenant. This is the coarse check used
// where no structured role is configured.
func (s *Store) IsTenantAdmin(ctx context.Context, subjectID, tenantID string) (bool, error) {
	query := `
		SELECT COUNT(*) FROM user_tenants
		WHERE subject_id = $1 AND tenant_id = $2 AND accepted_at IS NOT NULL AND role = $3
	`
	var count int
	if err := s.db.QueryRowContext(ctx, query, subjectID, tenantID, RoleAdmin).Scan(&count); err != nil {
		return false, fmt.Errorf("failed to check tenant admin: %w", err)
	}
	return count > 0, nil
}

const membershipSelect = `
	SELECT subject_id, tenant_id, role, tenant_role_id, invited_by, invited_at, accepted_at, created_at
	FROM user_tenants`

func (s *Store) scanMembership(scanner rowScanner) (*Membership, error) {
	var m Membership
	var tenantRoleID sql.NullInt64
	var invitedBy sql.NullString
	var invitedAt, acceptedAt sql.NullTime

	err := scanner.Scan(
		&m.SubjectID,
		&m.TenantID,
		&m.Role,
		&tenantRoleID,
		&invitedBy,
		&invitedAt,
		&acceptedAt,
		&m.CreatedAt,
	)
	if err != nil {
		return nil, err
	}

	if tenantRoleID.Valid {
		id := tenantRoleID.Int64
		m.TenantRoleID = &id
	}
	if invitedBy.Valid {
		by := invitedBy.String
		m.InvitedBy = &by
	}
	if invitedAt.Valid {
		t := invitedAt.Time
		m.InvitedAt = &t
	}
	if acceptedAt.Valid {
		t := acceptedAt.Time
		m.AcceptedAt = &t
	}
	return &m, nil
}
