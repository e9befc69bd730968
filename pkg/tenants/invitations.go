package tenants

import (
	"context"
	"crypto/rand"
	"database/sql"
	"encoding/hex"
	"fmt"
	"strings"
	"time"

	"github.com/shuttertag/shuttertag/pkg/auth"
)

// DefaultInvitationTTL is how long a new invitation stays claimable.
const DefaultInvitationTTL = 7 * 24 * time.Hour

// CreateInvitation creates a new invitation, generating its opaque token
func (s *Store) CreateInvitation(ctx context.Context, inv *Invitation) error {
	token, err := generateToken()
	if err != nil {
		return fmt.Errorf("failed to generate token: %w", err)
	}
	inv.Token = token
	inv.Email = strings.ToLower(strings.TrimSpace(inv.Email))
	inv.Role = normalizeRole(inv.Role)

	now := time.Now().UTC()
	if inv.CreatedAt.IsZero() {
		inv.CreatedAt = now
	}
	if inv.ExpiresAt.IsZero() {
		inv.ExpiresAt = now.Add(DefaultInvitationTTL)
	}

	query := `
		INSERT INTO invitations (email, tenant_id, role, token, invited_by, expires_at, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
		RETURNING id
	`
	err = s.db.QueryRowContext(ctx, query,
		inv.Email, inv.TenantID, inv.Role, inv.Token, inv.InvitedBy, inv.ExpiresAt, inv.CreatedAt,
	).Scan(&inv.ID)
	if err != nil {
		return fmt.Errorf("failed to create invitation: %w", err)
	}
	return nil
}

// ListInvitations lists pending invitations for a tenant
func (s *Store) ListInvitations(ctx context.Context, tenantID string) ([]*Invitation, error) {
	query := invitationSelect + ` WHERE tenant_id = $1 AND accepted_at IS NULL ORDER BY created_at DESC`
	rows, err := s.db.QueryContext(ctx, query, tenantID)
	if err != nil {
		return nil, fmt.Errorf("failed to list invitations: %w", err)
	}
	defer rows.Close()

	var invitations []*Invitation
	for rows.Next() {
		inv, err := s.scanInvitation(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan invitation: %w", err)
		}
		invitations = append(invitations, inv)
	}
	return invitations, rows.Err()
}

// RevokeInvitation deletes a pending invitation
func (s *Store) RevokeInvitation(ctx context.Context, id int64) error {
	query := `DELETE FROM invitations WHERE id = $1 AND accepted_at IS NULL`
	result, err := s.db.ExecContext(ctx, query, id)
	if err != nil {
		return fmt.Errorf("failed to revoke invitation: %w", err)
	}
	rows, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to get rows affected: %w", err)
	}
	if rows == 0 {
		return fmt.Errorf("invitation not found or already accepted")
	}
	return nil
}

// CleanupExpiredInvitations removes expired, never-accepted invitations and
// returns how many were deleted
func (s *Store) CleanupExpiredInvitations(ctx context.Context) (int64, error) {
	query := `DELETE FROM invitations WHERE expires_at < $1 AND accepted_at IS NULL`
	result, err := s.db.ExecContext(ctx, query, time.Now().UTC())
	if err != nil {
		return 0, fmt.Errorf("failed to cleanup expired invitations: %w", err)
	}
	return result.RowsAffected()
}

// ClaimPendingInvitations converts every pending, unexpired invitation for
// the user's email into an active membership and returns the affected tenant
// ids so the caller can invalidate permission caches for exactly those
// scopes.
//
// Invitations are processed oldest first; when several pending invitations
// target the same tenant, each overwrites the role, so the newest one wins
// within a single call. An existing membership's accepted_at is never
// regressed, and inviter/invited-at are filled only when previously unset.
// If anything was claimed and the user is not yet active, the profile is
// activated. With nothing to claim this is a no-op returning an empty set.
func (s *Store) ClaimPendingInvitations(ctx context.Context, user *auth.UserProfile) ([]string, error) {
	email := user.NormalizedEmail()
	if email == "" {
		return nil, nil
	}

	now := time.Now().UTC()
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	query := invitationSelect + ` WHERE LOWER(email) = $1 AND accepted_at IS NULL AND expires_at > $2 ORDER BY created_at ASC`
	rows, err := tx.QueryContext(ctx, query, email, now)
	if err != nil {
		return nil, fmt.Errorf("failed to load pending invitations: %w", err)
	}

	var pending []*Invitation
	for rows.Next() {
		inv, err := s.scanInvitation(rows)
		if err != nil {
			rows.Close()
			return nil, fmt.Errorf("failed to scan invitation: %w", err)
		}
		pending = append(pending, inv)
	}
	rows.Close()
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to load pending invitations: %w", err)
	}
	if len(pending) == 0 {
		return nil, nil
	}

	changed := make(map[string]bool)
	for _, inv := range pending {
		roleKey := normalizeRole(inv.Role)
		tenantRoleID, err := lookupTenantRoleID(ctx, tx, inv.TenantID, roleKey)
		if err != nil {
			return nil, err
		}

		membership, err := s.getMembershipTx(ctx, tx, user.SubjectID, inv.TenantID)
		if err != nil {
			return nil, err
		}

		if membership == nil {
			_, err = tx.ExecContext(ctx, `
				INSERT INTO user_tenants (subject_id, tenant_id, role, tenant_role_id, invited_by, invited_at, accepted_at, created_at)
				VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
			`, user.SubjectID, inv.TenantID, roleKey, tenantRoleID, inv.InvitedBy, inv.CreatedAt, now, now)
			if err != nil {
				return nil, fmt.Errorf("failed to create membership: %w", err)
			}
		} else {
			invitedBy := membership.InvitedBy
			if invitedBy == nil {
				invitedBy = inv.InvitedBy
			}
			invitedAt := membership.InvitedAt
			if invitedAt == nil {
				t := inv.CreatedAt
				invitedAt = &t
			}
			acceptedAt := membership.AcceptedAt
			if acceptedAt == nil {
				acceptedAt = &now
			}
			_, err = tx.ExecContext(ctx, `
				UPDATE user_tenants
				SET role = $1, tenant_role_id = $2, invited_by = $3, invited_at = $4, accepted_at = $5
				WHERE subject_id = $6 AND tenant_id = $7
			`, roleKey, tenantRoleID, invitedBy, invitedAt, acceptedAt, user.SubjectID, inv.TenantID)
			if err != nil {
				return nil, fmt.Errorf("failed to update membership: %w", err)
			}
		}

		// Conditional on accepted_at so a concurrent claimer cannot
		// double-accept; the loser simply affects zero rows.
		_, err = tx.ExecContext(ctx,
			`UPDATE invitations SET accepted_at = $1 WHERE id = $2 AND accepted_at IS NULL`,
			now, inv.ID,
		)
		if err != nil {
			return nil, fmt.Errorf("failed to mark invitation accepted: %w", err)
		}

		changed[inv.TenantID] = true
	}

	if len(changed) > 0 && !user.IsActive {
		_, err = tx.ExecContext(ctx,
			`UPDATE user_profiles SET is_active = TRUE, updated_at = $1 WHERE subject_id = $2`,
			now, user.SubjectID,
		)
		if err != nil {
			return nil, fmt.Errorf("failed to activate user: %w", err)
		}
		user.IsActive = true
	}

	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("failed to commit claim: %w", err)
	}

	tenantIDs := make([]string, 0, len(changed))
	for id := range changed {
		tenantIDs = append(tenantIDs, id)
	}
	return tenantIDs, nil
}

func lookupTenantRoleID(ctx context.Context, tx *sql.Tx, tenantID, roleKey string) (*int64, error) {
	if roleKey == "" {
		return nil, nil
	}
	var id int64
	err := tx.QueryRowContext(ctx,
		`SELECT id FROM tenant_roles WHERE tenant_id = $1 AND role_key = $2`,
		tenantID, roleKey,
	).Scan(&id)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to resolve tenant role: %w", err)
	}
	return &id, nil
}

func (s *Store) getMembershipTx(ctx context.Context, tx *sql.Tx, subjectID, tenantID string) (*Membership, error) {
	row := tx.QueryRowContext(ctx,
		membershipSelect+` WHERE subject_id = $1 AND tenant_id = $2`,
		subjectID, tenantID,
	)
	m, err := s.scanMembership(row)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get membership: %w", err)
	}
	return m, nil
}

func normalizeRole(role string) string {
	normalized := strings.ToLower(strings.TrimSpace(role))
	if normalized == "" {
		return "user"
	}
	return normalized
}

const invitationSelect = `
	SELECT id, email, tenant_id, role, token, invited_by, expires_at, accepted_at, created_at
	FROM invitations`

func (s *Store) scanInvitation(scanner rowScanner) (*Invitation, error) {
	var inv Invitation
	var invitedBy sql.NullString
	var acceptedAt sql.NullTime

	err := scanner.Scan(
		&inv.ID,
		&inv.Email,
		&inv.TenantID,
		&inv.Role,
		&inv.Token,
		&invitedBy,
		&inv.ExpiresAt,
		&acceptedAt,
		&inv.CreatedAt,
	)
	if err != nil {
		return nil, err
	}

	if invitedBy.Valid {
		by := invitedBy.String
		inv.InvitedBy = &by
	}
	if acceptedAt.Valid {
		t := acceptedAt.Time
		inv.AcceptedAt = &t
	}
	return &inv, nil
}

func generateToken() (string, error) {
	b := make([]byte, 32)
	if _, err := rand.Read(b); err != nil {
		return "", err
	}
	return hex.EncodeToString(b), nil
}
