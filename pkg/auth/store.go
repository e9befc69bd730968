package auth

import (
	"context"
	"database/sql"
	"fmt"
	"time"
)

// Store handles user-profile persistence
type Store struct {
	db *sql.DB
}

// NewStore creates a new profile store
func NewStore(db *sql.DB) *Store {
	return &Store{db: db}
}

// GetBySubject retrieves a profile by subject id. Returns (nil, nil) when no
// profile exists; the caller decides how missing registration surfaces.
func (s *Store) GetBySubject(ctx context.Context, subjectID string) (*UserProfile, error) {
	query := `
		SELECT subject_id, email, email_verified, display_name, is_active, is_super_admin, last_login_at, created_at, updated_at
		FROM user_profiles
		WHERE subject_id = $1
	`

	var profile UserProfile
	var lastLogin sql.NullTime

	err := s.db.QueryRowContext(ctx, query, subjectID).Scan(
		&profile.SubjectID,
		&profile.Email,
		&profile.EmailVerified,
		&profile.DisplayName,
		&profile.IsActive,
		&profile.IsSuperAdmin,
		&lastLogin,
		&profile.CreatedAt,
		&profile.UpdatedAt,
	)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get user profile: %w", err)
	}

	if lastLogin.Valid {
		t := lastLogin.Time
		profile.LastLoginAt = &t
	}

	return &profile, nil
}

// Create inserts a new profile row. Used by the registration collaborator,
// not by the request pipeline.
func (s *Store) Create(ctx context.Context, profile *UserProfile) error {
	query := `
		INSERT INTO user_profiles (subject_id, email, email_verified, display_name, is_active, is_super_admin, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
	`

	now := time.Now().UTC()
	_, err := s.db.ExecContext(ctx, query,
		profile.SubjectID,
		profile.Email,
		profile.EmailVerified,
		profile.DisplayName,
		profile.IsActive,
		profile.IsSuperAdmin,
		now,
		now,
	)
	if err != nil {
		return fmt.Errorf("failed to create user profile: %w", err)
	}

	profile.CreatedAt = now
	profile.UpdatedAt = now
	return nil
}

// TouchLastLogin records a login timestamp. Callers throttle via
// UserProfile.ShouldTouchLastLogin to avoid per-request writes.
func (s *Store) TouchLastLogin(ctx context.Context, subjectID string, at time.Time) error {
	query := `UPDATE user_profiles SET last_login_at = $1, updated_at = $1 WHERE subject_id = $2`
	if _, err := s.db.ExecContext(ctx, query, at.UTC(), subjectID); err != nil {
		return fmt.Errorf("failed to update last login: %w", err)
	}
	return nil
}

// Activate flips the active flag on, used when a first invitation claim
// implicitly approves the account.
func (s *Store) Activate(ctx context.Context, subjectID string) error {
	query := `UPDATE user_profiles SET is_active = TRUE, updated_at = $1 WHERE subject_id = $2`
	if _, err := s.db.ExecContext(ctx, query, time.Now().UTC(), subjectID); err != nil {
		return fmt.Errorf("failed to activate user: %w", err)
	}
	return nil
}

// SetActive sets the active flag explicitly (admin approval/suspension).
func (s *Store) SetActive(ctx context.Context, subjectID string, active bool) error {
	query := `UPDATE user_profiles SET is_active = $1, updated_at = $2 WHERE subject_id = $3`
	result, err := s.db.ExecContext(ctx, query, active, time.Now().UTC(), subjectID)
	if err != nil {
		return fmt.Errorf("failed to set active flag: %w", err)
	}
	rows, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to get rows affected: %w", err)
	}
	if rows == 0 {
		return fmt.Errorf("user profile not found")
	}
	return nil
}
