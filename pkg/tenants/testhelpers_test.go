package tenants

import (
	"context"
	"database/sql"
	"testing"
	"time"

	_ "github.com/mattn/go-sqlite3"
	"github.com/stretchr/testify/require"

	"github.com/shuttertag/shuttertag/pkg/auth"
)

func setupTestDB(t *testing.T) *sql.DB {
	db, err := sql.Open("sqlite3", ":memory:")
	if err != nil {
		t.Fatalf("Failed to open test database: %v", err)
	}
	t.Cleanup(func() { db.Close() })

	// Minimal tables for testing
	_, err = db.Exec(`
		CREATE TABLE tenants (
			id TEXT PRIMARY KEY,
			identifier TEXT NOT NULL UNIQUE,
			key_prefix TEXT NOT NULL UNIQUE,
			name TEXT NOT NULL,
			is_active INTEGER NOT NULL DEFAULT 1,
			settings TEXT NOT NULL DEFAULT '{}',
			created_at TIMESTAMP DEFAULT CURRENT_TIMESTAMP,
			updated_at TIMESTAMP DEFAULT CURRENT_TIMESTAMP
		);

		CREATE TABLE user_profiles (
			subject_id TEXT PRIMARY KEY,
			email TEXT NOT NULL,
			email_verified INTEGER NOT NULL DEFAULT 0,
			display_name TEXT NOT NULL DEFAULT '',
			is_active INTEGER NOT NULL DEFAULT 0,
			is_super_admin INTEGER NOT NULL DEFAULT 0,
			last_login_at TIMESTAMP,
			created_at TIMESTAMP DEFAULT CURRENT_TIMESTAMP,
			updated_at TIMESTAMP DEFAULT CURRENT_TIMESTAMP
		);

		CREATE TABLE tenant_roles (
			id INTEGER PRIMARY KEY AUTOINCREMENT,
			tenant_id TEXT NOT NULL,
			role_key TEXT NOT NULL,
			name TEXT NOT NULL,
			description TEXT,
			is_system INTEGER NOT NULL DEFAULT 0,
			is_active INTEGER NOT NULL DEFAULT 1,
			created_at TIMESTAMP DEFAULT CURRENT_TIMESTAMP,
			updated_at TIMESTAMP DEFAULT CURRENT_TIMESTAMP,
			UNIQUE(tenant_id, role_key)
		);

		CREATE TABLE user_tenants (
			subject_id TEXT NOT NULL,
			tenant_id TEXT NOT NULL,
			role TEXT NOT NULL DEFAULT 'user',
			tenant_role_id INTEGER,
			invited_by TEXT,
			invited_at TIMESTAMP,
			accepted_at TIMESTAMP,
			created_at TIMESTAMP DEFAULT CURRENT_TIMESTAMP,
			PRIMARY KEY (subject_id, tenant_id)
		);

		CREATE TABLE invitations (
			id INTEGER PRIMARY KEY AUTOINCREMENT,
			email TEXT NOT NULL,
			tenant_id TEXT NOT NULL,
			role TEXT NOT NULL DEFAULT 'user',
			token TEXT NOT NULL UNIQUE,
			invited_by TEXT,
			expires_at TIMESTAMP NOT NULL,
			accepted_at TIMESTAMP,
			created_at TIMESTAMP DEFAULT CURRENT_TIMESTAMP
		);
	`)
	if err != nil {
		t.Fatalf("Failed to create test tables: %v", err)
	}

	return db
}

func insertTenant(t *testing.T, db *sql.DB, id, identifier, keyPrefix string) {
	t.Helper()
	_, err := db.Exec(
		`INSERT INTO tenants (id, identifier, key_prefix, name) VALUES ($1, $2, $3, $4)`,
		id, identifier, keyPrefix, "Tenant "+id,
	)
	require.NoError(t, err)
}

func insertUser(t *testing.T, db *sql.DB, subjectID, email string, active bool) *auth.UserProfile {
	t.Helper()
	now := time.Now().UTC()
	_, err := db.Exec(
		`INSERT INTO user_profiles (subject_id, email, is_active, created_at, updated_at) VALUES ($1, $2, $3, $4, $5)`,
		subjectID, email, active, now, now,
	)
	require.NoError(t, err)
	return &auth.UserProfile{SubjectID: subjectID, Email: email, IsActive: active}
}

func insertTenantRole(t *testing.T, db *sql.DB, tenantID, roleKey string) int64 {
	t.Helper()
	now := time.Now().UTC()
	res, err := db.Exec(
		`INSERT INTO tenant_roles (tenant_id, role_key, name, created_at, updated_at) VALUES ($1, $2, $3, $4, $5)`,
		tenantID, roleKey, roleKey, now, now,
	)
	require.NoError(t, err)
	id, err := res.LastInsertId()
	require.NoError(t, err)
	return id
}

func insertInvitation(t *testing.T, db *sql.DB, email, tenantID, role, token string, createdAt, expiresAt time.Time) int64 {
	t.Helper()
	res, err := db.Exec(
		`INSERT INTO invitations (email, tenant_id, role, token, expires_at, created_at) VALUES ($1, $2, $3, $4, $5, $6)`,
		email, tenantID, role, token, expiresAt, createdAt,
	)
	require.NoError(t, err)
	id, err := res.LastInsertId()
	require.NoError(t, err)
	return id
}

func membershipOf(t *testing.T, db *sql.DB, subjectID, tenantID string) *Membership {
	t.Helper()
	m, err := NewStore(db).GetMembership(context.Background(), subjectID, tenantID)
	require.NoError(t, err)
	return m
}
