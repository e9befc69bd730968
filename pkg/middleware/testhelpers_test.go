package middleware

import (
	"context"
	"database/sql"
	"encoding/json"
	"net/http/httptest"
	"testing"
	"time"

	_ "github.com/mattn/go-sqlite3"
	"github.com/stretchr/testify/require"

	"github.com/shuttertag/shuttertag/pkg/auth"
)

// stubVerifier returns fixed claims or a fixed error, standing in for the
// JWKS pipeline in handler tests.
type stubVerifier struct {
	claims *auth.Claims
	err    error
}

func (s stubVerifier) Verify(_ context.Context, _ string) (*auth.Claims, error) {
	return s.claims, s.err
}

func setupTestDB(t *testing.T) *sql.DB {
	db, err := sql.Open("sqlite3", ":memory:")
	if err != nil {
		t.Fatalf("Failed to open test database: %v", err)
	}
	t.Cleanup(func() { db.Close() })

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
			updated_at TIMESTAMP DEFAULT CURRENT_TIMESTAMP
		);

		CREATE TABLE role_permissions (
			id INTEGER PRIMARY KEY AUTOINCREMENT,
			role_id INTEGER NOT NULL,
			permission_key TEXT NOT NULL,
			effect TEXT NOT NULL DEFAULT 'allow',
			created_at TIMESTAMP DEFAULT CURRENT_TIMESTAMP
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

func insertTenant(t *testing.T, db *sql.DB, id string) {
	t.Helper()
	_, err := db.Exec(
		`INSERT INTO tenants (id, identifier, key_prefix, name) VALUES ($1, $2, $3, $4)`,
		id, id+"-ident", id+"-prefix", "Tenant "+id,
	)
	require.NoError(t, err)
}

func insertUser(t *testing.T, db *sql.DB, subjectID, email string, active, superAdmin bool) {
	t.Helper()
	now := time.Now().UTC()
	_, err := db.Exec(
		`INSERT INTO user_profiles (subject_id, email, is_active, is_super_admin, created_at, updated_at) VALUES ($1, $2, $3, $4, $5, $6)`,
		subjectID, email, active, superAdmin, now, now,
	)
	require.NoError(t, err)
}

func insertAcceptedMember(t *testing.T, db *sql.DB, subjectID, tenantID string, roleID *int64) {
	t.Helper()
	now := time.Now().UTC()
	_, err := db.Exec(
		`INSERT INTO user_tenants (subject_id, tenant_id, role, tenant_role_id, accepted_at, created_at) VALUES ($1, $2, $3, $4, $5, $6)`,
		subjectID, tenantID, "user", roleID, now, now,
	)
	require.NoError(t, err)
}

func detailOf(t *testing.T, rec *httptest.ResponseRecorder) string {
	t.Helper()
	var body map[string]string
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	return body["detail"]
}

func validClaims(subject string) *auth.Claims {
	return &auth.Claims{Subject: subject, Email: subject + "@example.com", EmailVerified: true}
}
