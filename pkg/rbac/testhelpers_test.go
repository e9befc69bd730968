package rbac

import (
	"context"
	"database/sql"
	"testing"
	"time"

	_ "github.com/mattn/go-sqlite3"
	"github.com/stretchr/testify/require"
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

		CREATE TABLE permission_catalog (
			key TEXT PRIMARY KEY,
			description TEXT NOT NULL DEFAULT '',
			category TEXT NOT NULL DEFAULT '',
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

func insertRole(t *testing.T, db *sql.DB, tenantID, roleKey string, perms map[string]string) int64 {
	t.Helper()
	ctx := context.Background()
	store := NewStore(db)

	role := &TenantRole{
		TenantID: tenantID,
		RoleKey:  roleKey,
		Name:     roleKey,
		IsActive: true,
	}
	require.NoError(t, store.CreateRole(ctx, role))

	for key, effect := range perms {
		_, err := db.Exec(
			`INSERT INTO role_permissions (role_id, permission_key, effect, created_at) VALUES ($1, $2, $3, $4)`,
			role.ID, key, effect, time.Now().UTC(),
		)
		require.NoError(t, err)
	}
	return role.ID
}

func insertMember(t *testing.T, db *sql.DB, subjectID, tenantID string, roleID *int64, accepted bool) {
	t.Helper()
	var acceptedAt interface{}
	if accepted {
		acceptedAt = time.Now().UTC()
	}
	_, err := db.Exec(
		`INSERT INTO user_tenants (subject_id, tenant_id, role, tenant_role_id, accepted_at, created_at) VALUES ($1, $2, $3, $4, $5, $6)`,
		subjectID, tenantID, "user", roleID, acceptedAt, time.Now().UTC(),
	)
	require.NoError(t, err)
}
