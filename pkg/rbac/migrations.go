package rbac

import (
	"context"
	"database/sql"
	"fmt"
)

// Migration represents a database migration
type Migration struct {
	Version     int
	Description string
	SQL         string
}

// GetMigrations returns all schema migrations
func GetMigrations() []Migration {
	return []Migration{
		{
			Version:     1,
			Description: "Create tenants table",
			SQL: `
				CREATE TABLE IF NOT EXISTS tenants (
					id TEXT PRIMARY KEY,
					identifier VARCHAR(255) NOT NULL UNIQUE,
					key_prefix VARCHAR(255) NOT NULL UNIQUE,
					name VARCHAR(255) NOT NULL,
					is_active BOOLEAN NOT NULL DEFAULT TRUE,
					settings JSONB NOT NULL DEFAULT '{}',
					created_at TIMESTAMP NOT NULL DEFAULT NOW(),
					updated_at TIMESTAMP NOT NULL DEFAULT NOW()
				);

				CREATE INDEX idx_tenants_identifier ON tenants(identifier);
				CREATE INDEX idx_tenants_key_prefix ON tenants(key_prefix);
			`,
		},
		{
			Version:     2,
			Description: "Create user_profiles table",
			SQL: `
				CREATE TABLE IF NOT EXISTS user_profiles (
					subject_id TEXT PRIMARY KEY,
					email VARCHAR(320) NOT NULL,
					email_verified BOOLEAN NOT NULL DEFAULT FALSE,
					display_name VARCHAR(255) NOT NULL DEFAULT '',
					is_active BOOLEAN NOT NULL DEFAULT FALSE,
					is_super_admin BOOLEAN NOT NULL DEFAULT FALSE,
					last_login_at TIMESTAMP,
					created_at TIMESTAMP NOT NULL DEFAULT NOW(),
					updated_at TIMESTAMP NOT NULL DEFAULT NOW()
				);

				CREATE INDEX idx_user_profiles_email ON user_profiles(email);
			`,
		},
		{
			Version:     3,
			Description: "Create tenant_roles table",
			SQL: `
				CREATE TABLE IF NOT EXISTS tenant_roles (
					id BIGSERIAL PRIMARY KEY,
					tenant_id TEXT NOT NULL REFERENCES tenants(id) ON DELETE CASCADE,
					role_key VARCHAR(100) NOT NULL,
					name VARCHAR(255) NOT NULL,
					description TEXT,
					is_system BOOLEAN NOT NULL DEFAULT FALSE,
					is_active BOOLEAN NOT NULL DEFAULT TRUE,
					created_at TIMESTAMP NOT NULL DEFAULT NOW(),
					updated_at TIMESTAMP NOT NULL DEFAULT NOW(),
					UNIQUE(tenant_id, role_key)
				);

				CREATE INDEX idx_tenant_roles_tenant_id ON tenant_roles(tenant_id);
			`,
		},
		{
			Version:     4,
			Description: "Create role_permissions table",
			SQL: `
				CREATE TABLE IF NOT EXISTS role_permissions (
					id BIGSERIAL PRIMARY KEY,
					role_id BIGINT NOT NULL REFERENCES tenant_roles(id) ON DELETE CASCADE,
					permission_key VARCHAR(100) NOT NULL,
					effect VARCHAR(10) NOT NULL DEFAULT 'allow' CHECK (effect IN ('allow', 'deny')),
					created_at TIMESTAMP NOT NULL DEFAULT NOW(),
					UNIQUE(role_id, permission_key)
				);

				CREATE INDEX idx_role_permissions_role_id ON role_permissions(role_id);
			`,
		},
		{
			Version:     5,
			Description: "Create user_tenants table",
			SQL: `
				CREATE TABLE IF NOT EXISTS user_tenants (
					subject_id TEXT NOT NULL REFERENCES user_profiles(subject_id) ON DELETE CASCADE,
					tenant_id TEXT NOT NULL REFERENCES tenants(id) ON DELETE CASCADE,
					role VARCHAR(100) NOT NULL DEFAULT 'user',
					tenant_role_id BIGINT REFERENCES tenant_roles(id) ON DELETE SET NULL,
					invited_by TEXT,
					invited_at TIMESTAMP,
					accepted_at TIMESTAMP,
					created_at TIMESTAMP NOT NULL DEFAULT NOW(),
					PRIMARY KEY (subject_id, tenant_id)
				);

				CREATE INDEX idx_user_tenants_tenant_id ON user_tenants(tenant_id);
			`,
		},
		{
			Version:     6,
			Description: "Create invitations table",
			SQL: `
				CREATE TABLE IF NOT EXISTS invitations (
					id BIGSERIAL PRIMARY KEY,
					email VARCHAR(320) NOT NULL,
					tenant_id TEXT NOT NULL REFERENCES tenants(id) ON DELETE CASCADE,
					role VARCHAR(100) NOT NULL DEFAULT 'user',
					token VARCHAR(64) NOT NULL UNIQUE,
					invited_by TEXT,
					expires_at TIMESTAMP NOT NULL,
					accepted_at TIMESTAMP,
					created_at TIMESTAMP NOT NULL DEFAULT NOW()
				);

				CREATE INDEX idx_invitations_email ON invitations(email);
				CREATE INDEX idx_invitations_tenant_id ON invitations(tenant_id);
				CREATE INDEX idx_invitations_expires_at ON invitations(expires_at);
			`,
		},
		{
			Version:     7,
			Description: "Create permission_catalog table",
			SQL: `
				CREATE TABLE IF NOT EXISTS permission_catalog (
					key VARCHAR(100) PRIMARY KEY,
					description TEXT NOT NULL DEFAULT '',
					category VARCHAR(100) NOT NULL DEFAULT '',
					created_at TIMESTAMP NOT NULL DEFAULT NOW()
				);
			`,
		},
		{
			Version:     8,
			Description: "Seed permission catalog",
			SQL: `
				INSERT INTO permission_catalog (key, description, category) VALUES
					('image.view', 'View images and their metadata', 'images'),
					('image.rate', 'Rate and flag images', 'images'),
					('image.tag', 'Add and remove image keywords', 'images'),
					('image.note.edit', 'Edit image notes and captions', 'images'),
					('image.variant.manage', 'Manage image variants and renditions', 'images'),
					('assets.read', 'Read access to the asset catalog', 'assets'),
					('assets.write', 'Write access to the asset catalog', 'assets'),
					('keywords.read', 'Read the keyword vocabulary', 'keywords'),
					('keywords.write', 'Edit the keyword vocabulary', 'keywords'),
					('people.read', 'View recognized people', 'people'),
					('people.write', 'Edit recognized people', 'people'),
					('tenant.manage', 'Manage tenant settings', 'admin'),
					('members.manage', 'Manage tenant members and invitations', 'admin')
				ON CONFLICT (key) DO NOTHING;
			`,
		},
	}
}

// RunMigrations executes all pending migrations
func RunMigrations(ctx context.Context, db *sql.DB) error {
	_, err := db.ExecContext(ctx, `
		CREATE TABLE IF NOT EXISTS schema_migrations (
			version INT PRIMARY KEY,
			description TEXT NOT NULL,
			applied_at TIMESTAMP NOT NULL DEFAULT NOW()
		)
	`)
	if err != nil {
		return fmt.Errorf("failed to create migrations table: %w", err)
	}

	rows, err := db.QueryContext(ctx, "SELECT version FROM schema_migrations ORDER BY version")
	if err != nil {
		return fmt.Errorf("failed to query migrations: %w", err)
	}

	appliedVersions := make(map[int]bool)
	for rows.Next() {
		var version int
		if err := rows.Scan(&version); err != nil {
			rows.Close()
			return fmt.Errorf("failed to scan migration version: %w", err)
		}
		appliedVersions[version] = true
	}
	rows.Close()

	for _, migration := range GetMigrations() {
		if appliedVersions[migration.Version] {
			continue
		}

		tx, err := db.BeginTx(ctx, nil)
		if err != nil {
			return fmt.Errorf("failed to start transaction: %w", err)
		}

		if _, err := tx.ExecContext(ctx, migration.SQL); err != nil {
			tx.Rollback()
			return fmt.Errorf("failed to execute migration %d: %w", migration.Version, err)
		}

		if _, err := tx.ExecContext(ctx,
			"INSERT INTO schema_migrations (version, description) VALUES ($1, $2)",
			migration.Version, migration.Description,
		); err != nil {
			tx.Rollback()
			return fmt.Errorf("failed to record migration %d: %w", migration.Version, err)
		}

		if err := tx.Commit(); err != nil {
			return fmt.Errorf("failed to commit migration %d: %w", migration.Version, err)
		}
	}

	return nil
}
