package rbac

import (
	"context"
	"database/sql"
	"fmt"
	"time"
)

// Store handles database operations for roles, permission rows, and the
// permission catalog.
type Store struct {
	db *sql.DB
}

// NewStore creates a new RBAC store
func NewStore(db *sql.DB) *Store {
	return &Store{db: db}
}

// GetMemberRoleID returns the structured role id attached to subjectID's
// accepted membership in tenantID, or nil when the membership is missing,
// pending, carries no structured role, or the role is inactive or belongs
// to another tenant.
func (s *Store) GetMemberRoleID(ctx context.Context, tenantID, subjectID string) (*int64, error) {
	query := `
		SELECT ut.tenant_role_id
		FROM user_tenants ut
		JOIN tenant_roles tr ON tr.id = ut.tenant_role_id
		WHERE ut.subject_id = $1
		  AND ut.tenant_id = $2
		  AND ut.accepted_at IS NOT NULL
		  AND tr.tenant_id = ut.tenant_id
		  AND tr.is_active = TRUE
	`
	var roleID int64
	err := s.db.QueryRowContext(ctx, query, subjectID, tenantID).Scan(&roleID)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &roleID, nil
}

// CreateRole creates a tenant role
func (s *Store) CreateRole(ctx context.Context, role *TenantRole) error {
	now := time.Now().UTC()
	role.CreatedAt = now
	role.UpdatedAt = now

	query := `
		INSERT INTO tenant_roles (tenant_id, role_key, name, description, is_system, is_active, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
		RETURNING id
	`
	err := s.db.QueryRowContext(ctx, query,
		role.TenantID, role.RoleKey, role.Name, role.Description,
		role.IsSystem, role.IsActive, role.CreatedAt, role.UpdatedAt,
	).Scan(&role.ID)
	if err != nil {
		return fmt.Errorf("failed to create role: %w", err)
	}
	return nil
}

// GetRole retrieves a role by id within a tenant
func (s *Store) GetRole(ctx context.Context, tenantID string, id int64) (*TenantRole, error) {
	query := roleSelect + ` WHERE id = $1 AND tenant_id = $2`
	role, err := scanRole(s.db.QueryRowContext(ctx, query, id, tenantID))
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get role: %w", err)
	}
	return role, nil
}

// GetRoleByKey retrieves a role by its key within a tenant
func (s *Store) GetRoleByKey(ctx context.Context, tenantID, roleKey string) (*TenantRole, error) {
	query := roleSelect + ` WHERE tenant_id = $1 AND role_key = $2`
	role, err := scanRole(s.db.QueryRowContext(ctx, query, tenantID, roleKey))
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get role: %w", err)
	}
	return role, nil
}

// ListRoles lists a tenant's roles
func (s *Store) ListRoles(ctx context.Context, tenantID string) ([]*TenantRole, error) {
	query := roleSelect + ` WHERE tenant_id = $1 ORDER BY role_key ASC`
	rows, err := s.db.QueryContext(ctx, query, tenantID)
	if err != nil {
		return nil, fmt.Errorf("failed to list roles: %w", err)
	}
	defer rows.Close()

	var roles []*TenantRole
	for rows.Next() {
		role, err := scanRole(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan role: %w", err)
		}
		roles = append(roles, role)
	}
	return roles, rows.Err()
}

// UpdateRole updates a role's name, description, and active flag
func (s *Store) UpdateRole(ctx context.Context, role *TenantRole) error {
	role.UpdatedAt = time.Now().UTC()
	query := `
		UPDATE tenant_roles
		SET name = $1, description = $2, is_active = $3, updated_at = $4
		WHERE id = $5 AND tenant_id = $6
	`
	result, err := s.db.ExecContext(ctx, query,
		role.Name, role.Description, role.IsActive, role.UpdatedAt,
		role.ID, role.TenantID,
	)
	if err != nil {
		return fmt.Errorf("failed to update role: %w", err)
	}
	rows, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to get rows affected: %w", err)
	}
	if rows == 0 {
		return fmt.Errorf("role not found")
	}
	return nil
}

// DeleteRole removes a custom role. System roles cannot be deleted.
func (s *Store) DeleteRole(ctx context.Context, tenantID string, id int64) error {
	query := `DELETE FROM tenant_roles WHERE id = $1 AND tenant_id = $2 AND is_system = FALSE`
	result, err := s.db.ExecContext(ctx, query, id, tenantID)
	if err != nil {
		return fmt.Errorf("failed to delete role: %w", err)
	}
	rows, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to get rows affected: %w", err)
	}
	if rows == 0 {
		return fmt.Errorf("role not found or is a system role")
	}
	return nil
}

// ListRolePermissions returns the raw allow/deny rows of a role, scoped to
// the tenant and only while the role is active.
func (s *Store) ListRolePermissions(ctx context.Context, tenantID string, roleID int64) ([]*RolePermission, error) {
	query := `
		SELECT rp.id, rp.role_id, rp.permission_key, rp.effect, rp.created_at
		FROM role_permissions rp
		JOIN tenant_roles tr ON tr.id = rp.role_id
		WHERE rp.role_id = $1 AND tr.tenant_id = $2 AND tr.is_active = TRUE
		ORDER BY rp.permission_key ASC
	`
	rows, err := s.db.QueryContext(ctx, query, roleID, tenantID)
	if err != nil {
		return nil, fmt.Errorf("failed to list role permissions: %w", err)
	}
	defer rows.Close()

	var perms []*RolePermission
	for rows.Next() {
		var p RolePermission
		if err := rows.Scan(&p.ID, &p.RoleID, &p.PermissionKey, &p.Effect, &p.CreatedAt); err != nil {
			return nil, fmt.Errorf("failed to scan role permission: %w", err)
		}
		perms = append(perms, &p)
	}
	return perms, rows.Err()
}

// SetRolePermissions replaces a role's permission rows in one transaction.
func (s *Store) SetRolePermissions(ctx context.Context, tenantID string, roleID int64, perms []*RolePermission) error {
	role, err := s.GetRole(ctx, tenantID, roleID)
	if err != nil {
		return err
	}
	if role == nil {
		return fmt.Errorf("role not found")
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	if _, err := tx.ExecContext(ctx, `DELETE FROM role_permissions WHERE role_id = $1`, roleID); err != nil {
		return fmt.Errorf("failed to clear role permissions: %w", err)
	}

	now := time.Now().UTC()
	for _, p := range perms {
		if p.Effect != EffectAllow && p.Effect != EffectDeny {
			return fmt.Errorf("invalid effect %q for permission %q", p.Effect, p.PermissionKey)
		}
		_, err := tx.ExecContext(ctx,
			`INSERT INTO role_permissions (role_id, permission_key, effect, created_at) VALUES ($1, $2, $3, $4)`,
			roleID, p.PermissionKey, p.Effect, now,
		)
		if err != nil {
			return fmt.Errorf("failed to insert role permission: %w", err)
		}
	}

	return tx.Commit()
}

// ListCatalog returns all known permission keys
func (s *Store) ListCatalog(ctx context.Context) ([]*CatalogEntry, error) {
	query := `SELECT key, description, category, created_at FROM permission_catalog ORDER BY category, key`
	rows, err := s.db.QueryContext(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("failed to list permission catalog: %w", err)
	}
	defer rows.Close()

	var entries []*CatalogEntry
	for rows.Next() {
		var e CatalogEntry
		if err := rows.Scan(&e.Key, &e.Description, &e.Category, &e.CreatedAt); err != nil {
			return nil, fmt.Errorf("failed to scan catalog entry: %w", err)
		}
		entries = append(entries, &e)
	}
	return entries, rows.Err()
}

const roleSelect = `
	SELECT id, tenant_id, role_key, name, description, is_system, is_active, created_at, updated_at
	FROM tenant_roles`

func scanRole(scanner interface {
	Scan(dest ...interface{}) error
}) (*TenantRole, error) {
	var role TenantRole
	var description sql.NullString

	err := scanner.Scan(
		&role.ID,
		&role.TenantID,
		&role.RoleKey,
		&role.Name,
		&description,
		&role.IsSystem,
		&role.IsActive,
		&role.CreatedAt,
		&role.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	if description.Valid {
		role.Description = description.String
	}
	return &role, nil
}
