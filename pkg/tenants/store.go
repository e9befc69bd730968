package tenants

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
)

// Store handles tenant, membership and invitation persistence
type Store struct {
	db *sql.DB
}

// NewStore creates a new tenant store
func NewStore(db *sql.DB) *Store {
	return &Store{db: db}
}

// Resolve maps a caller-supplied tenant reference (canonical UUID, human
// identifier, or key prefix) to the tenant row. Returns (nil, nil) when no
// tenant matches any form; "not found" is the caller's decision to surface.
func (s *Store) Resolve(ctx context.Context, ref string) (*Tenant, error) {
	if ref == "" {
		return nil, nil
	}

	query := tenantSelect + ` WHERE id = $1 OR identifier = $1 OR key_prefix = $1 LIMIT 1`
	tenant, err := s.scanTenant(s.db.QueryRowContext(ctx, query, ref))
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to resolve tenant: %w", err)
	}
	return tenant, nil
}

// Get retrieves a tenant by canonical id
func (s *Store) Get(ctx context.Context, tenantID string) (*Tenant, error) {
	query := tenantSelect + ` WHERE id = $1`
	tenant, err := s.scanTenant(s.db.QueryRowContext(ctx, query, tenantID))
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get tenant: %w", err)
	}
	return tenant, nil
}

// List returns all tenants, optionally restricted to the given ids
func (s *Store) List(ctx context.Context, ids []string) ([]*Tenant, error) {
	query := tenantSelect + ` ORDER BY name ASC`
	rows, err := s.db.QueryContext(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("failed to list tenants: %w", err)
	}
	defer rows.Close()

	allowed := make(map[string]bool, len(ids))
	for _, id := range ids {
		allowed[id] = true
	}

	var tenants []*Tenant
	for rows.Next() {
		tenant, err := s.scanTenant(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan tenant: %w", err)
		}
		if len(ids) > 0 && !allowed[tenant.ID] {
			continue
		}
		tenants = append(tenants, tenant)
	}
	return tenants, rows.Err()
}

// Create inserts a new tenant, generating the UUID when unset
func (s *Store) Create(ctx context.Context, tenant *Tenant) error {
	if tenant.ID == "" {
		tenant.ID = uuid.NewString()
	}
	if tenant.KeyPrefix == "" {
		tenant.KeyPrefix = tenant.Identifier
	}

	settingsJSON, err := json.Marshal(tenant.Settings)
	if err != nil {
		return fmt.Errorf("failed to marshal settings: %w", err)
	}

	now := time.Now().UTC()
	query := `
		INSERT INTO tenants (id, identifier, key_prefix, name, is_active, settings, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
	`
	_, err = s.db.ExecContext(ctx, query,
		tenant.ID, tenant.Identifier, tenant.KeyPrefix, tenant.Name,
		tenant.IsActive, string(settingsJSON), now, now,
	)
	if err != nil {
		return fmt.Errorf("failed to create tenant: %w", err)
	}

	tenant.CreatedAt = now
	tenant.UpdatedAt = now
	return nil
}

// Update changes the mutable tenant fields (name, active flag, settings).
// Identifier and key prefix stay fixed after creation.
func (s *Store) Update(ctx context.Context, tenant *Tenant) error {
	settingsJSON, err := json.Marshal(tenant.Settings)
	if err != nil {
		return fmt.Errorf("failed to marshal settings: %w", err)
	}

	tenant.UpdatedAt = time.Now().UTC()
	query := `
		UPDATE tenants SET name = $1, is_active = $2, settings = $3, updated_at = $4
		WHERE id = $5
	`
	result, err := s.db.ExecContext(ctx, query,
		tenant.Name, tenant.IsActive, string(settingsJSON), tenant.UpdatedAt, tenant.ID,
	)
	if err != nil {
		return fmt.Errorf("failed to update tenant: %w", err)
	}
	rows, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to get rows affected: %w", err)
	}
	if rows == 0 {
		return fmt.Errorf("tenant not found")
	}
	return nil
}

const tenantSelect = `
	SELECT id, identifier, key_prefix, name, is_active, settings, created_at, updated_at
	FROM tenants`

type rowScanner interface {
	Scan(dest ...interface{}) error
}

func (s *Store) scanTenant(scanner rowScanner) (*Tenant, error) {
	var tenant Tenant
	var settingsJSON sql.NullString

	err := scanner.Scan(
		&tenant.ID,
		&tenant.Identifier,
		&tenant.KeyPrefix,
		&tenant.Name,
		&tenant.IsActive,
		&settingsJSON,
		&tenant.CreatedAt,
		&tenant.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}

	if settingsJSON.Valid && settingsJSON.String != "" {
		if err := json.Unmarshal([]byte(settingsJSON.String), &tenant.Settings); err != nil {
			tenant.Settings = nil
		}
	}
	return &tenant, nil
}
