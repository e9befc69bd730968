package rbac

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRoleCRUD(t *testing.T) {
	db := setupTestDB(t)
	ctx := context.Background()
	store := NewStore(db)

	insertTenant(t, db, "t1")

	role := &TenantRole{
		TenantID:    "t1",
		RoleKey:     "curator",
		Name:        "Curator",
		Description: "Curates the photo catalog",
		IsActive:    true,
	}
	require.NoError(t, store.CreateRole(ctx, role))
	assert.NotZero(t, role.ID)

	got, err := store.GetRole(ctx, "t1", role.ID)
	require.NoError(t, err)
	require.NotNil(t, got)
	assert.Equal(t, "curator", got.RoleKey)
	assert.Equal(t, "Curates the photo catalog", got.Description)

	byKey, err := store.GetRoleByKey(ctx, "t1", "curator")
	require.NoError(t, err)
	require.NotNil(t, byKey)
	assert.Equal(t, role.ID, byKey.ID)

	// Lookup scoped to the wrong tenant misses
	miss, err := store.GetRole(ctx, "t2", role.ID)
	require.NoError(t, err)
	assert.Nil(t, miss)

	role.Name = "Senior Curator"
	role.IsActive = false
	require.NoError(t, store.UpdateRole(ctx, role))

	got, err = store.GetRole(ctx, "t1", role.ID)
	require.NoError(t, err)
	assert.Equal(t, "Senior Curator", got.Name)
	assert.False(t, got.IsActive)

	require.NoError(t, store.DeleteRole(ctx, "t1", role.ID))
	got, err = store.GetRole(ctx, "t1", role.ID)
	require.NoError(t, err)
	assert.Nil(t, got)
}

func TestDeleteRoleRefusesSystemRoles(t *testing.T) {
	db := setupTestDB(t)
	ctx := context.Background()
	store := NewStore(db)

	insertTenant(t, db, "t1")
	role := &TenantRole{TenantID: "t1", RoleKey: "owner", Name: "Owner", IsSystem: true, IsActive: true}
	require.NoError(t, store.CreateRole(ctx, role))

	assert.Error(t, store.DeleteRole(ctx, "t1", role.ID))
}

func TestSetRolePermissionsReplacesRows(t *testing.T) {
	db := setupTestDB(t)
	ctx := context.Background()
	store := NewStore(db)

	insertTenant(t, db, "t1")
	roleID := insertRole(t, db, "t1", "editor", map[string]string{
		PermAssetsRead: EffectAllow,
	})

	err := store.SetRolePermissions(ctx, "t1", roleID, []*RolePermission{
		{PermissionKey: PermKeywordsRead, Effect: EffectAllow},
		{PermissionKey: PermKeywordsWrite, Effect: EffectDeny},
	})
	require.NoError(t, err)

	perms, err := store.ListRolePermissions(ctx, "t1", roleID)
	require.NoError(t, err)
	require.Len(t, perms, 2)
	assert.Equal(t, PermKeywordsRead, perms[0].PermissionKey)
	assert.Equal(t, EffectAllow, perms[0].Effect)
	assert.Equal(t, PermKeywordsWrite, perms[1].PermissionKey)
	assert.Equal(t, EffectDeny, perms[1].Effect)
}

func TestSetRolePermissionsRejectsBadEffect(t *testing.T) {
	db := setupTestDB(t)
	ctx := context.Background()
	store := NewStore(db)

	insertTenant(t, db, "t1")
	roleID := insertRole(t, db, "t1", "editor", nil)

	err := store.SetRolePermissions(ctx, "t1", roleID, []*RolePermission{
		{PermissionKey: PermAssetsRead, Effect: "maybe"},
	})
	require.Error(t, err)

	// The transaction rolled back; nothing was written
	perms, err := store.ListRolePermissions(ctx, "t1", roleID)
	require.NoError(t, err)
	assert.Empty(t, perms)
}

func TestGetMemberRoleID(t *testing.T) {
	db := setupTestDB(t)
	ctx := context.Background()
	store := NewStore(db)

	insertTenant(t, db, "t1")
	roleID := insertRole(t, db, "t1", "editor", nil)
	insertMember(t, db, "alice", "t1", &roleID, true)
	insertMember(t, db, "bob", "t1", nil, true)
	insertMember(t, db, "carol", "t1", &roleID, false)

	got, err := store.GetMemberRoleID(ctx, "t1", "alice")
	require.NoError(t, err)
	require.NotNil(t, got)
	assert.Equal(t, roleID, *got)

	got, err = store.GetMemberRoleID(ctx, "t1", "bob")
	require.NoError(t, err)
	assert.Nil(t, got, "legacy free-text role carries no structured role id")

	got, err = store.GetMemberRoleID(ctx, "t1", "carol")
	require.NoError(t, err)
	assert.Nil(t, got, "pending membership carries no role")
}

func TestListCatalog(t *testing.T) {
	db := setupTestDB(t)
	ctx := context.Background()
	store := NewStore(db)

	_, err := db.Exec(`INSERT INTO permission_catalog (key, description, category) VALUES
		('assets.read', 'Read access', 'assets'),
		('assets.write', 'Write access', 'assets'),
		('tenant.manage', 'Manage tenant', 'admin')`)
	require.NoError(t, err)

	entries, err := store.ListCatalog(ctx)
	require.NoError(t, err)
	require.Len(t, entries, 3)
	assert.Equal(t, "tenant.manage", entries[0].Key, "sorted by category then key")
}
