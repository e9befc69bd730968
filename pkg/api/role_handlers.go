package api

import (
	"net/http"
	"strconv"

	"github.com/gorilla/mux"

	"github.com/shuttertag/shuttertag/pkg/httputil"
	"github.com/shuttertag/shuttertag/pkg/middleware"
	"github.com/shuttertag/shuttertag/pkg/rbac"
)

// CreateRoleRequest is the payload for creating a tenant role
type CreateRoleRequest struct {
	RoleKey     string `json:"role_key"`
	Name        string `json:"name"`
	Description string `json:"description,omitempty"`
}

// UpdateRoleRequest is the payload for updating a tenant role
type UpdateRoleRequest struct {
	Name        *string `json:"name,omitempty"`
	Description *string `json:"description,omitempty"`
	IsActive    *bool   `json:"is_active,omitempty"`
}

// RolePermissionInput is one allow/deny row in a permission update
type RolePermissionInput struct {
	PermissionKey string `json:"permission_key"`
	Effect        string `json:"effect"`
}

// SetRolePermissionsRequest replaces a role's permission rows
type SetRolePermissionsRequest struct {
	Permissions []RolePermissionInput `json:"permissions"`
}

// handleListRoles lists the tenant's roles
func (s *Server) handleListRoles(w http.ResponseWriter, r *http.Request) {
	tenant := middleware.GetTenant(r)

	roles, err := s.roles.ListRoles(r.Context(), tenant.ID)
	if err != nil {
		httputil.WriteInternalError(w, err)
		return
	}
	httputil.WriteSuccess(w, roles)
}

// handleCreateRole creates a tenant role
func (s *Server) handleCreateRole(w http.ResponseWriter, r *http.Request) {
	tenant := middleware.GetTenant(r)

	var req CreateRoleRequest
	if !httputil.ParseJSONOrError(w, r, &req) {
		return
	}
	if req.RoleKey == "" || req.Name == "" {
		httputil.WriteBadRequest(w, "role_key and name are required")
		return
	}

	role := &rbac.TenantRole{
		TenantID:    tenant.ID,
		RoleKey:     req.RoleKey,
		Name:        req.Name,
		Description: req.Description,
		IsActive:    true,
	}
	if err := s.roles.CreateRole(r.Context(), role); err != nil {
		httputil.WriteInternalError(w, err)
		return
	}
	httputil.WriteCreated(w, role)
}

// handleGetRole returns a role with its permission rows
func (s *Server) handleGetRole(w http.ResponseWriter, r *http.Request) {
	tenant := middleware.GetTenant(r)
	id, ok := parseRoleID(w, r)
	if !ok {
		return
	}

	role, err := s.roles.GetRole(r.Context(), tenant.ID, id)
	if err != nil {
		httputil.WriteInternalError(w, err)
		return
	}
	if role == nil {
		httputil.WriteNotFound(w, "Role not found")
		return
	}

	perms, err := s.roles.ListRolePermissions(r.Context(), tenant.ID, role.ID)
	if err != nil {
		httputil.WriteInternalError(w, err)
		return
	}

	httputil.WriteSuccess(w, map[string]interface{}{
		"role":        role,
		"permissions": perms,
	})
}

// handleUpdateRole updates a role and invalidates the tenant's cached
// permissions. Deactivating a role immediately revokes it for every
// member holding it.
func (s *Server) handleUpdateRole(w http.ResponseWriter, r *http.Request) {
	tenant := middleware.GetTenant(r)
	id, ok := parseRoleID(w, r)
	if !ok {
		return
	}

	role, err := s.roles.GetRole(r.Context(), tenant.ID, id)
	if err != nil {
		httputil.WriteInternalError(w, err)
		return
	}
	if role == nil {
		httputil.WriteNotFound(w, "Role not found")
		return
	}

	var req UpdateRoleRequest
	if !httputil.ParseJSONOrError(w, r, &req) {
		return
	}
	if req.Name != nil {
		role.Name = *req.Name
	}
	if req.Description != nil {
		role.Description = *req.Description
	}
	if req.IsActive != nil {
		role.IsActive = *req.IsActive
	}

	if err := s.roles.UpdateRole(r.Context(), role); err != nil {
		httputil.WriteInternalError(w, err)
		return
	}
	s.invalidate(r, "", tenant.ID)
	httputil.WriteSuccess(w, role)
}

// handleDeleteRole deletes a custom role
func (s *Server) handleDeleteRole(w http.ResponseWriter, r *http.Request) {
	tenant := middleware.GetTenant(r)
	id, ok := parseRoleID(w, r)
	if !ok {
		return
	}

	if err := s.roles.DeleteRole(r.Context(), tenant.ID, id); err != nil {
		httputil.WriteNotFound(w, "Role not found or is a system role")
		return
	}
	s.invalidate(r, "", tenant.ID)
	httputil.WriteNoContent(w)
}

// handleSetRolePermissions replaces a role's allow/deny rows and
// invalidates the tenant's cached permissions
func (s *Server) handleSetRolePermissions(w http.ResponseWriter, r *http.Request) {
	tenant := middleware.GetTenant(r)
	id, ok := parseRoleID(w, r)
	if !ok {
		return
	}

	var req SetRolePermissionsRequest
	if !httputil.ParseJSONOrError(w, r, &req) {
		return
	}

	perms := make([]*rbac.RolePermission, 0, len(req.Permissions))
	for _, p := range req.Permissions {
		if p.PermissionKey == "" {
			httputil.WriteBadRequest(w, "permission_key is required")
			return
		}
		effect := p.Effect
		if effect == "" {
			effect = rbac.EffectAllow
		}
		perms = append(perms, &rbac.RolePermission{
			PermissionKey: p.PermissionKey,
			Effect:        effect,
		})
	}

	if err := s.roles.SetRolePermissions(r.Context(), tenant.ID, id, perms); err != nil {
		httputil.WriteBadRequest(w, err.Error())
		return
	}
	s.invalidate(r, "", tenant.ID)

	updated, err := s.roles.ListRolePermissions(r.Context(), tenant.ID, id)
	if err != nil {
		httputil.WriteInternalError(w, err)
		return
	}
	httputil.WriteSuccess(w, updated)
}

func parseRoleID(w http.ResponseWriter, r *http.Request) (int64, bool) {
	id, err := strconv.ParseInt(mux.Vars(r)["id"], 10, 64)
	if err != nil {
		httputil.WriteBadRequest(w, "Invalid role ID")
		return 0, false
	}
	return id, true
}
