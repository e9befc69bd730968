package api

import (
	"net/http"

	"github.com/shuttertag/shuttertag/pkg/httputil"
	"github.com/shuttertag/shuttertag/pkg/middleware"
	"github.com/shuttertag/shuttertag/pkg/tenants"
)

// CreateTenantRequest is the payload for creating a tenant
type CreateTenantRequest struct {
	Identifier string                 `json:"identifier"`
	KeyPrefix  string                 `json:"key_prefix,omitempty"`
	Name       string                 `json:"name"`
	Settings   map[string]interface{} `json:"settings,omitempty"`
}

// UpdateTenantRequest is the payload for updating a tenant. Identifier and
// key prefix are immutable once created.
type UpdateTenantRequest struct {
	Name     *string                `json:"name,omitempty"`
	IsActive *bool                  `json:"is_active,omitempty"`
	Settings map[string]interface{} `json:"settings,omitempty"`
}

// handleCreateTenant creates a new tenant
func (s *Server) handleCreateTenant(w http.ResponseWriter, r *http.Request) {
	var req CreateTenantRequest
	if !httputil.ParseJSONOrError(w, r, &req) {
		return
	}
	if req.Identifier == "" || req.Name == "" {
		httputil.WriteBadRequest(w, "identifier and name are required")
		return
	}

	tenant := &tenants.Tenant{
		Identifier: req.Identifier,
		KeyPrefix:  req.KeyPrefix,
		Name:       req.Name,
		IsActive:   true,
		Settings:   req.Settings,
	}
	if err := s.tenants.Create(r.Context(), tenant); err != nil {
		httputil.WriteInternalError(w, err)
		return
	}
	httputil.WriteCreated(w, tenant)
}

// handleListTenants lists all tenants
func (s *Server) handleListTenants(w http.ResponseWriter, r *http.Request) {
	list, err := s.tenants.List(r.Context(), nil)
	if err != nil {
		httputil.WriteInternalError(w, err)
		return
	}
	httputil.WriteSuccess(w, list)
}

// handleGetTenant returns the resolved tenant
func (s *Server) handleGetTenant(w http.ResponseWriter, r *http.Request) {
	httputil.WriteSuccess(w, middleware.GetTenant(r))
}

// handleUpdateTenant updates the resolved tenant's mutable fields
func (s *Server) handleUpdateTenant(w http.ResponseWriter, r *http.Request) {
	tenant := middleware.GetTenant(r)

	var req UpdateTenantRequest
	if !httputil.ParseJSONOrError(w, r, &req) {
		return
	}

	if req.Name != nil {
		tenant.Name = *req.Name
	}
	if req.IsActive != nil {
		tenant.IsActive = *req.IsActive
	}
	if req.Settings != nil {
		tenant.Settings = req.Settings
	}

	if err := s.tenants.Update(r.Context(), tenant); err != nil {
		httputil.WriteInternalError(w, err)
		return
	}
	httputil.WriteSuccess(w, tenant)
}
