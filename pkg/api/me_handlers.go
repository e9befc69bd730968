package api

import (
	"net/http"
	"sort"

	"github.com/shuttertag/shuttertag/pkg/httputil"
	"github.com/shuttertag/shuttertag/pkg/middleware"
)

// handleMe returns the caller's own profile
func (s *Server) handleMe(w http.ResponseWriter, r *http.Request) {
	authCtx := middleware.GetAuthContext(r)
	httputil.WriteSuccess(w, authCtx.User)
}

// handleMyTenants returns the tenants the caller is an accepted member of
func (s *Server) handleMyTenants(w http.ResponseWriter, r *http.Request) {
	authCtx := middleware.GetAuthContext(r)

	memberships, err := s.tenants.ListMembershipsForSubject(r.Context(), authCtx.User.SubjectID)
	if err != nil {
		httputil.WriteInternalError(w, err)
		return
	}

	ids := make([]string, 0, len(memberships))
	for _, m := range memberships {
		ids = append(ids, m.TenantID)
	}
	if len(ids) == 0 {
		httputil.WriteSuccess(w, []struct{}{})
		return
	}

	list, err := s.tenants.List(r.Context(), ids)
	if err != nil {
		httputil.WriteInternalError(w, err)
		return
	}
	httputil.WriteSuccess(w, list)
}

// handleMyPermissions returns the caller's effective permission keys in
// the addressed tenant, sorted for stable output
func (s *Server) handleMyPermissions(w http.ResponseWriter, r *http.Request) {
	authCtx := middleware.GetAuthContext(r)
	tenant := middleware.GetTenant(r)

	perms, err := s.resolver.EffectivePermissions(r.Context(), tenant.ID, authCtx.User.SubjectID)
	if err != nil {
		httputil.WriteInternalError(w, err)
		return
	}

	keys := make([]string, 0, len(perms))
	for key := range perms {
		keys = append(keys, key)
	}
	sort.Strings(keys)

	httputil.WriteSuccess(w, map[string]interface{}{
		"tenant_id":   tenant.ID,
		"permissions": keys,
	})
}

// handlePermissionCatalog returns all known permission keys
func (s *Server) handlePermissionCatalog(w http.ResponseWriter, r *http.Request) {
	entries, err := s.roles.ListCatalog(r.Context())
	if err != nil {
		httputil.WriteInternalError(w, err)
		return
	}
	httputil.WriteSuccess(w, entries)
}
