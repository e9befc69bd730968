package api

import (
	"net/http"

	"github.com/gorilla/mux"

	"github.com/shuttertag/shuttertag/pkg/auth"
	"github.com/shuttertag/shuttertag/pkg/httputil"
	"github.com/shuttertag/shuttertag/pkg/middleware"
	"github.com/shuttertag/shuttertag/pkg/observability"
	"github.com/shuttertag/shuttertag/pkg/rbac"
	"github.com/shuttertag/shuttertag/pkg/tenants"
)

// Server wires the route handlers to their stores and guards.
type Server struct {
	router *mux.Router

	users       *auth.Store
	tenants     *tenants.Store
	roles       *rbac.Store
	resolver    *rbac.Resolver
	invalidator rbac.Invalidator

	authenticator  *middleware.Authenticator
	tenantResolver *middleware.TenantResolver

	logger  *observability.Logger
	metrics *observability.Metrics
}

// NewServer creates the API server and registers all routes.
func NewServer(
	users *auth.Store,
	tenantStore *tenants.Store,
	resolver *rbac.Resolver,
	invalidator rbac.Invalidator,
	authenticator *middleware.Authenticator,
	logger *observability.Logger,
	metrics *observability.Metrics,
) *Server {
	s := &Server{
		router:         mux.NewRouter(),
		users:          users,
		tenants:        tenantStore,
		roles:          resolver.Store(),
		resolver:       resolver,
		invalidator:    invalidator,
		authenticator:  authenticator,
		tenantResolver: middleware.NewTenantResolver(tenantStore),
		logger:         logger,
		metrics:        metrics,
	}
	s.setupRoutes()
	return s
}

// Router returns the configured HTTP handler.
func (s *Server) Router() http.Handler {
	return s.router
}

func (s *Server) setupRoutes() {
	s.router.Use(middleware.RequestLogger(s.logger, s.metrics))

	s.router.HandleFunc("/health", s.handleHealth).Methods("GET")

	api := s.router.PathPrefix("/api/v1").Subrouter()

	// Caller-scoped routes
	api.Handle("/me", s.authed(s.handleMe)).Methods("GET")
	api.Handle("/me/tenants", s.authed(s.handleMyTenants)).Methods("GET")
	api.Handle("/permissions/catalog", s.authed(s.handlePermissionCatalog)).Methods("GET")

	// Platform administration
	api.Handle("/tenants", s.superAdmin(s.handleCreateTenant)).Methods("POST")
	api.Handle("/tenants", s.superAdmin(s.handleListTenants)).Methods("GET")

	// Tenant-scoped routes; {tenant} accepts a UUID, identifier, or key prefix
	api.Handle("/tenants/{tenant}", s.member(s.handleGetTenant)).Methods("GET")
	api.Handle("/tenants/{tenant}", s.permitted(rbac.PermTenantManage, s.handleUpdateTenant)).Methods("PUT")
	api.Handle("/tenants/{tenant}/permissions", s.member(s.handleMyPermissions)).Methods("GET")

	api.Handle("/tenants/{tenant}/members", s.member(s.handleListMembers)).Methods("GET")
	api.Handle("/tenants/{tenant}/members/{subject_id}", s.permitted(rbac.PermMembersManage, s.handleUpdateMember)).Methods("PUT")
	api.Handle("/tenants/{tenant}/members/{subject_id}", s.permitted(rbac.PermMembersManage, s.handleRemoveMember)).Methods("DELETE")

	api.Handle("/tenants/{tenant}/invitations", s.permitted(rbac.PermMembersManage, s.handleCreateInvitation)).Methods("POST")
	api.Handle("/tenants/{tenant}/invitations", s.permitted(rbac.PermMembersManage, s.handleListInvitations)).Methods("GET")
	api.Handle("/tenants/{tenant}/invitations/{id}", s.permitted(rbac.PermMembersManage, s.handleRevokeInvitation)).Methods("DELETE")

	api.Handle("/tenants/{tenant}/roles", s.member(s.handleListRoles)).Methods("GET")
	api.Handle("/tenants/{tenant}/roles", s.permitted(rbac.PermTenantManage, s.handleCreateRole)).Methods("POST")
	api.Handle("/tenants/{tenant}/roles/{id}", s.member(s.handleGetRole)).Methods("GET")
	api.Handle("/tenants/{tenant}/roles/{id}", s.permitted(rbac.PermTenantManage, s.handleUpdateRole)).Methods("PUT")
	api.Handle("/tenants/{tenant}/roles/{id}", s.permitted(rbac.PermTenantManage, s.handleDeleteRole)).Methods("DELETE")
	api.Handle("/tenants/{tenant}/roles/{id}/permissions", s.permitted(rbac.PermTenantManage, s.handleSetRolePermissions)).Methods("PUT")
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	httputil.WriteSuccess(w, map[string]string{"status": "ok"})
}

// authed requires an authenticated caller.
func (s *Server) authed(h http.HandlerFunc) http.Handler {
	return s.authenticator.Required(h)
}

// superAdmin requires an authenticated platform operator.
func (s *Server) superAdmin(h http.HandlerFunc) http.Handler {
	return s.authenticator.Required(middleware.RequireSuperAdmin(h))
}

// member requires an authenticated, accepted member of the addressed
// tenant (super admins pass).
func (s *Server) member(h http.HandlerFunc) http.Handler {
	return s.authenticator.Required(
		s.tenantResolver.Handler(
			middleware.RequireTenantMember(s.tenants)(h),
		),
	)
}

// permitted requires the given permission in the addressed tenant (super
// admins pass, non-members are rejected outright).
func (s *Server) permitted(permission string, h http.HandlerFunc) http.Handler {
	return s.authenticator.Required(
		s.tenantResolver.Handler(
			middleware.RequirePermission(s.tenants, s.resolver, permission)(h),
		),
	)
}
