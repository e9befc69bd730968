package api

import (
	"net/http"
	"strconv"

	"github.com/gorilla/mux"

	"github.com/shuttertag/shuttertag/pkg/httputil"
	"github.com/shuttertag/shuttertag/pkg/middleware"
	"github.com/shuttertag/shuttertag/pkg/observability"
	"github.com/shuttertag/shuttertag/pkg/tenants"
)

// UpdateMemberRequest changes a member's role within a tenant
type UpdateMemberRequest struct {
	Role string `json:"role"`
}

// CreateInvitationRequest invites an email address into a tenant
type CreateInvitationRequest struct {
	Email string `json:"email"`
	Role  string `json:"role,omitempty"`
}

// handleListMembers lists the tenant's accepted members
func (s *Server) handleListMembers(w http.ResponseWriter, r *http.Request) {
	tenant := middleware.GetTenant(r)

	members, err := s.tenants.ListMembers(r.Context(), tenant.ID)
	if err != nil {
		httputil.WriteInternalError(w, err)
		return
	}
	httputil.WriteSuccess(w, members)
}

// handleUpdateMember changes a member's role. The role key must name a
// structured role of this tenant; the member's cached permissions are
// invalidated on success.
func (s *Server) handleUpdateMember(w http.ResponseWriter, r *http.Request) {
	tenant := middleware.GetTenant(r)
	subjectID := mux.Vars(r)["subject_id"]

	var req UpdateMemberRequest
	if !httputil.ParseJSONOrError(w, r, &req) {
		return
	}
	if req.Role == "" {
		httputil.WriteBadRequest(w, "role is required")
		return
	}

	role, err := s.roles.GetRoleByKey(r.Context(), tenant.ID, req.Role)
	if err != nil {
		httputil.WriteInternalError(w, err)
		return
	}
	var tenantRoleID *int64
	if role != nil {
		tenantRoleID = &role.ID
	}

	if err := s.tenants.UpdateMemberRole(r.Context(), tenant.ID, subjectID, req.Role, tenantRoleID); err != nil {
		httputil.WriteNotFound(w, "Member not found")
		return
	}
	s.invalidate(r, subjectID, tenant.ID)

	membership, err := s.tenants.GetMembership(r.Context(), subjectID, tenant.ID)
	if err != nil {
		httputil.WriteInternalError(w, err)
		return
	}
	httputil.WriteSuccess(w, membership)
}

// handleRemoveMember removes a member from the tenant
func (s *Server) handleRemoveMember(w http.ResponseWriter, r *http.Request) {
	tenant := middleware.GetTenant(r)
	subjectID := mux.Vars(r)["subject_id"]

	if err := s.tenants.RemoveMember(r.Context(), tenant.ID, subjectID); err != nil {
		httputil.WriteNotFound(w, "Member not found")
		return
	}
	s.invalidate(r, subjectID, tenant.ID)
	httputil.WriteNoContent(w)
}

// handleCreateInvitation invites an email address into the tenant. The
// invitation is claimed automatically the next time its recipient
// authenticates.
func (s *Server) handleCreateInvitation(w http.ResponseWriter, r *http.Request) {
	tenant := middleware.GetTenant(r)
	authCtx := middleware.GetAuthContext(r)

	var req CreateInvitationRequest
	if !httputil.ParseJSONOrError(w, r, &req) {
		return
	}
	if req.Email == "" {
		httputil.WriteBadRequest(w, "email is required")
		return
	}

	inv := &tenants.Invitation{
		Email:     req.Email,
		TenantID:  tenant.ID,
		Role:      req.Role,
		InvitedBy: &authCtx.User.SubjectID,
	}
	if err := s.tenants.CreateInvitation(r.Context(), inv); err != nil {
		httputil.WriteInternalError(w, err)
		return
	}
	httputil.WriteCreated(w, inv)
}

// handleListInvitations lists the tenant's pending invitations
func (s *Server) handleListInvitations(w http.ResponseWriter, r *http.Request) {
	tenant := middleware.GetTenant(r)

	invitations, err := s.tenants.ListInvitations(r.Context(), tenant.ID)
	if err != nil {
		httputil.WriteInternalError(w, err)
		return
	}
	httputil.WriteSuccess(w, invitations)
}

// handleRevokeInvitation revokes a pending invitation
func (s *Server) handleRevokeInvitation(w http.ResponseWriter, r *http.Request) {
	id, err := strconv.ParseInt(mux.Vars(r)["id"], 10, 64)
	if err != nil {
		httputil.WriteBadRequest(w, "Invalid invitation ID")
		return
	}

	if err := s.tenants.RevokeInvitation(r.Context(), id); err != nil {
		httputil.WriteNotFound(w, "Invitation not found")
		return
	}
	httputil.WriteNoContent(w)
}

// invalidate drops cached permissions for the scope, logging rather than
// failing the request when the broadcast cannot be delivered.
func (s *Server) invalidate(r *http.Request, subjectID, tenantID string) {
	if s.invalidator == nil {
		return
	}
	if err := s.invalidator.Invalidate(r.Context(), subjectID, tenantID); err != nil {
		observability.FromContext(r.Context()).WithError(err).Warn("Failed to invalidate permission cache")
	}
}
