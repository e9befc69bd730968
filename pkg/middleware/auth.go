package middleware

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/shuttertag/shuttertag/pkg/auth"
	"github.com/shuttertag/shuttertag/pkg/contextkeys"
	"github.com/shuttertag/shuttertag/pkg/httputil"
	"github.com/shuttertag/shuttertag/pkg/observability"
	"github.com/shuttertag/shuttertag/pkg/rbac"
	"github.com/shuttertag/shuttertag/pkg/tenants"
)

// PermissionResolver is the subset of the RBAC resolver the guards need.
type PermissionResolver interface {
	Allowed(ctx context.Context, tenantID, subjectID, permission string) (bool, error)
}

// Authenticator turns bearer tokens into an auth context. Beyond verifying
// the token it loads the caller's profile, claims any pending invitations
// for their email, enforces the active-account gate, and records last
// login at most once an hour.
type Authenticator struct {
	verifier    auth.TokenVerifier
	users       *auth.Store
	memberships *tenants.Store
	invalidator rbac.Invalidator
	metrics     *observability.Metrics
	logger      *observability.Logger
}

// NewAuthenticator creates the authentication middleware.
func NewAuthenticator(
	verifier auth.TokenVerifier,
	users *auth.Store,
	memberships *tenants.Store,
	invalidator rbac.Invalidator,
	metrics *observability.Metrics,
	logger *observability.Logger,
) *Authenticator {
	return &Authenticator{
		verifier:    verifier,
		users:       users,
		memberships: memberships,
		invalidator: invalidator,
		metrics:     metrics,
		logger:      logger,
	}
}

// Required wraps a handler that needs an authenticated caller. Failures
// map to 401 (missing or bad token), 404 (no profile yet), or 403
// (account not activated).
func (a *Authenticator) Required(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		authCtx, err := a.authenticate(r)
		if err != nil {
			a.countAttempt(outcomeOf(err))
			writeAuthError(w, err)
			return
		}
		a.countAttempt("ok")
		next.ServeHTTP(w, r.WithContext(contextkeys.WithAuth(r.Context(), authCtx)))
	})
}

// Optional wraps a handler that serves both anonymous and authenticated
// callers. Without a bearer token the request proceeds unauthenticated; a
// token that is present but unusable is treated the same way rather than
// failing a public endpoint.
func (a *Authenticator) Optional(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if httputil.BearerToken(r) == "" {
			next.ServeHTTP(w, r)
			return
		}
		authCtx, err := a.authenticate(r)
		if err != nil {
			a.countAttempt(outcomeOf(err))
			if a.logger != nil {
				a.logger.WithError(err).Debug("Ignoring unusable credentials on optional-auth route")
			}
			next.ServeHTTP(w, r)
			return
		}
		a.countAttempt("ok")
		next.ServeHTTP(w, r.WithContext(contextkeys.WithAuth(r.Context(), authCtx)))
	})
}

func (a *Authenticator) authenticate(r *http.Request) (*auth.AuthContext, error) {
	ctx := r.Context()

	token := httputil.BearerToken(r)
	if token == "" {
		return nil, auth.Unauthorized("Authentication required")
	}

	claims, err := a.verifier.Verify(ctx, token)
	if err != nil {
		return nil, err
	}

	user, err := a.users.GetBySubject(ctx, claims.Subject)
	if err != nil {
		return nil, fmt.Errorf("failed to load user profile: %w", err)
	}
	if user == nil {
		return nil, auth.NotFound("User profile not found. Please complete registration.")
	}

	changed, err := a.memberships.ClaimPendingInvitations(ctx, user)
	if err != nil {
		return nil, fmt.Errorf("failed to claim invitations: %w", err)
	}
	for _, tenantID := range changed {
		if a.invalidator != nil {
			if err := a.invalidator.Invalidate(ctx, user.SubjectID, tenantID); err != nil && a.logger != nil {
				a.logger.WithError(err).WithField("tenant_id", tenantID).Warn("Failed to invalidate permission cache after invitation claim")
			}
		}
		if a.metrics != nil {
			a.metrics.InvitationsClaimedTotal.Inc()
		}
	}

	if !user.IsActive {
		return nil, auth.Forbidden("Account pending admin approval")
	}

	now := time.Now().UTC()
	if user.ShouldTouchLastLogin(now) {
		if err := a.users.TouchLastLogin(ctx, user.SubjectID, now); err != nil {
			if a.logger != nil {
				a.logger.WithError(err).Warn("Failed to record last login")
			}
		} else {
			user.LastLoginAt = &now
		}
	}

	return &auth.AuthContext{User: user, Claims: claims}, nil
}

func (a *Authenticator) countAttempt(outcome string) {
	if a.metrics != nil {
		a.metrics.AuthAttemptsTotal.WithLabelValues(outcome).Inc()
	}
}

func outcomeOf(err error) string {
	switch auth.StatusOf(err) {
	case http.StatusUnauthorized:
		return "unauthorized"
	case http.StatusForbidden:
		return "forbidden"
	case http.StatusNotFound:
		return "not_found"
	default:
		return "error"
	}
}

// GetAuthContext extracts the auth context from a request, or nil when the
// request is unauthenticated.
func GetAuthContext(r *http.Request) *auth.AuthContext {
	v := r.Context().Value(contextkeys.AuthKey)
	if v == nil {
		return nil
	}
	authCtx, ok := v.(*auth.AuthContext)
	if !ok {
		return nil
	}
	return authCtx
}

// RequireSuperAdmin restricts a route to platform operators.
func RequireSuperAdmin(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		authCtx := GetAuthContext(r)
		if authCtx == nil {
			httputil.WriteUnauthorized(w, "Authentication required")
			return
		}
		if !authCtx.User.IsSuperAdmin {
			httputil.WriteForbidden(w, "Super admin role required")
			return
		}
		next.ServeHTTP(w, r)
	})
}

// RequireTenantMember restricts a route to accepted members of the
// tenant already resolved on the request. Super admins bypass the
// membership check.
func RequireTenantMember(memberships *tenants.Store) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			authCtx := GetAuthContext(r)
			if authCtx == nil {
				httputil.WriteUnauthorized(w, "Authentication required")
				return
			}
			tenant := GetTenant(r)
			if tenant == nil {
				httputil.WriteNotFound(w, "Tenant not found")
				return
			}
			if authCtx.User.IsSuperAdmin {
				next.ServeHTTP(w, r)
				return
			}
			membership, err := memberships.GetAcceptedMembership(r.Context(), authCtx.User.SubjectID, tenant.ID)
			if err != nil {
				httputil.WriteInternalError(w, err)
				return
			}
			if membership == nil {
				httputil.WriteForbidden(w, fmt.Sprintf("No access to tenant %s", tenant.ID))
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}

// RequirePermission restricts a route to accepted members holding the
// given permission in the resolved tenant. Super admins bypass the check;
// non-members are rejected before permission resolution so they get the
// same response as on member-only routes.
func RequirePermission(memberships *tenants.Store, resolver PermissionResolver, permission string) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			authCtx := GetAuthContext(r)
			if authCtx == nil {
				httputil.WriteUnauthorized(w, "Authentication required")
				return
			}
			tenant := GetTenant(r)
			if tenant == nil {
				httputil.WriteNotFound(w, "Tenant not found")
				return
			}
			if authCtx.User.IsSuperAdmin {
				next.ServeHTTP(w, r)
				return
			}
			membership, err := memberships.GetAcceptedMembership(r.Context(), authCtx.User.SubjectID, tenant.ID)
			if err != nil {
				httputil.WriteInternalError(w, err)
				return
			}
			if membership == nil {
				httputil.WriteForbidden(w, fmt.Sprintf("No access to tenant %s", tenant.ID))
				return
			}
			allowed, err := resolver.Allowed(r.Context(), tenant.ID, authCtx.User.SubjectID, permission)
			if err != nil {
				httputil.WriteInternalError(w, err)
				return
			}
			if !allowed {
				httputil.WriteForbidden(w, fmt.Sprintf("Permission required: %s", permission))
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}

func writeAuthError(w http.ResponseWriter, err error) {
	status := auth.StatusOf(err)
	switch status {
	case http.StatusUnauthorized:
		httputil.WriteUnauthorized(w, err.Error())
	case http.StatusForbidden:
		httputil.WriteForbidden(w, err.Error())
	case http.StatusNotFound:
		httputil.WriteNotFound(w, err.Error())
	default:
		httputil.WriteInternalError(w, err)
	}
}
