package auth

import (
	"net/http"
	"strings"
	"time"
)

// UserProfile is one row per authenticated identity, keyed by the token's
// stable subject claim.
type UserProfile struct {
	SubjectID     string     `json:"subject_id"`
	Email         string     `json:"email"`
	EmailVerified bool       `json:"email_verified"`
	DisplayName   string     `json:"display_name"`
	IsActive      bool       `json:"is_active"`
	IsSuperAdmin  bool       `json:"is_super_admin"`
	LastLoginAt   *time.Time `json:"last_login_at,omitempty"`
	CreatedAt     time.Time  `json:"created_at"`
	UpdatedAt     time.Time  `json:"updated_at"`
}

// NormalizedEmail returns the profile email trimmed and lowercased, the form
// used for invitation matching.
func (u *UserProfile) NormalizedEmail() string {
	return strings.ToLower(strings.TrimSpace(u.Email))
}

// lastLoginThrottle bounds last-login writes to one per hour.
const lastLoginThrottle = time.Hour

// ShouldTouchLastLogin reports whether the last-login timestamp is stale
// enough to be worth a write.
func (u *UserProfile) ShouldTouchLastLogin(now time.Time) bool {
	if u.LastLoginAt == nil {
		return true
	}
	return now.Sub(*u.LastLoginAt) > lastLoginThrottle
}

// Claims are the token claims the access-control core consumes.
type Claims struct {
	Subject       string
	Email         string
	EmailVerified bool
	Audience      []string
	Issuer        string
}

// AuthContext carries the authenticated caller through a request.
type AuthContext struct {
	User   *UserProfile
	Claims *Claims
}

// Error is a structured authentication/authorization failure carrying the
// HTTP status the route boundary should surface. Reasons are short and
// machine readable; they never leak internal identifiers.
type Error struct {
	Status int
	Reason string
}

func (e *Error) Error() string {
	return e.Reason
}

// Unauthorized builds a 401 error (authentication failure).
func Unauthorized(reason string) *Error {
	return &Error{Status: http.StatusUnauthorized, Reason: reason}
}

// Forbidden builds a 403 error (authorization failure).
func Forbidden(reason string) *Error {
	return &Error{Status: http.StatusForbidden, Reason: reason}
}

// NotFound builds a 404 error (profile or tenant missing).
func NotFound(reason string) *Error {
	return &Error{Status: http.StatusNotFound, Reason: reason}
}

// StatusOf returns the HTTP status for err, or 500 when err is not a
// structured auth error.
func StatusOf(err error) int {
	if e, ok := err.(*Error); ok {
		return e.Status
	}
	return http.StatusInternalServerError
}
