package api

import (
	"context"
	"database/sql"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	_ "github.com/mattn/go-sqlite3"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/require"

	"github.com/shuttertag/shuttertag/pkg/auth"
	"github.com/shuttertag/shuttertag/pkg/middleware"
	"github.com/shuttertag/shuttertag/pkg/observability"
	"github.com/shuttertag/shuttertag/pkg/rbac"
	"github.com/shuttertag/shuttertag/pkg/tenants"
)

// tokenTable maps bearer tokens to claims so a single router can serve
// requests from several test identities.
type tokenTable map[string]*auth.Claims

func (tt tokenTable) Verify(_ context.Context, token string) (*auth.Claims, error) {
	if claims, ok := tt[token]; ok {
		return claims, nil
	}
	return nil, auth.Unauthorized("Invalid or expired token")
}

type testServer struct {
	db      *sql.DB
	router  http.Handler
	tokens  tokenTable
	tenants *tenants.Store
}

func newTestServer(t *testing.T) *testServer {
	db := setupTestDB(t)

	tokens := tokenTable{}
	logger := observability.NewLogger(observability.ErrorLevel, io.Discard)
	metrics := observability.NewMetrics(prometheus.NewRegistry())

	tenantStore := tenants.NewStore(db)
	userStore := auth.NewStore(db)
	resolver := rbac.NewResolver(db, time.Minute, metrics)
	invalidator := rbac.LocalInvalidator{Cache: resolver.Cache()}

	authenticator := middleware.NewAuthenticator(tokens, userStore, tenantStore, invalidator, metrics, logger)
	server := NewServer(userStore, tenantStore, resolver, invalidator, authenticator, logger, metrics)

	return &testServer{
		db:      db,
		router:  server.Router(),
		tokens:  tokens,
		tenants: tenantStore,
	}
}

// addUser registers a profile and a bearer token for it. The token is the
// subject id, which keeps request call sites readable.
func (ts *testServer) addUser(t *testing.T, subjectID string, active, superAdmin bool) {
	t.Helper()
	now := time.Now().UTC()
	_, err := ts.db.Exec(
		`INSERT INTO user_profiles (subject_id, email, is_active, is_super_admin, created_at, updated_at) VALUES ($1, $2, $3, $4, $5, $6)`,
		subjectID, subjectID+"@example.com", active, superAdmin, now, now,
	)
	require.NoError(t, err)
	ts.tokens[subjectID] = &auth.Claims{
		Subject:       subjectID,
		Email:         subjectID + "@example.com",
		EmailVerified: true,
	}
}

func (ts *testServer) addTenant(t *testing.T, id string) {
	t.Helper()
	_, err := ts.db.Exec(
		`INSERT INTO tenants (id, identifier, key_prefix, name) VALUES ($1, $2, $3, $4)`,
		id, id+"-ident", id+"-prefix", "Tenant "+id,
	)
	require.NoError(t, err)
}

// addRole creates an active role with the given allow rows and returns
// its id.
func (ts *testServer) addRole(t *testing.T, tenantID, roleKey string, allowKeys ...string) int64 {
	t.Helper()
	var roleID int64
	err := ts.db.QueryRow(
		`INSERT INTO tenant_roles (tenant_id, role_key, name, is_active) VALUES ($1, $2, $3, 1) RETURNING id`,
		tenantID, roleKey, roleKey,
	).Scan(&roleID)
	require.NoError(t, err)
	for _, key := range allowKeys {
		_, err := ts.db.Exec(
			`INSERT INTO role_permissions (role_id, permission_key, effect) VALUES ($1, $2, 'allow')`,
			roleID, key,
		)
		require.NoError(t, err)
	}
	return roleID
}

func (ts *testServer) addMember(t *testing.T, subjectID, tenantID string, roleID *int64) {
	t.Helper()
	now := time.Now().UTC()
	_, err := ts.db.Exec(
		`INSERT INTO user_tenants (subject_id, tenant_id, role, tenant_role_id, accepted_at, created_at) VALUES ($1, $2, 'user', $3, $4, $5)`,
		subjectID, tenantID, roleID, now, now,
	)
	require.NoError(t, err)
}

// request performs an HTTP request against the router as the given user.
// An empty user sends no credentials.
func (ts *testServer) request(t *testing.T, method, target, asUser, body string) *httptest.ResponseRecorder {
	t.Helper()
	var reader io.Reader
	if body != "" {
		reader = strings.NewReader(body)
	}
	req := httptest.NewRequest(method, target, reader)
	if asUser != "" {
		req.Header.Set("Authorization", "Bearer "+asUser)
	}
	rec := httptest.NewRecorder()
	ts.router.ServeHTTP(rec, req)
	return rec
}

func decodeBody(t *testing.T, rec *httptest.ResponseRecorder, dest interface{}) {
	t.Helper()
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), dest))
}

func detailOf(t *testing.T, rec *httptest.ResponseRecorder) string {
	t.Helper()
	var body map[string]string
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	return body["detail"]
}

func setupTestDB(t *testing.T) *sql.DB {
	db, err := sql.Open("sqlite3", ":memory:")
	if err != nil {
		t.Fatalf("Failed to open test database: %v", err)
	}
	t.Cleanup(func() { db.Close() })

	_, err = db.Exec(`
		CREATE TABLE tenants (
			id TEXT PRIMARY KEY,
			identifier TEXT NOT NULL UNIQUE,
			key_prefix TEXT NOT NULL UNIQUE,
			name TEXT NOT NULL,
			is_active INTEGER NOT NULL DEFAULT 1,
			settings TEXT NOT NULL DEFAULT '{}',
			created_at TIMESTAMP DEFAULT CURRENT_TIMESTAMP,
			updated_at TIMESTAMP DEFAULT CURRENT_TIMESTAMP
		);

		CREATE TABLE user_profiles (
			subject_id TEXT PRIMARY KEY,
			email TEXT NOT NULL,
			email_verified INTEGER NOT NULL DEFAULT 0,
			display_name TEXT NOT NULL DEFAULT '',
			is_active INTEGER NOT NULL DEFAULT 0,
			is_super_admin INTEGER NOT NULL DEFAULT 0,
			last_login_at TIMESTAMP,
			created_at TIMESTAMP DEFAULT CURRENT_TIMESTAMP,
			updated_at TIMESTAMP DEFAULT CURRENT_TIMESTAMP
		);

		CREATE TABLE tenant_roles (
			id INTEGER PRIMARY KEY AUTOINCREMENT,
			tenant_id TEXT NOT NULL,
			role_key TEXT NOT NULL,
			name TEXT NOT NULL,
			description TEXT,
			is_system INTEGER NOT NULL DEFAULT 0,
			is_active INTEGER NOT NULL DEFAULT 1,
			created_at TIMESTAMP DEFAULT CURRENT_TIMESTAMP,
			updated_at TIMESTAMP DEFAULT CURRENT_TIMESTAMP
		);

		CREATE TABLE role_permissions (
			id INTEGER PRIMARY KEY AUTOINCREMENT,
			role_id INTEGER NOT NULL,
			permission_key TEXT NOT NULL,
			effect TEXT NOT NULL DEFAULT 'allow',
			created_at TIMESTAMP DEFAULT CURRENT_TIMESTAMP
		);

		CREATE TABLE user_tenants (
			subject_id TEXT NOT NULL,
			tenant_id TEXT NOT NULL,
			role TEXT NOT NULL DEFAULT 'user',
			tenant_role_id INTEGER,
			invited_by TEXT,
			invited_at TIMESTAMP,
			accepted_at TIMESTAMP,
			created_at TIMESTAMP DEFAULT CURRENT_TIMESTAMP,
			PRIMARY KEY (subject_id, tenant_id)
		);

		CREATE TABLE invitations (
			id INTEGER PRIMARY KEY AUTOINCREMENT,
			email TEXT NOT NULL,
			tenant_id TEXT NOT NULL,
			role TEXT NOT NULL DEFAULT 'user',
			token TEXT NOT NULL UNIQUE,
			invited_by TEXT,
			expires_at TIMESTAMP NOT NULL,
			accepted_at TIMESTAMP,
			created_at TIMESTAMP DEFAULT CURRENT_TIMESTAMP
		);

		CREATE TABLE permission_catalog (
			key TEXT PRIMARY KEY,
			description TEXT NOT NULL DEFAULT '',
			category TEXT NOT NULL DEFAULT '',
			created_at TIMESTAMP DEFAULT CURRENT_TIMESTAMP
		);
	`)
	if err != nil {
		t.Fatalf("Failed to create test tables: %v", err)
	}

	return db
}
