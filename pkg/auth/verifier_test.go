package auth

import (
	"context"
	"net/http"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const testSecret = "test-secret"

func signToken(t *testing.T, claims jwt.MapClaims) string {
	t.Helper()
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	signed, err := token.SignedString([]byte(testSecret))
	require.NoError(t, err)
	return signed
}

func TestHS256VerifierValidToken(t *testing.T) {
	v, err := NewHS256Verifier(testSecret, "authenticated")
	require.NoError(t, err)

	raw := signToken(t, jwt.MapClaims{
		"sub":            "user-123",
		"aud":            "authenticated",
		"iss":            "https://auth.example.com",
		"email":          "user@example.com",
		"email_verified": true,
		"exp":            time.Now().Add(time.Hour).Unix(),
	})

	claims, err := v.Verify(context.Background(), raw)
	require.NoError(t, err)
	assert.Equal(t, "user-123", claims.Subject)
	assert.Equal(t, "user@example.com", claims.Email)
	assert.True(t, claims.EmailVerified)
	assert.Equal(t, []string{"authenticated"}, claims.Audience)
	assert.Equal(t, "https://auth.example.com", claims.Issuer)
}

func TestHS256VerifierExpiredToken(t *testing.T) {
	v, err := NewHS256Verifier(testSecret, "")
	require.NoError(t, err)

	raw := signToken(t, jwt.MapClaims{
		"sub": "user-123",
		"exp": time.Now().Add(-time.Hour).Unix(),
	})

	_, err = v.Verify(context.Background(), raw)
	require.Error(t, err)
	assert.Equal(t, http.StatusUnauthorized, StatusOf(err))
}

func TestHS256VerifierMissingExpiry(t *testing.T) {
	v, err := NewHS256Verifier(testSecret, "")
	require.NoError(t, err)

	raw := signToken(t, jwt.MapClaims{"sub": "user-123"})

	_, err = v.Verify(context.Background(), raw)
	assert.Error(t, err, "tokens without exp are rejected")
}

func TestHS256VerifierWrongAudience(t *testing.T) {
	v, err := NewHS256Verifier(testSecret, "authenticated")
	require.NoError(t, err)

	raw := signToken(t, jwt.MapClaims{
		"sub": "user-123",
		"aud": "something-else",
		"exp": time.Now().Add(time.Hour).Unix(),
	})

	_, err = v.Verify(context.Background(), raw)
	assert.Error(t, err)
}

func TestHS256VerifierWrongSecret(t *testing.T) {
	v, err := NewHS256Verifier("other-secret", "")
	require.NoError(t, err)

	raw := signToken(t, jwt.MapClaims{
		"sub": "user-123",
		"exp": time.Now().Add(time.Hour).Unix(),
	})

	_, err = v.Verify(context.Background(), raw)
	require.Error(t, err)
	assert.Equal(t, http.StatusUnauthorized, StatusOf(err))
}

func TestHS256VerifierMissingSubject(t *testing.T) {
	v, err := NewHS256Verifier(testSecret, "")
	require.NoError(t, err)

	raw := signToken(t, jwt.MapClaims{
		"exp": time.Now().Add(time.Hour).Unix(),
	})

	_, err = v.Verify(context.Background(), raw)
	assert.Error(t, err)
}

func TestNewHS256VerifierRequiresSecret(t *testing.T) {
	_, err := NewHS256Verifier("", "aud")
	assert.Error(t, err)
}

func TestNewJWKSVerifierRequiresURL(t *testing.T) {
	_, err := NewJWKSVerifier(context.Background(), "", "", "aud")
	assert.Error(t, err)
}

func TestJWKSVerifierFailsClosed(t *testing.T) {
	// The endpoint does not exist; any verification attempt must come back
	// as an authentication error, never a pass.
	v, err := NewJWKSVerifier(context.Background(), "http://127.0.0.1:1/jwks.json", "", "aud")
	require.NoError(t, err, "construction is lazy and does not fetch")

	_, err = v.Verify(context.Background(), "not-a-token")
	require.Error(t, err)
	assert.Equal(t, http.StatusUnauthorized, StatusOf(err))
}
