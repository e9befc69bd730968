package auth

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/coreos/go-oidc/v3/oidc"
	"github.com/golang-jwt/jwt/v5"
)

// jwksFetchTimeout bounds the JWKS refresh HTTP call. All other steps in the
// pipeline rely on the surrounding request deadline.
const jwksFetchTimeout = 10 * time.Second

// TokenVerifier validates a bearer token and returns the parsed claims.
// Implementations fail closed: any key-fetch or validation failure is an
// authentication error.
type TokenVerifier interface {
	Verify(ctx context.Context, rawToken string) (*Claims, error)
}

// JWKSVerifier validates tokens against a remote JWKS key set. The key set
// is fetched lazily on first use and on unknown-key misses, which tolerates
// key rotation without a restart. Safe for concurrent use.
type JWKSVerifier struct {
	verifier *oidc.IDTokenVerifier
}

// NewJWKSVerifier creates a verifier for the given JWKS endpoint. issuerURL
// may be empty when the token issuer is not checked (audience and signature
// still are). audience is the expected aud claim, e.g. "authenticated".
func NewJWKSVerifier(ctx context.Context, jwksURL, issuerURL, audience string) (*JWKSVerifier, error) {
	if jwksURL == "" {
		return nil, fmt.Errorf("jwks url is required")
	}

	// The key set reuses this context's HTTP client for every refresh.
	ctx = oidc.ClientContext(ctx, &http.Client{Timeout: jwksFetchTimeout})
	keySet := oidc.NewRemoteKeySet(ctx, jwksURL)

	cfg := &oidc.Config{
		ClientID:        audience,
		SkipIssuerCheck: issuerURL == "",
	}
	return &JWKSVerifier{
		verifier: oidc.NewVerifier(issuerURL, keySet, cfg),
	}, nil
}

// Verify checks signature, expiry and audience, and returns the claims.
func (v *JWKSVerifier) Verify(ctx context.Context, rawToken string) (*Claims, error) {
	idToken, err := v.verifier.Verify(ctx, rawToken)
	if err != nil {
		return nil, Unauthorized("Invalid or expired token")
	}

	var raw struct {
		Email         string `json:"email"`
		EmailVerified bool   `json:"email_verified"`
	}
	// Missing optional claims are not an error; the subject is mandatory.
	_ = idToken.Claims(&raw)

	if idToken.Subject == "" {
		return nil, Unauthorized("Invalid or expired token")
	}

	return &Claims{
		Subject:       idToken.Subject,
		Email:         raw.Email,
		EmailVerified: raw.EmailVerified,
		Audience:      idToken.Audience,
		Issuer:        idToken.Issuer,
	}, nil
}

// HS256Verifier validates tokens signed with a shared secret. Intended for
// local development and tests only.
type HS256Verifier struct {
	secret   []byte
	audience string
}

// NewHS256Verifier creates a shared-secret verifier.
func NewHS256Verifier(secret, audience string) (*HS256Verifier, error) {
	if secret == "" {
		return nil, fmt.Errorf("jwt secret is required")
	}
	return &HS256Verifier{secret: []byte(secret), audience: audience}, nil
}

// Verify checks the HS256 signature, expiry and audience.
func (v *HS256Verifier) Verify(_ context.Context, rawToken string) (*Claims, error) {
	opts := []jwt.ParserOption{
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithExpirationRequired(),
	}
	if v.audience != "" {
		opts = append(opts, jwt.WithAudience(v.audience))
	}

	tok, err := jwt.Parse(rawToken, func(token *jwt.Token) (interface{}, error) {
		return v.secret, nil
	}, opts...)
	if err != nil || !tok.Valid {
		return nil, Unauthorized("Invalid or expired token")
	}

	mapClaims, ok := tok.Claims.(jwt.MapClaims)
	if !ok {
		return nil, Unauthorized("Invalid or expired token")
	}

	claims := &Claims{}
	if sub, ok := mapClaims["sub"].(string); ok {
		claims.Subject = sub
	}
	if iss, ok := mapClaims["iss"].(string); ok {
		claims.Issuer = iss
	}
	if email, ok := mapClaims["email"].(string); ok {
		claims.Email = email
	}
	if verified, ok := mapClaims["email_verified"].(bool); ok {
		claims.EmailVerified = verified
	}
	switch aud := mapClaims["aud"].(type) {
	case string:
		claims.Audience = []string{aud}
	case []interface{}:
		for _, a := range aud {
			if s, ok := a.(string); ok {
				claims.Audience = append(claims.Audience, s)
			}
		}
	}

	if claims.Subject == "" {
		return nil, Unauthorized("Invalid or expired token")
	}
	return claims, nil
}
