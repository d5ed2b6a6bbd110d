// Package auth resolves request identity. Identity and membership management
// live elsewhere; the core only needs the user and organization ids carried
// by the bearer token.
package auth

import (
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/pkg/errors"
)

// Claims is the identity attached to an authenticated request.
type Claims struct {
	UserID         int32  `json:"uid"`
	OrganizationID string `json:"org,omitempty"`
	jwt.RegisteredClaims
}

// Authenticator validates bearer tokens with an HMAC secret.
type Authenticator struct {
	secret []byte
}

// NewAuthenticator creates an Authenticator for the given signing secret.
func NewAuthenticator(secret string) *Authenticator {
	return &Authenticator{secret: []byte(secret)}
}

// Authenticate parses the Authorization header and returns the claims.
func (a *Authenticator) Authenticate(authHeader string) (*Claims, error) {
	if !strings.HasPrefix(authHeader, "Bearer ") {
		return nil, errors.New("missing bearer token")
	}
	raw := strings.TrimPrefix(authHeader, "Bearer ")

	claims := &Claims{}
	token, err := jwt.ParseWithClaims(raw, claims, func(t *jwt.Token) (any, error) {
		if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, errors.Errorf("unexpected signing method %v", t.Header["alg"])
		}
		return a.secret, nil
	})
	if err != nil {
		return nil, errors.Wrap(err, "parse token")
	}
	if !token.Valid {
		return nil, errors.New("invalid token")
	}
	return claims, nil
}

// SignToken issues a token for the given identity. Used by the CLI and tests;
// production tokens normally come from the identity provider.
func (a *Authenticator) SignToken(userID int32, organizationID string, ttl time.Duration) (string, error) {
	claims := &Claims{
		UserID:         userID,
		OrganizationID: organizationID,
		RegisteredClaims: jwt.RegisteredClaims{
			IssuedAt:  jwt.NewNumericDate(time.Now()),
			ExpiresAt: jwt.NewNumericDate(time.Now().Add(ttl)),
		},
	}
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	return token.SignedString(a.secret)
}
