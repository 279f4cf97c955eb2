// Package auth issues and verifies the HS256 access tokens that identify
// callers.  Accounts and logins live in a separate identity service; this
// package only needs the shared signing secret.
package auth

import (
	"errors"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"

	"github.com/rondo-space/venue-reservations/internal/model"
)

// ErrInvalidToken is returned for tokens that fail signature, expiry or
// claim checks.
var ErrInvalidToken = errors.New("invalid token")

// Claims is the token payload.  The subject is the user id; first and last
// name travel along so court holds can check profile completeness without a
// round trip to the identity service.
type Claims struct {
	Role      model.Role `json:"role"`
	FirstName string     `json:"first_name,omitempty"`
	LastName  string     `json:"last_name,omitempty"`
	jwt.RegisteredClaims
}

// AccessToken is a signed token together with its expiry.
type AccessToken struct {
	Token string    `json:"access_token"`
	Exp   time.Time `json:"expires_at"`
}

// IssueToken signs an access token for actor valid for ttl.  Tokens are
// issued by the identity service in production; the server itself only
// parses them.  This is the format contract ParseToken accepts, used by
// tests across packages to mint callers.
func IssueToken(secret string, actor model.Actor, ttl time.Duration) (AccessToken, error) {
	now := time.Now().UTC()
	exp := now.Add(ttl)
	claims := Claims{
		Role:      actor.Role,
		FirstName: actor.FirstName,
		LastName:  actor.LastName,
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   actor.UserID,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(exp),
		},
	}
	signed, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString([]byte(secret))
	if err != nil {
		return AccessToken{}, err
	}
	return AccessToken{Token: signed, Exp: exp}, nil
}

// ParseToken verifies raw and returns the actor it identifies.  Only HMAC
// signatures are accepted, and the subject and role are required.
func ParseToken(secret, raw string) (model.Actor, error) {
	var claims Claims
	tok, err := jwt.ParseWithClaims(raw, &claims, func(t *jwt.Token) (any, error) {
		if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method %v", t.Header["alg"])
		}
		return []byte(secret), nil
	}, jwt.WithExpirationRequired())
	if err != nil || !tok.Valid {
		return model.Actor{}, fmt.Errorf("%w: %v", ErrInvalidToken, err)
	}
	if claims.Subject == "" {
		return model.Actor{}, fmt.Errorf("%w: missing subject", ErrInvalidToken)
	}
	if claims.Role != model.RoleUser && claims.Role != model.RoleAdmin {
		return model.Actor{}, fmt.Errorf("%w: unknown role %q", ErrInvalidToken, claims.Role)
	}
	return model.Actor{
		UserID:    claims.Subject,
		Role:      claims.Role,
		FirstName: claims.FirstName,
		LastName:  claims.LastName,
	}, nil
}
