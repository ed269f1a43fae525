// SPDX-License-Identifier: MIT

// Package auth issues and verifies tenant credentials: bcrypt password
// hashes at rest and short-lived HS256 tokens on the wire.
package auth

import (
	"strconv"
	"time"

	"github.com/golang-jwt/jwt/v5"

	"github.com/orionhq/orion/internal/core"
)

// DefaultTTL bounds token lifetime when none is configured.
const DefaultTTL = time.Hour

// Claims is the token payload: the registered set plus the tenant identity.
type Claims struct {
	Handle string    `json:"handle"`
	Role   core.Role `json:"role"`
	jwt.RegisteredClaims
}

// Issuer signs and verifies tenant tokens with a shared HMAC secret.
type Issuer struct {
	secret []byte
	ttl    time.Duration
	now    func() time.Time
}

// NewIssuer builds an issuer. An empty secret is rejected at config
// validation, not here.
func NewIssuer(secret string, ttl time.Duration) *Issuer {
	if ttl <= 0 {
		ttl = DefaultTTL
	}
	return &Issuer{secret: []byte(secret), ttl: ttl, now: time.Now}
}

// Issue signs a token for the principal.
func (i *Issuer) Issue(p core.Principal) (string, error) {
	now := i.now().UTC()
	claims := Claims{
		Handle: p.Handle,
		Role:   p.Role,
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   strconv.FormatInt(p.ID, 10),
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(i.ttl)),
		},
	}
	tok, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(i.secret)
	if err != nil {
		return "", core.Wrap(core.KindInternal, "sign token", err)
	}
	return tok, nil
}

// Verify parses and validates a token, returning the embedded principal.
// Any failure maps to PermissionDenied; callers render it as 401.
func (i *Issuer) Verify(token string) (core.Principal, error) {
	var claims Claims
	_, err := jwt.ParseWithClaims(token, &claims,
		func(*jwt.Token) (any, error) { return i.secret, nil },
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithTimeFunc(func() time.Time { return i.now() }),
	)
	if err != nil {
		return core.Principal{}, core.Wrap(core.KindPermissionDenied, "invalid token", err)
	}
	id, err := strconv.ParseInt(claims.Subject, 10, 64)
	if err != nil {
		return core.Principal{}, core.Wrap(core.KindPermissionDenied, "malformed subject", err)
	}
	if claims.Role != core.RoleUser && claims.Role != core.RoleAdmin {
		return core.Principal{}, core.Errf(core.KindPermissionDenied, "unknown role %q", claims.Role)
	}
	return core.Principal{ID: id, Handle: claims.Handle, Role: claims.Role}, nil
}
