// Copyright The TrustTunnel Authors.
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
// http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

// Package token mints and verifies the signed egress credential that
// binds a session to the set of hosts its sandbox is allowed to reach.
// The credential is a three-part base64url token (header.payload.mac),
// HMAC-SHA256 signed, carrying the session's host allowlist so the
// egress proxy can authorize CONNECT/forward requests without a
// round trip back to the session manager.
package token

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

// Issuer is the fixed `iss` claim every minted token carries.
const Issuer = "sandbox-egress-control"

// DefaultTTL is used when Mint is called with a zero ttl.
const DefaultTTL = 4 * time.Hour

var (
	// ErrTokenInvalid covers malformed tokens and MAC failures.
	ErrTokenInvalid = errors.New("token: invalid token")
	// ErrTokenExpired is returned for a structurally valid token past its exp.
	ErrTokenExpired = errors.New("token: expired")
)

// Claims is the decoded payload of a minted token.
type Claims struct {
	SessionID    string
	TenantID     string
	AllowedHosts []string
	ExpiresAt    time.Time
}

// Signer mints and verifies tokens under a single HMAC signing key.
type Signer struct {
	key []byte
}

// NewSigner builds a Signer from a raw signing key. The key is typically
// generated once per manager process and never persisted.
func NewSigner(key []byte) *Signer {
	return &Signer{key: key}
}

// Mint produces a signed token for sessionID/tenantID scoped to
// allowedHosts, expiring after ttl (DefaultTTL if ttl is zero; a
// negative ttl yields a token that is already expired).
func (s *Signer) Mint(sessionID, tenantID string, allowedHosts []string, ttl time.Duration) (string, error) {
	if ttl == 0 {
		ttl = DefaultTTL
	}

	claims := jwt.MapClaims{
		"iss":           Issuer,
		"session_id":    sessionID,
		"tenant_id":     tenantID,
		"allowed_hosts": strings.Join(allowedHosts, ","),
		"exp":           time.Now().Add(ttl).Unix(),
	}

	t := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)

	return t.SignedString(s.key)
}

// Verify checks the token's MAC and expiry and returns its claims.
func (s *Signer) Verify(tokenString string) (*Claims, error) {
	parsed, err := jwt.Parse(tokenString, func(t *jwt.Token) (interface{}, error) {
		if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("token: unexpected signing method %v", t.Header["alg"])
		}

		return s.key, nil
	}, jwt.WithValidMethods([]string{"HS256"}))

	if err != nil {
		if errors.Is(err, jwt.ErrTokenExpired) {
			return nil, ErrTokenExpired
		}

		return nil, fmt.Errorf("%w: %v", ErrTokenInvalid, err)
	}

	if !parsed.Valid {
		return nil, ErrTokenInvalid
	}

	claims, ok := parsed.Claims.(jwt.MapClaims)
	if !ok {
		return nil, ErrTokenInvalid
	}

	sessionID, _ := claims["session_id"].(string)
	tenantID, _ := claims["tenant_id"].(string)
	hostsRaw, _ := claims["allowed_hosts"].(string)

	var hosts []string
	if hostsRaw != "" {
		hosts = strings.Split(hostsRaw, ",")
	}

	expFloat, _ := claims["exp"].(float64)

	return &Claims{
		SessionID:    sessionID,
		TenantID:     tenantID,
		AllowedHosts: hosts,
		ExpiresAt:    time.Unix(int64(expFloat), 0),
	}, nil
}
