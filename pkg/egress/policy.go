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

package egress

import (
	"encoding/base64"
	"errors"
	"net/http"
	"strconv"
	"strings"

	"github.com/sandboxd/agentbox/pkg/token"
)

const tokenPrefix = "jwt_"

// ErrCredentialsRejected is returned by resolvePolicy when the request
// carried Proxy-Authorization credentials that failed verification
// (bad MAC or expired). Distinct from absent/malformed credentials,
// which fall back to the default allowlist instead of being rejected
// outright.
var ErrCredentialsRejected = errors.New("egress: proxy credentials invalid or expired")

// Policy is the resolved allowlist governing one proxied connection.
type Policy struct {
	SessionID    string
	AllowedHosts []string
}

// sessionLabel is the session_id for decision logs: "-" when the
// request carried no verified token.
func (p Policy) sessionLabel() string {
	if p.SessionID == "" {
		return "-"
	}

	return p.SessionID
}

// resolvePolicy extracts the sandbox's egress token from the request's
// Proxy-Authorization header and verifies it. No header at all, or a
// header that isn't the `sandbox:jwt_<token>` Basic-auth shape, is
// treated as "no credentials presented" and falls back to
// DefaultAllowedHosts. A token that IS present but fails verification
// (bad MAC or past its exp) is a hard rejection, not a fallback.
func resolvePolicy(r *http.Request, verifier *token.Signer) (Policy, error) {
	tok, ok := extractToken(r)
	if !ok {
		return Policy{AllowedHosts: DefaultAllowedHosts}, nil
	}

	claims, err := verifier.Verify(tok)
	if err != nil {
		return Policy{}, ErrCredentialsRejected
	}

	hosts := claims.AllowedHosts
	if hosts == nil {
		hosts = DefaultAllowedHosts
	}

	return Policy{SessionID: claims.SessionID, AllowedHosts: hosts}, nil
}

// extractToken decodes the basic-auth Proxy-Authorization header used
// by sandboxes to present their egress token: `sandbox:jwt_<token>`.
func extractToken(r *http.Request) (string, bool) {
	header := r.Header.Get("Proxy-Authorization")
	if header == "" {
		return "", false
	}

	const prefix = "Basic "
	if !strings.HasPrefix(header, prefix) {
		return "", false
	}

	decoded, err := base64.StdEncoding.DecodeString(strings.TrimPrefix(header, prefix))
	if err != nil {
		return "", false
	}

	parts := strings.SplitN(string(decoded), ":", 2)
	if len(parts) != 2 {
		return "", false
	}

	if !strings.HasPrefix(parts[1], tokenPrefix) {
		return "", false
	}

	return strings.TrimPrefix(parts[1], tokenPrefix), true
}

// ProxyURL builds the `http://sandbox:jwt_<token>@host:port` URL a
// sandbox's HTTP_PROXY/HTTPS_PROXY environment should be pointed at.
func ProxyURL(host string, port int, signedToken string) string {
	return "http://sandbox:" + tokenPrefix + signedToken + "@" + host + ":" + strconv.Itoa(port)
}
