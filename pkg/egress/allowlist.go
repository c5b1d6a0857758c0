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
	"net"
	"strings"
)

// DefaultAllowedHosts is used for sessions that were created without an
// explicit allowlist (see token.Claims / manager.CreateSession).
var DefaultAllowedHosts = []string{
	"pypi.org",
	"files.pythonhosted.org",
	"registry.npmjs.org",
	"github.com",
	"raw.githubusercontent.com",
	"objects.githubusercontent.com",
	"crates.io",
	"static.crates.io",
}

// HostAllowed reports whether host (optionally carrying a :port suffix)
// matches one of patterns. A pattern prefixed with "*." matches the
// pattern's bare domain as well as any of its subdomains, exactly like
// a TLS SAN wildcard.
func HostAllowed(host string, patterns []string) bool {
	host = stripPort(host)
	host = strings.ToLower(host)

	for _, pattern := range patterns {
		pattern = strings.ToLower(strings.TrimSpace(pattern))
		if pattern == "" {
			continue
		}

		if strings.HasPrefix(pattern, "*.") {
			base := pattern[2:]
			if host == base || strings.HasSuffix(host, "."+base) {
				return true
			}

			continue
		}

		if host == pattern {
			return true
		}
	}

	return false
}

func stripPort(hostport string) string {
	if host, _, err := net.SplitHostPort(hostport); err == nil {
		return host
	}

	return hostport
}
