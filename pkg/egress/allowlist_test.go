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

import "testing"

func TestHostAllowed(t *testing.T) {
	patterns := []string{"pypi.org", "*.github.com"}

	tests := []struct {
		host string
		want bool
	}{
		{"pypi.org", true},
		{"pypi.org:443", true},
		{"PyPI.org", true},
		{"evil.org", false},
		{"api.github.com", true},
		{"api.github.com:443", true},
		{"github.com", true},
		{"notgithub.com", false},
	}

	for _, tt := range tests {
		if got := HostAllowed(tt.host, patterns); got != tt.want {
			t.Errorf("HostAllowed(%q, %v) = %v, want %v", tt.host, patterns, got, tt.want)
		}
	}
}

func TestDefaultAllowedHostsContainsRegistries(t *testing.T) {
	for _, want := range []string{"pypi.org", "registry.npmjs.org", "crates.io"} {
		if !HostAllowed(want, DefaultAllowedHosts) {
			t.Errorf("DefaultAllowedHosts does not cover %q", want)
		}
	}
}
