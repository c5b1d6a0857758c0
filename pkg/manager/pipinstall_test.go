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

package manager

import "testing"

func TestPipPackagePattern(t *testing.T) {
	valid := []string{
		"requests",
		"requests==2.31.0",
		"requests[security]",
		"numpy>=1.20,<2.0",
		"some-package_name.extra",
	}

	for _, v := range valid {
		if !pipPackagePattern.MatchString(v) {
			t.Errorf("pipPackagePattern.MatchString(%q) = false, want true", v)
		}
	}

	invalid := []string{
		"",
		"requests; rm -rf /",
		"requests && echo pwned",
		"-rf",
		"requests$(whoami)",
		"pkg|pkg2",
	}

	for _, v := range invalid {
		if pipPackagePattern.MatchString(v) {
			t.Errorf("pipPackagePattern.MatchString(%q) = true, want false", v)
		}
	}
}

func TestHasHostWithNilAllowlistCoversDefaults(t *testing.T) {
	if !hasHost(nil, "pypi.org") {
		t.Error("hasHost(nil, pypi.org) = false, want true")
	}

	if hasHost(nil, "evil.example.com") {
		t.Error("hasHost(nil, evil.example.com) = true, want false")
	}
}

func TestHasHostWithExplicitAllowlist(t *testing.T) {
	hosts := []string{"pypi.org"}

	if hasHost(hosts, "files.pythonhosted.org") {
		t.Error("hasHost should not find files.pythonhosted.org in a narrower allowlist")
	}
}
