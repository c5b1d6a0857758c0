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

import (
	"context"
	"fmt"
	"regexp"
	"strings"

	"github.com/sandboxd/agentbox/pkg/egress"
)

// pipPackagePattern matches a PEP 508-style requirement specifier:
// name[extras]{<,<=,==,!=,>=,>,~=}version. It intentionally rejects
// shell metacharacters, since the matched strings are later
// single-quoted into the shell command line that runs the installer.
var pipPackagePattern = regexp.MustCompile(
	`^[A-Za-z0-9][A-Za-z0-9._-]*(?:\[[A-Za-z0-9,._-]+\])?(?:[<>=!~]+[A-Za-z0-9.*,<>=!~]+)?$`,
)

// defaultPipTimeoutSeconds bounds a pip install batch when the caller
// leaves the timeout unset; resolving and downloading wheels routinely
// outlasts the ordinary exec default.
const defaultPipTimeoutSeconds = 120

// PipInstall validates packages against pipPackagePattern and, only if
// every one passes, runs `pip install --user` for the whole batch
// inside the session's sandbox. It requires the session's allowlist to
// include both pypi.org and files.pythonhosted.org — a session with a
// tighter or empty allowlist cannot reach a package registry at all, so
// the call fails fast instead of executing a command doomed to time out.
func (m *Manager) PipInstall(ctx context.Context, sessionID string, packages []string, timeoutSeconds int) (*ExecResult, error) {
	if timeoutSeconds <= 0 {
		timeoutSeconds = defaultPipTimeoutSeconds
	}

	sess, ok := m.table.get(sessionID)
	if !ok {
		return nil, newErr("PipInstall", KindNotFound, fmt.Errorf("session %s not found", sessionID))
	}

	if !hasHost(sess.AllowedHosts, "pypi.org") || !hasHost(sess.AllowedHosts, "files.pythonhosted.org") {
		return nil, newErr("PipInstall", KindPermissionDenied,
			fmt.Errorf("session is not permitted to reach pypi.org and files.pythonhosted.org"))
	}

	for _, pkg := range packages {
		if !pipPackagePattern.MatchString(pkg) {
			return nil, newErr("PipInstall", KindInvalidArgument, fmt.Errorf("invalid package specifier: %q", pkg))
		}
	}

	quoted := make([]string, 0, len(packages))
	for _, pkg := range packages {
		quoted = append(quoted, "'"+pkg+"'")
	}

	cmd := "pip install --user " + strings.Join(quoted, " ")

	return m.Exec(ctx, sessionID, ExecOptions{Command: cmd, Timeout: timeoutSeconds})
}

// hasHost reports whether host is present, verbatim, in the session's
// allowlist. A nil allowlist (meaning "defaults apply") is treated as
// covering the registries the default allowlist carries.
func hasHost(allowlist []string, host string) bool {
	if allowlist == nil {
		allowlist = egress.DefaultAllowedHosts
	}

	for _, h := range allowlist {
		if h == host {
			return true
		}
	}

	return false
}
