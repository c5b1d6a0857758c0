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

// Package pathutil resolves and sandboxes file paths requested through
// the in-container agent's file endpoints, rejecting anything that
// resolves (after symlinks) outside of an allowed set of prefixes.
package pathutil

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
)

// WorkspaceDir is where relative paths are rooted.
const WorkspaceDir = "/workspace"

// WritePrefixes are the only directories the agent will write under.
var WritePrefixes = []string{"/workspace", "/mnt/user-data/outputs"}

// ReadPrefixes are the only directories the agent will read from.
var ReadPrefixes = []string{"/workspace", "/mnt/user-data"}

// ErrOutsideSandbox is returned when a resolved path escapes every
// allowed prefix.
type ErrOutsideSandbox struct {
	Resolved string
}

func (e *ErrOutsideSandbox) Error() string {
	return fmt.Sprintf("path %q is outside the allowed sandbox", e.Resolved)
}

// Resolve rewrites a relative path under WorkspaceDir, resolves
// symlinks in the result (falling back to the literal path when the
// file doesn't exist yet, so writes to new files still get checked),
// and verifies the resolved path starts with one of prefixes.
func Resolve(path string, prefixes []string) (string, error) {
	if !filepath.IsAbs(path) {
		path = filepath.Join(WorkspaceDir, path)
	}

	resolved, err := filepath.EvalSymlinks(path)
	if err != nil {
		if !os.IsNotExist(err) {
			return "", err
		}
		// The target doesn't exist yet (common for a new file write);
		// resolve its parent directory instead and reattach the base.
		parent, evalErr := filepath.EvalSymlinks(filepath.Dir(path))
		if evalErr != nil {
			resolved = filepath.Clean(path)
		} else {
			resolved = filepath.Join(parent, filepath.Base(path))
		}
	}

	for _, prefix := range prefixes {
		if resolved == prefix || strings.HasPrefix(resolved, prefix+string(filepath.Separator)) {
			return resolved, nil
		}
	}

	return "", &ErrOutsideSandbox{Resolved: resolved}
}

// ResolveForWrite sandboxes path against WritePrefixes.
func ResolveForWrite(path string) (string, error) {
	return Resolve(path, WritePrefixes)
}

// ResolveForRead sandboxes path against ReadPrefixes.
func ResolveForRead(path string) (string, error) {
	return Resolve(path, ReadPrefixes)
}
