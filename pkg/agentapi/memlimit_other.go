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

//go:build !linux

package agentapi

import "fmt"

// applyMemoryLimit sets no limit outside Linux and returns an error
// saying so; the agent only ever runs as a container's PID 1, which is
// Linux-only, but the package still needs to compile on a developer's
// non-Linux workstation.
func applyMemoryLimit(bytes int64) error {
	return fmt.Errorf("memory rlimit is only enforced on linux")
}
