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

import "time"

// ContainerConfig selects the container engine connection and the
// sandbox image this manager boots sessions from.
type ContainerConfig struct {
	Endpoint         string `toml:"endpoint"`
	DockerAPIVersion string `toml:"docker_api_version"`
	SandboxImage     string `toml:"sandbox_image"`
	// Runtime selects the OCI runtime new sandbox containers run
	// under (see container.PreferredRuntime). Empty defers to the
	// container engine's own configured default.
	Runtime string `toml:"runtime"`
}

// SessionConfig governs idle reaping and default resource caps.
type SessionConfig struct {
	SessionTimeoutSeconds  int     `toml:"session_timeout_seconds"`
	CleanupIntervalSeconds int     `toml:"cleanup_interval_seconds"`
	StoragePath            string  `toml:"storage_path"`
	DefaultMemoryMB        int     `toml:"default_memory_mb"`
	DefaultCPUs            float64 `toml:"default_cpus"`
}

// ProxyConfig points newly-created sessions at the egress proxy and
// holds the HMAC signing key used to mint their tokens.
type ProxyConfig struct {
	Host       string `toml:"host"`
	Port       int    `toml:"port"`
	SigningKey string `toml:"signing_key"`
}

func (c SessionConfig) sessionTimeout() time.Duration {
	if c.SessionTimeoutSeconds <= 0 {
		return 30 * time.Minute
	}

	return time.Duration(c.SessionTimeoutSeconds) * time.Second
}

func (c SessionConfig) cleanupInterval() time.Duration {
	if c.CleanupIntervalSeconds <= 0 {
		return time.Minute
	}

	return time.Duration(c.CleanupIntervalSeconds) * time.Second
}
