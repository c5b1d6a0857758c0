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

// Package container adapts a Docker-compatible engine API into the
// narrow lifecycle a sandbox session needs: create, inspect for its
// published agent port, and remove.
package container

// Default resource caps applied when a session's config leaves them
// unset (4 CPUs, 4GiB of memory).
const (
	DefaultMemoryMB = 4096
	DefaultCPUs     = 4.0

	cpuPeriod = 100000

	// AgentPort is the fixed TCP port the in-container agent listens on.
	AgentPort = 2024
)

// NetworkMode selects how a sandbox container's network namespace is
// configured relative to the egress proxy.
type NetworkMode int

const (
	// NetworkModeProxied attaches the container to the shared bridge
	// network with HTTP_PROXY/HTTPS_PROXY pointed at the egress proxy;
	// used whenever a session's allowlist is nil (defaults apply) or
	// non-empty.
	NetworkModeProxied NetworkMode = iota
	// NetworkModeNone attaches the container to an internal-only Docker
	// network (no default route out), so the sandbox has no egress at
	// all while its agent port is still published for the manager to
	// reach. Sessions created with an explicitly empty allowlist get
	// this mode.
	NetworkModeNone
	// NetworkModeOpen gives the container the shared bridge network
	// with no proxy in front of it and unrestricted egress.
	NetworkModeOpen
)

// InternalNetworkName is the Docker network NetworkModeNone containers
// join. The driver creates it on first use if absent.
const InternalNetworkName = "agentbox-internal"

// BridgeNetworkName is the Docker network NetworkModeProxied and
// NetworkModeOpen containers join.
const BridgeNetworkName = "agentbox-bridge"

// PreferredRuntime is runsc (gVisor): it gives a session's container
// its own sandboxed kernel, stronger isolation than runc's
// shared-kernel namespaces. Callers that know runsc isn't installed on
// the manager host should fall back to DefaultRuntime explicitly; the
// driver itself doesn't probe for it.
const (
	PreferredRuntime = "runsc"
	DefaultRuntime   = "runc"
)

// Spec describes the container to create for one session.
type Spec struct {
	Name     string
	Image    string
	Labels   map[string]string
	MemoryMB int
	CPUs     float64

	// Runtime selects the OCI runtime (e.g. "runc", "runsc"). Empty
	// leaves the engine's configured default runtime in effect.
	Runtime string

	Network    NetworkMode
	ProxyHost  string
	ProxyPort  int
	ProxyToken string

	// Mounts is workspace-dir -> host-dir bind mounts.
	Mounts map[string]string
}

// Handle identifies a created container and where its agent can be reached.
// HostPort is always populated: port publishing works through Docker's
// host iptables rules regardless of which network the container joined,
// including the internal-only one.
type Handle struct {
	ContainerID string
	HostPort    int
}
