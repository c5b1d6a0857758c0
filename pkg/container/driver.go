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

package container

import (
	"context"
	"fmt"
	"io"
	"strconv"

	"github.com/sandboxd/agentbox/pkg/common/logutil"

	"github.com/docker/docker/api/types"
	"github.com/docker/docker/api/types/container"
	"github.com/docker/docker/api/types/mount"
	"github.com/docker/docker/api/types/network"
	dockerClient "github.com/docker/docker/client"
	"github.com/docker/go-connections/nat"
)

var log = logutil.GetLogger("container")

// Driver creates and tears down sandbox containers over a Docker engine
// API connection.
type Driver struct {
	api dockerClient.CommonAPIClient
}

// NewDriver wraps an existing Docker API client.
func NewDriver(api dockerClient.CommonAPIClient) *Driver {
	return &Driver{api: api}
}

// NewDriverFromEndpoint dials a Docker engine API at the given socket
// endpoint, pinned to an API version.
func NewDriverFromEndpoint(endpoint, apiVersion string) (*Driver, error) {
	cli, err := dockerClient.NewClientWithOpts(
		dockerClient.WithHost(endpoint),
		dockerClient.WithVersion(apiVersion),
	)
	if err != nil {
		return nil, err
	}

	return NewDriver(cli), nil
}

// EnsureNetworks creates the bridge and internal-only networks sandbox
// containers attach to, if they don't already exist.
func (d *Driver) EnsureNetworks(ctx context.Context) error {
	for name, internal := range map[string]bool{
		BridgeNetworkName:   false,
		InternalNetworkName: true,
	} {
		existing, err := d.api.NetworkList(ctx, types.NetworkListOptions{})
		if err != nil {
			return err
		}

		found := false
		for _, n := range existing {
			if n.Name == name {
				found = true
				break
			}
		}

		if found {
			continue
		}

		_, err = d.api.NetworkCreate(ctx, name, types.NetworkCreate{
			Driver:   "bridge",
			Internal: internal,
		})
		if err != nil {
			return fmt.Errorf("create network %s: %w", name, err)
		}
	}

	return nil
}

// Create starts a new sandbox container and returns its handle once
// running, with resource caps, no-new-privileges, network attachment
// and the agent port published to an ephemeral host port.
func (d *Driver) Create(ctx context.Context, spec Spec) (*Handle, error) {
	memoryMB := spec.MemoryMB
	if memoryMB <= 0 {
		memoryMB = DefaultMemoryMB
	}

	cpus := spec.CPUs
	if cpus <= 0 {
		cpus = DefaultCPUs
	}

	env := []string{}
	networkName := BridgeNetworkName

	switch spec.Network {
	case NetworkModeNone:
		networkName = InternalNetworkName
	case NetworkModeProxied:
		proxyURL := fmt.Sprintf("http://sandbox:jwt_%s@%s:%d", spec.ProxyToken, spec.ProxyHost, spec.ProxyPort)
		env = append(env,
			"HTTP_PROXY="+proxyURL, "http_proxy="+proxyURL,
			"HTTPS_PROXY="+proxyURL, "https_proxy="+proxyURL,
		)
	}

	agentPort := nat.Port(fmt.Sprintf("%d/tcp", AgentPort))

	contConfig := &container.Config{
		Image:        spec.Image,
		Env:          env,
		Labels:       spec.Labels,
		AttachStdout: false,
		AttachStderr: false,
		ExposedPorts: nat.PortSet{agentPort: struct{}{}},
	}

	mounts := make([]mount.Mount, 0, len(spec.Mounts))
	for target, source := range spec.Mounts {
		mounts = append(mounts, mount.Mount{
			Type:   mount.TypeBind,
			Source: source,
			Target: target,
		})
	}

	hostConfig := &container.HostConfig{
		AutoRemove:  false,
		Runtime:     spec.Runtime,
		SecurityOpt: []string{"no-new-privileges"},
		Resources: container.Resources{
			CPUPeriod: cpuPeriod,
			CPUQuota:  int64(cpus * cpuPeriod),
			Memory:    int64(memoryMB) * 1024 * 1024,
		},
		Mounts: mounts,
		PortBindings: nat.PortMap{
			agentPort: []nat.PortBinding{{HostIP: "0.0.0.0", HostPort: ""}},
		},
	}

	netConfig := &network.NetworkingConfig{
		EndpointsConfig: map[string]*network.EndpointSettings{
			networkName: {},
		},
	}

	resp, err := d.api.ContainerCreate(ctx, contConfig, hostConfig, netConfig, nil, spec.Name)
	if err != nil {
		return nil, fmt.Errorf("create container: %w", err)
	}

	if err := d.api.ContainerStart(ctx, resp.ID, container.StartOptions{}); err != nil {
		return nil, fmt.Errorf("start container %s: %w", resp.ID, err)
	}

	hostPort, err := d.hostPortFor(ctx, resp.ID)
	if err != nil {
		return nil, err
	}

	log.Infof("created sandbox container id=%s name=%s port=%d", resp.ID, spec.Name, hostPort)

	return &Handle{ContainerID: resp.ID, HostPort: hostPort}, nil
}

func (d *Driver) hostPortFor(ctx context.Context, containerID string) (int, error) {
	inspect, err := d.api.ContainerInspect(ctx, containerID)
	if err != nil {
		return 0, fmt.Errorf("inspect container %s: %w", containerID, err)
	}

	agentPort := nat.Port(fmt.Sprintf("%d/tcp", AgentPort))

	bindings, ok := inspect.NetworkSettings.Ports[agentPort]
	if !ok || len(bindings) == 0 {
		return 0, fmt.Errorf("container %s has no published port %s", containerID, agentPort)
	}

	return strconv.Atoi(bindings[0].HostPort)
}

// Remove force-removes a container. A NotFound error is treated as success.
func (d *Driver) Remove(ctx context.Context, containerID string) error {
	err := d.api.ContainerRemove(ctx, containerID, container.RemoveOptions{Force: true})
	if err != nil && dockerClient.IsErrNotFound(err) {
		return nil
	}

	return err
}

// PullImage pulls image if it isn't already present locally.
func (d *Driver) PullImage(ctx context.Context, image string) error {
	_, _, err := d.api.ImageInspectWithRaw(ctx, image)
	if err == nil {
		return nil
	}

	reader, err := d.api.ImagePull(ctx, image, types.ImagePullOptions{})
	if err != nil {
		return fmt.Errorf("pull image %s: %w", image, err)
	}
	defer reader.Close()

	_, err = io.Copy(io.Discard, reader)

	return err
}
