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
	"testing"
	"time"

	containertypes "github.com/docker/docker/api/types/container"
	dockerClient "github.com/docker/docker/client"

	"github.com/sandboxd/agentbox/pkg/container"
)

// blockingDockerAPI stubs just ContainerRemove, parking every call
// until release is closed. Any other engine call panics via the
// embedded nil interface, which is what a destroy-path test wants.
type blockingDockerAPI struct {
	dockerClient.CommonAPIClient
	removeStarted chan struct{}
	release       chan struct{}
}

func (f *blockingDockerAPI) ContainerRemove(ctx context.Context, containerID string, options containertypes.RemoveOptions) error {
	close(f.removeStarted)
	<-f.release

	return nil
}

func TestDestroySessionForgetsBeforeContainerRemoval(t *testing.T) {
	api := &blockingDockerAPI{
		removeStarted: make(chan struct{}),
		release:       make(chan struct{}),
	}

	m := &Manager{table: newTable(), driver: container.NewDriver(api)}
	m.table.put(&Session{ID: "sess-1", ContainerID: "container-1"})

	done := make(chan error, 1)
	go func() { done <- m.DestroySession(context.Background(), "sess-1") }()

	select {
	case <-api.removeStarted:
	case <-time.After(5 * time.Second):
		t.Fatal("ContainerRemove was never called")
	}

	// The engine call is parked; the session must already be gone.
	if _, err := m.GetSession("sess-1"); KindOf(err) != KindNotFound {
		t.Error("GetSession() still reports the session while removal is in flight")
	}

	if len(m.ListSessions()) != 0 {
		t.Error("ListSessions() still reports the session while removal is in flight")
	}

	close(api.release)

	if err := <-done; err != nil {
		t.Fatalf("DestroySession() error = %v", err)
	}

	// Second destroy is the idempotent miss.
	if err := m.DestroySession(context.Background(), "sess-1"); KindOf(err) != KindNotFound {
		t.Errorf("second DestroySession() kind = %v, want KindNotFound", KindOf(err))
	}
}
