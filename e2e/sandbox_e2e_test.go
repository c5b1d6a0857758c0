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

//go:build linux
// +build linux

// Package e2e exercises the session manager against a live Docker
// daemon and a real sandbox image rather than a mock. These tests are
// skipped unless SANDBOX_E2E_IMAGE names a built sandbox-agent image
// (see cmd/sandbox-agent), since they need a real container runtime
// and are not run as part of the normal unit test suite.
package e2e

import (
	"context"
	"os"
	"testing"
	"time"

	dockerClient "github.com/docker/docker/client"

	"github.com/sandboxd/agentbox/pkg/container"
	"github.com/sandboxd/agentbox/pkg/manager"
)

func newTestManager(t *testing.T, image string) *manager.Manager {
	t.Helper()

	return newTestManagerWithTimeout(t, image, 60)
}

func newTestManagerWithTimeout(t *testing.T, image string, sessionTimeoutSeconds int) *manager.Manager {
	t.Helper()

	cli, err := dockerClient.NewClientWithOpts(dockerClient.FromEnv, dockerClient.WithAPIVersionNegotiation())
	if err != nil {
		t.Fatalf("docker client: %v", err)
	}

	if _, err := cli.Ping(context.Background()); err != nil {
		t.Skipf("no reachable docker daemon: %v", err)
	}

	driver := container.NewDriver(cli)
	if err := driver.EnsureNetworks(context.Background()); err != nil {
		t.Fatalf("ensure networks: %v", err)
	}

	cc := manager.ContainerConfig{SandboxImage: image}
	sc := manager.SessionConfig{SessionTimeoutSeconds: sessionTimeoutSeconds, CleanupIntervalSeconds: 1}
	pc := manager.ProxyConfig{Host: "127.0.0.1", Port: 15004, SigningKey: "e2e-test-signing-key"}

	return manager.New(cc, sc, pc, driver)
}

func sandboxImage(t *testing.T) string {
	t.Helper()

	image := os.Getenv("SANDBOX_E2E_IMAGE")
	if image == "" {
		t.Skip("SANDBOX_E2E_IMAGE not set; skipping live-container e2e test")
	}

	return image
}

// TestEchoScenario creates a session with no network, runs
// `echo hello`, and observes the exact ExecResult.
func TestEchoScenario(t *testing.T) {
	image := sandboxImage(t)
	mgr := newTestManager(t, image)

	ctx, cancel := context.WithTimeout(context.Background(), 60*time.Second)
	defer cancel()

	sess, err := mgr.CreateSession(ctx, "", "", []string{})
	if err != nil {
		t.Fatalf("CreateSession() error = %v", err)
	}
	defer mgr.DestroySession(context.Background(), sess.ID)

	result, err := mgr.Exec(ctx, sess.ID, manager.ExecOptions{Command: "echo hello", Timeout: 30, Workdir: "/workspace"})
	if err != nil {
		t.Fatalf("Exec() error = %v", err)
	}

	if result.ExitCode != 0 || result.Stdout != "hello\n" || result.TimedOut {
		t.Errorf("Exec() = %+v, want exit_code=0 stdout=%q timed_out=false", result, "hello\n")
	}
}

// TestExitCodeScenario checks that a command's exit code survives the
// round trip through the agent.
func TestExitCodeScenario(t *testing.T) {
	image := sandboxImage(t)
	mgr := newTestManager(t, image)

	ctx, cancel := context.WithTimeout(context.Background(), 60*time.Second)
	defer cancel()

	sess, err := mgr.CreateSession(ctx, "", "", []string{})
	if err != nil {
		t.Fatalf("CreateSession() error = %v", err)
	}
	defer mgr.DestroySession(context.Background(), sess.ID)

	result, err := mgr.Exec(ctx, sess.ID, manager.ExecOptions{Command: "exit 42", Timeout: 10})
	if err != nil {
		t.Fatalf("Exec() error = %v", err)
	}

	if result.ExitCode != 42 {
		t.Errorf("Exec() exit code = %d, want 42", result.ExitCode)
	}
}

// TestTimeoutScenario checks that a command outliving its timeout is
// reported as timed out with exit code -1.
func TestTimeoutScenario(t *testing.T) {
	image := sandboxImage(t)
	mgr := newTestManager(t, image)

	ctx, cancel := context.WithTimeout(context.Background(), 60*time.Second)
	defer cancel()

	sess, err := mgr.CreateSession(ctx, "", "", []string{})
	if err != nil {
		t.Fatalf("CreateSession() error = %v", err)
	}
	defer mgr.DestroySession(context.Background(), sess.ID)

	result, err := mgr.Exec(ctx, sess.ID, manager.ExecOptions{Command: "sleep 5", Timeout: 1})
	if err != nil {
		t.Fatalf("Exec() error = %v", err)
	}

	if !result.TimedOut || result.ExitCode != -1 {
		t.Errorf("Exec() = %+v, want timed_out=true exit_code=-1", result)
	}
}

// TestPathTraversalDenied checks that a write addressed inside the
// workspace but traversing out of it is refused.
func TestPathTraversalDenied(t *testing.T) {
	image := sandboxImage(t)
	mgr := newTestManager(t, image)

	ctx, cancel := context.WithTimeout(context.Background(), 60*time.Second)
	defer cancel()

	sess, err := mgr.CreateSession(ctx, "", "", []string{})
	if err != nil {
		t.Fatalf("CreateSession() error = %v", err)
	}
	defer mgr.DestroySession(context.Background(), sess.ID)

	err = mgr.WriteFile(ctx, sess.ID, "/workspace/../etc/passwd", "x", "w")
	if err == nil {
		t.Fatal("WriteFile() on a traversal path = nil error, want a policy-denied error")
	}

	if manager.KindOf(err) != manager.KindPermissionDenied {
		t.Errorf("WriteFile() error kind = %v, want KindPermissionDenied", manager.KindOf(err))
	}
}

// TestFileRoundTrip checks that ReadFile after WriteFile returns
// exactly what was written.
func TestFileRoundTrip(t *testing.T) {
	image := sandboxImage(t)
	mgr := newTestManager(t, image)

	ctx, cancel := context.WithTimeout(context.Background(), 60*time.Second)
	defer cancel()

	sess, err := mgr.CreateSession(ctx, "", "", []string{})
	if err != nil {
		t.Fatalf("CreateSession() error = %v", err)
	}
	defer mgr.DestroySession(context.Background(), sess.ID)

	const content = "hello, sandbox\néè"
	if err := mgr.WriteFile(ctx, sess.ID, "/workspace/roundtrip.txt", content, "w"); err != nil {
		t.Fatalf("WriteFile() error = %v", err)
	}

	got, err := mgr.ReadFile(ctx, sess.ID, "/workspace/roundtrip.txt")
	if err != nil {
		t.Fatalf("ReadFile() error = %v", err)
	}

	if got != content {
		t.Errorf("ReadFile() = %q, want %q", got, content)
	}
}

// TestIdleReap checks that a session with a very short idle timeout
// disappears from ListSessions once the reaper has had a chance to
// run. Polling goes through ListSessions, not GetSession, because
// GetSession counts as activity and would keep the session alive.
func TestIdleReap(t *testing.T) {
	image := sandboxImage(t)
	mgr := newTestManagerWithTimeout(t, image, 1)

	ctx, cancel := context.WithTimeout(context.Background(), 60*time.Second)
	defer cancel()

	sess, err := mgr.CreateSession(ctx, "", "", []string{})
	if err != nil {
		t.Fatalf("CreateSession() error = %v", err)
	}
	defer mgr.DestroySession(context.Background(), sess.ID)

	reaperCtx, reaperCancel := context.WithCancel(context.Background())
	defer reaperCancel()

	go mgr.Run(reaperCtx)

	deadline := time.Now().Add(15 * time.Second)
	for time.Now().Before(deadline) {
		gone := true
		for _, s := range mgr.ListSessions() {
			if s.ID == sess.ID {
				gone = false
				break
			}
		}

		if gone {
			return
		}

		time.Sleep(200 * time.Millisecond)
	}

	t.Fatal("session was not reaped within the test deadline")
}
