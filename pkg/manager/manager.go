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
	"bufio"
	"bytes"
	"context"
	"crypto/rand"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/sandboxd/agentbox/pkg/common/logutil"
	"github.com/sandboxd/agentbox/pkg/container"
	"github.com/sandboxd/agentbox/pkg/egress"
	"github.com/sandboxd/agentbox/pkg/monitor"
	"github.com/sandboxd/agentbox/pkg/token"
)

var log = logutil.GetLogger("manager")

const (
	healthPollInterval = 100 * time.Millisecond
	healthPollTimeout  = 30 * time.Second

	// transportGrace trails a command's own timeout on the HTTP call to
	// the agent, so the agent reports its own timed-out result rather
	// than the transport racing it.
	transportGrace = 5 * time.Second

	// defaultExecTimeoutSeconds mirrors the agent's own default so the
	// transport deadline can be derived when the caller leaves the
	// command timeout unset.
	defaultExecTimeoutSeconds = 30
)

// Manager is the session manager: it owns the session table, the
// container driver, and the token signer, and is the single entry
// point the RPC surface calls into.
type Manager struct {
	cfg    SessionConfig
	cc     ContainerConfig
	proxy  ProxyConfig
	driver *container.Driver
	signer *token.Signer
	table  *table
	http   *http.Client
}

// New builds a Manager. It does not start the idle reaper; call Run for that.
func New(cc ContainerConfig, sc SessionConfig, pc ProxyConfig, driver *container.Driver) *Manager {
	key := []byte(pc.SigningKey)
	if len(key) == 0 {
		// Without a configured key the manager generates its own: token
		// minting still works, but a separately-deployed egress proxy
		// cannot validate what this process mints.
		key = make([]byte, 32)
		if _, err := rand.Read(key); err != nil {
			panic(err)
		}

		log.Warn("no signing key configured, generated a random per-process key")
	}

	return &Manager{
		cfg:    sc,
		cc:     cc,
		proxy:  pc,
		driver: driver,
		signer: token.NewSigner(key),
		table:  newTable(),
		// No client-wide timeout: /exec/stream stays open for as long
		// as the command runs, and every other call carries its own
		// request context deadline.
		http: &http.Client{},
	}
}

// Run starts the idle-session reaper and blocks until ctx is cancelled.
func (m *Manager) Run(ctx context.Context) {
	m.runReaper(ctx)
}

// Shutdown destroys every remaining session and releases the shared
// HTTP client's pooled connections. It runs after Run's ctx is
// cancelled: the reaper has already stopped, so Shutdown is the only
// thing still touching the session table, and callers should not
// invoke it concurrently with Run's ctx still live.
func (m *Manager) Shutdown(ctx context.Context) {
	for _, sess := range m.table.list() {
		if _, ok := m.table.pop(sess.ID); !ok {
			continue
		}

		if err := m.driver.Remove(ctx, sess.ContainerID); err != nil {
			log.Errorf("shutdown: remove container for session %s: %v", sess.ID, err)
		}
	}

	m.http.CloseIdleConnections()
}

// CreateSession boots a new sandbox container and waits for its agent
// to answer /health. A nil allowedHosts means "apply the egress proxy's
// default allowlist"; a non-nil empty slice means "no network at all".
func (m *Manager) CreateSession(ctx context.Context, sessionID, tenantID string, allowedHosts []string) (*Session, error) {
	if sessionID == "" {
		sessionID = uuid.NewString()
	}

	if existing, ok := m.table.get(sessionID); ok {
		existing.touch()
		return existing, nil
	}

	mounts, err := m.ensureTenantStorage(tenantID)
	if err != nil {
		return nil, newErr("CreateSession", KindInternal, err)
	}

	spec := container.Spec{
		Name:     "sandbox-" + sessionID[:minInt(8, len(sessionID))],
		Image:    m.cc.SandboxImage,
		Labels:   map[string]string{"agentbox": "true", "session-id": sessionID},
		MemoryMB: firstPositiveInt(m.cfg.DefaultMemoryMB, container.DefaultMemoryMB),
		CPUs:     firstPositiveFloat(m.cfg.DefaultCPUs, container.DefaultCPUs),
		Runtime:  m.cc.Runtime,
		Mounts:   mounts,
	}

	switch {
	case allowedHosts == nil:
		spec.Network = container.NetworkModeProxied
	case len(allowedHosts) == 0:
		spec.Network = container.NetworkModeNone
	default:
		spec.Network = container.NetworkModeProxied
	}

	if spec.Network == container.NetworkModeProxied {
		hosts := allowedHosts
		if hosts == nil {
			hosts = egress.DefaultAllowedHosts
		}

		var tok string
		tok, err = m.signer.Mint(sessionID, tenantID, hosts, 0)
		if err != nil {
			return nil, newErr("CreateSession", KindInternal, err)
		}

		spec.ProxyHost = m.proxy.Host
		spec.ProxyPort = m.proxy.Port
		spec.ProxyToken = tok
	}

	handle, err := m.driver.Create(ctx, spec)
	if err != nil {
		monitor.MetricsSessionCreateError.WithLabelValues().Inc()
		return nil, newErr("CreateSession", KindUnavailable, err)
	}

	sess := &Session{
		ID:           sessionID,
		TenantID:     tenantID,
		ContainerID:  handle.ContainerID,
		AgentHost:    m.cc.Endpoint,
		AgentPort:    handle.HostPort,
		AllowedHosts: allowedHosts,
		CreatedAt:    time.Now(),
		LastActivity: time.Now(),
	}

	if host := dockerHostOf(m.cc.Endpoint); host != "" {
		sess.AgentHost = host
	}

	if err := m.waitForAgent(ctx, sess); err != nil {
		_ = m.driver.Remove(context.Background(), handle.ContainerID)
		monitor.MetricsSessionCreateError.WithLabelValues().Inc()

		return nil, newErr("CreateSession", KindUnavailable, err)
	}

	m.table.put(sess)
	monitor.MetricsSessionsCreated.WithLabelValues(tenantID).Inc()
	monitor.MetricsSessionsActive.Set(float64(len(m.table.list())))
	log.Infof("created session id=%s container=%s", sess.ID, sess.ContainerID)

	return sess, nil
}

// dockerHostOf extracts a reachable host from a docker endpoint such as
// tcp://10.0.0.5:2375; unix socket endpoints fall back to localhost.
func dockerHostOf(endpoint string) string {
	if strings.HasPrefix(endpoint, "tcp://") {
		rest := strings.TrimPrefix(endpoint, "tcp://")
		if idx := strings.Index(rest, ":"); idx != -1 {
			return rest[:idx]
		}

		return rest
	}

	return "127.0.0.1"
}

func (m *Manager) waitForAgent(ctx context.Context, sess *Session) error {
	deadline := time.Now().Add(healthPollTimeout)

	for time.Now().Before(deadline) {
		req, err := http.NewRequestWithContext(ctx, http.MethodGet, sess.AgentURL()+"/health", nil)
		if err == nil {
			resp, err := m.http.Do(req)
			if err == nil {
				resp.Body.Close()
				if resp.StatusCode == http.StatusOK {
					return nil
				}
			}
		}

		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(healthPollInterval):
		}
	}

	return fmt.Errorf("agent did not become healthy within %s", healthPollTimeout)
}

// ensureTenantStorage creates the tenant's persistent workspace and
// outputs directories, idempotently, and returns the bind mounts that
// surface them inside the container. Sessions without a tenant, or
// managers without a storage root, run on container-local scratch
// space instead.
func (m *Manager) ensureTenantStorage(tenantID string) (map[string]string, error) {
	if m.cfg.StoragePath == "" || tenantID == "" {
		return nil, nil
	}

	root := filepath.Join(m.cfg.StoragePath, tenantID)
	for _, sub := range []string{"workspace", "outputs"} {
		if err := os.MkdirAll(filepath.Join(root, sub), 0o755); err != nil {
			return nil, err
		}
	}

	return map[string]string{
		"/workspace":             filepath.Join(root, "workspace"),
		"/mnt/user-data/outputs": filepath.Join(root, "outputs"),
	}, nil
}

// GetSession returns a live session by ID, refreshing its activity
// timestamp.
func (m *Manager) GetSession(id string) (*Session, error) {
	s, ok := m.table.get(id)
	if !ok {
		return nil, newErr("GetSession", KindNotFound, fmt.Errorf("session %s not found", id))
	}

	s.touch()

	return s, nil
}

// ListSessions returns every live session.
func (m *Manager) ListSessions() []*Session {
	return m.table.list()
}

// DestroySession forgets a session and removes its container. The
// table entry goes first: once destruction is requested, no concurrent
// Get/List/Exec may observe the session as live while the engine call
// is still in flight.
func (m *Manager) DestroySession(ctx context.Context, id string) error {
	sess, ok := m.table.pop(id)
	if !ok {
		return newErr("DestroySession", KindNotFound, fmt.Errorf("session %s not found", id))
	}

	monitor.MetricsSessionsDestroyed.WithLabelValues("api").Inc()
	monitor.MetricsSessionsActive.Set(float64(len(m.table.list())))

	if err := m.driver.Remove(ctx, sess.ContainerID); err != nil {
		log.Errorf("destroy session %s: remove container %s: %v", id, sess.ContainerID, err)
		return newErr("DestroySession", KindUnavailable, err)
	}

	log.Infof("destroyed session id=%s", id)

	return nil
}

// Exec runs a command to completion inside a session's container via
// its agent's /exec endpoint. Command-level failures (non-zero exit,
// command timeout) travel in the ExecResult; only an unknown session
// or a malformed agent response is an error. Transport faults to the
// agent are likewise folded into the ExecResult with exit code -1,
// with TimedOut set when the transport deadline expired.
func (m *Manager) Exec(ctx context.Context, sessionID string, opts ExecOptions) (result *ExecResult, err error) {
	start := time.Now()
	defer func() { monitor.RecordExec(start, err) }()

	sess, ok := m.table.get(sessionID)
	if !ok {
		return nil, newErr("Exec", KindNotFound, fmt.Errorf("session %s not found", sessionID))
	}

	sess.touch()

	// The transport deadline trails the command's own timeout so the
	// agent gets the first chance to report a clean timed-out result.
	cmdTimeout := opts.Timeout
	if cmdTimeout <= 0 {
		cmdTimeout = defaultExecTimeoutSeconds
	}

	ctx, cancel := context.WithTimeout(ctx, time.Duration(cmdTimeout)*time.Second+transportGrace)
	defer cancel()

	body, _ := json.Marshal(map[string]interface{}{
		"command": opts.Command,
		"workdir": opts.Workdir,
		"timeout": opts.Timeout,
	})

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, sess.AgentURL()+"/exec", bytes.NewReader(body))
	if err != nil {
		return nil, newErr("Exec", KindInternal, err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := m.http.Do(req)
	if err != nil {
		timedOut := errors.Is(err, context.DeadlineExceeded)
		return &ExecResult{ExitCode: -1, Stderr: err.Error(), TimedOut: timedOut}, nil
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, newErr("Exec", KindInvalidArgument, fmt.Errorf("agent returned %d", resp.StatusCode))
	}

	var decoded ExecResult
	if err = json.NewDecoder(resp.Body).Decode(&decoded); err != nil {
		return nil, newErr("Exec", KindInternal, err)
	}

	return &decoded, nil
}

// ExecStream runs a command inside a session's container, replaying the
// agent's SSE stream as StreamEvents through emit, preserving order.
// There is no timeout: the stream runs until the command exits or ctx
// is cancelled.
func (m *Manager) ExecStream(ctx context.Context, sessionID, command, workdir string, emit func(StreamEvent) error) error {
	sess, ok := m.table.get(sessionID)
	if !ok {
		return newErr("ExecStream", KindNotFound, fmt.Errorf("session %s not found", sessionID))
	}

	sess.touch()

	body, _ := json.Marshal(map[string]interface{}{
		"command": command,
		"workdir": workdir,
	})

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, sess.AgentURL()+"/exec/stream", bytes.NewReader(body))
	if err != nil {
		return newErr("ExecStream", KindInternal, err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := m.http.Do(req)
	if err != nil {
		return newErr("ExecStream", KindUnavailable, err)
	}
	defer resp.Body.Close()

	scanner := bufio.NewScanner(resp.Body)
	scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)

	for scanner.Scan() {
		line := scanner.Text()
		if !strings.HasPrefix(line, "data: ") {
			continue
		}

		var ev StreamEvent
		if err := json.Unmarshal([]byte(strings.TrimPrefix(line, "data: ")), &ev); err != nil {
			continue
		}

		if err := emit(ev); err != nil {
			return err
		}
	}

	return scanner.Err()
}

// WriteFile writes content to path inside a session's sandbox via its
// agent's /file/write endpoint. Mode is "w" (truncate) or "a" (append);
// empty defaults to "w".
func (m *Manager) WriteFile(ctx context.Context, sessionID, path, content, mode string) error {
	if mode == "" {
		mode = "w"
	}

	if mode != "w" && mode != "a" {
		return newErr("WriteFile", KindInvalidArgument, fmt.Errorf("unknown write mode %q", mode))
	}

	sess, ok := m.table.get(sessionID)
	if !ok {
		return newErr("WriteFile", KindNotFound, fmt.Errorf("session %s not found", sessionID))
	}

	sess.touch()

	body, _ := json.Marshal(map[string]interface{}{
		"path":    path,
		"content": content,
		"mode":    mode,
	})

	return m.postOK(ctx, "WriteFile", sess.AgentURL()+"/file/write", body)
}

// ReadFile reads path back from inside a session's sandbox.
func (m *Manager) ReadFile(ctx context.Context, sessionID, path string) (string, error) {
	sess, ok := m.table.get(sessionID)
	if !ok {
		return "", newErr("ReadFile", KindNotFound, fmt.Errorf("session %s not found", sessionID))
	}

	sess.touch()

	body, _ := json.Marshal(map[string]interface{}{"path": path})

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, sess.AgentURL()+"/file/read", bytes.NewReader(body))
	if err != nil {
		return "", newErr("ReadFile", KindInternal, err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := m.http.Do(req)
	if err != nil {
		return "", newErr("ReadFile", KindUnavailable, err)
	}
	defer resp.Body.Close()

	var out struct {
		Success bool   `json:"success"`
		Content string `json:"content"`
		Error   string `json:"error"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return "", newErr("ReadFile", KindInternal, err)
	}

	if !out.Success {
		return "", newErr("ReadFile", KindNotFound, fmt.Errorf("%s", out.Error))
	}

	return out.Content, nil
}

func (m *Manager) postOK(ctx context.Context, op, url string, body []byte) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		return newErr(op, KindInternal, err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := m.http.Do(req)
	if err != nil {
		return newErr(op, KindUnavailable, err)
	}
	defer resp.Body.Close()

	var out struct {
		Success bool   `json:"success"`
		Error   string `json:"error"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return newErr(op, KindInternal, err)
	}

	if !out.Success {
		kind := KindInternal
		if strings.Contains(out.Error, "outside the allowed sandbox") {
			kind = KindPermissionDenied
		}

		return newErr(op, kind, fmt.Errorf("%s", out.Error))
	}

	return nil
}

func minInt(a, b int) int {
	if a < b {
		return a
	}

	return b
}

func firstPositiveInt(v, fallback int) int {
	if v > 0 {
		return v
	}

	return fallback
}

func firstPositiveFloat(v, fallback float64) float64 {
	if v > 0 {
		return v
	}

	return fallback
}
