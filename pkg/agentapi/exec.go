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

package agentapi

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"os/exec"
	"sync"
	"syscall"
	"time"

	"github.com/sandboxd/agentbox/pkg/common/logutil"
	"github.com/sandboxd/agentbox/pkg/common/procutil"
)

const (
	defaultWorkdir = "/workspace"
	defaultTimeout = 30 * time.Second
	streamChunk    = 4096

	// killGrace is how long a command gets between SIGTERM and SIGKILL
	// when its deadline expires.
	killGrace = 5 * time.Second
)

type execRequest struct {
	Command string `json:"command"`
	Workdir string `json:"workdir"`
	Timeout int    `json:"timeout"`
}

type execResponse struct {
	ExitCode int    `json:"exit_code"`
	Stdout   string `json:"stdout"`
	Stderr   string `json:"stderr"`
	TimedOut bool   `json:"timed_out"`
}

func decodeExecRequest(r *http.Request) (execRequest, error) {
	var req execRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		return execRequest{}, fmt.Errorf("invalid request body: %w", err)
	}

	if req.Command == "" {
		return execRequest{}, fmt.Errorf("missing command")
	}

	if req.Workdir == "" {
		req.Workdir = defaultWorkdir
	}

	return req, nil
}

// newSandboxCmd builds the shell invocation for one exec request. On
// cancellation the whole descendant tree is terminated, not just the
// shell: sh gets SIGTERM and every process it left behind is swept via
// the process table before WaitDelay fires the final SIGKILL.
func newSandboxCmd(ctx context.Context, command, workdir string) *exec.Cmd {
	cmd := exec.CommandContext(ctx, "sh", "-c", command)
	cmd.Dir = workdir
	cmd.WaitDelay = killGrace
	cmd.Cancel = func() error {
		if cmd.Process != nil {
			procutil.KillProcessGroup(cmd.Process.Pid, "", false)
		}

		return cmd.Process.Signal(syscall.SIGTERM)
	}

	return cmd
}

func (s *Server) handleExec(w http.ResponseWriter, r *http.Request) {
	req, err := decodeExecRequest(r)
	if err != nil {
		writeJSONStatus(w, http.StatusBadRequest, map[string]string{"error": err.Error()})
		return
	}

	timeout := defaultTimeout
	if req.Timeout > 0 {
		timeout = time.Duration(req.Timeout) * time.Second
	}

	ctx, cancel := context.WithTimeout(r.Context(), timeout)
	defer cancel()

	cmd := newSandboxCmd(ctx, req.Command, req.Workdir)

	var stdout, stderr buffer

	audit := logutil.NewCmdLogger(log.WithField("workdir", req.Workdir))
	defer audit.Destroy()

	cmd.Stdout = io.MultiWriter(&stdout, audit)
	cmd.Stderr = &stderr

	log.Infof("exec: %s", req.Command)
	err = cmd.Run()

	resp := execResponse{Stdout: stdout.String(), Stderr: stderr.String()}

	switch {
	case ctx.Err() == context.DeadlineExceeded:
		resp.ExitCode = -1
		resp.Stderr = "Command timed out"
		resp.TimedOut = true
	case err != nil:
		if exitErr, ok := err.(*exec.ExitError); ok {
			resp.ExitCode = exitErr.ExitCode()
		} else {
			resp.ExitCode = -1
			resp.Stderr = err.Error()
		}
	}

	writeJSON(w, resp)
}

// buffer is a concurrency-safe io.Writer sink used to collect a
// subprocess's stdout/stderr.
type buffer struct {
	mu  sync.Mutex
	buf []byte
}

func (b *buffer) Write(p []byte) (int, error) {
	b.mu.Lock()
	defer b.mu.Unlock()

	b.buf = append(b.buf, p...)

	return len(p), nil
}

func (b *buffer) String() string {
	b.mu.Lock()
	defer b.mu.Unlock()

	return string(b.buf)
}

var _ io.Writer = (*buffer)(nil)
