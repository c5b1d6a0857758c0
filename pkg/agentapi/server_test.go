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
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"strings"
	"testing"

	"github.com/sandboxd/agentbox/pkg/common/pathutil"
)

// withSandboxRoot points pathutil's allowed prefixes at a temp dir for
// the duration of one test, restoring them afterward.
func withSandboxRoot(t *testing.T, dir string) {
	t.Helper()

	origWrite, origRead := pathutil.WritePrefixes, pathutil.ReadPrefixes
	pathutil.WritePrefixes = []string{dir}
	pathutil.ReadPrefixes = []string{dir}

	t.Cleanup(func() {
		pathutil.WritePrefixes = origWrite
		pathutil.ReadPrefixes = origRead
	})
}

func TestHandleHealth(t *testing.T) {
	s := NewServer(Config{})

	req := httptest.NewRequest(http.MethodGet, "/health", nil)
	rec := httptest.NewRecorder()

	s.router.ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", rec.Code)
	}

	if !strings.Contains(rec.Body.String(), `"status":"ok"`) {
		t.Errorf("body = %s, want status ok", rec.Body.String())
	}
}

func TestHandleExecRunsCommand(t *testing.T) {
	s := NewServer(Config{})

	body, _ := json.Marshal(execRequest{Command: "echo hello"})
	req := httptest.NewRequest(http.MethodPost, "/exec", bytes.NewReader(body))
	rec := httptest.NewRecorder()

	s.router.ServeHTTP(rec, req)

	var resp execResponse
	if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
		t.Fatalf("decode response: %v", err)
	}

	if resp.ExitCode != 0 || strings.TrimSpace(resp.Stdout) != "hello" {
		t.Errorf("exec result = %+v, want exit 0 stdout hello", resp)
	}
}

func TestHandleExecMissingCommand(t *testing.T) {
	s := NewServer(Config{})

	req := httptest.NewRequest(http.MethodPost, "/exec", bytes.NewReader([]byte(`{}`)))
	rec := httptest.NewRecorder()

	s.router.ServeHTTP(rec, req)

	if rec.Code != http.StatusBadRequest {
		t.Errorf("status = %d, want 400", rec.Code)
	}
}

func TestHandleExecNonZeroExit(t *testing.T) {
	s := NewServer(Config{})

	body, _ := json.Marshal(execRequest{Command: "exit 7"})
	req := httptest.NewRequest(http.MethodPost, "/exec", bytes.NewReader(body))
	rec := httptest.NewRecorder()

	s.router.ServeHTTP(rec, req)

	var resp execResponse
	json.Unmarshal(rec.Body.Bytes(), &resp)

	if resp.ExitCode != 7 {
		t.Errorf("ExitCode = %d, want 7", resp.ExitCode)
	}
}

func TestWriteThenReadFile(t *testing.T) {
	s := NewServer(Config{})
	dir := t.TempDir()
	withSandboxRoot(t, dir)
	path := filepath.Join(dir, "out.txt")

	writeBody, _ := json.Marshal(writeFileRequest{Path: path, Content: "payload"})
	req := httptest.NewRequest(http.MethodPost, "/file/write", bytes.NewReader(writeBody))
	rec := httptest.NewRecorder()
	s.router.ServeHTTP(rec, req)

	var writeResp map[string]interface{}
	json.Unmarshal(rec.Body.Bytes(), &writeResp)
	if ok, _ := writeResp["success"].(bool); !ok {
		t.Fatalf("write response = %v, want success", writeResp)
	}

	readBody, _ := json.Marshal(readFileRequest{Path: path})
	req = httptest.NewRequest(http.MethodPost, "/file/read", bytes.NewReader(readBody))
	rec = httptest.NewRecorder()
	s.router.ServeHTTP(rec, req)

	var readResp map[string]interface{}
	json.Unmarshal(rec.Body.Bytes(), &readResp)

	if readResp["content"] != "payload" {
		t.Errorf("read response = %v, want content payload", readResp)
	}
}

func TestWriteFileAppendMode(t *testing.T) {
	s := NewServer(Config{})
	dir := t.TempDir()
	withSandboxRoot(t, dir)
	path := filepath.Join(dir, "log.txt")

	for _, chunk := range []string{"one", "two"} {
		body, _ := json.Marshal(writeFileRequest{Path: path, Content: chunk, Mode: "a"})
		req := httptest.NewRequest(http.MethodPost, "/file/write", bytes.NewReader(body))
		rec := httptest.NewRecorder()
		s.router.ServeHTTP(rec, req)
	}

	readBody, _ := json.Marshal(readFileRequest{Path: path})
	req := httptest.NewRequest(http.MethodPost, "/file/read", bytes.NewReader(readBody))
	rec := httptest.NewRecorder()
	s.router.ServeHTTP(rec, req)

	var readResp map[string]interface{}
	json.Unmarshal(rec.Body.Bytes(), &readResp)

	if readResp["content"] != "onetwo" {
		t.Errorf("read after two appends = %v, want content onetwo", readResp)
	}
}

func TestWriteFileUnknownMode(t *testing.T) {
	s := NewServer(Config{})
	dir := t.TempDir()
	withSandboxRoot(t, dir)

	body, _ := json.Marshal(writeFileRequest{Path: filepath.Join(dir, "x"), Content: "x", Mode: "rw"})
	req := httptest.NewRequest(http.MethodPost, "/file/write", bytes.NewReader(body))
	rec := httptest.NewRecorder()
	s.router.ServeHTTP(rec, req)

	if rec.Code != http.StatusBadRequest {
		t.Errorf("status = %d, want 400", rec.Code)
	}
}

func TestReadFileRejectsOutsideSandbox(t *testing.T) {
	s := NewServer(Config{})

	body, _ := json.Marshal(readFileRequest{Path: "/etc/passwd"})
	req := httptest.NewRequest(http.MethodPost, "/file/read", bytes.NewReader(body))
	rec := httptest.NewRecorder()

	s.router.ServeHTTP(rec, req)

	if rec.Code != http.StatusForbidden {
		t.Errorf("status = %d, want 403", rec.Code)
	}
}

func TestHandleExecStreamHasNoDeadline(t *testing.T) {
	s := NewServer(Config{})

	// A stray timeout field in the body must be ignored: streamed
	// commands run until they exit, however long that takes.
	body := []byte(`{"command":"sleep 2; echo survived","timeout":1}`)
	req := httptest.NewRequest(http.MethodPost, "/exec/stream", bytes.NewReader(body))
	rec := httptest.NewRecorder()

	s.router.ServeHTTP(rec, req)

	out := rec.Body.String()
	if !strings.Contains(out, "survived") {
		t.Errorf("stream output = %q, want output emitted after the stray timeout elapsed", out)
	}

	if !strings.Contains(out, `"type":"exit"`) || strings.Contains(out, `"type":"error"`) {
		t.Errorf("stream output = %q, want a clean exit event and no error event", out)
	}

	if strings.Contains(out, "timed out") {
		t.Errorf("stream output = %q, want no timeout error", out)
	}
}

func TestHandleExecStreamEmitsExitEvent(t *testing.T) {
	s := NewServer(Config{})

	body, _ := json.Marshal(execRequest{Command: "echo streamed"})
	req := httptest.NewRequest(http.MethodPost, "/exec/stream", bytes.NewReader(body))
	rec := httptest.NewRecorder()

	s.router.ServeHTTP(rec, req)

	out := rec.Body.String()
	if !strings.Contains(out, `"type":"stdout"`) {
		t.Errorf("stream output = %q, want a stdout event", out)
	}

	if !strings.Contains(out, `"type":"exit"`) {
		t.Errorf("stream output = %q, want an exit event", out)
	}
}
