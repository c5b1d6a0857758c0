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

package rpcsurface

import (
	"bytes"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/sandboxd/agentbox/pkg/manager"
)

func newTestServer() *Server {
	mgr := manager.New(manager.ContainerConfig{}, manager.SessionConfig{}, manager.ProxyConfig{}, nil)
	return NewServer(Config{}, mgr)
}

func TestHandleCreateSessionMalformedBody(t *testing.T) {
	s := newTestServer()

	req := httptest.NewRequest(http.MethodPost, "/v1/sessions", bytes.NewReader([]byte("{not json")))
	rec := httptest.NewRecorder()

	s.Router().ServeHTTP(rec, req)

	if rec.Code != http.StatusBadRequest {
		t.Errorf("status = %d, want 400", rec.Code)
	}
}

func TestHandleGetSessionNotFound(t *testing.T) {
	s := newTestServer()

	req := httptest.NewRequest(http.MethodGet, "/v1/sessions/missing", nil)
	rec := httptest.NewRecorder()

	s.Router().ServeHTTP(rec, req)

	if rec.Code != http.StatusNotFound {
		t.Errorf("status = %d, want 404", rec.Code)
	}
}

func TestHandleDestroySessionNotFound(t *testing.T) {
	s := newTestServer()

	req := httptest.NewRequest(http.MethodDelete, "/v1/sessions/missing", nil)
	rec := httptest.NewRecorder()

	s.Router().ServeHTTP(rec, req)

	if rec.Code != http.StatusNotFound {
		t.Errorf("status = %d, want 404", rec.Code)
	}
}

func TestHandleExecMissingCommand(t *testing.T) {
	s := newTestServer()

	req := httptest.NewRequest(http.MethodPost, "/v1/sessions/sess-1/exec", bytes.NewReader([]byte(`{}`)))
	rec := httptest.NewRecorder()

	s.Router().ServeHTTP(rec, req)

	if rec.Code != http.StatusBadRequest {
		t.Errorf("status = %d, want 400", rec.Code)
	}
}

func TestHandleWriteFileMissingPath(t *testing.T) {
	s := newTestServer()

	req := httptest.NewRequest(http.MethodPut, "/v1/sessions/sess-1/files", bytes.NewReader([]byte(`{"content":"x"}`)))
	rec := httptest.NewRecorder()

	s.Router().ServeHTTP(rec, req)

	if rec.Code != http.StatusBadRequest {
		t.Errorf("status = %d, want 400", rec.Code)
	}
}

func TestHandleReadFileMissingQueryParam(t *testing.T) {
	s := newTestServer()

	req := httptest.NewRequest(http.MethodGet, "/v1/sessions/sess-1/files", nil)
	rec := httptest.NewRecorder()

	s.Router().ServeHTTP(rec, req)

	if rec.Code != http.StatusBadRequest {
		t.Errorf("status = %d, want 400", rec.Code)
	}
}

func TestHandlePipInstallMissingPackages(t *testing.T) {
	s := newTestServer()

	req := httptest.NewRequest(http.MethodPost, "/v1/sessions/sess-1/pip-install", bytes.NewReader([]byte(`{}`)))
	rec := httptest.NewRecorder()

	s.Router().ServeHTTP(rec, req)

	if rec.Code != http.StatusBadRequest {
		t.Errorf("status = %d, want 400", rec.Code)
	}
}

func TestHandleListSessionsEmpty(t *testing.T) {
	s := newTestServer()

	req := httptest.NewRequest(http.MethodGet, "/v1/sessions", nil)
	rec := httptest.NewRecorder()

	s.Router().ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Errorf("status = %d, want 200", rec.Code)
	}

	if rec.Body.String() != "[]\n" {
		t.Errorf("body = %q, want empty JSON array", rec.Body.String())
	}
}
