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
	"encoding/json"
	"net/http"

	"github.com/gorilla/mux"
	"github.com/gorilla/websocket"

	"github.com/sandboxd/agentbox/pkg/manager"
)

type createSessionRequest struct {
	SessionID string   `json:"session_id"`
	TenantID  string   `json:"tenant_id"`
	// AllowedHosts is a pointer so "absent" (defaults apply) can be told
	// apart from "present but empty" (no network at all), which is the
	// distinction CreateSession's allowedHosts parameter makes on nil vs.
	// a non-nil empty slice.
	AllowedHosts *[]string `json:"allowed_hosts"`
}

type sessionResponse struct {
	ID           string   `json:"id"`
	TenantID     string   `json:"tenant_id"`
	ContainerID  string   `json:"container_id"`
	AllowedHosts []string `json:"allowed_hosts,omitempty"`
}

func toSessionResponse(s *manager.Session) sessionResponse {
	return sessionResponse{
		ID:           s.ID,
		TenantID:     s.TenantID,
		ContainerID:  s.ContainerID,
		AllowedHosts: s.AllowedHosts,
	}
}

func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}

func writeErr(w http.ResponseWriter, err error) {
	writeJSON(w, statusFor(err), map[string]string{"error": err.Error()})
}

func (s *Server) handleCreateSession(w http.ResponseWriter, r *http.Request) {
	var req createSessionRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "malformed request body"})
		return
	}

	var allowedHosts []string
	if req.AllowedHosts != nil {
		allowedHosts = *req.AllowedHosts
	}

	sess, err := s.mgr.CreateSession(r.Context(), req.SessionID, req.TenantID, allowedHosts)
	if err != nil {
		writeErr(w, err)
		return
	}

	writeJSON(w, http.StatusCreated, toSessionResponse(sess))
}

func (s *Server) handleListSessions(w http.ResponseWriter, r *http.Request) {
	sessions := s.mgr.ListSessions()

	out := make([]sessionResponse, 0, len(sessions))
	for _, sess := range sessions {
		out = append(out, toSessionResponse(sess))
	}

	writeJSON(w, http.StatusOK, out)
}

func (s *Server) handleGetSession(w http.ResponseWriter, r *http.Request) {
	id := mux.Vars(r)["id"]

	sess, err := s.mgr.GetSession(id)
	if err != nil {
		writeErr(w, err)
		return
	}

	writeJSON(w, http.StatusOK, toSessionResponse(sess))
}

func (s *Server) handleDestroySession(w http.ResponseWriter, r *http.Request) {
	id := mux.Vars(r)["id"]

	if err := s.mgr.DestroySession(r.Context(), id); err != nil {
		writeErr(w, err)
		return
	}

	w.WriteHeader(http.StatusNoContent)
}

type execRequest struct {
	Command string `json:"command"`
	Workdir string `json:"workdir"`
	Timeout int    `json:"timeout"`
}

func (req execRequest) toOptions() manager.ExecOptions {
	return manager.ExecOptions{Command: req.Command, Workdir: req.Workdir, Timeout: req.Timeout}
}

func (s *Server) handleExec(w http.ResponseWriter, r *http.Request) {
	id := mux.Vars(r)["id"]

	var req execRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil || req.Command == "" {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "missing command"})
		return
	}

	result, err := s.mgr.Exec(r.Context(), id, req.toOptions())
	if err != nil {
		writeErr(w, err)
		return
	}

	writeJSON(w, http.StatusOK, result)
}

// execStreamRequest carries no timeout: a streamed command runs until
// it exits or the websocket closes.
type execStreamRequest struct {
	Command string `json:"command"`
	Workdir string `json:"workdir"`
}

// handleExecStream upgrades to a websocket and relays the manager's
// ExecStream events as JSON text frames, in the order the agent
// emitted them.
func (s *Server) handleExecStream(w http.ResponseWriter, r *http.Request) {
	id := mux.Vars(r)["id"]

	var req execStreamRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil || req.Command == "" {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "missing command"})
		return
	}

	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		log.Warnf("websocket upgrade failed: %v", err)
		return
	}
	defer conn.Close()

	emit := func(ev manager.StreamEvent) error {
		return conn.WriteJSON(ev)
	}

	if err := s.mgr.ExecStream(r.Context(), id, req.Command, req.Workdir, emit); err != nil {
		conn.WriteMessage(websocket.CloseMessage,
			websocket.FormatCloseMessage(websocket.CloseInternalServerErr, err.Error()))

		return
	}

	conn.WriteMessage(websocket.CloseMessage, websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""))
}

type writeFileRequest struct {
	Path    string `json:"path"`
	Content string `json:"content"`
	// Mode is "w" (truncate, the default when absent) or "a" (append).
	Mode string `json:"mode"`
}

func (s *Server) handleWriteFile(w http.ResponseWriter, r *http.Request) {
	id := mux.Vars(r)["id"]

	var req writeFileRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil || req.Path == "" {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "missing path"})
		return
	}

	if err := s.mgr.WriteFile(r.Context(), id, req.Path, req.Content, req.Mode); err != nil {
		writeErr(w, err)
		return
	}

	writeJSON(w, http.StatusOK, map[string]bool{"success": true})
}

func (s *Server) handleReadFile(w http.ResponseWriter, r *http.Request) {
	id := mux.Vars(r)["id"]

	path := r.URL.Query().Get("path")
	if path == "" {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "missing path query parameter"})
		return
	}

	content, err := s.mgr.ReadFile(r.Context(), id, path)
	if err != nil {
		writeErr(w, err)
		return
	}

	writeJSON(w, http.StatusOK, map[string]string{"content": content})
}

type pipInstallRequest struct {
	Packages []string `json:"packages"`
	Timeout  int      `json:"timeout"`
}

func (s *Server) handlePipInstall(w http.ResponseWriter, r *http.Request) {
	id := mux.Vars(r)["id"]

	var req pipInstallRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil || len(req.Packages) == 0 {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "missing packages"})
		return
	}

	result, err := s.mgr.PipInstall(r.Context(), id, req.Packages, req.Timeout)
	if err != nil {
		writeErr(w, err)
		return
	}

	writeJSON(w, http.StatusOK, result)
}
