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
	"encoding/json"
	"net/http"
	"os"
	"path/filepath"

	"github.com/sandboxd/agentbox/pkg/common/pathutil"
)

type writeFileRequest struct {
	Path    string `json:"path"`
	Content string `json:"content"`
	// Mode is "w" (truncate, the default) or "a" (append).
	Mode string `json:"mode"`
}

type readFileRequest struct {
	Path string `json:"path"`
}

func (s *Server) handleWriteFile(w http.ResponseWriter, r *http.Request) {
	var req writeFileRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil || req.Path == "" {
		writeJSONStatus(w, http.StatusBadRequest, map[string]string{"error": "missing path"})
		return
	}

	if req.Mode == "" {
		req.Mode = "w"
	}

	if req.Mode != "w" && req.Mode != "a" {
		writeJSONStatus(w, http.StatusBadRequest, map[string]string{"error": "mode must be \"w\" or \"a\""})
		return
	}

	resolved, err := pathutil.ResolveForWrite(req.Path)
	if err != nil {
		writeJSONStatus(w, http.StatusForbidden, map[string]interface{}{"success": false, "error": err.Error()})
		return
	}

	if err := os.MkdirAll(filepath.Dir(resolved), 0o755); err != nil {
		writeJSON(w, map[string]interface{}{"success": false, "error": err.Error()})
		return
	}

	flags := os.O_CREATE | os.O_WRONLY | os.O_TRUNC
	if req.Mode == "a" {
		flags = os.O_CREATE | os.O_WRONLY | os.O_APPEND
	}

	f, err := os.OpenFile(resolved, flags, 0o644)
	if err != nil {
		writeJSON(w, map[string]interface{}{"success": false, "error": err.Error()})
		return
	}
	defer f.Close()

	if _, err := f.WriteString(req.Content); err != nil {
		writeJSON(w, map[string]interface{}{"success": false, "error": err.Error()})
		return
	}

	writeJSON(w, map[string]interface{}{"success": true})
}

func (s *Server) handleReadFile(w http.ResponseWriter, r *http.Request) {
	var req readFileRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil || req.Path == "" {
		writeJSONStatus(w, http.StatusBadRequest, map[string]string{"error": "missing path"})
		return
	}

	resolved, err := pathutil.ResolveForRead(req.Path)
	if err != nil {
		writeJSONStatus(w, http.StatusForbidden, map[string]interface{}{"success": false, "error": err.Error()})
		return
	}

	content, err := os.ReadFile(resolved)
	if err != nil {
		msg := "File not found"
		if !os.IsNotExist(err) {
			msg = err.Error()
		}

		writeJSON(w, map[string]interface{}{"success": false, "error": msg})

		return
	}

	writeJSON(w, map[string]interface{}{"success": true, "content": string(content)})
}
