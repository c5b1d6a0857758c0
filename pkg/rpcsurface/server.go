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
	"context"
	"net/http"
	"time"

	"github.com/gorilla/mux"
	"github.com/gorilla/websocket"

	"github.com/sandboxd/agentbox/pkg/common/logutil"
	"github.com/sandboxd/agentbox/pkg/manager"
	"github.com/sandboxd/agentbox/pkg/monitor"
)

var log = logutil.GetLogger("rpcsurface")

// upgrader has no origin restriction; the manager's RPC surface is
// meant to sit behind the caller's own network boundary.
var upgrader = websocket.Upgrader{}

// Config configures the manager's external HTTP+JSON API.
type Config struct {
	Addr string
}

// Server is the RPC surface: it owns the mux router and delegates
// every handler to a Manager.
type Server struct {
	cfg Config
	mgr *manager.Manager
	rtr *mux.Router
}

// NewServer builds a Server and wires its routes.
func NewServer(cfg Config, mgr *manager.Manager) *Server {
	s := &Server{cfg: cfg, mgr: mgr, rtr: mux.NewRouter()}

	s.rtr.HandleFunc("/v1/sessions", s.handleCreateSession).Methods(http.MethodPost)
	s.rtr.HandleFunc("/v1/sessions", s.handleListSessions).Methods(http.MethodGet)
	s.rtr.HandleFunc("/v1/sessions/{id}", s.handleGetSession).Methods(http.MethodGet)
	s.rtr.HandleFunc("/v1/sessions/{id}", s.handleDestroySession).Methods(http.MethodDelete)
	s.rtr.HandleFunc("/v1/sessions/{id}/exec", s.handleExec).Methods(http.MethodPost)
	s.rtr.HandleFunc("/v1/sessions/{id}/exec/stream", s.handleExecStream)
	s.rtr.HandleFunc("/v1/sessions/{id}/files", s.handleWriteFile).Methods(http.MethodPut)
	s.rtr.HandleFunc("/v1/sessions/{id}/files", s.handleReadFile).Methods(http.MethodGet)
	s.rtr.HandleFunc("/v1/sessions/{id}/pip-install", s.handlePipInstall).Methods(http.MethodPost)

	return s
}

// Router exposes the wired mux.Router for tests.
func (s *Server) Router() *mux.Router {
	return s.rtr
}

// Run serves the RPC surface until ctx is cancelled.
func (s *Server) Run(ctx context.Context) error {
	httpServer := &http.Server{Addr: s.cfg.Addr, Handler: monitor.WrapPrometheus(s.rtr)}

	errCh := make(chan error, 1)
	go func() {
		log.Infof("rpc surface listening on %s", s.cfg.Addr)
		errCh <- httpServer.ListenAndServe()
	}()

	select {
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()

		return httpServer.Shutdown(shutdownCtx)
	case err := <-errCh:
		if err == http.ErrServerClosed {
			return nil
		}

		return err
	}
}
