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

// Package agentapi is the in-container agent: it runs as PID 1 inside
// every sandbox, reaps zombies that get reparented to it, enforces a
// process-wide memory ceiling, and exposes exec/file operations over
// HTTP for the session manager to drive.
package agentapi

import (
	"context"
	"net/http"
	"time"

	"github.com/gorilla/mux"

	"github.com/sandboxd/agentbox/pkg/common/logutil"
	"github.com/sandboxd/agentbox/pkg/common/procutil"
)

var log = logutil.GetLogger("agent")

// Config configures the in-container agent server.
type Config struct {
	Addr             string
	MemoryLimitBytes int64
	ZombieReapEvery  time.Duration
}

// Server is the agent's HTTP surface.
type Server struct {
	cfg    Config
	router *mux.Router
}

// NewServer builds a Server and wires its routes.
func NewServer(cfg Config) *Server {
	if cfg.ZombieReapEvery <= 0 {
		cfg.ZombieReapEvery = time.Second
	}

	s := &Server{cfg: cfg, router: mux.NewRouter()}

	s.router.HandleFunc("/health", s.handleHealth).Methods(http.MethodGet)
	s.router.HandleFunc("/exec", s.handleExec).Methods(http.MethodPost)
	s.router.HandleFunc("/exec/stream", s.handleExecStream).Methods(http.MethodPost)
	s.router.HandleFunc("/file/write", s.handleWriteFile).Methods(http.MethodPost)
	s.router.HandleFunc("/file/read", s.handleReadFile).Methods(http.MethodPost)

	return s
}

// Run applies the configured memory ceiling, starts the zombie reaper,
// and serves HTTP until ctx is cancelled.
func (s *Server) Run(ctx context.Context) error {
	if s.cfg.MemoryLimitBytes > 0 {
		if err := applyMemoryLimit(s.cfg.MemoryLimitBytes); err != nil {
			log.Errorf("apply memory limit: %v", err)
		}
	}

	go procutil.RunZombieReaper(ctx, s.cfg.ZombieReapEvery)

	httpServer := &http.Server{Addr: s.cfg.Addr, Handler: s.router}

	errCh := make(chan error, 1)
	go func() {
		log.Infof("agent listening on %s", s.cfg.Addr)
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

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	w.Write([]byte(`{"status":"ok"}`))
}
