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

package app

import (
	"context"
	"net/http"
	"time"

	"github.com/gorilla/mux"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/sirupsen/logrus"

	"github.com/sandboxd/agentbox/pkg/common/logutil"
	"github.com/sandboxd/agentbox/pkg/container"
	"github.com/sandboxd/agentbox/pkg/manager"
	"github.com/sandboxd/agentbox/pkg/rpcsurface"
)

// runServer configures and starts the sandbox-manager server: it wires
// the container driver, the session manager, and the RPC surface, then
// blocks serving requests until a shutdown signal arrives.
func runServer(opt *Option) error {
	level, err := logrus.ParseLevel(opt.LogConfig.Level)
	if err != nil {
		return err
	}

	logutil.SetLevel(level)
	logutil.SetExpireDay(opt.LogConfig.ExpireDays)

	ctx, cancel := setupSignal()
	defer cancel()

	logGlobalConfig(opt)

	go startMonitorServer(opt.MonitorAddr)

	driver, err := container.NewDriverFromEndpoint(opt.ContainerConfig.Endpoint, opt.ContainerConfig.DockerAPIVersion)
	if err != nil {
		return err
	}

	if err := driver.EnsureNetworks(ctx); err != nil {
		logrus.Warnf("ensure sandbox networks: %v", err)
	}

	mgr := manager.New(opt.ContainerConfig, opt.SessionConfig, opt.ProxyConfig, driver)

	go mgr.Run(ctx)

	srv := rpcsurface.NewServer(rpcsurface.Config{Addr: opt.ListenAddr}, mgr)

	runErr := srv.Run(ctx)

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutdownCancel()
	mgr.Shutdown(shutdownCtx)

	return runErr
}

// startMonitorServer starts the Prometheus metrics server.
func startMonitorServer(addr string) {
	server := &http.Server{Addr: addr}

	r := mux.NewRouter()
	r.HandleFunc("/metrics", func(w http.ResponseWriter, r *http.Request) { promhttp.Handler().ServeHTTP(w, r) })
	server.Handler = r

	if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		logrus.Errorf("monitor server: %v", err)
	}
}
