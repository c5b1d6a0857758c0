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
	"crypto/rand"
	"encoding/hex"
	"net/http"

	"github.com/gorilla/mux"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/sirupsen/logrus"

	"github.com/sandboxd/agentbox/pkg/common/logutil"
	"github.com/sandboxd/agentbox/pkg/egress"
	"github.com/sandboxd/agentbox/pkg/monitor"
	"github.com/sandboxd/agentbox/pkg/token"
)

// runServer configures and starts the egress proxy.
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

	key := opt.SigningKey
	if key == "" {
		generated, err := randomSigningKey()
		if err != nil {
			return err
		}

		logrus.Warn("no signing_key configured: generated a random one for this process; " +
			"it cannot validate tokens minted by a different sandbox-manager process")
		key = generated
	}

	signer := token.NewSigner([]byte(key))
	proxy := egress.NewProxy(signer)

	go startMonitorServer(opt.MonitorAddr)

	httpServer := &http.Server{Addr: opt.Addr, Handler: monitor.WrapPrometheus(proxy)}

	errCh := make(chan error, 1)
	go func() {
		logrus.Infof("egress proxy listening on %s", opt.Addr)
		errCh <- httpServer.ListenAndServe()
	}()

	select {
	case <-ctx.Done():
		return httpServer.Close()
	case err := <-errCh:
		if err == http.ErrServerClosed {
			return nil
		}

		return err
	}
}

func randomSigningKey() (string, error) {
	buf := make([]byte, 32)
	if _, err := rand.Read(buf); err != nil {
		return "", err
	}

	return hex.EncodeToString(buf), nil
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
