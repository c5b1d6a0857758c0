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
	"context"
	"time"

	"github.com/sandboxd/agentbox/pkg/monitor"
)

// runReaper periodically sweeps the session table, destroying any
// session whose last activity is older than the configured timeout.
func (m *Manager) runReaper(ctx context.Context) {
	ticker := time.NewTicker(m.cfg.cleanupInterval())
	defer ticker.Stop()

	timeout := m.cfg.sessionTimeout()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			m.reapExpired(ctx, timeout)
		}
	}
}

func (m *Manager) reapExpired(ctx context.Context, timeout time.Duration) {
	now := time.Now()

	for _, sess := range m.table.list() {
		if sess.idleFor(now) <= timeout {
			continue
		}

		// Pop before the engine call: an expired session must never be
		// observable as live while its removal is in flight. The pop can
		// miss if a concurrent DestroySession won the race, which is fine.
		if _, ok := m.table.pop(sess.ID); !ok {
			continue
		}

		monitor.MetricsSessionsDestroyed.WithLabelValues("idle").Inc()
		monitor.MetricsSessionsActive.Set(float64(len(m.table.list())))

		if err := m.driver.Remove(ctx, sess.ContainerID); err != nil {
			log.Errorf("reap session %s: remove container: %v", sess.ID, err)
			continue
		}

		log.Infof("reaped idle session id=%s idle_for=%s", sess.ID, now.Sub(sess.LastActivity))
	}
}
