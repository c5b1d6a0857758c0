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

package procutil

import (
	"context"
	"syscall"
	"time"
)

// ReapZombies performs one non-blocking sweep of wait4(-1, WNOHANG),
// collecting the exit status of every child that has already exited.
// It returns once there is nothing left to reap.
func ReapZombies() {
	for {
		var status syscall.WaitStatus

		pid, err := syscall.Wait4(-1, &status, syscall.WNOHANG, nil)
		if pid <= 0 || err != nil {
			return
		}
	}
}

// RunZombieReaper sweeps for exited children on interval until ctx is
// cancelled. A PID-1 process must run this for the lifetime of the
// container: orphaned grandchildren are reparented to it and become
// zombies forever if nobody calls wait() on their behalf.
func RunZombieReaper(ctx context.Context, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			ReapZombies()
		}
	}
}
