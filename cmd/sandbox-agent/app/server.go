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
	"time"

	"github.com/sirupsen/logrus"

	"github.com/sandboxd/agentbox/pkg/agentapi"
	"github.com/sandboxd/agentbox/pkg/common/logutil"
)

// runServer configures and starts the sandbox-agent: it installs the
// process-wide memory ceiling, starts the zombie reaper, and serves
// the exec/file HTTP surface until a shutdown signal arrives.
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

	srv := agentapi.NewServer(agentapi.Config{
		Addr:             opt.Addr,
		MemoryLimitBytes: opt.MemoryLimitBytes,
		ZombieReapEvery:  time.Second,
	})

	return srv.Run(ctx)
}
