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

// Package logutil hands out one logrus logger per module, each writing
// to its own daily-rolling file under the log directory (and to stdout
// unless disabled). Old log files are pruned after the configured
// number of days.
package logutil

import (
	"os"
	"sync"

	"github.com/sirupsen/logrus"
)

// Environment variables honored at process start, before any config
// file is read.
const (
	EnvKeyLogPath      = "SANDBOX_LOG_PATH"
	EnvKeyEnableStdout = "SANDBOX_LOG_STDOUT"
	EnvKeyLogLevel     = "SANDBOX_LOG_LEVEL"
)

// Config is the log block shared by every binary's TOML options.
type Config struct {
	Level      string `toml:"level"`
	ExpireDays int    `toml:"expire_days"`
}

var (
	mu           sync.Mutex
	loggers      = make(map[string]*logrus.Logger)
	level        = logrus.InfoLevel
	enableStdout = true
)

func init() {
	if os.Getenv(EnvKeyEnableStdout) == "false" {
		enableStdout = false
	}

	if l, err := logrus.ParseLevel(os.Getenv(EnvKeyLogLevel)); err == nil {
		level = l
	}
}

// GetLogger returns the logger for moduleName, creating it on first use.
func GetLogger(moduleName string) *logrus.Logger {
	mu.Lock()
	defer mu.Unlock()

	if l, ok := loggers[moduleName]; ok {
		return l
	}

	l := logrus.New()
	l.SetOutput(newRollingWriter(moduleName))
	l.SetLevel(level)
	loggers[moduleName] = l

	return l
}

// SetLevel changes the level of every existing and future logger.
func SetLevel(l logrus.Level) {
	mu.Lock()
	defer mu.Unlock()

	level = l
	for _, logger := range loggers {
		logger.SetLevel(l)
	}
}

// SetEnableStdout toggles mirroring log lines to stdout.
func SetEnableStdout(enable bool) {
	enableStdout = enable
}
