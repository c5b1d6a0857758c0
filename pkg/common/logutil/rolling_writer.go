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

package logutil

import (
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"sync"
	"time"
)

const (
	dateLayout        = "2006-01-02"
	defaultExpireDays = 90
)

var (
	expireDays = defaultExpireDays

	logDir = func() string {
		if dir := os.Getenv(EnvKeyLogPath); dir != "" {
			return dir
		}

		return filepath.Join(os.Getenv("HOME"), "logs")
	}()
)

// SetExpireDay sets how many days of log files are kept.
func SetExpireDay(days int) {
	if days <= 0 || days >= 365 {
		return
	}

	expireDays = days
}

// rollingWriter appends to <logDir>/<module>-<date>.log, switching to a
// new file when the date changes. A file that cannot be opened is not
// fatal: lines still reach stdout (when enabled) and the open is
// retried on the next day boundary.
type rollingWriter struct {
	mu     sync.Mutex
	module string
	day    string
	file   *os.File
}

func newRollingWriter(module string) *rollingWriter {
	return &rollingWriter{module: module}
}

func (w *rollingWriter) Write(p []byte) (int, error) {
	w.mu.Lock()
	defer w.mu.Unlock()

	day := time.Now().Format(dateLayout)
	if day != w.day {
		w.roll(day)
		go pruneExpired()
	}

	if enableStdout {
		os.Stdout.Write(p)
	}

	if w.file == nil {
		return len(p), nil
	}

	return w.file.Write(p)
}

func (w *rollingWriter) roll(day string) {
	if w.file != nil {
		w.file.Close()
		w.file = nil
	}

	w.day = day

	if err := os.MkdirAll(logDir, 0o755); err != nil {
		return
	}

	name := filepath.Join(logDir, fmt.Sprintf("%s-%s.log", w.module, day))

	f, err := os.OpenFile(name, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0o644)
	if err != nil {
		return
	}

	w.file = f
}

var logFileDate = regexp.MustCompile(`\d{4}-\d{2}-\d{2}`)

// pruneExpired removes log files whose embedded date is older than the
// retention window.
func pruneExpired() {
	entries, err := os.ReadDir(logDir)
	if err != nil {
		return
	}

	cutoff := time.Now().AddDate(0, 0, -expireDays)

	for _, entry := range entries {
		dateStr := logFileDate.FindString(entry.Name())
		if dateStr == "" {
			continue
		}

		date, err := time.Parse(dateLayout, dateStr)
		if err != nil {
			continue
		}

		if date.Before(cutoff) {
			os.Remove(filepath.Join(logDir, entry.Name()))
		}
	}
}
