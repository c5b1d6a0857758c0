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
	"bytes"
	"sync"

	"github.com/sirupsen/logrus"
)

// maxAuditLine is the buffered length at which output with no newline
// yet is flushed to the audit log as one record, without waiting for
// the end of the line. Complete lines are flushed whole at any length.
const maxAuditLine = 512

// CmdLogger is an io.Writer that audit-logs command output line by
// line. It is attached alongside the real output sink, so capture and
// auditing see the same bytes.
type CmdLogger struct {
	mu  sync.Mutex
	buf []byte
	l   *logrus.Entry
}

// NewCmdLogger builds a CmdLogger flushing complete lines to l.
func NewCmdLogger(l *logrus.Entry) *CmdLogger {
	return &CmdLogger{buf: make([]byte, 0, maxAuditLine), l: l}
}

// Write buffers p, emitting one log record per completed line and
// force-flushing when the buffer reaches maxAuditLine.
func (c *CmdLogger) Write(p []byte) (int, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.buf = append(c.buf, p...)

	for {
		nl := bytes.IndexAny(c.buf, "\r\n")
		if nl == -1 {
			if len(c.buf) >= maxAuditLine {
				c.flushLocked(c.buf)
				c.buf = c.buf[:0]
			}

			break
		}

		c.flushLocked(c.buf[:nl])
		c.buf = append(c.buf[:0], c.buf[nl+1:]...)
	}

	return len(p), nil
}

// Destroy flushes any buffered partial line.
func (c *CmdLogger) Destroy() {
	c.mu.Lock()
	defer c.mu.Unlock()

	if len(c.buf) > 0 {
		c.flushLocked(c.buf)
		c.buf = c.buf[:0]
	}
}

func (c *CmdLogger) flushLocked(line []byte) {
	if len(line) == 0 {
		return
	}

	c.l.Infof("exec output: %s", line)
}
