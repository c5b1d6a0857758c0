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

package monitor

import (
	"net/http"
	"strconv"
	"time"

	"github.com/felixge/httpsnoop"
)

// WrapPrometheus wraps an HTTP handler to record request duration,
// path, method, and status code metrics for every request it serves.
func WrapPrometheus(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var (
			path   = r.URL.Path
			method = r.Method
			st     = time.Now()
		)

		MetricsHTTPCurrentRequests.WithLabelValues(path, method).Inc()

		metrics := httpsnoop.CaptureMetrics(next, w, r)
		code := strconv.Itoa(metrics.Code)
		delta := time.Since(st).Microseconds()

		MetricsHTTPCurrentRequests.WithLabelValues(path, method).Dec()
		MetricsHTTPRequestRt.WithLabelValues(path, method).Observe(float64(delta))
		MetricsHTTPRequests.WithLabelValues(path, method, code).Inc()
	})
}

// RecordExec observes an exec call's duration under a coarse success/
// error status label, keeping cardinality bounded regardless of how
// many distinct commands sessions run.
func RecordExec(start time.Time, err error) {
	status := "ok"
	if err != nil {
		status = "error"
	}

	MetricsExecLatency.WithLabelValues(status).Observe(float64(time.Since(start).Milliseconds()))
}

// RecordProxyDecision records one egress proxy accept/deny outcome.
func RecordProxyDecision(decision string) {
	MetricsProxyDecisions.WithLabelValues(decision).Inc()
}
