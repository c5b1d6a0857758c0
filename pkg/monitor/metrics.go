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

// Package monitor exposes Prometheus metrics for the session manager
// and egress proxy, and an HTTP middleware that records per-request
// latency and status codes.
package monitor

import (
	"github.com/prometheus/client_golang/prometheus"
)

var (
	MetricsHTTPRequestRt = prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "http_request_rt_us",
		Help:    "The time of each http request",
		Buckets: []float64{1000, 2000, 3000, 5000, 8000},
	}, []string{"path", "method"})

	MetricsHTTPRequests = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "http_requests_total",
		Help: "The count of http request on path, method, and status code",
	}, []string{"path", "method", "code"})

	MetricsHTTPCurrentRequests = prometheus.NewGaugeVec(prometheus.GaugeOpts{
		Name: "http_current_requests_total",
		Help: "The count of current http request on path and method",
	}, []string{"path", "method"})

	MetricsSessionsCreated = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "sandbox_sessions_created_total",
		Help: "The count of sessions created",
	}, []string{"tenant_id"})

	MetricsSessionCreateError = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "sandbox_session_create_error_total",
		Help: "The count of session creation failures",
	}, []string{})

	MetricsSessionsDestroyed = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "sandbox_sessions_destroyed_total",
		Help: "The count of sessions destroyed, including by the idle reaper",
	}, []string{"reason"})

	MetricsSessionsActive = prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "sandbox_sessions_active",
		Help: "The count of sessions currently live",
	})

	MetricsExecLatency = prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "sandbox_exec_duration_ms",
		Help:    "The duration of exec calls routed to a session agent",
		Buckets: []float64{10, 50, 100, 500, 1000, 5000, 30000},
	}, []string{"status"})

	MetricsProxyDecisions = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "egress_proxy_decisions_total",
		Help: "The count of egress proxy connect/forward decisions by outcome",
	}, []string{"decision"})
)

func init() {
	prometheus.MustRegister(
		MetricsHTTPRequestRt,
		MetricsHTTPRequests,
		MetricsHTTPCurrentRequests,
		MetricsSessionsCreated,
		MetricsSessionCreateError,
		MetricsSessionsDestroyed,
		MetricsSessionsActive,
		MetricsExecLatency,
		MetricsProxyDecisions,
	)
}
