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

// Package rpcsurface is the manager's external HTTP+JSON API: it
// translates requests into manager.Manager calls, maps manager.Kind to
// HTTP status codes, and relays ExecStream as a websocket of
// manager.StreamEvent frames.
package rpcsurface

import (
	"net/http"

	"github.com/sandboxd/agentbox/pkg/manager"
)

// statusFor maps a manager error Kind to its RPC-style HTTP status,
// per the error taxonomy: InvalidArgument/NotFound/PermissionDenied/
// Unauthenticated/DeadlineExceeded/Unavailable/Internal.
func statusFor(err error) int {
	switch manager.KindOf(err) {
	case manager.KindInvalidArgument:
		return http.StatusBadRequest
	case manager.KindNotFound:
		return http.StatusNotFound
	case manager.KindPermissionDenied:
		return http.StatusForbidden
	case manager.KindUnauthenticated:
		return http.StatusUnauthorized
	case manager.KindDeadlineExceeded:
		return http.StatusGatewayTimeout
	case manager.KindUnavailable:
		return http.StatusServiceUnavailable
	default:
		return http.StatusInternalServerError
	}
}
