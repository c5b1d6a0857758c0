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

package rpcsurface

import (
	"errors"
	"net/http"
	"testing"

	"github.com/sandboxd/agentbox/pkg/manager"
)

func TestStatusFor(t *testing.T) {
	tests := []struct {
		kind manager.Kind
		want int
	}{
		{manager.KindInvalidArgument, http.StatusBadRequest},
		{manager.KindNotFound, http.StatusNotFound},
		{manager.KindPermissionDenied, http.StatusForbidden},
		{manager.KindUnauthenticated, http.StatusUnauthorized},
		{manager.KindDeadlineExceeded, http.StatusGatewayTimeout},
		{manager.KindUnavailable, http.StatusServiceUnavailable},
		{manager.KindInternal, http.StatusInternalServerError},
	}

	for _, tt := range tests {
		err := &manager.Error{Kind: tt.kind, Op: "Test", Err: errors.New("boom")}
		if got := statusFor(err); got != tt.want {
			t.Errorf("statusFor(kind=%v) = %d, want %d", tt.kind, got, tt.want)
		}
	}
}

func TestStatusForUnwrappedError(t *testing.T) {
	if got := statusFor(errors.New("plain error")); got != http.StatusInternalServerError {
		t.Errorf("statusFor(plain) = %d, want 500", got)
	}
}
