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
	"errors"
	"fmt"
)

// Kind classifies manager errors by what an RPC-facing caller should do
// with them, independent of the underlying cause's message text — the
// same classify-don't-string-match spirit as sessionutil's error
// wrapping, but expressed as a typed taxonomy the RPC surface can
// switch on mechanically.
type Kind int

const (
	KindInternal Kind = iota
	KindInvalidArgument
	KindNotFound
	KindPermissionDenied
	KindUnauthenticated
	KindDeadlineExceeded
	KindUnavailable
)

func (k Kind) String() string {
	switch k {
	case KindInvalidArgument:
		return "invalid_argument"
	case KindNotFound:
		return "not_found"
	case KindPermissionDenied:
		return "permission_denied"
	case KindUnauthenticated:
		return "unauthenticated"
	case KindDeadlineExceeded:
		return "deadline_exceeded"
	case KindUnavailable:
		return "unavailable"
	default:
		return "internal"
	}
}

// Error wraps an underlying cause with a Kind so the RPC surface can map
// it to a status code without inspecting message text.
type Error struct {
	Kind Kind
	Op   string
	Err  error
}

func (e *Error) Error() string {
	if e.Err == nil {
		return fmt.Sprintf("%s: %s", e.Op, e.Kind)
	}

	return fmt.Sprintf("%s: %s: %v", e.Op, e.Kind, e.Err)
}

func (e *Error) Unwrap() error { return e.Err }

func newErr(op string, kind Kind, err error) *Error {
	return &Error{Op: op, Kind: kind, Err: err}
}

// KindOf extracts the Kind of err, defaulting to KindInternal for
// errors that never went through this package.
func KindOf(err error) Kind {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}

	return KindInternal
}
