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

// Command sandbox-egress is the HTTP forward proxy and CONNECT
// tunneler every sandbox container is pointed at via HTTP_PROXY /
// HTTPS_PROXY. It authorizes outbound traffic against the per-session
// host allowlist carried in the sandbox's signed egress token.
package main

import (
	"fmt"
	"os"

	"github.com/sandboxd/agentbox/cmd/sandbox-egress/app"
)

func main() {
	if err := app.NewCommand().Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "%v\n", err)
		os.Exit(1)
	}
}
