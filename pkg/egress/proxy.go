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

// Package egress implements the forward proxy sandboxes are pointed at
// via HTTP_PROXY/HTTPS_PROXY. It authorizes every connection against a
// per-session host allowlist recovered from a signed token, then either
// relays a plain HTTP request or splices a CONNECT tunnel.
package egress

import (
	"io"
	"net"
	"net/http"
	"strings"
	"time"

	"github.com/sandboxd/agentbox/pkg/common/logutil"
	"github.com/sandboxd/agentbox/pkg/monitor"
	"github.com/sandboxd/agentbox/pkg/token"
)

var log = logutil.GetLogger("egress")

// Proxy is an http.Handler implementing a forward proxy that enforces
// a per-session host allowlist.
type Proxy struct {
	Verifier *token.Signer
	// DialTimeout bounds connecting to the upstream host.
	DialTimeout time.Duration
}

// NewProxy builds a Proxy verifying tokens with verifier.
func NewProxy(verifier *token.Signer) *Proxy {
	return &Proxy{Verifier: verifier, DialTimeout: 10 * time.Second}
}

// ServeHTTP dispatches CONNECT (HTTPS tunneling) vs. plain absolute-URI
// HTTP forwarding, the two request shapes a standard HTTP_PROXY client
// produces.
func (p *Proxy) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	policy, err := resolvePolicy(r, p.Verifier)
	if err != nil {
		log.Warnf("deny: %v", err)
		http.Error(w, err.Error(), http.StatusForbidden)

		return
	}

	if r.Method == http.MethodConnect {
		p.handleConnect(w, r, policy)
		return
	}

	p.handleForward(w, r, policy)
}

func (p *Proxy) handleConnect(w http.ResponseWriter, r *http.Request, policy Policy) {
	host := r.URL.Host
	if host == "" {
		host = r.Host
	}

	hostOnly, port := host, "443"
	if h, pt, err := net.SplitHostPort(host); err == nil {
		hostOnly, port = h, pt
	} else {
		host = net.JoinHostPort(host, port)
	}

	if !HostAllowed(hostOnly, policy.AllowedHosts) {
		monitor.RecordProxyDecision("deny")
		log.Warnf("deny method=CONNECT host=%s port=%s session=%s", hostOnly, port, policy.sessionLabel())
		http.Error(w, "Host not allowed: "+hostOnly, http.StatusForbidden)

		return
	}

	monitor.RecordProxyDecision("allow")

	upstream, err := net.DialTimeout("tcp", host, p.DialTimeout)
	if err != nil {
		http.Error(w, "upstream connect failed: "+err.Error(), http.StatusBadGateway)

		return
	}
	defer upstream.Close()

	hijacker, ok := w.(http.Hijacker)
	if !ok {
		http.Error(w, "connection hijacking unsupported", http.StatusInternalServerError)

		return
	}

	clientConn, _, err := hijacker.Hijack()
	if err != nil {
		return
	}
	defer clientConn.Close()

	if _, err := clientConn.Write([]byte("HTTP/1.1 200 Connection Established\r\n\r\n")); err != nil {
		return
	}

	log.Infof("allow method=CONNECT host=%s port=%s session=%s", hostOnly, port, policy.sessionLabel())
	splice(clientConn, upstream)
}

func splice(a, b net.Conn) {
	done := make(chan struct{}, 2)

	go func() {
		io.Copy(a, b)
		done <- struct{}{}
	}()

	go func() {
		io.Copy(b, a)
		done <- struct{}{}
	}()

	<-done
}

// hopByHopHeaders are stripped from the outbound request before
// forwarding; response headers are filtered by responseStripHeaders.
var hopByHopHeaders = []string{
	"Proxy-Authorization",
	"Proxy-Connection",
	"Host",
}

var responseStripHeaders = []string{
	"Transfer-Encoding",
	"Content-Encoding",
}

func (p *Proxy) handleForward(w http.ResponseWriter, r *http.Request, policy Policy) {
	if !r.URL.IsAbs() {
		http.Error(w, "proxy requires an absolute-URI request target", http.StatusBadRequest)

		return
	}

	host := r.URL.Hostname()

	port := r.URL.Port()
	if port == "" {
		port = "80"
	}

	if !HostAllowed(host, policy.AllowedHosts) {
		monitor.RecordProxyDecision("deny")
		log.Warnf("deny method=%s host=%s port=%s session=%s", r.Method, host, port, policy.sessionLabel())
		http.Error(w, "Host not allowed: "+host, http.StatusForbidden)

		return
	}

	monitor.RecordProxyDecision("allow")

	outReq := r.Clone(r.Context())
	outReq.RequestURI = ""

	for _, h := range hopByHopHeaders {
		outReq.Header.Del(h)
	}

	resp, err := http.DefaultTransport.RoundTrip(outReq)
	if err != nil {
		http.Error(w, "upstream request failed: "+err.Error(), http.StatusBadGateway)

		return
	}
	defer resp.Body.Close()

	log.Infof("allow method=%s host=%s port=%s session=%s", r.Method, host, port, policy.sessionLabel())

	for key, values := range resp.Header {
		if contains(responseStripHeaders, key) {
			continue
		}

		for _, v := range values {
			w.Header().Add(key, v)
		}
	}

	w.WriteHeader(resp.StatusCode)
	io.Copy(w, resp.Body)
}

func contains(headers []string, name string) bool {
	for _, h := range headers {
		if strings.EqualFold(h, name) {
			return true
		}
	}

	return false
}
