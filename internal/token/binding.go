package token

import (
	"fmt"
	"strings"
)

// HostSet is the allow-list of hostnames a token URL may name.
type HostSet map[string]struct{}

// NewHostSet normalizes hostnames to lower case without a trailing dot.
func NewHostSet(hosts ...string) HostSet {
	set := make(HostSet, len(hosts))
	for _, h := range hosts {
		if n := normalizeHostname(h); n != "" {
			set[n] = struct{}{}
		}
	}
	return set
}

// Contains reports whether the hostname is allowed. Ports are not part of a
// hostname, so tokens stay valid across the ports one deployment listens on.
func (h HostSet) Contains(hostname string) bool {
	_, ok := h[normalizeHostname(hostname)]
	return ok
}

func normalizeHostname(h string) string {
	return strings.ToLower(strings.TrimSuffix(strings.TrimSpace(h), "."))
}

// CheckBinding verifies that a token issued for this service covers the
// request path. The token URL hostname must be in hosts, and requestPath must
// sit under the token URL path.
func CheckBinding(t Token, hosts HostSet, requestPath string) error {
	prefix, err := parsePrefix(t.url)
	if err != nil {
		return err
	}
	if !hosts.Contains(prefix.Hostname()) {
		return newError(KindHostMismatch, fmt.Sprintf("host %q from %q is not served here", prefix.Hostname(), t.url))
	}
	if !pathCovers(prefix.Path, requestPath) {
		return newError(KindPathPrefixMismatch, fmt.Sprintf("request path %q is outside token path %q", requestPath, prefix.Path))
	}
	return nil
}

// pathCovers matches on whole path segments, so /workspace/w1 does not cover
// /workspace/w10.
func pathCovers(prefix, requestPath string) bool {
	if prefix == "" || prefix == "/" {
		return true
	}
	if !strings.HasPrefix(requestPath, prefix) {
		return false
	}
	if strings.HasSuffix(prefix, "/") || len(requestPath) == len(prefix) {
		return true
	}
	return requestPath[len(prefix)] == '/'
}

// RequireScope fails with KindScopeMismatch when the token scope does not
// permit the required one.
func RequireScope(t Token, required Scope) error {
	if t.scope.Permits(required) {
		return nil
	}
	return newError(KindScopeMismatch, fmt.Sprintf("scope %q does not permit %q", t.scope, required))
}
