package ratelimit

import (
	"net"
	"net/http"
	"strings"
)

// UnknownIdentity is used when no client address can be derived.
const UnknownIdentity = "unknown"

// ClientIdentity derives the rate limit identity for r: the first entry of
// X-Forwarded-For, then the host of the remote address.
func ClientIdentity(r *http.Request) string {
	if r == nil {
		return UnknownIdentity
	}
	if forwarded := r.Header.Get("X-Forwarded-For"); forwarded != "" {
		first, _, _ := strings.Cut(forwarded, ",")
		if first = strings.TrimSpace(first); first != "" {
			return first
		}
	}
	remote := strings.TrimSpace(r.RemoteAddr)
	if remote == "" {
		return UnknownIdentity
	}
	if host, _, errSplit := net.SplitHostPort(remote); errSplit == nil {
		if host != "" {
			return host
		}
		return UnknownIdentity
	}
	return remote
}

// IsExempt reports whether path is one of the exempt paths.
func IsExempt(path string, exempt []string) bool {
	for _, candidate := range exempt {
		if path == candidate {
			return true
		}
	}
	return false
}
