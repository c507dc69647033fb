package http

import (
	"net"
	"net/http"
	"strings"
)

// IPConfig holds configuration for IP extraction
type IPConfig struct {
	// TrustForwardHeaders enables X-Forwarded-For and X-Real-IP. When
	// TrustedProxies is non-empty the headers are honored only from those peers.
	TrustForwardHeaders bool
	TrustedProxies      []*net.IPNet
}

// ExtractClientIP resolves the client address of a request. The result is in
// canonical net.IP form, so IPv4-mapped and mixed-case IPv6 spellings of one
// address compare equal.
//
// Flow:
// 1. If forwarding headers are trusted for this peer, the first X-Forwarded-For segment
// 2. Then X-Real-IP
// 3. Fall back to RemoteAddr
func ExtractClientIP(r *http.Request, config *IPConfig) string {
	remoteIP := getRemoteAddr(r)

	if config != nil && config.TrustForwardHeaders && isTrustedProxy(remoteIP, config.TrustedProxies) {
		if xff := r.Header.Get("X-Forwarded-For"); xff != "" {
			first, _, _ := strings.Cut(xff, ",")
			if ip, ok := canonicalIP(strings.TrimSpace(first)); ok {
				return ip
			}
		}

		if xri := strings.TrimSpace(r.Header.Get("X-Real-IP")); xri != "" {
			if ip, ok := canonicalIP(xri); ok {
				return ip
			}
		}
	}

	if ip, ok := canonicalIP(remoteIP); ok {
		return ip
	}
	return remoteIP
}

// getRemoteAddr extracts the IP address from RemoteAddr (removing port if present)
func getRemoteAddr(r *http.Request) string {
	if r.RemoteAddr != "" {
		if ip, _, err := net.SplitHostPort(r.RemoteAddr); err == nil {
			return ip
		}
		return r.RemoteAddr
	}
	return "unknown"
}

// isTrustedProxy reports whether ip may set forwarding headers. An empty list trusts every peer.
func isTrustedProxy(ip string, trustedProxies []*net.IPNet) bool {
	if len(trustedProxies) == 0 {
		return true
	}

	peer := net.ParseIP(ip)
	if peer == nil {
		return false
	}

	for _, ipNet := range trustedProxies {
		if ipNet.Contains(peer) {
			return true
		}
	}

	return false
}

// canonicalIP parses s as an IPv4 or IPv6 address and returns its canonical form.
func canonicalIP(s string) (string, bool) {
	ip := net.ParseIP(s)
	if ip == nil {
		return "", false
	}
	return ip.String(), true
}
