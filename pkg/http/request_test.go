package http_test

import (
	"net"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"

	pkghttp "github.com/rizonesoft/isotone-sub002/pkg/http"
)

func mustCIDRs(t *testing.T, cidrs ...string) []*net.IPNet {
	t.Helper()
	nets := make([]*net.IPNet, 0, len(cidrs))
	for _, c := range cidrs {
		_, n, err := net.ParseCIDR(c)
		if err != nil {
			t.Fatalf("bad cidr %q: %v", c, err)
		}
		nets = append(nets, n)
	}
	return nets
}

func TestExtractClientIP_ForwardedForFirstSegment(t *testing.T) {
	req := httptest.NewRequest("GET", "/", nil)
	req.RemoteAddr = "10.0.0.5:54321"
	req.Header.Set("X-Forwarded-For", "203.0.113.42, 203.0.113.43, 10.0.0.5")
	req.Header.Set("X-Real-IP", "198.51.100.7")

	ip := pkghttp.ExtractClientIP(req, &pkghttp.IPConfig{TrustForwardHeaders: true})

	assert.Equal(t, "203.0.113.42", ip, "Should use the first X-Forwarded-For segment")
}

func TestExtractClientIP_RealIPWhenNoForwardedFor(t *testing.T) {
	req := httptest.NewRequest("GET", "/", nil)
	req.RemoteAddr = "10.0.0.5:54321"
	req.Header.Set("X-Real-IP", "198.51.100.7")

	ip := pkghttp.ExtractClientIP(req, &pkghttp.IPConfig{TrustForwardHeaders: true})

	assert.Equal(t, "198.51.100.7", ip)
}

func TestExtractClientIP_InvalidFirstSegmentFallsThrough(t *testing.T) {
	req := httptest.NewRequest("GET", "/", nil)
	req.RemoteAddr = "10.0.0.5:54321"
	req.Header.Set("X-Forwarded-For", "unknown, 203.0.113.43")
	req.Header.Set("X-Real-IP", "198.51.100.7")

	ip := pkghttp.ExtractClientIP(req, &pkghttp.IPConfig{TrustForwardHeaders: true})

	assert.Equal(t, "198.51.100.7", ip, "Should not skip ahead to later forwarded segments")
}

func TestExtractClientIP_UntrustedPeer_IgnoresHeaders(t *testing.T) {
	req := httptest.NewRequest("GET", "/", nil)
	req.RemoteAddr = "203.0.113.10:54321"
	req.Header.Set("X-Forwarded-For", "127.0.0.1, 203.0.113.10")
	req.Header.Set("X-Real-IP", "192.168.1.1")

	config := &pkghttp.IPConfig{
		TrustForwardHeaders: true,
		TrustedProxies:      mustCIDRs(t, "10.0.0.0/8", "127.0.0.1/32"),
	}

	ip := pkghttp.ExtractClientIP(req, config)

	assert.Equal(t, "203.0.113.10", ip, "Should prevent spoofing from peers outside the trusted ranges")
}

func TestExtractClientIP_TrustedProxyRange(t *testing.T) {
	req := httptest.NewRequest("GET", "/", nil)
	req.RemoteAddr = "[::1]:54321"
	req.Header.Set("X-Forwarded-For", "2001:db8::1")

	config := &pkghttp.IPConfig{
		TrustForwardHeaders: true,
		TrustedProxies:      mustCIDRs(t, "::1/128"),
	}

	assert.Equal(t, "2001:db8::1", pkghttp.ExtractClientIP(req, config))
}

func TestExtractClientIP_HeadersDisabled(t *testing.T) {
	req := httptest.NewRequest("GET", "/", nil)
	req.RemoteAddr = "203.0.113.10:54321"
	req.Header.Set("X-Forwarded-For", "1.2.3.4")

	assert.Equal(t, "203.0.113.10", pkghttp.ExtractClientIP(req, &pkghttp.IPConfig{}))
	assert.Equal(t, "203.0.113.10", pkghttp.ExtractClientIP(req, nil))
}

func TestExtractClientIP_RemoteAddrWithoutPort(t *testing.T) {
	req := httptest.NewRequest("GET", "/", nil)
	req.RemoteAddr = "203.0.113.10"

	assert.Equal(t, "203.0.113.10", pkghttp.ExtractClientIP(req, nil))
}

func TestExtractClientIP_Canonicalizes(t *testing.T) {
	trusted := &pkghttp.IPConfig{TrustForwardHeaders: true}

	tests := []struct {
		name       string
		remoteAddr string
		xff        string
		realIP     string
		want       string
	}{
		{name: "ipv4-mapped forwarded for", remoteAddr: "10.0.0.5:54321", xff: "::ffff:203.0.113.7", want: "203.0.113.7"},
		{name: "upper case ipv6 forwarded for", remoteAddr: "10.0.0.5:54321", xff: "2001:DB8::1", want: "2001:db8::1"},
		{name: "expanded ipv6 real ip", remoteAddr: "10.0.0.5:54321", realIP: "2001:db8:0:0::1", want: "2001:db8::1"},
		{name: "upper case ipv6 remote addr", remoteAddr: "[2001:DB8::1]:443", want: "2001:db8::1"},
		{name: "ipv4-mapped remote addr", remoteAddr: "[::ffff:203.0.113.7]:443", want: "203.0.113.7"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := httptest.NewRequest("GET", "/", nil)
			req.RemoteAddr = tt.remoteAddr
			if tt.xff != "" {
				req.Header.Set("X-Forwarded-For", tt.xff)
			}
			if tt.realIP != "" {
				req.Header.Set("X-Real-IP", tt.realIP)
			}

			assert.Equal(t, tt.want, pkghttp.ExtractClientIP(req, trusted))
		})
	}
}
