package http

import (
	"fmt"
	"net"
	"net/http"
	"strings"
)

// IPResolver extracts the client address from a request. Forwarding headers
// are honoured only when the direct peer is inside a trusted proxy range, and
// X-Forwarded-For is read from the right so entries a client prepends are
// never used as its rate limit or lockout key.
type IPResolver struct {
	trusted []*net.IPNet
}

// NewIPResolver parses the trusted proxy CIDR ranges up front
func NewIPResolver(trustedProxies []string) (*IPResolver, error) {
	r := &IPResolver{}
	for _, cidr := range trustedProxies {
		_, ipNet, err := net.ParseCIDR(cidr)
		if err != nil {
			return nil, fmt.Errorf("invalid trusted proxy %q: %w", cidr, err)
		}
		r.trusted = append(r.trusted, ipNet)
	}
	return r, nil
}

// ClientIP returns the address of the nearest untrusted hop: X-Forwarded-For
// is walked right to left skipping trusted proxies, then X-Real-IP is tried.
// An untrusted peer is returned as is.
func (res *IPResolver) ClientIP(r *http.Request) string {
	remoteIP := remoteAddr(r)

	if res == nil || !res.isTrusted(remoteIP) {
		return remoteIP
	}

	if xff := r.Header.Get("X-Forwarded-For"); xff != "" {
		return res.fromForwarded(strings.Split(xff, ","), remoteIP)
	}

	if xri := strings.TrimSpace(r.Header.Get("X-Real-IP")); net.ParseIP(xri) != nil {
		return xri
	}

	return remoteIP
}

// fromForwarded picks the rightmost hop outside the trusted ranges. A
// malformed entry ends the walk; nothing left of it can be attributed, so the
// last trusted hop is used. When every hop is trusted the leftmost wins.
func (res *IPResolver) fromForwarded(hops []string, peer string) string {
	client := peer
	for i := len(hops) - 1; i >= 0; i-- {
		hop := strings.TrimSpace(hops[i])
		if net.ParseIP(hop) == nil {
			return client
		}
		client = hop
		if !res.isTrusted(hop) {
			return hop
		}
	}
	return client
}

func (res *IPResolver) isTrusted(ip string) bool {
	parsed := net.ParseIP(ip)
	if parsed == nil {
		return false
	}
	for _, n := range res.trusted {
		if n.Contains(parsed) {
			return true
		}
	}
	return false
}

// remoteAddr strips the port from RemoteAddr
func remoteAddr(r *http.Request) string {
	if r.RemoteAddr == "" {
		return "unknown"
	}
	if ip, _, err := net.SplitHostPort(r.RemoteAddr); err == nil {
		return ip
	}
	return r.RemoteAddr
}
