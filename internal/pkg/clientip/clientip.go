// Package clientip resolves the originating client address of a request.
package clientip

import (
	"net"
	"net/http"
	"net/netip"
	"strings"
)

// forwardHeaders are consulted in order when the direct peer is a proxy.
var forwardHeaders = []string{"X-Forwarded-For", "X-Real-IP", "Client-IP"}

// FromRequest returns the client IP. Forwarding headers are honoured only when the
// direct peer is a private or loopback address (a reverse proxy in front of the
// portal). Entries are walked right to left, skipping internal hops; the first
// external entry is the address our proxies saw, and everything to its left is
// client supplied. That entry must be public, otherwise the peer address is used.
func FromRequest(r *http.Request) string {
	peer, ok := peerAddr(r.RemoteAddr)
	if !ok {
		return ""
	}
	if !isInternal(peer) {
		return peer.String()
	}

	for _, h := range forwardHeaders {
		value := r.Header.Get(h)
		if value == "" {
			continue
		}
		if addr, found := nearestExternal(strings.Split(value, ",")); found {
			if isPublic(addr) {
				return addr.String()
			}
			return peer.String()
		}
	}
	return peer.String()
}

func nearestExternal(hops []string) (netip.Addr, bool) {
	for i := len(hops) - 1; i >= 0; i-- {
		addr, err := netip.ParseAddr(strings.Trim(strings.TrimSpace(hops[i]), "[]\""))
		if err != nil {
			continue
		}
		addr = addr.Unmap()
		if !isInternal(addr) {
			return addr, true
		}
	}
	return netip.Addr{}, false
}

func peerAddr(remote string) (netip.Addr, bool) {
	host := strings.TrimSpace(remote)
	if h, _, err := net.SplitHostPort(host); err == nil {
		host = h
	}
	if zone := strings.Index(host, "%"); zone != -1 {
		host = host[:zone]
	}
	addr, err := netip.ParseAddr(strings.Trim(host, "[]"))
	if err != nil {
		return netip.Addr{}, false
	}
	return addr.Unmap(), true
}

func isInternal(a netip.Addr) bool {
	return a.IsLoopback() || a.IsPrivate()
}

var reserved = []netip.Prefix{
	netip.MustParsePrefix("0.0.0.0/8"),
	netip.MustParsePrefix("100.64.0.0/10"),
	netip.MustParsePrefix("192.0.0.0/24"),
	netip.MustParsePrefix("192.0.2.0/24"),
	netip.MustParsePrefix("198.18.0.0/15"),
	netip.MustParsePrefix("198.51.100.0/24"),
	netip.MustParsePrefix("203.0.113.0/24"),
	netip.MustParsePrefix("240.0.0.0/4"),
	netip.MustParsePrefix("2001:db8::/32"),
}

func isPublic(a netip.Addr) bool {
	if !a.IsValid() || a.IsUnspecified() || a.IsLoopback() || a.IsPrivate() ||
		a.IsLinkLocalUnicast() || a.IsMulticast() {
		return false
	}
	for _, p := range reserved {
		if p.Contains(a) {
			return false
		}
	}
	return true
}
