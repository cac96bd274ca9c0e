// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package server

import (
	"log"
	"net"
	"net/http"
	"net/netip"
	"strings"

	"github.com/sebhosting/seb-ultra-stack/internal/config"
)

// ClientIPResolver finds the originating client of a request, believing
// forwarding headers only from trusted proxies.
type ClientIPResolver struct {
	trusted []netip.Prefix
}

// NewClientIPResolver builds a resolver from config.ServerConfig.TrustedProxies
// entries. Invalid entries are logged and skipped.
func NewClientIPResolver(proxies []string) *ClientIPResolver {
	c := &ClientIPResolver{trusted: make([]netip.Prefix, 0, len(proxies))}
	for _, entry := range proxies {
		prefix, err := config.ParseProxyPrefix(entry)
		if err != nil {
			log.Printf("TRUSTED_PROXY_SKIPPED | entry=%q error=%v", entry, err)
			continue
		}
		c.trusted = append(c.trusted, prefix)
	}
	return c
}

// Trusts reports whether ip belongs to a trusted proxy.
func (c *ClientIPResolver) Trusts(ip string) bool {
	addr, err := netip.ParseAddr(ip)
	if err != nil {
		return false
	}
	addr = addr.Unmap()
	for _, prefix := range c.trusted {
		if prefix.Contains(addr) {
			return true
		}
	}
	return false
}

// ClientIP returns the client address for r.
//
// When the connection comes from a trusted proxy, X-Forwarded-For is walked
// from the right, skipping trusted hops, and the first untrusted address wins.
// Entries left of it were written by the client and are ignored. X-Real-IP is
// the fallback, then the connection address.
func (c *ClientIPResolver) ClientIP(r *http.Request) string {
	connIP := remoteHost(r.RemoteAddr)
	if !c.Trusts(connIP) {
		return connIP
	}

	if xff := r.Header.Values("X-Forwarded-For"); len(xff) > 0 {
		hops := strings.Split(strings.Join(xff, ","), ",")
		var leftmost string
		valid := true
		for i := len(hops) - 1; i >= 0; i-- {
			hop := strings.TrimSpace(hops[i])
			if _, err := netip.ParseAddr(hop); err != nil {
				valid = false
				break
			}
			if !c.Trusts(hop) {
				return hop
			}
			leftmost = hop
		}
		if valid && leftmost != "" {
			return leftmost
		}
	}

	if xri := strings.TrimSpace(r.Header.Get("X-Real-IP")); xri != "" {
		if _, err := netip.ParseAddr(xri); err == nil {
			return xri
		}
	}

	return connIP
}

// remoteHost extracts the host part of a RemoteAddr.
func remoteHost(remoteAddr string) string {
	host, _, err := net.SplitHostPort(remoteAddr)
	if err != nil {
		return remoteAddr
	}
	return host
}
