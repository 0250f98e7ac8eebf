// Package clientip extracts the real client IP from proxied HTTP requests.
package clientip

import (
	"net"
	"net/http"
	"strings"
)

// FromRequest returns the client IP, preferring proxy headers over the raw
// connection address:
//
//  1. CF-Connecting-IP (Cloudflare)
//  2. X-Forwarded-For (first valid address)
//  3. X-Real-IP (nginx)
//  4. RemoteAddr fallback
//
// Invalid header values are skipped rather than trusted.
func FromRequest(r *http.Request) string {
	if ip := parse(r.Header.Get("CF-Connecting-IP")); ip != "" {
		return ip
	}

	if forwarded := r.Header.Get("X-Forwarded-For"); forwarded != "" {
		for _, candidate := range strings.Split(forwarded, ",") {
			if ip := parse(candidate); ip != "" {
				return ip
			}
		}
	}

	if ip := parse(r.Header.Get("X-Real-IP")); ip != "" {
		return ip
	}

	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return parse(r.RemoteAddr)
	}
	return parse(host)
}

// parse validates and normalizes one IP candidate, returning "" if invalid.
func parse(s string) string {
	s = strings.TrimSpace(s)
	if s == "" {
		return ""
	}
	ip := net.ParseIP(s)
	if ip == nil {
		return ""
	}
	return ip.String()
}
