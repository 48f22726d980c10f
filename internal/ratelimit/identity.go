package ratelimit

import (
	"crypto/md5"
	"encoding/hex"
	"net"
	"net/http"
	"strings"
)

// ClientIdentity builds the "ip|user:<id>|ua:<hash>" key of a request.
// userID wins over the X-User-ID header; empty parts are left out.
func ClientIdentity(r *http.Request, userID string) string {
	parts := []string{clientIP(r)}

	if userID == "" {
		userID = r.Header.Get("X-User-ID")
	}
	if userID != "" {
		parts = append(parts, "user:"+userID)
	}

	if ua := r.Header.Get("User-Agent"); ua != "" {
		sum := md5.Sum([]byte(ua))
		parts = append(parts, "ua:"+hex.EncodeToString(sum[:])[:8])
	}
	return strings.Join(parts, "|")
}

func clientIP(r *http.Request) string {
	if fwd := r.Header.Get("X-Forwarded-For"); fwd != "" {
		if first := strings.TrimSpace(strings.Split(fwd, ",")[0]); first != "" {
			return first
		}
	}
	if ip := strings.TrimSpace(r.Header.Get("X-Real-IP")); ip != "" {
		return ip
	}
	if r.RemoteAddr == "" {
		return "unknown"
	}
	if host, _, err := net.SplitHostPort(r.RemoteAddr); err == nil {
		return host
	}
	return r.RemoteAddr
}

// Whitelisted reports whether the identity bypasses limiting. It is a plain
// substring match on loopback and admin markers, so forwarded headers can
// spoof it.
func Whitelisted(identity string) bool {
	if strings.Contains(identity, "127.0.0.1") || strings.Contains(identity, "localhost") {
		return true
	}
	return strings.Contains(strings.ToLower(identity), "admin")
}
