// Package fingerprint derives a stable device identifier from request
// metadata and classifies requests that look automated or spoofed. Deriving
// is pure: the same headers always hash to the same device id, and missing
// fields are treated as empty strings.
package fingerprint

import (
	"crypto/sha256"
	"encoding/hex"
	"net"
	"net/http"
	"strings"
)

// deviceIDLength is the hex width of a device id.
const deviceIDLength = 32

type Descriptor struct {
	UserAgent      string `json:"user_agent"`
	IP             string `json:"ip"`
	AcceptLanguage string `json:"accept_language"`
	AcceptEncoding string `json:"accept_encoding"`
	DeviceID       string `json:"device_id"`
}

func Derive(r *http.Request) Descriptor {
	d := Descriptor{
		UserAgent:      r.Header.Get("User-Agent"),
		IP:             ClientIP(r),
		AcceptLanguage: r.Header.Get("Accept-Language"),
		AcceptEncoding: r.Header.Get("Accept-Encoding"),
	}

	sum := sha256.Sum256([]byte(d.UserAgent + "|" + d.IP + "|" + d.AcceptLanguage + "|" + d.AcceptEncoding))
	d.DeviceID = hex.EncodeToString(sum[:])[:deviceIDLength]

	return d
}

func DeviceID(r *http.Request) string {
	return Derive(r).DeviceID
}

// ClientIP resolves the caller's address the way common reverse-proxy
// deployments expect: first X-Forwarded-For entry, then X-Real-IP, then the
// raw socket address.
func ClientIP(r *http.Request) string {
	if forwarded := r.Header.Get("X-Forwarded-For"); forwarded != "" {
		first, _, _ := strings.Cut(forwarded, ",")
		if ip := strings.TrimSpace(first); ip != "" {
			return ip
		}
	}

	if realIP := strings.TrimSpace(r.Header.Get("X-Real-IP")); realIP != "" {
		return realIP
	}

	if host, _, err := net.SplitHostPort(r.RemoteAddr); err == nil {
		return host
	}
	return r.RemoteAddr
}
