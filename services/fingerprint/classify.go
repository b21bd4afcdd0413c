package fingerprint

import (
	"net"
	"net/http"
	"strings"

	"github.com/mileusna/useragent"
)

// Assessment is advisory only: the classifier never blocks a request by
// itself, the caller decides policy.
type Assessment struct {
	Suspicious bool     `json:"suspicious"`
	Reasons    []string `json:"reasons,omitempty"`
}

const (
	ReasonMissingUserAgent    = "missing user agent"
	ReasonAutomationUserAgent = "automation user agent"
	ReasonLoopbackIP          = "loopback ip"
	ReasonUnknownIP           = "unknown ip"
)

var automationMarkers = []string{
	"bot", "curl", "wget", "spider", "scraper", "crawler",
	"python-requests", "go-http-client", "java/", "headless",
}

func Classify(r *http.Request) Assessment {
	var reasons []string

	ua := r.Header.Get("User-Agent")
	if ua == "" {
		reasons = append(reasons, ReasonMissingUserAgent)
	} else if isAutomation(ua) {
		reasons = append(reasons, ReasonAutomationUserAgent)
	}

	ip := ClientIP(r)
	parsed := net.ParseIP(ip)
	switch {
	case parsed == nil:
		reasons = append(reasons, ReasonUnknownIP)
	case parsed.IsLoopback() || parsed.IsUnspecified():
		reasons = append(reasons, ReasonLoopbackIP)
	}

	return Assessment{Suspicious: len(reasons) > 0, Reasons: reasons}
}

func isAutomation(ua string) bool {
	if useragent.Parse(ua).Bot {
		return true
	}

	lower := strings.ToLower(ua)
	for _, marker := range automationMarkers {
		if strings.Contains(lower, marker) {
			return true
		}
	}
	return false
}
