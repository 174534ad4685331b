package fetch

import (
	"bytes"
	"net/http"
	"strings"
)

// strongMarkers only appear on interstitial challenge pages.
var strongMarkers = [][]byte{
	[]byte("cf-browser-verification"),
	[]byte("cf_chl_opt"),
	[]byte("__cf_chl_"),
	[]byte("<title>just a moment...</title>"),
	[]byte("attention required! | cloudflare"),
	[]byte("checking your browser before accessing"),
	[]byte("/_incapsula_resource"),
	[]byte("px-captcha"),
}

// weakMarkers are only trusted together with a blocking status code.
// Protected sites embed the vendor scripts on ordinary pages too.
var weakMarkers = [][]byte{
	[]byte("/cdn-cgi/challenge-platform/"),
	[]byte("captcha-delivery.com"),
	[]byte("ddos-guard"),
	[]byte("captcha"),
	[]byte("security check"),
	[]byte("verify you are a human"),
	[]byte("access denied"),
	[]byte("are you a robot"),
}

const challengeScanLimit = 256 << 10

// DetectChallenge reports whether a response looks like an anti-bot
// challenge rather than the requested content.
func DetectChallenge(status int, header http.Header, body []byte) bool {
	if header != nil && strings.EqualFold(header.Get("Cf-Mitigated"), "challenge") {
		return true
	}
	blocking := status == http.StatusForbidden || status == http.StatusTooManyRequests || status == http.StatusServiceUnavailable
	if len(body) > challengeScanLimit {
		if !blocking {
			return false
		}
		body = body[:challengeScanLimit]
	}
	lower := bytes.ToLower(body)
	for _, m := range strongMarkers {
		if bytes.Contains(lower, m) {
			return true
		}
	}
	if !blocking {
		return false
	}
	for _, m := range weakMarkers {
		if bytes.Contains(lower, m) {
			return true
		}
	}
	if header != nil {
		server := strings.ToLower(header.Get("Server"))
		if status != http.StatusTooManyRequests && (strings.Contains(server, "cloudflare") || strings.Contains(server, "ddos-guard")) {
			return true
		}
	}
	return false
}
