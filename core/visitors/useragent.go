package visitors

import "strings"

// ParseUserAgent extracts device type, browser and OS from a user agent.
func ParseUserAgent(userAgent string) (device, browser, os string) {
	ua := strings.ToLower(userAgent)

	device = "desktop"
	switch {
	case strings.Contains(ua, "ipad") || strings.Contains(ua, "tablet"):
		device = "tablet"
	case strings.Contains(ua, "mobile") || strings.Contains(ua, "android"):
		device = "mobile"
	}

	browser = "unknown"
	switch {
	case strings.Contains(ua, "edg"):
		browser = "Edge"
	case strings.Contains(ua, "opr/") || strings.Contains(ua, "opera"):
		browser = "Opera"
	case strings.Contains(ua, "chrome") || strings.Contains(ua, "crios"):
		browser = "Chrome"
	case strings.Contains(ua, "firefox") || strings.Contains(ua, "fxios"):
		browser = "Firefox"
	case strings.Contains(ua, "safari"):
		browser = "Safari"
	}

	os = "unknown"
	switch {
	case strings.Contains(ua, "windows"):
		os = "windows"
	case strings.Contains(ua, "iphone"):
		os = "ios"
	case strings.Contains(ua, "ipad"):
		os = "ipados"
	case strings.Contains(ua, "android"):
		os = "android"
	case strings.Contains(ua, "macintosh") || strings.Contains(ua, "mac os"):
		os = "macos"
	case strings.Contains(ua, "linux"):
		os = "linux"
	}

	return device, browser, os
}

var botPatterns = []string{
	"bot", "crawler", "spider", "lighthouse", "pagespeed",
	"prerender", "headless", "pingdom", "slurp", "facebookexternalhit",
	"yandex", "screaming frog",
}

// IsBot reports whether userAgent looks like automated traffic.
func IsBot(userAgent string) bool {
	if strings.TrimSpace(userAgent) == "" {
		return true
	}
	ua := strings.ToLower(userAgent)
	for _, pattern := range botPatterns {
		if strings.Contains(ua, pattern) {
			return true
		}
	}
	return false
}

// IsHomePage reports whether path is the site's home entry point, the only
// page visits are tracked on.
func IsHomePage(path string) bool {
	return strings.Contains(path, "index.html") || path == "/" || strings.HasSuffix(path, "/")
}
