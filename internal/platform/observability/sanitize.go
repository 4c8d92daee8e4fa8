package observability

import (
	"strings"
	"unicode"
)

// Field length caps keep a hostile request from ballooning log lines.
const (
	maxRouteLen  = 180
	maxMethodLen = 10
	maxUserIDLen = 64
)

func stripControls(value string, limit int) string {
	cleaned := strings.Map(func(r rune) rune {
		switch r {
		case '\n', '\r', '\t':
			return r
		}
		if unicode.IsControl(r) {
			return -1
		}
		return r
	}, value)
	if limit > 0 {
		runes := []rune(cleaned)
		if len(runes) > limit {
			return string(runes[:limit])
		}
	}
	return cleaned
}

// SanitizeRoute bounds a request path for log and span attributes.
func SanitizeRoute(route string) string {
	if route == "" {
		return "/"
	}
	return stripControls(route, maxRouteLen)
}

// SanitizeMethod bounds an HTTP method name.
func SanitizeMethod(method string) string {
	return stripControls(method, maxMethodLen)
}

// SanitizeUserID bounds a Firebase UID before it reaches a log line.
func SanitizeUserID(uid string) string {
	return stripControls(uid, maxUserIDLen)
}
