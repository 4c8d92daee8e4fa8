// Package textutil holds small string helpers shared across the platform
// packages.
package textutil

import "strings"

// NormalizeStringMap returns a copy of values with whitespace-trimmed keys
// and values. Entries whose key trims to empty are dropped, and a map with
// nothing left collapses to nil so callers can treat it as absent.
func NormalizeStringMap(values map[string]string) map[string]string {
	var out map[string]string
	for key, value := range values {
		key = strings.TrimSpace(key)
		if key == "" {
			continue
		}
		if out == nil {
			out = make(map[string]string, len(values))
		}
		out[key] = strings.TrimSpace(value)
	}
	return out
}
