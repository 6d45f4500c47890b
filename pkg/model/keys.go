package model

import "strings"

// normalizeKey lowercases raw, replaces every run of characters outside
// [a-z0-9] with a single underscore, and trims leading/trailing underscores.
func normalizeKey(raw string) string {
	lower := strings.ToLower(strings.TrimSpace(raw))
	var b strings.Builder
	b.Grow(len(lower))
	lastWasSep := false
	for _, r := range lower {
		if (r >= 'a' && r <= 'z') || (r >= '0' && r <= '9') {
			b.WriteRune(r)
			lastWasSep = false
			continue
		}
		if !lastWasSep && b.Len() > 0 {
			b.WriteByte('_')
			lastWasSep = true
		}
	}
	return strings.Trim(b.String(), "_")
}
