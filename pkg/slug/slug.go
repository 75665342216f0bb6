// Package slug derives URL-safe identifiers from display names. Slugs are the
// public handle for packages: lowercase, with every run of non-alphanumeric
// characters collapsed to a single hyphen and no leading or trailing hyphens.
package slug

import "strings"

// Derive converts a display name to its slug: "My Cool Tool!!" → "my-cool-tool".
// Deriving the same name always yields the same slug.
func Derive(name string) string {
	var b strings.Builder
	b.Grow(len(name))

	lastHyphen := true // suppress a leading hyphen
	for _, r := range strings.ToLower(name) {
		switch {
		case r >= 'a' && r <= 'z', r >= '0' && r <= '9':
			b.WriteRune(r)
			lastHyphen = false
		default:
			if !lastHyphen {
				b.WriteByte('-')
				lastHyphen = true
			}
		}
	}

	return strings.TrimSuffix(b.String(), "-")
}
