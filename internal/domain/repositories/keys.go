package repositories

import (
	"strings"
)

// SanitizeID normalizes an opaque identifier into a safe storage key.
// Every character outside alphanumerics, hyphen and underscore is stripped,
// which prevents path traversal and key injection from a maliciously crafted
// identifier. An identifier that sanitizes to nothing becomes "_" so it can
// still form a key.
func SanitizeID(id string) string {
	var b strings.Builder
	b.Grow(len(id))
	for _, r := range id {
		switch {
		case r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z', r >= '0' && r <= '9', r == '-', r == '_':
			b.WriteRune(r)
		}
	}
	if b.Len() == 0 {
		return "_"
	}
	return b.String()
}
