package domain

import "strings"

// Slugify derives a URL-safe slug from a title: lowercased, with runs
// of anything other than latin alphanumerics and Hangul syllables
// collapsed to a single "-", and leading/trailing separators stripped.
//
// Derivation is deterministic but not unique: two posts with the same
// title produce the same slug and the later write wins. Known
// limitation, kept as-is.
func Slugify(title string) string {
	lower := strings.ToLower(title)

	var sb strings.Builder
	sb.Grow(len(lower))
	pendingSep := false
	for _, r := range lower {
		if isSlugRune(r) {
			if pendingSep && sb.Len() > 0 {
				sb.WriteByte('-')
			}
			pendingSep = false
			sb.WriteRune(r)
			continue
		}
		pendingSep = true
	}
	return sb.String()
}

func isSlugRune(r rune) bool {
	switch {
	case r >= 'a' && r <= 'z':
		return true
	case r >= '0' && r <= '9':
		return true
	case r >= '가' && r <= '힣':
		return true
	}
	return false
}
