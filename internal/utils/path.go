package utils

import (
	"os"
	"strings"
	"unicode/utf8"
)

// maxSlugLength caps branch-name slugs so refs stay readable
const maxSlugLength = 50

// Slugify converts a title to a branch-safe slug
// Example: "Fix login bug!" -> "fix-login-bug"
// Runs of characters outside [a-z0-9] collapse to a single hyphen, the result
// is trimmed of hyphens and cut to 50 characters.
func Slugify(name string) string {
	var result strings.Builder
	result.Grow(len(name))

	pendingHyphen := false
	for _, c := range strings.ToLower(name) {
		if (c >= 'a' && c <= 'z') || (c >= '0' && c <= '9') {
			if pendingHyphen && result.Len() > 0 {
				result.WriteByte('-')
			}
			pendingHyphen = false
			result.WriteRune(c)
			continue
		}
		pendingHyphen = true
	}

	slug := result.String()
	if len(slug) > maxSlugLength {
		slug = slug[:maxSlugLength]
	}
	return strings.TrimRight(slug, "-")
}

// FileExists checks if a file exists at the given path
func FileExists(path string) bool {
	_, err := os.Stat(path)
	return err == nil
}

// NonEmptyFile reports whether path is a regular file with at least one byte
func NonEmptyFile(path string) bool {
	info, err := os.Stat(path)
	if err != nil {
		return false
	}
	return info.Mode().IsRegular() && info.Size() > 0
}

// Truncate cuts s to at most n bytes without splitting a UTF-8 sequence
func Truncate(s string, n int) string {
	if n < 0 || len(s) <= n {
		return s
	}
	for n > 0 && !utf8.RuneStart(s[n]) {
		n--
	}
	return s[:n]
}
