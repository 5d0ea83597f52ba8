// Package sanitize cleans names typed by users and names received from the
// backend before they are sent or used as local paths.
//
// Removed or normalized:
//   - Invisible Unicode characters (zero-width spaces, BOM, ...)
//   - Control characters and line breaks
//   - Runs of whitespace
package sanitize

import (
	"regexp"
	"strings"
	"unicode"
)

var whitespaceRun = regexp.MustCompile(`\s+`)

// invisibleChars are stripped everywhere.
var invisibleChars = []string{
	"\u200B", // Zero-width space
	"\u200C", // Zero-width non-joiner
	"\u200D", // Zero-width joiner
	"\uFEFF", // Zero-width no-break space (BOM)
	"\u00AD", // Soft hyphen
	"\u2060", // Word joiner
	"\u180E", // Mongolian vowel separator
}

// Name normalizes a file or folder name entered by the user: invisible and
// control characters are dropped and whitespace runs collapse to one space.
func Name(s string) string {
	if s == "" {
		return s
	}
	s = removeInvisibleChars(s)
	s = strings.Map(func(r rune) rune {
		if unicode.IsControl(r) && !unicode.IsSpace(r) {
			return -1
		}
		return r
	}, s)
	s = whitespaceRun.ReplaceAllString(s, " ")
	return strings.TrimSpace(s)
}

// FileName turns a backend-provided name into a safe single path element.
// Directory components are discarded; "." and ".." yield "".
func FileName(s string) string {
	s = Name(s)
	s = strings.ReplaceAll(s, "\\", "/")
	if i := strings.LastIndex(s, "/"); i >= 0 {
		s = s[i+1:]
	}
	s = strings.Map(func(r rune) rune {
		switch r {
		case '<', '>', ':', '"', '|', '?', '*':
			return '_'
		}
		return r
	}, s)
	s = strings.TrimSpace(s)
	if s == "." || s == ".." {
		return ""
	}
	return s
}

func removeInvisibleChars(s string) string {
	for _, char := range invisibleChars {
		s = strings.ReplaceAll(s, char, "")
	}
	return s
}
