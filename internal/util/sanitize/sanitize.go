// Package sanitize cleans user-typed folder names and descriptions before
// they are validated and sent to the portal.
//
// It removes:
//   - Windows/Mac line endings (CRLF/CR → LF)
//   - Invisible Unicode characters (zero-width spaces, etc.)
//   - Control characters
//   - Runs of whitespace
package sanitize

import (
	"regexp"
	"strings"
	"unicode"
)

var (
	spaceRun   = regexp.MustCompile(`[ \t]+`)
	newlineRun = regexp.MustCompile(`\n{3,}`)
	anySpace   = regexp.MustCompile(`\s+`)
)

// Name sanitizes a single-line name: all whitespace (including newlines)
// collapses to one space, invisible and control characters are dropped.
func Name(s string) string {
	if s == "" {
		return s
	}

	s = removeInvisibleChars(s)
	s = anySpace.ReplaceAllString(s, " ")
	s = removeControlChars(s)

	return strings.TrimSpace(s)
}

// Description sanitizes free text: line endings normalized, blank line runs
// limited to one empty line, per-line whitespace collapsed.
func Description(s string) string {
	if s == "" {
		return s
	}

	s = strings.ReplaceAll(s, "\r\n", "\n")
	s = strings.ReplaceAll(s, "\r", "\n")
	s = removeInvisibleChars(s)
	s = removeControlChars(s)
	s = normalizeWhitespace(s)

	return strings.TrimSpace(s)
}

// removeInvisibleChars removes zero-width and other invisible Unicode characters
func removeInvisibleChars(s string) string {
	invisibleChars := []string{
		"\u200B", // Zero-width space
		"\u200C", // Zero-width non-joiner
		"\u200D", // Zero-width joiner
		"\uFEFF", // Zero-width no-break space (BOM)
		"\u00AD", // Soft hyphen
		"\u2060", // Word joiner
		"\u180E", // Mongolian vowel separator
	}

	for _, char := range invisibleChars {
		s = strings.ReplaceAll(s, char, "")
	}

	return s
}

// removeControlChars drops control characters other than newline and tab.
func removeControlChars(s string) string {
	return strings.Map(func(r rune) rune {
		if r == '\n' || r == '\t' {
			return r
		}
		if unicode.IsControl(r) {
			return -1
		}
		return r
	}, s)
}

// normalizeWhitespace collapses space/tab runs and limits blank lines
func normalizeWhitespace(s string) string {
	s = spaceRun.ReplaceAllString(s, " ")

	lines := strings.Split(s, "\n")
	for i, line := range lines {
		lines[i] = strings.TrimSpace(line)
	}
	s = strings.Join(lines, "\n")

	return newlineRun.ReplaceAllString(s, "\n\n")
}
