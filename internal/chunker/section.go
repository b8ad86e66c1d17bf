package chunker

import (
	"regexp"
	"strings"
)

var (
	numberedHeadingRe = regexp.MustCompile(`^\d+(\.\d+)*\s+[A-Z]`)
	allCapsRe          = regexp.MustCompile(`^[A-Z0-9][A-Z0-9 ,.'\-/&()]{2,60}$`)
)

// knownHeadingKeywords are section headers that should be treated as
// headings regardless of casing or numbering, per §4.2.
var knownHeadingKeywords = []string{
	"EXCLUSIONS", "COVERAGE", "DEFINITIONS", "LIMITATIONS", "OBLIGATIONS",
}

// isHeading reports whether line should be treated as a section heading,
// per the three rules of §4.2: ALL-CAPS short line, numbered title-cased
// text, or a known keyword header.
func isHeading(line string) bool {
	trimmed := strings.TrimSpace(line)
	if trimmed == "" || len(trimmed) > 120 {
		return false
	}

	upper := strings.ToUpper(trimmed)
	for _, kw := range knownHeadingKeywords {
		if strings.Contains(upper, kw) {
			return true
		}
	}

	if numberedHeadingRe.MatchString(trimmed) {
		return true
	}

	if allCapsRe.MatchString(trimmed) && trimmed == upper && hasLetters(trimmed) {
		return true
	}

	return false
}

func hasLetters(s string) bool {
	for _, r := range s {
		if r >= 'A' && r <= 'Z' {
			return true
		}
	}
	return false
}

// lastHeading scans lines for the most recent heading at or before idx,
// returning "" if none is found.
func lastHeading(lines []string, idx int) string {
	for i := idx; i >= 0; i-- {
		if isHeading(lines[i]) {
			return strings.TrimSpace(lines[i])
		}
	}
	return ""
}
