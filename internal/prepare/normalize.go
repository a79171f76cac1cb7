package prepare

import (
	"strings"
	"unicode"
)

// scrubbed are characters the TimeCamp API rejects in display names. They
// are removed from base names and path segments before any decoration
// (job title brackets, external id suffix) is applied.
var scrubbed = map[rune]bool{
	'(': true, ')': true,
	'[': true, ']': true,
	'{': true, '}': true,
	'`': true, '´': true,
	'“': true, '”': true,
	'_': true,
}

// CleanName trims, collapses internal whitespace runs to a single space and
// strips control characters.
func CleanName(name string) string {
	var b strings.Builder
	space := false
	for _, r := range name {
		switch {
		case unicode.IsControl(r):
			continue
		case unicode.IsSpace(r):
			space = true
		default:
			if space && b.Len() > 0 {
				b.WriteByte(' ')
			}
			space = false
			b.WriteRune(r)
		}
	}
	return b.String()
}

// ScrubName applies CleanName and removes the characters TimeCamp rejects.
func ScrubName(name string) string {
	var b strings.Builder
	for _, r := range name {
		if !scrubbed[r] {
			b.WriteRune(r)
		}
	}
	return CleanName(b.String())
}

// NormalizeDepartment canonicalises a slash-separated department path:
// segments are cleaned individually, empty segments dropped, and the result
// rejoined. "A / B" and "A/  /B" both normalise to "A/B". The function is
// idempotent and its output has no leading or trailing slash.
func NormalizeDepartment(path string) string {
	var segments []string
	for _, segment := range strings.Split(path, "/") {
		if segment = CleanName(segment); segment != "" {
			segments = append(segments, segment)
		}
	}
	return strings.Join(segments, "/")
}

// StripSkipPrefixes removes the first matching prefix alternative from a
// normalised path. Matching is segment-aligned: prefix "Company" strips
// "Company/Eng" to "Eng" but leaves "CompanyWide/Eng" alone. A prefix equal
// to the whole path yields "". When nothing matches the path is returned
// unchanged.
func StripSkipPrefixes(path string, prefixes []string) string {
	if path == "" {
		return ""
	}
	segments := strings.Split(path, "/")
	for _, prefix := range prefixes {
		prefixSegments := strings.Split(NormalizeDepartment(prefix), "/")
		if len(prefixSegments) == 0 || prefixSegments[0] == "" {
			continue
		}
		if len(prefixSegments) > len(segments) {
			continue
		}
		matched := true
		for i, seg := range prefixSegments {
			if segments[i] != seg {
				matched = false
				break
			}
		}
		if matched {
			return strings.Join(segments[len(prefixSegments):], "/")
		}
	}
	return path
}
