// Package exclusion decides whether the removal engine stays dormant on a host.
//
// Users enter one pattern per line in the settings editor, e.g.:
//
//	chatgpt.com       exact host or any subdomain
//	.openai.com       literal suffix, the bare apex does not match
//	https://a.com/x   scheme and path are ignored
package exclusion

import "strings"

// Normalize trims and lowercases a raw pattern, strips a leading
// http:// or https:// and drops everything from the first '/'.
// Returns an empty string for blank input.
func Normalize(raw string) string {
	pattern := strings.ToLower(strings.TrimSpace(raw))
	if pattern == "" {
		return ""
	}

	if strings.HasPrefix(pattern, "https://") {
		pattern = pattern[len("https://"):]
	} else if strings.HasPrefix(pattern, "http://") {
		pattern = pattern[len("http://"):]
	}

	if i := strings.IndexByte(pattern, '/'); i >= 0 {
		pattern = pattern[:i]
	}
	return pattern
}

// IsHostExcluded reports whether hostname matches any pattern.
func IsHostExcluded(hostname string, patterns []string) bool {
	_, ok := MatchingPattern(hostname, patterns)
	return ok
}

// MatchingPattern returns the first raw pattern that matches hostname.
func MatchingPattern(hostname string, patterns []string) (string, bool) {
	if hostname == "" {
		return "", false
	}
	host := strings.ToLower(hostname)

	for _, raw := range patterns {
		pattern := Normalize(raw)
		if pattern == "" {
			continue
		}

		// Leading dot means literal suffix: ".example.com" does not match "example.com".
		if strings.HasPrefix(pattern, ".") {
			if strings.HasSuffix(host, pattern) {
				return raw, true
			}
			continue
		}

		if host == pattern || strings.HasSuffix(host, "."+pattern) {
			return raw, true
		}
	}

	return "", false
}

// ParseLines converts settings text into a pattern list: one pattern per
// line, trimmed, blank lines dropped, order kept.
func ParseLines(text string) []string {
	lines := strings.Split(text, "\n")
	result := make([]string, 0, len(lines))
	for _, line := range lines {
		trimmed := strings.TrimSpace(line)
		if trimmed != "" {
			result = append(result, trimmed)
		}
	}
	return result
}

// FormatLines renders a pattern list for editing, one pattern per line.
func FormatLines(patterns []string) string {
	return strings.Join(patterns, "\n")
}
