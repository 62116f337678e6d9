package utils

import (
	"regexp"
	"strings"
)

// FirstNonEmpty returns the first non-empty value
func FirstNonEmpty(vals ...string) string {
	for _, v := range vals {
		if v != "" {
			return v
		}
	}
	return ""
}

// SplitByMultipleDelimiters splits s at any of the delimiters, trimming
// the parts and dropping empty ones
func SplitByMultipleDelimiters(s string, delimiters ...string) []string {
	if len(delimiters) == 0 {
		return []string{s}
	}
	re := regexp.MustCompile("[" + regexp.QuoteMeta(strings.Join(delimiters, "")) + "]")
	var parts []string
	for _, part := range re.Split(s, -1) {
		if part = strings.TrimSpace(part); part != "" {
			parts = append(parts, part)
		}
	}
	return parts
}
