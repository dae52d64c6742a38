package grader

import "strings"

// Normalize trims surrounding whitespace and lower-cases s.
// The fold is ordinal Unicode simple case mapping with no locale rules.
func Normalize(s string) string {
	return strings.ToLower(strings.TrimSpace(s))
}
