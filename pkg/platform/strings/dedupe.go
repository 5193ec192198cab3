// Package strings holds small string-slice helpers.
package strings

import "strings"

// Compact trims every value and drops blanks and repeats. The first
// occurrence keeps its position.
func Compact(values []string) []string {
	out := make([]string, 0, len(values))
	seen := make(map[string]struct{}, len(values))
	for _, v := range values {
		v = strings.TrimSpace(v)
		if v == "" {
			continue
		}
		if _, dup := seen[v]; dup {
			continue
		}
		seen[v] = struct{}{}
		out = append(out, v)
	}
	return out
}
