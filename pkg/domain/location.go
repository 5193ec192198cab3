package domain

import "strings"

// Location references a facility or poll site by its operator-facing code
// (e.g. "WH-NORTH", "PS-0142"). Comparison is exact after trimming.
type Location string

// NewLocation trims surrounding whitespace from an externally supplied code.
func NewLocation(s string) Location {
	return Location(strings.TrimSpace(s))
}

func (l Location) IsZero() bool {
	return strings.TrimSpace(string(l)) == ""
}

func (l Location) String() string {
	return string(l)
}
