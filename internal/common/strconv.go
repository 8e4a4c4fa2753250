package common

import "strconv"

// AtoiDefault parses value, returning def for empty or malformed input.
// Query-string pagination is the usual caller.
func AtoiDefault(value string, def int) int {
	if value == "" {
		return def
	}
	parsed, err := strconv.Atoi(value)
	if err != nil {
		return def
	}
	return parsed
}
