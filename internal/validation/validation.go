package validation

import (
	"math"
	"strconv"
	"strings"
)

func IsNonEmptyString(value string) bool {
	return strings.TrimSpace(value) != ""
}

func IsFinite(value float64) bool {
	return !math.IsNaN(value) && !math.IsInf(value, 0)
}

// ParsePositiveInt parses a base-10 integer greater than zero. Signs and
// surrounding whitespace are rejected.
func ParsePositiveInt(value string) (int, bool) {
	if value == "" || value[0] == '+' || value[0] == '-' {
		return 0, false
	}
	n, err := strconv.ParseUint(value, 10, 31)
	if err != nil || n == 0 {
		return 0, false
	}
	return int(n), true
}
