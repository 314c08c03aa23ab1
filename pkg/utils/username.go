package utils

import (
	"regexp"
	"strings"
)

var usernamePattern = regexp.MustCompile(`^[a-zA-Z0-9._]{1,30}$`)

// ValidUsername reports whether name is 1-30 letters, digits, underscores or
// dots, with no ".." and no trailing dot.
func ValidUsername(name string) bool {
	return usernamePattern.MatchString(name) &&
		!strings.Contains(name, "..") &&
		!strings.HasSuffix(name, ".")
}
