package utils

import (
	"fmt"
	"regexp"
	"strings"
	"time"
)

var usernamePattern = regexp.MustCompile(`^[a-z0-9_-]+$`)

// NormalizeDigits converts Persian and Arabic-Indic numerals to ASCII so that
// numbers typed on a localized keyboard parse.
func NormalizeDigits(s string) string {
	var result strings.Builder
	result.Grow(len(s))
	for _, r := range s {
		switch {
		case r >= '۰' && r <= '۹':
			result.WriteRune(r - '۰' + '0')
		case r >= '٠' && r <= '٩':
			result.WriteRune(r - '٠' + '0')
		default:
			result.WriteRune(r)
		}
	}
	return result.String()
}

// ValidUsername reports whether name is usable as a VPN account name:
// lowercase letters, digits, '_' and '-'.
func ValidUsername(name string) bool {
	return usernamePattern.MatchString(name)
}

// Ago renders a duration the way the admin lists show age.
func Ago(d time.Duration) string {
	switch {
	case d < time.Minute:
		return fmt.Sprintf("%ds ago", int(d.Seconds()))
	case d < time.Hour:
		return fmt.Sprintf("%dm ago", int(d.Minutes()))
	case d < 24*time.Hour:
		return fmt.Sprintf("%dh%02dm ago", int(d.Hours()), int(d.Minutes())%60)
	default:
		return fmt.Sprintf("%dd ago", int(d.Hours())/24)
	}
}
