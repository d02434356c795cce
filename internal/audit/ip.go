package audit

import (
	"regexp"
	"strings"
)

var (
	ipv4Pattern = regexp.MustCompile(`^(25[0-5]|2[0-4][0-9]|[01]?[0-9][0-9]?)(\.(25[0-5]|2[0-4][0-9]|[01]?[0-9][0-9]?)){3}$`)
	ipv6Pattern = regexp.MustCompile(`^([0-9a-fA-F]{0,4}:){2,7}[0-9a-fA-F]{0,4}$`)
)

// ValidIP reports whether value looks like an IPv4 or IPv6 address.
func ValidIP(value string) bool {
	value = strings.TrimSpace(value)
	if value == "" || strings.EqualFold(value, "unknown") {
		return false
	}
	return ipv4Pattern.MatchString(value) || ipv6Pattern.MatchString(value)
}

// NormalizeIP returns nil for anything that fails ValidIP so the row still gets written.
func NormalizeIP(value string) *string {
	value = strings.TrimSpace(value)
	if !ValidIP(value) {
		return nil
	}
	return &value
}
