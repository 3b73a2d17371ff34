package util

import (
	"regexp"
)

var (
	uuidRegex      = regexp.MustCompile(`^[0-9a-f]{8}-[0-9a-f]{4}-[0-9a-f]{4}-[0-9a-f]{4}-[0-9a-f]{12}$`)
	visitorIDRegex = regexp.MustCompile(`^[A-Za-z0-9_-]{1,128}$`)
)

func IsValidUUID(s string) bool {
	if s == "" {
		return false
	}
	return uuidRegex.MatchString(s)
}

// IsValidVisitorID accepts the browser-generated pseudonymous ids the widget
// keeps in local storage.
func IsValidVisitorID(s string) bool {
	return visitorIDRegex.MatchString(s)
}
