package util

import (
	"html"
	"strings"
)

// SanitizeInput trims and escapes HTML/script-like characters.
func SanitizeInput(s string) string {
	s = strings.TrimSpace(s)
	return html.EscapeString(s)
}

// MaskIdentifier hides the middle of a phone number or email address so
// it can appear in log fields without exposing the full destination.
func MaskIdentifier(identifier string) string {
	if at := strings.Index(identifier, "@"); at > 0 {
		local := identifier[:at]
		if len(local) <= 2 {
			return "**" + identifier[at:]
		}
		return local[:1] + strings.Repeat("*", len(local)-2) + local[len(local)-1:] + identifier[at:]
	}
	if len(identifier) <= 4 {
		return strings.Repeat("*", len(identifier))
	}
	return identifier[:2] + strings.Repeat("*", len(identifier)-4) + identifier[len(identifier)-2:]
}
