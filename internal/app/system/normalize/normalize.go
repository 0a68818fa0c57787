// Package normalize canonicalizes user-supplied identifiers before they are
// compared or stored.
package normalize

import "strings"

// Email lowercases and trims an email address.
func Email(s string) string {
	return strings.ToLower(strings.TrimSpace(s))
}

// Name trims a display name. Case is preserved.
func Name(s string) string {
	return strings.Join(strings.Fields(s), " ")
}

// Role lowercases and trims a role identifier.
func Role(s string) string {
	return strings.ToLower(strings.TrimSpace(s))
}

// Status lowercases and trims a status identifier ("In-Progress" → "in-progress").
func Status(s string) string {
	return strings.ToLower(strings.TrimSpace(s))
}

// Filter trims a filter value and maps the "all" sentinel to "".
func Filter(s string) string {
	v := strings.TrimSpace(s)
	if strings.EqualFold(v, "all") {
		return ""
	}
	return v
}
