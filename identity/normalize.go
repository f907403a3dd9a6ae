package identity

import "strings"

// NormalizeEmail performs case-insensitive canonicalization.
func NormalizeEmail(s string) string {
	return strings.ToLower(strings.TrimSpace(s))
}

func cloneRoles(roles []string) []string {
	if len(roles) == 0 {
		return nil
	}
	out := make([]string, len(roles))
	copy(out, roles)
	return out
}
