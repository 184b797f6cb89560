package utils

import (
	"strings"
)

// GetSubdomain extracts the subdomain label from a Host header value.
// Examples:
//
//	superadmin.localhost:3000 -> superadmin
//	localhost:3000            -> ""
//	superadmin.example.com    -> superadmin
//	example.com               -> ""
func GetSubdomain(host string) string {
	if host == "" {
		return ""
	}

	parts := strings.Split(host, ".")

	// Local development hosts carry the port on the last segment
	if strings.Contains(host, "localhost") {
		if len(parts) > 1 {
			return parts[0]
		}
		return ""
	}

	// Everything before the registrable domain (domain.tld)
	if len(parts) > 2 {
		return strings.Join(parts[:len(parts)-2], ".")
	}

	return ""
}
