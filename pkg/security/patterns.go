// Package security provides the pattern matcher backing CORS and
// trusted-host policies, the secret-redacting sanitizer applied to every
// outbound error message and log line, and the password policy used by
// tenant provisioning.
package security

import (
	"regexp"
	"strings"
)

// MatchPattern matches a value against a single allowed pattern.
//
// Supported pattern forms:
//   - "*" matches everything
//   - entries prefixed "re:" are full-match regular expressions
//   - entries containing '*' are simple wildcards ('*' matches any
//     substring); a leading "*." also matches the bare suffix, so
//     "*.example.com" matches both "example.com" and "api.example.com"
//   - anything else is compared exactly
func MatchPattern(value, pattern string) bool {
	if value == "" || pattern == "" {
		return false
	}
	if pattern == "*" {
		return true
	}
	if strings.HasPrefix(pattern, "re:") {
		rx, err := regexp.Compile("^(?:" + pattern[3:] + ")$")
		if err != nil {
			return false
		}
		return rx.MatchString(value)
	}
	if strings.Contains(pattern, "*") {
		if strings.HasPrefix(pattern, "*.") && strings.Count(pattern, "*") == 1 {
			domain := pattern[2:]
			return value == domain || strings.HasSuffix(value, "."+domain)
		}
		escaped := regexp.QuoteMeta(pattern)
		escaped = strings.ReplaceAll(escaped, `\*`, ".*")
		rx, err := regexp.Compile("^(?:" + escaped + ")$")
		if err != nil {
			return false
		}
		return rx.MatchString(value)
	}
	return value == pattern
}

// IsAllowed reports whether value matches any entry in the allowed list
func IsAllowed(value string, allowed []string) bool {
	if len(allowed) == 0 {
		return false
	}
	for _, pattern := range allowed {
		if MatchPattern(value, pattern) {
			return true
		}
	}
	return false
}

// HostOnly strips an optional port from a Host header value and lowercases it
func HostOnly(host string) string {
	host = strings.TrimSpace(host)
	// Bracketed IPv6 literal, possibly with port
	if strings.HasPrefix(host, "[") {
		if idx := strings.Index(host, "]"); idx != -1 {
			return strings.ToLower(host[:idx+1])
		}
	}
	if idx := strings.LastIndex(host, ":"); idx != -1 && !strings.Contains(host[idx:], "]") {
		// Only strip when the suffix looks like a port, not part of IPv6
		if strings.Count(host, ":") == 1 {
			host = host[:idx]
		}
	}
	return strings.ToLower(host)
}
