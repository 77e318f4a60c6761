package security

import (
	"regexp"
	"strings"
)

// Redacted replaces any sensitive fragment matched by the sanitizer
const Redacted = "[REDACTED]"

var sensitivePatterns = []*regexp.Regexp{
	// connection URIs before bare IPs so the whole URI is redacted at once
	regexp.MustCompile(`(?i)(mongodb|postgresql|mysql|milvus)://\S+`),
	// credential assignments need an explicit separator (password=...,
	// token: ...); the bare words stay, so prose like "auth failed" and
	// header names like Flouds-VectorDB-Token survive
	regexp.MustCompile(`(?i)(password|token|key|secret|auth)\s*[=:]\s*\S+`),
	// IPv4 literals
	regexp.MustCompile(`\b\d{1,3}\.\d{1,3}\.\d{1,3}\.\d{1,3}\b`),
	// email-shaped tokens
	regexp.MustCompile(`\b[A-Za-z0-9._%+-]+@[A-Za-z0-9.-]+\.[A-Za-z]{2,}\b`),
}

// CRLF collapses as a unit so it costs one space, not two
var controlChars = strings.NewReplacer("\r\n", " ", "\r", " ", "\n", " ", "\t", " ")

// SanitizeErrorMessage redacts credentials, IPs, emails and connection
// URIs from an error message before it leaves the process.
func SanitizeErrorMessage(msg string) string {
	sanitized := msg
	for _, rx := range sensitivePatterns {
		sanitized = rx.ReplaceAllString(sanitized, Redacted)
	}
	return SanitizeForLog(sanitized)
}

// SanitizeForLog strips control characters from externally-derived strings
// to prevent log forging.
func SanitizeForLog(s string) string {
	s = controlChars.Replace(s)
	// Drop any remaining non-printable characters
	return strings.Map(func(r rune) rune {
		if r < 0x20 || r == 0x7f {
			return -1
		}
		return r
	}, s)
}
