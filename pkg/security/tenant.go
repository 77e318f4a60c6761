package security

import "regexp"

var tenantCodeRE = regexp.MustCompile(`^[A-Za-z0-9_-]{1,256}$`)

// ValidTenantCode reports whether code is a well-formed tenant code.
func ValidTenantCode(code string) bool {
	return tenantCodeRE.MatchString(code)
}
