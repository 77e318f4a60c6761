package middleware

import (
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"

	"github.com/gmalakar/flouds-vector-go/pkg/security"
)

// PolicyResolver returns the allowed patterns for a policy key, scoped to
// the request's tenant. Backed by the config store with global fallback.
type PolicyResolver func(c *gin.Context, tenant string) []string

var corsAllowedMethods = strings.Join([]string{
	http.MethodGet, http.MethodPost, http.MethodPut, http.MethodDelete, http.MethodOptions,
}, ", ")

var corsAllowedHeaders = strings.Join([]string{
	"Authorization", "Content-Type", HeaderTenantCode, HeaderDBToken, HeaderRequestID,
}, ", ")

// CORS answers preflights and attaches response headers for allowed
// origins. A preflight from a disallowed origin gets 403; requests
// without an Origin header pass through untouched.
func CORS(resolve PolicyResolver) gin.HandlerFunc {
	return func(c *gin.Context) {
		origin := c.GetHeader("Origin")
		if origin == "" {
			c.Next()
			return
		}
		allowed := security.IsAllowed(origin, resolve(c, resolveTenant(c)))

		if c.Request.Method == http.MethodOptions {
			if !allowed {
				c.AbortWithStatus(http.StatusForbidden)
				return
			}
			c.Header("Access-Control-Allow-Origin", origin)
			c.Header("Access-Control-Allow-Methods", corsAllowedMethods)
			c.Header("Access-Control-Allow-Headers", corsAllowedHeaders)
			c.Header("Access-Control-Max-Age", "600")
			c.AbortWithStatus(http.StatusNoContent)
			return
		}

		if allowed {
			c.Header("Access-Control-Allow-Origin", origin)
			c.Header("Vary", "Origin")
		}
		c.Next()
	}
}
