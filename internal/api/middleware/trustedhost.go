package middleware

import (
	"github.com/gin-gonic/gin"

	apierrors "github.com/gmalakar/flouds-vector-go/pkg/common/errors"
	"github.com/gmalakar/flouds-vector-go/pkg/security"
)

// TrustedHost rejects requests whose Host header does not match the
// tenant's trusted list with 400.
func TrustedHost(resolve PolicyResolver) gin.HandlerFunc {
	return func(c *gin.Context) {
		host := security.HostOnly(c.Request.Host)
		if !security.IsAllowed(host, resolve(c, resolveTenant(c))) {
			AbortWithError(c, apierrors.Newf(apierrors.KindValidation, "host %q is not trusted", host))
			return
		}
		c.Next()
	}
}
