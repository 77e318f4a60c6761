package middleware

import (
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"

	apierrors "github.com/gmalakar/flouds-vector-go/pkg/common/errors"
)

// Validation enforces request hygiene before handlers run: a body size
// cap and a JSON content type on mutating endpoints. Tenant codes are
// checked earlier, in Auth, because rate limiting keys on them.
func Validation(maxBodyBytes int64) gin.HandlerFunc {
	return func(c *gin.Context) {
		if maxBodyBytes > 0 && c.Request.Body != nil {
			if c.Request.ContentLength > maxBodyBytes {
				AbortWithError(c, apierrors.Newf(apierrors.KindValidation,
					"request body exceeds %d bytes", maxBodyBytes))
				return
			}
			c.Request.Body = http.MaxBytesReader(c.Writer, c.Request.Body, maxBodyBytes)
		}

		switch c.Request.Method {
		case http.MethodPost, http.MethodPut:
			ct := c.ContentType()
			if c.Request.ContentLength != 0 && !strings.HasPrefix(ct, "application/json") {
				AbortWithError(c, apierrors.Newf(apierrors.KindValidation,
					"content type %q not supported, expected application/json", ct))
				return
			}
		}
		c.Next()
	}
}
