package middleware

import (
	"net/http"

	"github.com/gin-gonic/gin"

	apierrors "github.com/gmalakar/flouds-vector-go/pkg/common/errors"
	"github.com/gmalakar/flouds-vector-go/pkg/observability"
	"github.com/gmalakar/flouds-vector-go/pkg/security"
)

// ErrorHandler is the last-resort translator: it recovers panics and
// shapes any error a handler attached to the context into the sanitised
// envelope.
func ErrorHandler(logger observability.Logger) gin.HandlerFunc {
	if logger == nil {
		logger = observability.NewNoopLogger()
	}
	logger = logger.WithPrefix("errors")

	return func(c *gin.Context) {
		defer func() {
			if r := recover(); r != nil {
				logger.Error("handler panic", map[string]interface{}{
					"path":  security.SanitizeForLog(c.Request.URL.Path),
					"panic": security.SanitizeForLog(security.SanitizeErrorMessage(panicString(r))),
				})
				c.AbortWithStatusJSON(http.StatusInternalServerError, security.FormatErrorResponse(
					apierrors.New(apierrors.KindInternal, "internal server error")))
			}
		}()
		c.Next()

		if c.Writer.Written() || len(c.Errors) == 0 {
			return
		}
		err := c.Errors.Last().Err
		if apierrors.IsCanceled(err) {
			// client went away; no envelope to deliver, nothing to log
			c.AbortWithStatus(499)
			return
		}
		AbortWithError(c, err)
	}
}

func panicString(r interface{}) string {
	if err, ok := r.(error); ok {
		return err.Error()
	}
	if s, ok := r.(string); ok {
		return s
	}
	return "unknown panic"
}
