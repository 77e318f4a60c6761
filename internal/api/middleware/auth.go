package middleware

import (
	"context"
	"strings"

	"github.com/gin-gonic/gin"

	apierrors "github.com/gmalakar/flouds-vector-go/pkg/common/errors"
	"github.com/gmalakar/flouds-vector-go/pkg/keymanager"
	"github.com/gmalakar/flouds-vector-go/pkg/observability"
	"github.com/gmalakar/flouds-vector-go/pkg/security"
)

// Validator verifies a presented principal. Satisfied by
// *keymanager.Manager.
type Validator interface {
	Validate(ctx context.Context, username, secret, expectedTenant string) (*keymanager.Client, error)
}

// Auth authenticates the bearer credential, binds the resolved tenant to
// the request, and parses the optional per-request database token.
func Auth(km Validator, logger observability.Logger) gin.HandlerFunc {
	if logger == nil {
		logger = observability.NewNoopLogger()
	}
	logger = logger.WithPrefix("auth")

	return func(c *gin.Context) {
		tenant := resolveTenant(c)
		if tenant != "" && !security.ValidTenantCode(tenant) {
			AbortWithError(c, apierrors.Newf(apierrors.KindTenant, "invalid tenant code %q", tenant))
			return
		}
		c.Set(ctxKeyTenant, tenant)

		user, secret, ok := bearerCredential(c.GetHeader("Authorization"))
		if !ok {
			AbortWithError(c, apierrors.New(apierrors.KindAuthentication, "missing or malformed Authorization header"))
			return
		}

		client, err := km.Validate(c.Request.Context(), user, secret, tenant)
		if err != nil {
			logger.Warn("authentication failed", map[string]interface{}{
				"username": security.SanitizeForLog(user),
				"tenant":   security.SanitizeForLog(tenant),
			})
			AbortWithError(c, err)
			return
		}
		c.Set(ctxKeyClient, client)

		if dbUser, dbSecret, ok := dbToken(c.GetHeader(HeaderDBToken)); ok {
			c.Set(ctxKeyDBUser, dbUser)
			c.Set(ctxKeyDBSecret, dbSecret)
		}
		c.Next()
	}
}

// RequireAdmin gates admin-only endpoints; it must run after Auth.
func RequireAdmin() gin.HandlerFunc {
	return func(c *gin.Context) {
		client := ClientFrom(c)
		if client == nil || !client.IsAdmin() {
			AbortWithError(c, apierrors.New(apierrors.KindAuthorization, "admin privileges required"))
			return
		}
		c.Next()
	}
}

// bearerCredential parses "Bearer <user>:<secret>".
func bearerCredential(header string) (user, secret string, ok bool) {
	const prefix = "Bearer "
	if !strings.HasPrefix(header, prefix) {
		return "", "", false
	}
	credential := strings.TrimPrefix(header, prefix)
	user, secret, found := strings.Cut(credential, ":")
	if !found || user == "" || secret == "" {
		return "", "", false
	}
	return user, secret, true
}

// dbToken parses "user|secret" or "user:secret".
func dbToken(header string) (user, secret string, ok bool) {
	if header == "" {
		return "", "", false
	}
	sep := "|"
	if !strings.Contains(header, sep) {
		sep = ":"
	}
	user, secret, found := strings.Cut(header, sep)
	if !found || user == "" || secret == "" {
		return "", "", false
	}
	return user, secret, true
}
