// Package middleware implements the ordered request interceptors in front
// of every handler: CORS, trusted host, authentication, rate limiting,
// validation, request logging, metrics and last-resort error translation.
package middleware

import (
	"bytes"
	"encoding/json"
	"io"
	"net/http"

	"github.com/gin-gonic/gin"

	apierrors "github.com/gmalakar/flouds-vector-go/pkg/common/errors"
	"github.com/gmalakar/flouds-vector-go/pkg/keymanager"
	"github.com/gmalakar/flouds-vector-go/pkg/security"
)

// Context keys set by the pipeline.
const (
	ctxKeyTenant    = "tenant_code"
	ctxKeyClient    = "auth_client"
	ctxKeyDBUser    = "db_token_user"
	ctxKeyDBSecret  = "db_token_secret"
	ctxKeyRequestID = "request_id"
)

// Request headers recognised by the pipeline.
const (
	HeaderTenantCode = "X-Tenant-Code"
	HeaderDBToken    = "Flouds-VectorDB-Token"
	HeaderRequestID  = "X-Request-ID"
)

const maxTenantPeekBytes = 1 << 20

// TenantFrom returns the tenant code resolved for the request, if any.
func TenantFrom(c *gin.Context) string {
	return c.GetString(ctxKeyTenant)
}

// ClientFrom returns the authenticated client, or nil.
func ClientFrom(c *gin.Context) *keymanager.Client {
	v, ok := c.Get(ctxKeyClient)
	if !ok {
		return nil
	}
	client, _ := v.(*keymanager.Client)
	return client
}

// DBTokenFrom returns the per-request database credential parsed from the
// Flouds-VectorDB-Token header.
func DBTokenFrom(c *gin.Context) (user, secret string, ok bool) {
	user = c.GetString(ctxKeyDBUser)
	secret = c.GetString(ctxKeyDBSecret)
	return user, secret, user != ""
}

// RequestIDFrom returns the request correlation id.
func RequestIDFrom(c *gin.Context) string {
	return c.GetString(ctxKeyRequestID)
}

// resolveTenant finds the tenant code for a request: the X-Tenant-Code
// header takes precedence, otherwise the tenant_code body field. The body
// is restored after peeking so handlers can still bind it.
func resolveTenant(c *gin.Context) string {
	if tenant := c.GetHeader(HeaderTenantCode); tenant != "" {
		return tenant
	}
	if c.Request.Body == nil || c.Request.Method == http.MethodGet {
		return ""
	}
	raw, err := io.ReadAll(io.LimitReader(c.Request.Body, maxTenantPeekBytes))
	c.Request.Body.Close()
	c.Request.Body = io.NopCloser(bytes.NewReader(raw))
	if err != nil {
		return ""
	}
	var probe struct {
		TenantCode string `json:"tenant_code"`
	}
	if json.Unmarshal(raw, &probe) != nil {
		return ""
	}
	return probe.TenantCode
}

// AbortWithError translates a typed error into the sanitised envelope and
// stops the chain.
func AbortWithError(c *gin.Context, err error) {
	kind := apierrors.KindOf(err)
	c.AbortWithStatusJSON(apierrors.StatusCode(kind), security.FormatErrorResponse(err))
}
