package middleware

import (
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"

	"github.com/gmalakar/flouds-vector-go/pkg/config"
	"github.com/gmalakar/flouds-vector-go/pkg/observability"
	"github.com/gmalakar/flouds-vector-go/pkg/ratelimit"
	"github.com/gmalakar/flouds-vector-go/pkg/security"
)

// RateLimit applies the IP bucket first and, when the request carries a
// tenant, the tenant's tier bucket. Denials get the authoritative 429
// shape with a Retry-After header.
func RateLimit(ip *ratelimit.Limiter, tenants *ratelimit.TenantLimiter, cfg config.RateLimitConfig,
	logger observability.Logger, metrics observability.MetricsClient) gin.HandlerFunc {

	if logger == nil {
		logger = observability.NewNoopLogger()
	}
	if metrics == nil {
		metrics = observability.NewNoopMetricsClient()
	}
	logger = logger.WithPrefix("ratelimit")

	return func(c *gin.Context) {
		clientIP := c.ClientIP()
		if d := ip.Allow(clientIP, cfg.IPLimit, cfg.Period); !d.Allowed {
			deny(c, d, "ip", "", logger, metrics)
			return
		}

		if tenant := TenantFrom(c); tenant != "" {
			if d, tier := tenants.Allow(tenant); !d.Allowed {
				deny(c, d, "tenant", tier, logger, metrics)
				return
			}
		}
		c.Next()
	}
}

func deny(c *gin.Context, d ratelimit.Decision, limitType, tier string,
	logger observability.Logger, metrics observability.MetricsClient) {

	logger.Warn("rate limit exceeded", map[string]interface{}{
		"limit_type": limitType,
		"tier":       tier,
		"path":       c.Request.URL.Path,
		"limit":      d.Limit,
	})
	metrics.IncrementCounterWithLabels("rate_limit_denials_total", 1, map[string]string{
		"limit_type": limitType,
	})

	c.Header("Retry-After", strconv.Itoa(d.RetryAfter))
	c.AbortWithStatusJSON(http.StatusTooManyRequests,
		security.FormatRateLimitResponse(d.Limit, d.Period, d.RetryAfter, limitType, tier))
}
