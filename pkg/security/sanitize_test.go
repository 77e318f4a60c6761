package security

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestSanitizeErrorMessage(t *testing.T) {
	cases := []struct {
		name string
		in   string
		want string
	}{
		{
			name: "connection uri with embedded credentials and ip",
			in:   "connection to mongodb://admin:p@ss@10.0.0.1 failed",
			want: "connection to [REDACTED] failed",
		},
		{
			name: "password assignment",
			in:   "auth failed: password=hunter2 rejected",
			want: "auth failed: [REDACTED] rejected",
		},
		{
			name: "token with colon",
			in:   "token: abc123 expired",
			want: "[REDACTED] expired",
		},
		{
			name: "bare ipv4",
			in:   "dial tcp 192.168.1.50 refused",
			want: "dial tcp [REDACTED] refused",
		},
		{
			name: "email address",
			in:   "notify ops@example.com about this",
			want: "notify [REDACTED] about this",
		},
		{
			name: "postgres uri",
			in:   "open postgresql://svc:pw@db.internal/main: timeout",
			want: "open [REDACTED] timeout",
		},
		{
			name: "clean message untouched",
			in:   "collection not found",
			want: "collection not found",
		},
		{
			name: "bare credential words without separator survive",
			in:   "auth succeeded but token refresh is disabled",
			want: "auth succeeded but token refresh is disabled",
		},
		{
			name: "header name containing Token survives",
			in:   "missing Flouds-VectorDB-Token header",
			want: "missing Flouds-VectorDB-Token header",
		},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			assert.Equal(t, tc.want, SanitizeErrorMessage(tc.in))
		})
	}
}

func TestSanitizeForLog(t *testing.T) {
	assert.Equal(t, "line one line two", SanitizeForLog("line one\r\nline two"))
	assert.Equal(t, "a b", SanitizeForLog("a\tb"))
	assert.Equal(t, "clean", SanitizeForLog("cle\x00an\x7f"))
}

func TestFormatRateLimitResponse(t *testing.T) {
	resp := FormatRateLimitResponse(200, 60, 31, "tenant", "standard")

	assert.Equal(t, "Rate Limit Exceeded", resp.Error)
	assert.Equal(t, "Too many requests. Limit: 200 requests per 60 seconds", resp.Message)
	assert.Equal(t, "rate_limit_error", resp.Type)
	if assert.NotNil(t, resp.LimitInfo) {
		assert.Equal(t, 200, resp.LimitInfo.Limit)
		assert.Equal(t, 60, resp.LimitInfo.Period)
		assert.Equal(t, 31, resp.LimitInfo.RetryAfter)
		assert.Equal(t, "tenant", resp.LimitInfo.LimitType)
		assert.Equal(t, "standard", resp.LimitInfo.Tier)
	}
	assert.Equal(t, "Consider upgrading your tier for higher limits", resp.Suggestion)
}

func TestFormatRateLimitResponsePremiumTier(t *testing.T) {
	resp := FormatRateLimitResponse(1000, 60, 5, "tenant", "premium")

	assert.Equal(t, "premium", resp.LimitInfo.Tier)
	assert.Empty(t, resp.Suggestion, "no higher tier exists to suggest")
}

func TestFormatRateLimitResponseIPScope(t *testing.T) {
	resp := FormatRateLimitResponse(100, 60, 12, "ip", "")

	assert.Empty(t, resp.Suggestion)
	assert.Empty(t, resp.LimitInfo.Tier)
	assert.Equal(t, "ip", resp.LimitInfo.LimitType)
}
