package security

import (
	"fmt"

	apierrors "github.com/gmalakar/flouds-vector-go/pkg/common/errors"
)

// ErrorResponse is the sanitised error envelope returned for every failed
// request.
type ErrorResponse struct {
	Error      string         `json:"error"`
	Message    string         `json:"message"`
	Type       string         `json:"type"`
	Details    string         `json:"details,omitempty"`
	RetryAfter int            `json:"retry_after,omitempty"`
	LimitInfo  *RateLimitInfo `json:"limit_info,omitempty"`
	Suggestion string         `json:"suggestion,omitempty"`
}

// RateLimitInfo describes the limit that denied a request
type RateLimitInfo struct {
	Limit      int    `json:"limit"`
	Period     int    `json:"period"`
	RetryAfter int    `json:"retry_after"`
	LimitType  string `json:"limit_type"`
	Tier       string `json:"tier,omitempty"`
}

// FormatErrorResponse shapes a typed error into the canonical envelope,
// sanitising the details string.
func FormatErrorResponse(err error) ErrorResponse {
	kind := apierrors.KindOf(err)
	return ErrorResponse{
		Error:   apierrors.Title(kind),
		Message: SanitizeErrorMessage(apierrors.MessageOf(err)),
		Type:    string(kind),
		Details: SanitizeErrorMessage(apierrors.DetailsOf(err)),
	}
}

// FormatRateLimitResponse shapes a rate limit denial. The shape is
// authoritative for 429 responses.
func FormatRateLimitResponse(limit, period, retryAfter int, limitType, tier string) ErrorResponse {
	resp := ErrorResponse{
		Error:   "Rate Limit Exceeded",
		Message: fmt.Sprintf("Too many requests. Limit: %d requests per %d seconds", limit, period),
		Type:    string(apierrors.KindRateLimit),
		LimitInfo: &RateLimitInfo{
			Limit:      limit,
			Period:     period,
			RetryAfter: retryAfter,
			LimitType:  limitType,
		},
	}
	if tier != "" {
		resp.LimitInfo.Tier = tier
		// the top tier has nowhere to upgrade to
		if tier != "premium" {
			resp.Suggestion = "Consider upgrading your tier for higher limits"
		}
	}
	return resp
}
