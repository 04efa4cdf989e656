// Package apierr classifies failures returned by the remote AI service. Typed
// API errors are checked by status code; everything else by its text.
package apierr

import (
	"errors"
	"net/http"
	"strings"

	"google.golang.org/genai"
)

var rateLimitMarkers = []string{
	"429",
	"resource_exhausted",
	"resource exhausted",
	"quota",
	"rate limit",
	"rate-limit",
	"too many requests",
}

var transientMarkers = []string{
	"unexpected eof",
	"timeout",
	"rst_stream",
	"connection reset",
	"503",
	"unavailable",
}

// IsRateLimited reports whether err signals an exhausted quota or rate limit.
func IsRateLimited(err error) bool {
	if code, ok := statusCode(err); ok && code == http.StatusTooManyRequests {
		return true
	}
	return containsAny(err, rateLimitMarkers)
}

// Retriable reports whether err looks like a transient transport failure
// worth another attempt. Rate limits are never retriable.
func Retriable(err error) bool {
	if IsRateLimited(err) {
		return false
	}
	if code, ok := statusCode(err); ok {
		switch code {
		case http.StatusInternalServerError, http.StatusBadGateway,
			http.StatusServiceUnavailable, http.StatusGatewayTimeout:
			return true
		}
	}
	return containsAny(err, transientMarkers)
}

// statusCode extracts the HTTP status of a genai.APIError anywhere in err's chain.
func statusCode(err error) (int, bool) {
	var apiErr genai.APIError
	if errors.As(err, &apiErr) {
		return apiErr.Code, true
	}
	var apiErrPtr *genai.APIError
	if errors.As(err, &apiErrPtr) && apiErrPtr != nil {
		return apiErrPtr.Code, true
	}
	return 0, false
}

func containsAny(err error, markers []string) bool {
	if err == nil {
		return false
	}
	s := strings.ToLower(err.Error())
	for _, m := range markers {
		if strings.Contains(s, m) {
			return true
		}
	}
	return false
}
