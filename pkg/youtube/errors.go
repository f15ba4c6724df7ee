package youtube

import (
	"errors"
	"fmt"
	"net/http"
	"slices"

	"google.golang.org/api/googleapi"
)

// UploadError carries the HTTP status of a failed API call. StatusCode is
// zero when no response was received.
type UploadError struct {
	StatusCode int
	Reason     string // first API error reason, e.g. quotaExceeded
	Message    string
	Err        error
}

func (e *UploadError) Error() string {
	if e.StatusCode == 0 {
		return fmt.Sprintf("youtube upload: %v", e.Err)
	}
	if e.Reason != "" {
		return fmt.Sprintf("youtube upload: status %d (%s): %s", e.StatusCode, e.Reason, e.Message)
	}
	return fmt.Sprintf("youtube upload: status %d: %s", e.StatusCode, e.Message)
}

func (e *UploadError) Unwrap() error { return e.Err }

// Kind classifies the failure for API clients.
func (e *UploadError) Kind() string {
	switch {
	case e.StatusCode == http.StatusUnauthorized:
		return "auth_error"
	case e.Reason == "quotaExceeded" || e.StatusCode == http.StatusTooManyRequests:
		return "quota_error"
	case e.StatusCode == http.StatusForbidden:
		return "permission_error"
	default:
		return "upload_error"
	}
}

var rateLimitReasons = []string{"rateLimitExceeded", "userRateLimitExceeded", "backendError"}

// IsRetryable reports whether the failed call may succeed if repeated.
// Exhausted daily quota is not retryable; short-term rate limits are.
func IsRetryable(err error) bool {
	var ue *UploadError
	if !errors.As(err, &ue) {
		return false
	}
	switch {
	case ue.StatusCode == 0:
		return true
	case ue.Reason == "quotaExceeded":
		return false
	case ue.StatusCode == http.StatusRequestTimeout,
		ue.StatusCode == http.StatusTooManyRequests,
		ue.StatusCode >= 500:
		return true
	case ue.StatusCode == http.StatusForbidden:
		return slices.Contains(rateLimitReasons, ue.Reason)
	}
	return false
}

func wrapAPIError(err error) error {
	var gerr *googleapi.Error
	if !errors.As(err, &gerr) {
		return &UploadError{Err: err}
	}
	ue := &UploadError{StatusCode: gerr.Code, Message: gerr.Message, Err: err}
	if len(gerr.Errors) > 0 {
		ue.Reason = gerr.Errors[0].Reason
		if ue.Message == "" {
			ue.Message = gerr.Errors[0].Message
		}
	}
	if ue.Message == "" {
		ue.Message = http.StatusText(gerr.Code)
	}
	return ue
}
