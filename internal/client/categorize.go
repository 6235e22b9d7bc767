package client

import (
	"context"
	"errors"
	"net"
)

// ErrorCategory is a stable label for error classification in metrics.
type ErrorCategory string

// Error category constants used as the fetchErrorsTotal label.
const (
	ErrorCategoryAborted          ErrorCategory = "aborted"
	ErrorCategoryTimeout          ErrorCategory = "timeout"
	ErrorCategoryNetwork          ErrorCategory = "network"
	ErrorCategoryInvalidAPIKey    ErrorCategory = "invalid_api_key"
	ErrorCategoryLocationNotFound ErrorCategory = "location_not_found"
	ErrorCategoryRateLimited      ErrorCategory = "rate_limited"
	ErrorCategoryServerError      ErrorCategory = "server_error"
	ErrorCategoryUnexpectedStatus ErrorCategory = "unexpected_status"
	ErrorCategoryParsing          ErrorCategory = "parsing"
	ErrorCategoryUnknown          ErrorCategory = "unknown"
)

// CategorizeError maps an error to a stable ErrorCategory for metrics.
// Classification uses errors.Is/As only, never message text.
func CategorizeError(err error) ErrorCategory {
	if err == nil {
		return ""
	}

	switch {
	case errors.Is(err, context.Canceled):
		return ErrorCategoryAborted
	case errors.Is(err, context.DeadlineExceeded):
		return ErrorCategoryTimeout
	case errors.Is(err, ErrInvalidAPIKey):
		return ErrorCategoryInvalidAPIKey
	case errors.Is(err, ErrLocationNotFound):
		return ErrorCategoryLocationNotFound
	case errors.Is(err, ErrRateLimited):
		return ErrorCategoryRateLimited
	case errors.Is(err, ErrServerError):
		return ErrorCategoryServerError
	case errors.Is(err, ErrUnexpectedStatus):
		return ErrorCategoryUnexpectedStatus
	case errors.Is(err, ErrInvalidPayload):
		return ErrorCategoryParsing
	}

	var netErr net.Error
	if errors.As(err, &netErr) {
		if netErr.Timeout() {
			return ErrorCategoryTimeout
		}
		return ErrorCategoryNetwork
	}

	return ErrorCategoryUnknown
}

// Messages shown to the user for each failure class.
const (
	MessageInvalidAPIKey    = "Invalid API key"
	MessageLocationNotFound = "Location not found"
	MessageRateLimited      = "Too many requests"
	MessageServerError      = "Server error"
	MessageGeneric          = "Failed to fetch weather data"
)

// UserMessage returns the fixed user-facing message for a failed fetch.
func UserMessage(err error) string {
	switch {
	case errors.Is(err, ErrInvalidAPIKey):
		return MessageInvalidAPIKey
	case errors.Is(err, ErrLocationNotFound):
		return MessageLocationNotFound
	case errors.Is(err, ErrRateLimited):
		return MessageRateLimited
	case errors.Is(err, ErrServerError):
		return MessageServerError
	default:
		return MessageGeneric
	}
}
