package llm

import (
	"context"
	"errors"
	"net/http"
	"strings"
)

// Reason categorizes why a provider request failed. The reformulation
// engine retries transient reasons with backoff and aborts immediately on
// permanent ones.
type Reason string

const (
	// ReasonRateLimit indicates rate limiting (HTTP 429). Retryable.
	ReasonRateLimit Reason = "rate_limit"

	// ReasonTimeout indicates a request timeout. Retryable.
	ReasonTimeout Reason = "timeout"

	// ReasonServerError indicates server-side failure (HTTP 5xx). Retryable.
	ReasonServerError Reason = "server_error"

	// ReasonAuth indicates authentication failure (HTTP 401, 403). Permanent.
	ReasonAuth Reason = "auth"

	// ReasonInvalidRequest indicates a malformed request (HTTP 400). Permanent.
	ReasonInvalidRequest Reason = "invalid_request"

	// ReasonUnknown indicates an unclassified error. Treated as retryable
	// so flaky transport failures get their retry budget.
	ReasonUnknown Reason = "unknown"
)

// IsRetryable reports whether retrying may succeed.
func (r Reason) IsRetryable() bool {
	switch r {
	case ReasonAuth, ReasonInvalidRequest:
		return false
	default:
		return true
	}
}

// ProviderError is a structured error from an LLM provider with enough
// context for retry decisions and the failure summary.
type ProviderError struct {
	Reason   Reason
	Provider string
	Model    string
	Status   int
	Message  string
	Cause    error
}

func (e *ProviderError) Error() string {
	parts := []string{"[" + string(e.Reason) + "]"}
	if e.Provider != "" {
		parts = append(parts, e.Provider)
	}
	if e.Model != "" {
		parts = append(parts, "model="+e.Model)
	}
	if e.Message != "" {
		parts = append(parts, e.Message)
	} else if e.Cause != nil {
		parts = append(parts, e.Cause.Error())
	}
	return strings.Join(parts, " ")
}

func (e *ProviderError) Unwrap() error { return e.Cause }

// NewProviderError wraps cause with provider context, classifying the reason
// from the error text.
func NewProviderError(provider, model string, cause error) *ProviderError {
	err := &ProviderError{
		Provider: provider,
		Model:    model,
		Cause:    cause,
		Reason:   ReasonUnknown,
	}
	if cause != nil {
		err.Message = cause.Error()
		err.Reason = Classify(cause)
	}
	return err
}

// WithStatus records the HTTP status and reclassifies from it.
func (e *ProviderError) WithStatus(status int) *ProviderError {
	e.Status = status
	if reason := classifyStatus(status); reason != ReasonUnknown {
		e.Reason = reason
	}
	return e
}

// Classify inspects an error and returns the matching Reason.
func Classify(err error) Reason {
	if err == nil {
		return ReasonUnknown
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return ReasonTimeout
	}

	msg := strings.ToLower(err.Error())
	switch {
	case strings.Contains(msg, "timeout"),
		strings.Contains(msg, "deadline exceeded"),
		strings.Contains(msg, "context deadline"):
		return ReasonTimeout
	case strings.Contains(msg, "rate limit"),
		strings.Contains(msg, "rate_limit"),
		strings.Contains(msg, "too many requests"),
		strings.Contains(msg, "429"):
		return ReasonRateLimit
	case strings.Contains(msg, "unauthorized"),
		strings.Contains(msg, "invalid api key"),
		strings.Contains(msg, "invalid_api_key"),
		strings.Contains(msg, "authentication"),
		strings.Contains(msg, "401"),
		strings.Contains(msg, "403"):
		return ReasonAuth
	case strings.Contains(msg, "invalid_request_error"),
		strings.Contains(msg, "invalid request"),
		strings.Contains(msg, "400"):
		return ReasonInvalidRequest
	case strings.Contains(msg, "internal server"),
		strings.Contains(msg, "server error"),
		strings.Contains(msg, "500"),
		strings.Contains(msg, "502"),
		strings.Contains(msg, "503"),
		strings.Contains(msg, "504"):
		return ReasonServerError
	}
	return ReasonUnknown
}

func classifyStatus(status int) Reason {
	switch {
	case status == http.StatusUnauthorized || status == http.StatusForbidden:
		return ReasonAuth
	case status == http.StatusTooManyRequests:
		return ReasonRateLimit
	case status == http.StatusBadRequest:
		return ReasonInvalidRequest
	case status >= 500:
		return ReasonServerError
	default:
		return ReasonUnknown
	}
}

// IsRetryable reports whether err should be retried. Unclassified errors
// are retryable.
func IsRetryable(err error) bool {
	var providerErr *ProviderError
	if errors.As(err, &providerErr) {
		return providerErr.Reason.IsRetryable()
	}
	return Classify(err).IsRetryable()
}
