package llm

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"testing"
)

func TestClassify(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want Reason
	}{
		{"nil", nil, ReasonUnknown},
		{"deadline exceeded", context.DeadlineExceeded, ReasonTimeout},
		{"wrapped deadline", fmt.Errorf("call failed: %w", context.DeadlineExceeded), ReasonTimeout},
		{"timeout text", errors.New("request timeout after 120s"), ReasonTimeout},
		{"rate limit text", errors.New("Rate limit exceeded, retry later"), ReasonRateLimit},
		{"too many requests", errors.New("too many requests"), ReasonRateLimit},
		{"status 429", errors.New("unexpected status 429"), ReasonRateLimit},
		{"invalid api key", errors.New("Invalid API key provided"), ReasonAuth},
		{"unauthorized", errors.New("401 unauthorized"), ReasonAuth},
		{"invalid request", errors.New("invalid_request_error: bad temperature"), ReasonInvalidRequest},
		{"server error", errors.New("internal server error"), ReasonServerError},
		{"bad gateway", errors.New("status 502 from upstream"), ReasonServerError},
		{"unclassified", errors.New("connection reset by peer"), ReasonUnknown},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := Classify(tt.err); got != tt.want {
				t.Errorf("Classify(%v) = %v, want %v", tt.err, got, tt.want)
			}
		})
	}
}

func TestReason_IsRetryable(t *testing.T) {
	retryable := []Reason{ReasonRateLimit, ReasonTimeout, ReasonServerError, ReasonUnknown}
	for _, r := range retryable {
		if !r.IsRetryable() {
			t.Errorf("Reason(%s).IsRetryable() = false, want true", r)
		}
	}
	permanent := []Reason{ReasonAuth, ReasonInvalidRequest}
	for _, r := range permanent {
		if r.IsRetryable() {
			t.Errorf("Reason(%s).IsRetryable() = true, want false", r)
		}
	}
}

func TestProviderError_WithStatus(t *testing.T) {
	tests := []struct {
		status int
		want   Reason
	}{
		{401, ReasonAuth},
		{403, ReasonAuth},
		{429, ReasonRateLimit},
		{400, ReasonInvalidRequest},
		{500, ReasonServerError},
		{503, ReasonServerError},
	}
	for _, tt := range tests {
		err := NewProviderError("openai", "gpt-4.1", errors.New("boom")).WithStatus(tt.status)
		if err.Reason != tt.want {
			t.Errorf("WithStatus(%d) reason = %v, want %v", tt.status, err.Reason, tt.want)
		}
		if err.Status != tt.status {
			t.Errorf("WithStatus(%d) status = %d", tt.status, err.Status)
		}
	}
}

func TestProviderError_UnknownStatusKeepsReason(t *testing.T) {
	err := NewProviderError("openai", "gpt-4.1", errors.New("rate limit exceeded")).WithStatus(200)
	if err.Reason != ReasonRateLimit {
		t.Errorf("WithStatus(200) reason = %v, want rate_limit", err.Reason)
	}
}

func TestIsRetryable(t *testing.T) {
	wrapped := fmt.Errorf("generate: %w", NewProviderError("openai", "gpt-4.1", errors.New("boom")).WithStatus(401))
	if IsRetryable(wrapped) {
		t.Error("IsRetryable(auth error) = true, want false")
	}

	transient := NewProviderError("openrouter", "qwen", errors.New("boom")).WithStatus(429)
	if !IsRetryable(transient) {
		t.Error("IsRetryable(rate limit) = false, want true")
	}

	if !IsRetryable(errors.New("connection reset")) {
		t.Error("IsRetryable(unclassified) = false, want true")
	}
}

func TestProviderError_Error(t *testing.T) {
	err := NewProviderError("anthropic", "claude-sonnet", errors.New("overloaded"))
	msg := err.Error()
	for _, want := range []string{"anthropic", "claude-sonnet", "overloaded"} {
		if !strings.Contains(msg, want) {
			t.Errorf("Error() = %q, want substring %q", msg, want)
		}
	}
}
