// Package ai dispatches prompt completions across a prioritized list of
// model providers with ordered fallback.
package ai

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"
)

// Params tunes a single completion request. Zero values fall back to
// provider defaults.
type Params struct {
	Model       string
	MaxTokens   int
	Temperature float64
}

// Provider is one model backend. Complete returns the generated text or
// an error; implementations classify failures with ProviderError so the
// coordinator can report why each backend was skipped.
type Provider interface {
	Name() string
	Complete(ctx context.Context, prompt string, params Params) (string, error)
}

// ErrorClass buckets provider failures for audit and fallback reporting.
type ErrorClass string

const (
	ErrorTimeout     ErrorClass = "timeout"
	ErrorAuth        ErrorClass = "auth"
	ErrorRateLimit   ErrorClass = "rate_limit"
	ErrorMalformed   ErrorClass = "malformed_response"
	ErrorUnavailable ErrorClass = "unavailable"
)

// ProviderError wraps a provider failure with its classification.
type ProviderError struct {
	Provider string
	Class    ErrorClass
	Err      error
}

func (e *ProviderError) Error() string {
	return fmt.Sprintf("provider %s: %s: %v", e.Provider, e.Class, e.Err)
}

func (e *ProviderError) Unwrap() error {
	return e.Err
}

// Classify returns the error class for an error, defaulting to
// unavailable when the error carries no classification.
func Classify(err error) ErrorClass {
	var providerErr *ProviderError
	if errors.As(err, &providerErr) {
		return providerErr.Class
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return ErrorTimeout
	}
	return ErrorUnavailable
}

func classifyStatus(status int) ErrorClass {
	switch {
	case status == http.StatusUnauthorized || status == http.StatusForbidden:
		return ErrorAuth
	case status == http.StatusTooManyRequests:
		return ErrorRateLimit
	case status == http.StatusRequestTimeout || status == http.StatusGatewayTimeout:
		return ErrorTimeout
	default:
		return ErrorUnavailable
	}
}

func statusError(provider string, status int, body string) error {
	return &ProviderError{
		Provider: provider,
		Class:    classifyStatus(status),
		Err:      fmt.Errorf("request status %d: %s", status, strings.TrimSpace(body)),
	}
}

func transportError(provider string, err error) error {
	class := ErrorUnavailable
	if errors.Is(err, context.DeadlineExceeded) {
		class = ErrorTimeout
	}
	return &ProviderError{Provider: provider, Class: class, Err: err}
}

func malformedError(provider string, err error) error {
	return &ProviderError{Provider: provider, Class: ErrorMalformed, Err: err}
}
