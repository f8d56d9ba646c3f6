// Package errors implements a tiered error taxonomy with classification and
// retry behavior for the conversation runtime and its collaborators.
package errors

import (
	"errors"
	"fmt"
	"net/http"
	"time"
)

// ErrorTier represents the classification tier for errors.
// Each tier has defined behavior for retry policy and escalation.
type ErrorTier int

const (
	// TierTransient indicates temporary errors that should be silently retried.
	// Examples: network timeouts, a room that briefly refuses writes.
	TierTransient ErrorTier = iota

	// TierPermanent indicates errors that will not resolve with retry.
	// Examples: unknown persona, invalid input, authentication failure.
	TierPermanent

	// TierUserFixable indicates errors that require operator intervention.
	// Examples: missing API key, missing coordination URL.
	TierUserFixable

	// TierExternalRateLimit indicates rate limiting from external services.
	TierExternalRateLimit

	// TierExternalDegrading indicates external service degradation (5xx).
	TierExternalDegrading
)

var tierNames = map[ErrorTier]string{
	TierTransient:         "transient",
	TierPermanent:         "permanent",
	TierUserFixable:       "user_fixable",
	TierExternalRateLimit: "external_rate_limit",
	TierExternalDegrading: "external_degrading",
}

func (t ErrorTier) String() string {
	if name, ok := tierNames[t]; ok {
		return name
	}
	return "unknown"
}

// TieredError wraps an error with tier classification.
type TieredError struct {
	Tier       ErrorTier
	Message    string
	Underlying error
	StatusCode int
	RetryAfter time.Duration
	Context    map[string]string
}

// Error implements the error interface.
func (e *TieredError) Error() string {
	if e.Underlying != nil {
		return fmt.Sprintf("[%s] %s: %v", e.Tier, e.Message, e.Underlying)
	}
	return fmt.Sprintf("[%s] %s", e.Tier, e.Message)
}

// Unwrap returns the underlying error for errors.Is/As support.
func (e *TieredError) Unwrap() error {
	return e.Underlying
}

// Is checks if the target error matches this TieredError's tier.
func (e *TieredError) Is(target error) bool {
	var te *TieredError
	if errors.As(target, &te) {
		return e.Tier == te.Tier
	}
	return false
}

// NewTieredError creates a new TieredError with the given tier and message.
func NewTieredError(tier ErrorTier, message string, underlying error) *TieredError {
	return &TieredError{
		Tier:       tier,
		Message:    message,
		Underlying: underlying,
		Context:    make(map[string]string),
	}
}

// WithStatusCode adds an HTTP status code to the error.
func (e *TieredError) WithStatusCode(code int) *TieredError {
	e.StatusCode = code
	return e
}

// WithRetryAfter adds a retry-after duration to the error.
func (e *TieredError) WithRetryAfter(d time.Duration) *TieredError {
	e.RetryAfter = d
	return e
}

// WithContext adds context key-value pairs to the error.
func (e *TieredError) WithContext(key, value string) *TieredError {
	e.Context[key] = value
	return e
}

// tiered is implemented by domain errors that carry their own tier.
type tiered interface {
	Tier() ErrorTier
}

// GetTier extracts the ErrorTier from an error, defaulting to Permanent.
func GetTier(err error) ErrorTier {
	var te *TieredError
	if errors.As(err, &te) {
		return te.Tier
	}
	var t tiered
	if errors.As(err, &t) {
		return t.Tier()
	}
	return TierPermanent
}

// IsRetryable checks if an error should be retried based on its tier.
func IsRetryable(err error) bool {
	policy := GetRetryPolicy(GetTier(err))
	return policy.MaxAttempts > 0
}

// TierForStatus maps an HTTP status code onto a tier.
func TierForStatus(code int) ErrorTier {
	switch {
	case code == http.StatusTooManyRequests:
		return TierExternalRateLimit
	case code == http.StatusUnauthorized || code == http.StatusForbidden:
		return TierUserFixable
	case code == http.StatusRequestTimeout:
		return TierTransient
	case code >= 500:
		return TierExternalDegrading
	default:
		return TierPermanent
	}
}

// Common sentinel errors for each tier.
var (
	ErrTimeout          = NewTieredError(TierTransient, "operation timed out", nil)
	ErrTemporaryFailure = NewTieredError(TierTransient, "temporary failure", nil)

	ErrNotFound     = NewTieredError(TierPermanent, "not found", nil)
	ErrInvalidInput = NewTieredError(TierPermanent, "invalid input", nil)

	ErrMissingConfig = NewTieredError(TierUserFixable, "missing configuration", nil)
	ErrMissingAPIKey = NewTieredError(TierUserFixable, "missing API key", nil)

	ErrRateLimited        = NewTieredError(TierExternalRateLimit, "rate limited", nil).WithStatusCode(http.StatusTooManyRequests)
	ErrServiceUnavailable = NewTieredError(TierExternalDegrading, "service unavailable", nil).WithStatusCode(http.StatusServiceUnavailable)
)

// WrapWithTier wraps an error with a tier classification.
func WrapWithTier(tier ErrorTier, message string, err error) error {
	if err == nil {
		return nil
	}

	// Don't double-wrap TieredErrors
	var te *TieredError
	if errors.As(err, &te) {
		return &TieredError{
			Tier:       te.Tier,
			Message:    message,
			Underlying: err,
			StatusCode: te.StatusCode,
			RetryAfter: te.RetryAfter,
			Context:    te.Context,
		}
	}

	return NewTieredError(tier, message, err)
}
