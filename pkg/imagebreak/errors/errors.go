package errors

import (
	"errors"
	"fmt"
)

// Common error types for collaborator calls
var (
	// ErrRateLimited indicates a provider rate limit was hit
	ErrRateLimited = errors.New("provider rate limit exceeded")

	// ErrContentFiltered indicates the provider refused the request on content grounds
	ErrContentFiltered = errors.New("request blocked by provider content filter")

	// ErrQuotaExceeded indicates the provider account has no remaining quota
	ErrQuotaExceeded = errors.New("provider quota exceeded")

	// ErrNoRetry indicates this error should not be retried
	ErrNoRetry = errors.New("operation cannot be retried")
)

// ProviderError represents a failure of a collaborator call (text generation,
// image generation, analysis or moderation). It is never fatal to a session:
// the regeneration loop absorbs it into a GenerationFailed attempt.
type ProviderError struct {
	Provider string
	Op       string
	Err      error
	Retry    bool
}

func (e *ProviderError) Error() string {
	return fmt.Sprintf("provider %s: %s failed: %v", e.Provider, e.Op, e.Err)
}

func (e *ProviderError) Unwrap() error {
	return e.Err
}

func (e *ProviderError) CanRetry() bool {
	return e.Retry
}

// NewProviderError creates a new provider error
func NewProviderError(provider, op string, err error, canRetry bool) *ProviderError {
	return &ProviderError{
		Provider: provider,
		Op:       op,
		Err:      err,
		Retry:    canRetry,
	}
}

// ConfigurationError represents an invalid session configuration. It is raised
// before the regeneration loop starts; no partial session is produced.
type ConfigurationError struct {
	Field  string
	Reason string
}

func (e *ConfigurationError) Error() string {
	return fmt.Sprintf("invalid configuration: %s: %s", e.Field, e.Reason)
}

// NewConfigurationError creates a new configuration error
func NewConfigurationError(field, reason string) *ConfigurationError {
	return &ConfigurationError{Field: field, Reason: reason}
}

// IsProviderError reports whether err is (or wraps) a ProviderError
func IsProviderError(err error) bool {
	var perr *ProviderError
	return errors.As(err, &perr)
}

// IsRetryable checks if an error can be retried
func IsRetryable(err error) bool {
	if errors.Is(err, ErrNoRetry) {
		return false
	}

	var perr *ProviderError
	if errors.As(err, &perr) {
		return perr.CanRetry()
	}

	// Default to retryable for unknown errors
	return true
}

// IsContentFiltered checks if an error is a provider-side content rejection
func IsContentFiltered(err error) bool {
	return errors.Is(err, ErrContentFiltered)
}

// IsRateLimited checks if an error is due to rate limiting
func IsRateLimited(err error) bool {
	return errors.Is(err, ErrRateLimited)
}
