package models

import (
	"errors"
	"fmt"
)

// Sentinel errors for conditions callers branch on.
var (
	// ErrUnauthorized means the caller's identity could not be resolved.
	ErrUnauthorized = errors.New("unauthorized")

	// ErrNotFound means a referenced job, post, or connection is absent or
	// not owned by the caller.
	ErrNotFound = errors.New("not found")

	// ErrTokenExpired means a connection's access token is expired and no
	// refresh token exists to renew it.
	ErrTokenExpired = errors.New("access token expired and no refresh token stored")
)

// ConfigError reports missing platform credentials.
type ConfigError struct {
	Missing string
}

func (e *ConfigError) Error() string {
	return fmt.Sprintf("oauth not configured: missing %s", e.Missing)
}

// ValidationError reports a malformed job payload.
type ValidationError struct {
	Reason string
}

func (e *ValidationError) Error() string {
	return e.Reason
}

// ExternalServiceError reports a non-2xx response from an AI or platform
// endpoint, carrying the status and a truncated body for diagnostics.
type ExternalServiceError struct {
	Service    string
	StatusCode int
	Body       string
}

func (e *ExternalServiceError) Error() string {
	return fmt.Sprintf("%s status %d: %s", e.Service, e.StatusCode, e.Body)
}

// RefreshFailedError reports a failed refresh-token grant.
type RefreshFailedError struct {
	StatusCode int
	Body       string
}

func (e *RefreshFailedError) Error() string {
	return fmt.Sprintf("token refresh failed with status %d: %s", e.StatusCode, e.Body)
}
