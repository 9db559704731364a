package tokenlife

import (
	"errors"
	"fmt"
	"time"
)

var (
	// ErrTokenInvalid is returned when a token is malformed or its signature
	// cannot be verified.
	ErrTokenInvalid = errors.New("invalid token")
	// ErrTokenExpired is returned when a token's expiry has elapsed.
	ErrTokenExpired = errors.New("token expired")
	// ErrTokenRevoked is returned when a token's identifier is denylisted.
	ErrTokenRevoked = errors.New("token revoked")
	// ErrSecurityMismatch is returned when strict security-context binding is
	// enabled and the presented context differs from the one recorded at
	// issuance.
	ErrSecurityMismatch = errors.New("security context mismatch")
	// ErrConcurrentRefresh is returned when another refresh for the same
	// (user, address) key is already in flight. Retryable; see
	// [ConcurrentRefreshError.RetryAfter].
	ErrConcurrentRefresh = errors.New("concurrent refresh in progress")
	// ErrUsageExceeded is returned when a refresh chain has consumed its
	// usage budget. Not retryable; the caller must re-authenticate.
	ErrUsageExceeded = errors.New("refresh usage exceeded")
	// ErrAbsoluteExpiry is returned when a refresh chain has outlived its
	// absolute lifetime regardless of rotation. Not retryable.
	ErrAbsoluteExpiry = errors.New("refresh chain absolute expiry reached")
	// ErrRefreshInvalid is returned when a refresh token fails signature or
	// expiry verification.
	ErrRefreshInvalid = errors.New("invalid refresh token")
	// ErrDependencyMissing is returned by [Builder.Build] when a required
	// collaborator was not injected. Fatal at construction time.
	ErrDependencyMissing = errors.New("required dependency missing")
	// ErrTokenSetNotFound is returned when a referenced token set has no
	// durable record (revoked, expired, or never existed).
	ErrTokenSetNotFound = errors.New("token set not found")
	// ErrStoreUnavailable wraps storage backend failures.
	ErrStoreUnavailable = errors.New("token store unavailable")
	// ErrUserIDRequired is returned when an issuance payload carries no user
	// identifier.
	ErrUserIDRequired = errors.New("user id required")
	// ErrEngineClosed is returned by operations invoked after [Engine.Close].
	ErrEngineClosed = errors.New("engine closed")
)

// Stable string codes for transport layers that map engine failures onto
// HTTP/RPC status responses.
const (
	CodeTokenInvalid      = "TOKEN_INVALID"
	CodeTokenExpired      = "TOKEN_EXPIRED"
	CodeTokenRevoked      = "TOKEN_REVOKED"
	CodeSecurityMismatch  = "SECURITY_MISMATCH"
	CodeConcurrentRefresh = "CONCURRENT_REFRESH"
	CodeUsageExceeded     = "USAGE_EXCEEDED"
	CodeAbsoluteExpiry    = "ABSOLUTE_EXPIRY"
	CodeRefreshInvalid    = "REFRESH_INVALID"
	CodeDependencyMissing = "DEPENDENCY_MISSING"
	CodeTokenSetNotFound  = "TOKEN_SET_NOT_FOUND"
	CodeStoreUnavailable  = "STORE_UNAVAILABLE"
)

// CodeOf maps an engine error to its stable string code. Unknown errors map
// to CodeStoreUnavailable when they wrap [ErrStoreUnavailable] and to
// CodeTokenInvalid otherwise.
func CodeOf(err error) string {
	switch {
	case err == nil:
		return ""
	case errors.Is(err, ErrTokenRevoked):
		return CodeTokenRevoked
	case errors.Is(err, ErrTokenExpired):
		return CodeTokenExpired
	case errors.Is(err, ErrSecurityMismatch):
		return CodeSecurityMismatch
	case errors.Is(err, ErrConcurrentRefresh):
		return CodeConcurrentRefresh
	case errors.Is(err, ErrUsageExceeded):
		return CodeUsageExceeded
	case errors.Is(err, ErrAbsoluteExpiry):
		return CodeAbsoluteExpiry
	case errors.Is(err, ErrRefreshInvalid):
		return CodeRefreshInvalid
	case errors.Is(err, ErrDependencyMissing):
		return CodeDependencyMissing
	case errors.Is(err, ErrTokenSetNotFound):
		return CodeTokenSetNotFound
	case errors.Is(err, ErrStoreUnavailable):
		return CodeStoreUnavailable
	case errors.Is(err, ErrTokenInvalid):
		return CodeTokenInvalid
	default:
		return CodeTokenInvalid
	}
}

// ConcurrentRefreshError carries the retry hint for a rejected concurrent
// refresh. It unwraps to [ErrConcurrentRefresh].
type ConcurrentRefreshError struct {
	RetryAfter time.Duration
}

func (e *ConcurrentRefreshError) Error() string {
	return fmt.Sprintf("concurrent refresh in progress, retry after %s", e.RetryAfter)
}

func (e *ConcurrentRefreshError) Unwrap() error {
	return ErrConcurrentRefresh
}
