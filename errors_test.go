package tokenlife

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"
)

func TestCodeOfMapsErrorTaxonomy(t *testing.T) {
	cases := []struct {
		err  error
		want string
	}{
		{nil, ""},
		{ErrTokenRevoked, CodeTokenRevoked},
		{ErrTokenExpired, CodeTokenExpired},
		{ErrSecurityMismatch, CodeSecurityMismatch},
		{ErrConcurrentRefresh, CodeConcurrentRefresh},
		{ErrUsageExceeded, CodeUsageExceeded},
		{ErrAbsoluteExpiry, CodeAbsoluteExpiry},
		{ErrRefreshInvalid, CodeRefreshInvalid},
		{ErrDependencyMissing, CodeDependencyMissing},
		{ErrTokenSetNotFound, CodeTokenSetNotFound},
		{ErrStoreUnavailable, CodeStoreUnavailable},
		{ErrTokenInvalid, CodeTokenInvalid},
		{errors.New("anything else"), CodeTokenInvalid},
		{fmt.Errorf("wrapped: %w", ErrUsageExceeded), CodeUsageExceeded},
		{&ConcurrentRefreshError{RetryAfter: time.Second}, CodeConcurrentRefresh},
	}
	for _, tc := range cases {
		if got := CodeOf(tc.err); got != tc.want {
			t.Fatalf("CodeOf(%v) = %q, want %q", tc.err, got, tc.want)
		}
	}
}

func TestConcurrentRefreshErrorUnwraps(t *testing.T) {
	err := &ConcurrentRefreshError{RetryAfter: 5 * time.Second}
	if !errors.Is(err, ErrConcurrentRefresh) {
		t.Fatal("ConcurrentRefreshError must unwrap to ErrConcurrentRefresh")
	}

	var concurrent *ConcurrentRefreshError
	wrapped := fmt.Errorf("refresh: %w", err)
	if !errors.As(wrapped, &concurrent) {
		t.Fatal("errors.As must find ConcurrentRefreshError through wrapping")
	}
	if concurrent.RetryAfter != 5*time.Second {
		t.Fatalf("retry hint %v, want 5s", concurrent.RetryAfter)
	}
}

func TestSecurityContextMergePrefersExplicit(t *testing.T) {
	ctx := WithClientIP(WithUserAgent(WithDeviceID(
		context.Background(), "dev-ctx"), "agent-ctx"), "1.1.1.1")

	merged := securityContextFrom(ctx, &SecurityContext{ClientIP: "2.2.2.2"})
	if merged.ClientIP != "2.2.2.2" {
		t.Fatalf("client ip %q, explicit value must win", merged.ClientIP)
	}
	if merged.UserAgent != "agent-ctx" || merged.DeviceID != "dev-ctx" {
		t.Fatalf("context values %q/%q must fill the gaps", merged.UserAgent, merged.DeviceID)
	}

	fromNil := securityContextFrom(nil, nil)
	if fromNil != (SecurityContext{}) {
		t.Fatalf("nil inputs must produce zero context, got %+v", fromNil)
	}
}
