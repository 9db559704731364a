package tokenlife

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/tokenlife/tokenlife/internal/stores"
	"github.com/tokenlife/tokenlife/signer"
)

// ValidateAccessToken checks a presented access token: revocation status,
// signature and expiry, security-context bindings, and the replay heuristic,
// in that order, short-circuiting on the first failure. Token failures are
// reported in the result; the error return is reserved for infrastructure
// faults such as an unreachable store.
func (e *Engine) ValidateAccessToken(ctx context.Context, token string, secCtx *SecurityContext) (*ValidationResult, error) {
	if err := e.checkOpen(); err != nil {
		return nil, err
	}

	start := time.Now()
	defer func() {
		if e.metrics != nil {
			e.metrics.Observe(MetricValidateLatency, time.Since(start))
		}
	}()

	// Revocation first: a denylisted token must fail before any signature
	// work. The unverified peek only feeds the denylist lookup.
	if tokenID, _, err := e.signer.Peek(token); err == nil {
		revoked, err := e.revocations.IsRevoked(ctx, tokenID)
		if err != nil {
			return nil, fmt.Errorf("%w: revocation check: %v", ErrStoreUnavailable, err)
		}
		if revoked {
			e.metricInc(MetricValidateRevoked)
			e.metricInc(MetricValidateFailure)
			return &ValidationResult{
				Valid:   false,
				Code:    CodeTokenRevoked,
				Reason:  "token has been revoked",
				TokenID: tokenID,
			}, nil
		}
	}

	claims, err := e.signer.ValidateToken(ctx, token)
	if err != nil {
		e.metricInc(MetricValidateFailure)
		if errors.Is(err, signer.ErrExpired) {
			return &ValidationResult{
				Valid:  false,
				Code:   CodeTokenExpired,
				Reason: "token expired",
			}, nil
		}
		return &ValidationResult{
			Valid:  false,
			Code:   CodeTokenInvalid,
			Reason: "token malformed or signature invalid",
		}, nil
	}
	if claims.Kind != string(KindAccess) {
		e.metricInc(MetricValidateFailure)
		return &ValidationResult{
			Valid:   false,
			Code:    CodeTokenInvalid,
			Reason:  "not an access token",
			TokenID: claims.TokenID,
		}, nil
	}

	sc := securityContextFrom(ctx, secCtx)
	var warnings []string

	if e.config.Security.BindClientIP || e.config.Security.BindUserAgent {
		warnings, err = e.checkBindings(ctx, claims, sc)
		if err != nil {
			e.metricInc(MetricBindingRejected)
			e.metricInc(MetricValidateFailure)
			return &ValidationResult{
				Valid:      false,
				Code:       CodeSecurityMismatch,
				Reason:     err.Error(),
				TokenID:    claims.TokenID,
				TokenSetID: claims.SetID,
				UserID:     claims.UserID,
			}, nil
		}
	}

	if e.config.Security.PreventReuse {
		repeat, err := e.revocations.MarkValidated(ctx, claims.TokenID, e.config.Security.ReuseWindow)
		if err != nil {
			e.warn("tokenlife: replay tracking unavailable: %v", err)
		} else if repeat {
			e.metricInc(MetricReplaySuspected)
			warnings = append(warnings, "token validated twice within the reuse window")
			e.emit(ctx, Event{
				Type:       EventSecurityAnomaly,
				UserID:     claims.UserID,
				TokenSetID: claims.SetID,
				TokenID:    claims.TokenID,
				IP:         sc.ClientIP,
				Success:    true,
				Metadata:   map[string]string{"anomaly": "fast_revalidation"},
			})
		}
	}

	e.metricInc(MetricValidateSuccess)
	return &ValidationResult{
		Valid:         true,
		TokenID:       claims.TokenID,
		TokenSetID:    claims.SetID,
		UserID:        claims.UserID,
		ExpiresAt:     claims.ExpiresAt,
		Permissions:   claims.Permissions,
		ShouldRefresh: e.shouldRefresh(claims),
		Warnings:      warnings,
	}, nil
}

// checkBindings compares the presented security context against the one
// recorded at issuance. In advisory mode mismatches become warnings; in
// strict mode they fail validation. A missing record (expired or cleaned up)
// skips the checks since there is nothing to compare against.
func (e *Engine) checkBindings(ctx context.Context, claims *signer.Claims, sc SecurityContext) ([]string, error) {
	if claims.SetID == "" {
		return nil, nil
	}

	rec, err := e.sets.Get(ctx, claims.SetID)
	if err != nil {
		if !errors.Is(err, stores.ErrNotFound) {
			e.warn("tokenlife: binding check skipped, set %s unreadable: %v", claims.SetID, err)
		}
		return nil, nil
	}

	var warnings []string

	if e.config.Security.BindClientIP && sc.ClientIP != "" && rec.ClientIP != "" && sc.ClientIP != rec.ClientIP {
		e.metricInc(MetricBindingMismatch)
		e.emitAnomaly(ctx, claims, sc, "client_ip_changed")
		if e.config.Security.Strict {
			return nil, fmt.Errorf("%w: client address changed since issuance", ErrSecurityMismatch)
		}
		warnings = append(warnings, "client address changed since issuance")
	}

	if e.config.Security.BindUserAgent && sc.UserAgent != "" && rec.UserAgent != "" && sc.UserAgent != rec.UserAgent {
		e.metricInc(MetricBindingMismatch)
		e.emitAnomaly(ctx, claims, sc, "user_agent_changed")
		if e.config.Security.Strict {
			return nil, fmt.Errorf("%w: client fingerprint changed since issuance", ErrSecurityMismatch)
		}
		warnings = append(warnings, "client fingerprint changed since issuance")
	}

	return warnings, nil
}

func (e *Engine) emitAnomaly(ctx context.Context, claims *signer.Claims, sc SecurityContext, anomaly string) {
	e.emit(ctx, Event{
		Type:       EventSecurityAnomaly,
		UserID:     claims.UserID,
		TokenSetID: claims.SetID,
		TokenID:    claims.TokenID,
		IP:         sc.ClientIP,
		Success:    true,
		Metadata:   map[string]string{"anomaly": anomaly},
	})
}

// shouldRefresh reports whether the token's remaining lifetime fraction has
// dropped below the renewal threshold.
func (e *Engine) shouldRefresh(claims *signer.Claims) bool {
	life := claims.ExpiresAt.Sub(claims.IssuedAt)
	if life <= 0 {
		return false
	}
	remaining := claims.ExpiresAt.Sub(e.now())
	return float64(remaining)/float64(life) < e.config.Tokens.RenewalThreshold
}
