package authcore

import (
	"context"
	"errors"
	"fmt"
	"time"
)

// PasswordSignIn verifies an email + password pair and establishes the
// initial session claims.
//
// "No such user" and "wrong password" both return [ErrInvalidCredentials]
// so responses cannot be used to probe for account existence. An account
// with no password hash returns [ErrFederatedOnlyAccount] to route the
// caller to federated sign-in. A storage outage surfaces
// [ErrStoreUnavailable]: initial sign-in must not be issued on stale or
// missing state.
func (e *Engine) PasswordSignIn(ctx context.Context, email, plaintext string) (*SignInResult, error) {
	if e == nil {
		return nil, ErrEngineNotReady
	}

	normalized, ok := normalizeEmail(email)
	if !ok {
		e.metricInc(MetricSignInFailure)
		return nil, ErrInvalidCredentials
	}

	if decision, allowed := e.checkSignInRate(ctx, normalized); !allowed {
		e.metricInc(MetricSignInRateLimited)
		e.emitAudit(ctx, AuditSignInRateLimited, "", normalized, false, ErrRateLimited)
		return nil, fmt.Errorf("%w: retry after %s", ErrRateLimited, decision.RetryAfter().Round(time.Second))
	}

	storeCtx, cancel := e.storeCtx(ctx)
	defer cancel()

	user, err := e.store.FindUserByEmail(storeCtx, normalized)
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			e.metricInc(MetricSignInFailure)
			e.emitAudit(ctx, AuditSignInFailure, "", normalized, false, ErrInvalidCredentials)
			return nil, ErrInvalidCredentials
		}
		return nil, err
	}

	if user.PasswordHash == "" {
		e.metricInc(MetricSignInFailure)
		e.emitAudit(ctx, AuditSignInFailure, user.ID, normalized, false, ErrFederatedOnlyAccount)
		return nil, ErrFederatedOnlyAccount
	}

	match, err := e.passwordHash.Verify(plaintext, user.PasswordHash)
	if err != nil {
		// A stored hash we cannot parse is indistinguishable from a
		// mismatch to the caller; keep the generic error and log the
		// corruption for the operator.
		e.logger.Warn("unreadable password hash", "user", user.ID, "error", err)
	}
	if err != nil || !match {
		e.metricInc(MetricSignInFailure)
		e.emitAudit(ctx, AuditSignInFailure, user.ID, normalized, false, ErrInvalidCredentials)
		return nil, ErrInvalidCredentials
	}

	result, err := e.issueResult(ctx, user)
	if err != nil {
		return nil, err
	}

	e.metricInc(MetricSignInSuccess)
	e.emitAudit(ctx, AuditSignInSuccess, user.ID, normalized, true, nil)
	return result, nil
}
