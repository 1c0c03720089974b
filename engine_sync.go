package authcore

import (
	"context"
	"errors"

	"github.com/firdaws-app/authcore/token"
)

// SyncClaims re-derives session claims from durable state so profile edits
// and two-factor changes propagate on the user's very next request without
// re-authentication.
//
// Claims marked Fresh were minted by this request's own sign-in flow and
// pass through untouched. Otherwise the user row is re-fetched and the
// precondition gate re-runs; name, email, location, timezone, and both gate
// flags are rewritten. The avatar is never written into claims.
//
// On a storage outage the previous claims are returned unchanged: stale
// claims are preferable to forcing a spurious sign-out mid-session. A user
// that no longer exists surfaces [ErrNotFound] so the host can end the
// session.
func (e *Engine) SyncClaims(ctx context.Context, claims token.Claims) (token.Claims, error) {
	if e == nil {
		return claims, ErrEngineNotReady
	}
	if claims.Fresh {
		return claims, nil
	}
	if claims.Subject == "" {
		return claims, token.ErrTokenInvalid
	}

	storeCtx, cancel := e.storeCtx(ctx)
	defer cancel()

	user, err := e.store.FindUserByID(storeCtx, claims.Subject)
	if err != nil {
		if errors.Is(err, ErrStoreUnavailable) {
			e.metricInc(MetricClaimsSyncStale)
			e.logger.Warn("claims sync degraded, keeping prior claims", "user", claims.Subject, "error", err)
			return claims, nil
		}
		return claims, err
	}

	state, err := e.evaluateGate(ctx, user)
	if err != nil {
		if errors.Is(err, ErrStoreUnavailable) {
			e.metricInc(MetricClaimsSyncStale)
			e.logger.Warn("gate re-check degraded, keeping prior claims", "user", claims.Subject, "error", err)
			return claims, nil
		}
		return claims, err
	}

	claims.Name = user.Name
	claims.Email = user.Email
	claims.Location = user.Location
	claims.Timezone = user.Timezone
	claims.NeedsPasswordSetup = state.NeedsPasswordSetup()
	claims.NeedsTwoFactor = state.NeedsTwoFactor()

	e.metricInc(MetricClaimsSynced)
	return claims, nil
}

// SyncToken is the per-request entry point for hosts that hold the signed
// token rather than decoded claims: parse, sync, and re-sign in one call.
func (e *Engine) SyncToken(ctx context.Context, signed string) (string, token.Claims, error) {
	if e == nil {
		return "", token.Claims{}, ErrEngineNotReady
	}

	claims, err := e.tokenManager.Parse(signed)
	if err != nil {
		return "", token.Claims{}, err
	}

	synced, err := e.SyncClaims(ctx, *claims)
	if err != nil {
		return "", token.Claims{}, err
	}

	reissued, err := e.tokenManager.Issue(synced)
	if err != nil {
		return "", token.Claims{}, err
	}
	return reissued, synced, nil
}
