package authcore

import (
	"context"
	"errors"
)

// evaluateGate computes the session sub-state for a resolved user.
//
// No password hash parks the session in password setup and short-circuits:
// two-factor is meaningless until a password exists, since password setup
// is the recovery credential of last resort. With a password and two-factor
// armed, a valid verification token is consumed (exactly once) to satisfy
// the check; two concurrent requests observing the same token race on the
// atomic consume, and the loser falls back to needs-two-factor.
//
// Storage failures here surface to the caller. The gate decides whether a
// session is fully authenticated; failing open would mint an incorrectly
// gated session, which is strictly worse than a retryable error.
func (e *Engine) evaluateGate(ctx context.Context, user *User) (AuthState, error) {
	if user.PasswordHash == "" {
		return StateNeedsPasswordSetup, nil
	}

	if !user.TwoFactorEnabled || user.TwoFactorSecret == "" {
		return StateAuthenticated, nil
	}

	storeCtx, cancel := e.storeCtx(ctx)
	defer cancel()

	tok, err := e.tokens.FindValidVerificationToken(storeCtx, user.ID, TwoFactorFlow)
	if errors.Is(err, ErrNotFound) {
		return StateNeedsTwoFactor, nil
	}
	if err != nil {
		return StateNeedsTwoFactor, err
	}

	consumed, err := e.tokens.ConsumeVerificationToken(storeCtx, tok.ID)
	if err != nil {
		return StateNeedsTwoFactor, err
	}
	if !consumed {
		// Another request consumed it between find and consume.
		return StateNeedsTwoFactor, nil
	}

	return StateAuthenticated, nil
}
