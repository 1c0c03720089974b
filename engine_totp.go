package authcore

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
)

// TwoFactorSetup is returned by [Engine.ProvisionTwoFactor]. The caller
// shows URI (or SecretBase32) to the user and passes SecretBase32 back to
// [Engine.EnableTwoFactor] together with the first code.
type TwoFactorSetup struct {
	SecretBase32 string
	URI          string
}

// ProvisionTwoFactor generates a fresh secret and enrollment URI. Nothing
// is persisted until [Engine.EnableTwoFactor] confirms the user's
// authenticator produces matching codes.
func (e *Engine) ProvisionTwoFactor(ctx context.Context, userID string) (*TwoFactorSetup, error) {
	if e == nil {
		return nil, ErrEngineNotReady
	}

	storeCtx, cancel := e.storeCtx(ctx)
	defer cancel()

	user, err := e.store.FindUserByID(storeCtx, userID)
	if err != nil {
		return nil, err
	}

	secret, err := e.totp.generateSecret()
	if err != nil {
		return nil, err
	}

	return &TwoFactorSetup{
		SecretBase32: secret,
		URI:          e.totp.provisionURI(secret, user.Email),
	}, nil
}

// EnableTwoFactor verifies the first code against the provisioned secret,
// then arms two-factor on the account. Takes effect on the user's next
// request via the claims sync.
func (e *Engine) EnableTwoFactor(ctx context.Context, userID, secretBase32, code string) error {
	if e == nil {
		return ErrEngineNotReady
	}

	match, err := e.totp.verifyCode(secretBase32, code, time.Now())
	if err != nil {
		return err
	}
	if !match {
		return ErrTwoFactorInvalid
	}

	storeCtx, cancel := e.storeCtx(ctx)
	defer cancel()

	enabled := true
	if _, err := e.store.UpdateUser(storeCtx, userID, UserUpdate{
		TwoFactorEnabled: &enabled,
		TwoFactorSecret:  &secretBase32,
	}); err != nil {
		return err
	}
	return nil
}

// DisableTwoFactor disarms two-factor and clears the secret and any
// outstanding verification tokens.
func (e *Engine) DisableTwoFactor(ctx context.Context, userID string) error {
	if e == nil {
		return ErrEngineNotReady
	}

	storeCtx, cancel := e.storeCtx(ctx)
	defer cancel()

	disabled := false
	empty := ""
	if _, err := e.store.UpdateUser(storeCtx, userID, UserUpdate{
		TwoFactorEnabled: &disabled,
		TwoFactorSecret:  &empty,
	}); err != nil {
		return err
	}
	return e.tokens.DeleteVerificationTokens(storeCtx, userID, TwoFactorFlow)
}

// VerifyTwoFactor is the out-of-band two-factor step: it checks a TOTP code
// for a parked session and, on success, mints the single-use verification
// token the precondition gate consumes on the next request.
//
// Code guesses are throttled per user. The throttle shares the limiter's
// fail-open posture; the guarded secret check itself never fails open.
func (e *Engine) VerifyTwoFactor(ctx context.Context, userID, code string) error {
	if e == nil {
		return ErrEngineNotReady
	}

	decision := e.CheckRate(ctx, "2fa:"+userID, RatePolicy{
		Max:    e.config.TwoFactor.MaxAttempts,
		Window: e.config.TwoFactor.AttemptWindow,
	})
	if !decision.Allowed {
		e.metricInc(MetricTwoFactorFailed)
		return fmt.Errorf("%w: retry after %s", ErrRateLimited, decision.RetryAfter().Round(time.Second))
	}

	storeCtx, cancel := e.storeCtx(ctx)
	defer cancel()

	user, err := e.store.FindUserByID(storeCtx, userID)
	if err != nil {
		return err
	}
	if !user.TwoFactorEnabled || user.TwoFactorSecret == "" {
		return ErrTwoFactorNotConfigured
	}

	match, err := e.totp.verifyCode(user.TwoFactorSecret, code, time.Now())
	if err != nil {
		return err
	}
	if !match {
		e.metricInc(MetricTwoFactorFailed)
		e.emitAudit(ctx, AuditTwoFactorFailed, userID, user.Email, false, ErrTwoFactorInvalid)
		return ErrTwoFactorInvalid
	}

	if err := e.tokens.CreateVerificationToken(storeCtx, &VerificationToken{
		ID:        uuid.NewString(),
		UserID:    userID,
		Flow:      TwoFactorFlow,
		ExpiresAt: time.Now().Add(e.config.TwoFactor.TokenTTL),
	}); err != nil {
		return err
	}

	e.metricInc(MetricTwoFactorVerified)
	e.emitAudit(ctx, AuditTwoFactorVerified, userID, user.Email, true, nil)
	return nil
}
