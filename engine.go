package authcore

import (
	"context"
	"log/slog"
	"strings"

	"github.com/firdaws-app/authcore/internal/rate"
	"github.com/firdaws-app/authcore/password"
	"github.com/firdaws-app/authcore/token"

	jwtlib "github.com/golang-jwt/jwt/v5"
)

// Engine is the authentication core. Construct it through [Builder.Build];
// after that all methods are safe for concurrent use.
type Engine struct {
	config       Config
	store        Store
	tokens       TokenStore
	limiter      *rate.Limiter
	tokenManager *token.Manager
	passwordHash *password.Argon2
	totp         *totpVerifier
	audit        *auditDispatcher
	metrics      *Metrics
	logger       *slog.Logger
}

// SignInResult is returned by both sign-in flows. Token is the signed
// session token; Claims is its decoded form with Fresh set, ready to hand
// to [Engine.SyncClaims] on the same request without a re-derivation.
type SignInResult struct {
	UserID string
	State  AuthState
	Claims token.Claims
	Token  string
}

// Close drains the audit dispatcher and stops the in-process limiter
// sweeper, if any.
func (e *Engine) Close() {
	if e == nil {
		return
	}
	if e.audit != nil {
		e.audit.close()
	}
	if e.limiter != nil {
		_ = e.limiter.Close()
	}
}

// normalizeEmail trims and lower-cases the address. Uniqueness and lookup
// both run on the normalized form.
func normalizeEmail(email string) (string, bool) {
	normalized := strings.ToLower(strings.TrimSpace(email))
	if normalized == "" || !strings.Contains(normalized, "@") {
		return "", false
	}
	return normalized, true
}

// storeCtx bounds a durable-store round trip with the configured timeout.
func (e *Engine) storeCtx(ctx context.Context) (context.Context, context.CancelFunc) {
	return context.WithTimeout(ctx, e.config.StoreTimeout)
}

// claimsFor builds the session claim set for user under the gate's state.
// The avatar/image field is deliberately absent.
func claimsFor(user *User, state AuthState, fresh bool) token.Claims {
	return token.Claims{
		Name:               user.Name,
		Email:              user.Email,
		Location:           user.Location,
		Timezone:           user.Timezone,
		NeedsPasswordSetup: state.NeedsPasswordSetup(),
		NeedsTwoFactor:     state.NeedsTwoFactor(),
		Fresh:              fresh,
		RegisteredClaims: jwtlib.RegisteredClaims{
			Subject: user.ID,
		},
	}
}

// issueResult runs the gate for user, signs the resulting claims, and
// assembles the sign-in result.
func (e *Engine) issueResult(ctx context.Context, user *User) (*SignInResult, error) {
	state, err := e.evaluateGate(ctx, user)
	if err != nil {
		return nil, err
	}

	claims := claimsFor(user, state, true)
	signed, err := e.tokenManager.Issue(claims)
	if err != nil {
		return nil, err
	}

	return &SignInResult{
		UserID: user.ID,
		State:  state,
		Claims: claims,
		Token:  signed,
	}, nil
}
