package authcore

import (
	"context"
	"errors"
	"fmt"
	"time"
)

// FederatedSignIn resolves a provider assertion to exactly one durable user
// and establishes the initial session claims.
//
// Resolution branches: an existing linked account wins; otherwise a user
// with the same normalized email gains a new linked account (and fresher
// provider profile fields); otherwise a new user and linked account are
// created together. The provider already attested the email, so new users
// are created with it as-is.
//
// Two concurrent first sign-ins for the same identity converge via the
// store's unique constraints: a create losing the race re-fetches by the
// unique key and proceeds as if the row had existed all along.
// [ErrAlreadyExists] never escapes this method.
func (e *Engine) FederatedSignIn(ctx context.Context, assertion FederatedAssertion) (*SignInResult, error) {
	if e == nil {
		return nil, ErrEngineNotReady
	}
	if assertion.Provider == "" || assertion.ProviderAccountID == "" {
		return nil, ErrInvalidCredentials
	}
	normalized, ok := normalizeEmail(assertion.Email)
	if !ok {
		return nil, ErrInvalidCredentials
	}
	assertion.Email = normalized

	if decision, allowed := e.checkSignInRate(ctx, normalized); !allowed {
		e.metricInc(MetricSignInRateLimited)
		e.emitAudit(ctx, AuditSignInRateLimited, "", normalized, false, ErrRateLimited)
		return nil, fmt.Errorf("%w: retry after %s", ErrRateLimited, decision.RetryAfter().Round(time.Second))
	}

	storeCtx, cancel := e.storeCtx(ctx)
	defer cancel()

	user, existing, err := e.resolveFederatedUser(storeCtx, assertion)
	if err != nil {
		return nil, err
	}

	if existing {
		// A verification token left over from an earlier abandoned sign-in
		// must not satisfy this one's two-factor check.
		if err := e.tokens.DeleteVerificationTokens(storeCtx, user.ID, TwoFactorFlow); err != nil {
			return nil, err
		}
	}

	result, err := e.issueResult(ctx, user)
	if err != nil {
		return nil, err
	}

	e.metricInc(MetricSignInSuccess)
	e.metricInc(MetricFederatedSignIn)
	e.emitAudit(ctx, AuditSignInSuccess, user.ID, normalized, true, nil)
	return result, nil
}

// resolveFederatedUser walks the three resolution branches. existing
// reports whether the user predates this call.
func (e *Engine) resolveFederatedUser(ctx context.Context, assertion FederatedAssertion) (user *User, existing bool, err error) {
	link, err := e.store.FindLinkedAccount(ctx, assertion.Provider, assertion.ProviderAccountID)
	switch {
	case err == nil:
		user, err := e.store.FindUserByID(ctx, link.UserID)
		if err != nil {
			return nil, false, err
		}
		return user, true, nil
	case errors.Is(err, ErrNotFound):
		// Fall through to email resolution.
	default:
		return nil, false, err
	}

	user, err = e.store.FindUserByEmail(ctx, assertion.Email)
	switch {
	case err == nil:
		if err := e.linkAccount(ctx, user.ID, assertion); err != nil {
			return nil, false, err
		}
		e.refreshProfile(ctx, user, assertion)
		return user, true, nil
	case errors.Is(err, ErrNotFound):
		return e.createFederatedUser(ctx, assertion)
	default:
		return nil, false, err
	}
}

// createFederatedUser handles the brand-new identity branch. Losing the
// email race downgrades to the link-existing branch.
func (e *Engine) createFederatedUser(ctx context.Context, assertion FederatedAssertion) (*User, bool, error) {
	raced := false
	user, err := createOrRefetch(
		func() (*User, error) {
			return e.store.CreateUser(ctx, &User{
				Email:    assertion.Email,
				Name:     assertion.Name,
				Image:    assertion.Image,
				Timezone: "UTC",
			})
		},
		func() (*User, error) {
			raced = true
			return e.store.FindUserByEmail(ctx, assertion.Email)
		},
	)
	if err != nil {
		return nil, false, err
	}

	// Whether we created the user or lost the race, the link must exist.
	if err := e.linkAccount(ctx, user.ID, assertion); err != nil {
		return nil, false, err
	}

	if raced {
		e.metricInc(MetricLinkRaceRecovered)
	} else {
		e.metricInc(MetricUserCreated)
		e.emitAudit(ctx, AuditUserCreated, user.ID, assertion.Email, true, nil)
	}
	return user, raced, nil
}

// linkAccount creates the provider link, treating a unique-constraint race
// as success as long as the surviving link belongs to the same user.
func (e *Engine) linkAccount(ctx context.Context, userID string, assertion FederatedAssertion) error {
	raced := false
	link, err := createOrRefetch(
		func() (*LinkedAccount, error) {
			return e.store.CreateLinkedAccount(ctx, &LinkedAccount{
				UserID:            userID,
				Provider:          assertion.Provider,
				ProviderAccountID: assertion.ProviderAccountID,
				AccessToken:       assertion.AccessToken,
				RefreshToken:      assertion.RefreshToken,
				ExpiresAt:         assertion.ExpiresAt,
			})
		},
		func() (*LinkedAccount, error) {
			raced = true
			return e.store.FindLinkedAccount(ctx, assertion.Provider, assertion.ProviderAccountID)
		},
	)
	if err != nil {
		return err
	}
	if link.UserID != userID {
		// The provider identity is already owned by another user. Treat as
		// a failed sign-in rather than silently switching identities.
		return ErrInvalidCredentials
	}
	if raced {
		e.metricInc(MetricLinkRaceRecovered)
		return nil
	}

	e.metricInc(MetricAccountLinked)
	e.emitAudit(ctx, AuditAccountLinked, userID, assertion.Email, true, nil)
	return nil
}

// refreshProfile adopts fresher provider-supplied display fields.
// Best-effort: a failed update never fails the sign-in.
func (e *Engine) refreshProfile(ctx context.Context, user *User, assertion FederatedAssertion) {
	update := UserUpdate{}
	changed := false
	if assertion.Name != "" && assertion.Name != user.Name {
		update.Name = &assertion.Name
		changed = true
	}
	if assertion.Image != "" && assertion.Image != user.Image {
		update.Image = &assertion.Image
		changed = true
	}
	if !changed {
		return
	}

	updated, err := e.store.UpdateUser(ctx, user.ID, update)
	if err != nil {
		e.logger.Warn("provider profile refresh failed", "user", user.ID, "error", err)
		return
	}
	*user = *updated
}

// createOrRefetch runs create and, on a unique-constraint loss, converges
// by re-fetching the surviving row. Both sign-in races (user email, linked
// account) recover through this one path.
func createOrRefetch[T any](create func() (T, error), refetch func() (T, error)) (T, error) {
	value, err := create()
	if err == nil {
		return value, nil
	}
	if !errors.Is(err, ErrAlreadyExists) {
		var zero T
		return zero, err
	}
	return refetch()
}
