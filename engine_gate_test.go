package authcore

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"
)

func seedTwoFactorUser(t *testing.T, store *fakeStore, engine *Engine) *User {
	t.Helper()
	secret, err := engine.totp.generateSecret()
	if err != nil {
		t.Fatalf("generate secret failed: %v", err)
	}
	return seedUser(t, store, User{
		Email:            "amina@example.com",
		PasswordHash:     mustHash(t, engine, "correct horse"),
		TwoFactorEnabled: true,
		TwoFactorSecret:  secret,
	})
}

func TestGateNoPasswordShortCircuits(t *testing.T) {
	store := newFakeStore()
	engine := newTestEngine(t, store)
	// Two-factor is armed, but without a password the setup state wins.
	user := seedUser(t, store, User{
		Email:            "amina@example.com",
		TwoFactorEnabled: true,
		TwoFactorSecret:  "JBSWY3DPEHPK3PXP",
	})

	state, err := engine.evaluateGate(context.Background(), user)
	if err != nil {
		t.Fatalf("gate failed: %v", err)
	}
	if state != StateNeedsPasswordSetup {
		t.Fatalf("state = %v, want needs-password-setup", state)
	}
	// No token store traffic on the short-circuit path.
	if store.tokenCount(user.ID, TwoFactorFlow) != 0 {
		t.Fatal("gate touched verification tokens")
	}
}

func TestGatePasswordOnlyAuthenticates(t *testing.T) {
	store := newFakeStore()
	engine := newTestEngine(t, store)
	user := seedUser(t, store, User{
		Email:        "amina@example.com",
		PasswordHash: mustHash(t, engine, "correct horse"),
	})

	state, err := engine.evaluateGate(context.Background(), user)
	if err != nil {
		t.Fatalf("gate failed: %v", err)
	}
	if state != StateAuthenticated {
		t.Fatalf("state = %v, want authenticated", state)
	}
}

func TestGateEnabledFlagWithoutSecretAuthenticates(t *testing.T) {
	store := newFakeStore()
	engine := newTestEngine(t, store)
	user := seedUser(t, store, User{
		Email:            "amina@example.com",
		PasswordHash:     mustHash(t, engine, "correct horse"),
		TwoFactorEnabled: true,
	})

	state, err := engine.evaluateGate(context.Background(), user)
	if err != nil {
		t.Fatalf("gate failed: %v", err)
	}
	if state != StateAuthenticated {
		t.Fatalf("state = %v; an enabled flag with no secret must not park the session", state)
	}
}

func TestGateTwoFactorWithoutTokenParks(t *testing.T) {
	store := newFakeStore()
	engine := newTestEngine(t, store)
	user := seedTwoFactorUser(t, store, engine)

	state, err := engine.evaluateGate(context.Background(), user)
	if err != nil {
		t.Fatalf("gate failed: %v", err)
	}
	if state != StateNeedsTwoFactor {
		t.Fatalf("state = %v, want needs-two-factor", state)
	}
}

func TestGateConsumesTokenExactlyOnce(t *testing.T) {
	store := newFakeStore()
	engine := newTestEngine(t, store)
	user := seedTwoFactorUser(t, store, engine)
	if err := store.CreateVerificationToken(context.Background(), &VerificationToken{
		UserID: user.ID, Flow: TwoFactorFlow, ExpiresAt: time.Now().Add(5 * time.Minute),
	}); err != nil {
		t.Fatalf("seed token failed: %v", err)
	}

	state, err := engine.evaluateGate(context.Background(), user)
	if err != nil {
		t.Fatalf("gate failed: %v", err)
	}
	if state != StateAuthenticated {
		t.Fatalf("state = %v, want authenticated with a valid token", state)
	}
	if store.tokenCount(user.ID, TwoFactorFlow) != 0 {
		t.Fatal("token survived the gate")
	}

	// A second evaluation finds nothing and parks again.
	state, err = engine.evaluateGate(context.Background(), user)
	if err != nil {
		t.Fatalf("gate failed: %v", err)
	}
	if state != StateNeedsTwoFactor {
		t.Fatalf("state = %v, want needs-two-factor after the single use", state)
	}
}

func TestGateIgnoresOtherFlowTokens(t *testing.T) {
	store := newFakeStore()
	engine := newTestEngine(t, store)
	user := seedTwoFactorUser(t, store, engine)
	if err := store.CreateVerificationToken(context.Background(), &VerificationToken{
		UserID: user.ID, Flow: "email-change", ExpiresAt: time.Now().Add(5 * time.Minute),
	}); err != nil {
		t.Fatalf("seed token failed: %v", err)
	}

	state, err := engine.evaluateGate(context.Background(), user)
	if err != nil {
		t.Fatalf("gate failed: %v", err)
	}
	if state != StateNeedsTwoFactor {
		t.Fatalf("state = %v; a token from another flow must not satisfy the gate", state)
	}
}

func TestGateConcurrentConsumersOneWinner(t *testing.T) {
	store := newFakeStore()
	engine := newTestEngine(t, store)
	user := seedTwoFactorUser(t, store, engine)
	if err := store.CreateVerificationToken(context.Background(), &VerificationToken{
		UserID: user.ID, Flow: TwoFactorFlow, ExpiresAt: time.Now().Add(5 * time.Minute),
	}); err != nil {
		t.Fatalf("seed token failed: %v", err)
	}

	const callers = 12
	var wg sync.WaitGroup
	states := make([]AuthState, callers)
	for i := 0; i < callers; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			state, err := engine.evaluateGate(context.Background(), user)
			if err != nil {
				t.Errorf("gate failed: %v", err)
				return
			}
			states[i] = state
		}(i)
	}
	wg.Wait()

	authenticated := 0
	for _, state := range states {
		if state == StateAuthenticated {
			authenticated++
		}
	}
	if authenticated != 1 {
		t.Fatalf("authenticated callers = %d, want exactly 1", authenticated)
	}
}

func TestGateStorageFailureSurfaces(t *testing.T) {
	store := newFakeStore()
	engine := newTestEngine(t, store)
	user := seedTwoFactorUser(t, store, engine)
	store.findTokenErr = ErrStoreUnavailable

	_, err := engine.evaluateGate(context.Background(), user)
	if !errors.Is(err, ErrStoreUnavailable) {
		t.Fatalf("error = %v; the gate must not fail open on a storage outage", err)
	}
}
