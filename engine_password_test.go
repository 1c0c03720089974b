package authcore

import (
	"context"
	"errors"
	"testing"
	"time"
)

func TestPasswordSignInIssuesSession(t *testing.T) {
	store := newFakeStore()
	engine := newTestEngine(t, store)
	user := seedUser(t, store, User{
		Email:        "amina@example.com",
		Name:         "Amina",
		Location:     "Izmir",
		Timezone:     "Europe/Istanbul",
		PasswordHash: mustHash(t, engine, "correct horse"),
	})

	result, err := engine.PasswordSignIn(context.Background(), "amina@example.com", "correct horse")
	if err != nil {
		t.Fatalf("sign-in failed: %v", err)
	}
	if result.UserID != user.ID {
		t.Fatalf("UserID = %q, want %q", result.UserID, user.ID)
	}
	if result.State != StateAuthenticated {
		t.Fatalf("State = %v, want authenticated", result.State)
	}
	if !result.Claims.Fresh {
		t.Fatal("sign-in claims not marked fresh")
	}
	if result.Claims.NeedsPasswordSetup || result.Claims.NeedsTwoFactor {
		t.Fatalf("unexpected gate flags: %+v", result.Claims)
	}

	claims := parseClaims(t, engine, result.Token)
	if claims.Subject != user.ID || claims.Email != "amina@example.com" {
		t.Fatalf("token claims = %+v", claims)
	}
	if claims.Location != "Izmir" || claims.Timezone != "Europe/Istanbul" {
		t.Fatalf("profile claims not carried: %+v", claims)
	}
}

func TestPasswordSignInNormalizesEmail(t *testing.T) {
	store := newFakeStore()
	engine := newTestEngine(t, store)
	seedUser(t, store, User{
		Email:        "amina@example.com",
		PasswordHash: mustHash(t, engine, "correct horse"),
	})

	result, err := engine.PasswordSignIn(context.Background(), "  Amina@Example.COM ", "correct horse")
	if err != nil {
		t.Fatalf("sign-in with unnormalized email failed: %v", err)
	}
	if result.Claims.Email != "amina@example.com" {
		t.Fatalf("claims email = %q, want normalized form", result.Claims.Email)
	}
}

func TestPasswordSignInMasksMissingUser(t *testing.T) {
	engine := newTestEngine(t, newFakeStore())

	_, err := engine.PasswordSignIn(context.Background(), "ghost@example.com", "whatever1")
	if !errors.Is(err, ErrInvalidCredentials) {
		t.Fatalf("error = %v, want ErrInvalidCredentials", err)
	}
}

func TestPasswordSignInWrongPassword(t *testing.T) {
	store := newFakeStore()
	engine := newTestEngine(t, store)
	seedUser(t, store, User{
		Email:        "amina@example.com",
		PasswordHash: mustHash(t, engine, "correct horse"),
	})

	_, err := engine.PasswordSignIn(context.Background(), "amina@example.com", "wrong horse")
	if !errors.Is(err, ErrInvalidCredentials) {
		t.Fatalf("error = %v, want ErrInvalidCredentials", err)
	}
}

func TestPasswordSignInFederatedOnlyAccount(t *testing.T) {
	store := newFakeStore()
	engine := newTestEngine(t, store)
	seedUser(t, store, User{Email: "amina@example.com"})

	_, err := engine.PasswordSignIn(context.Background(), "amina@example.com", "correct horse")
	if !errors.Is(err, ErrFederatedOnlyAccount) {
		t.Fatalf("error = %v, want ErrFederatedOnlyAccount", err)
	}
}

func TestPasswordSignInUnreadableHashMasked(t *testing.T) {
	store := newFakeStore()
	engine := newTestEngine(t, store)
	seedUser(t, store, User{
		Email:        "amina@example.com",
		PasswordHash: "not-a-phc-string",
	})

	_, err := engine.PasswordSignIn(context.Background(), "amina@example.com", "correct horse")
	if !errors.Is(err, ErrInvalidCredentials) {
		t.Fatalf("error = %v, want ErrInvalidCredentials", err)
	}
}

func TestPasswordSignInRateLimited(t *testing.T) {
	store := newFakeStore()
	engine := newTestEngine(t, store, func(b *Builder) {
		cfg := testConfig()
		cfg.RateLimit.SignIn = RatePolicy{Max: 3, Window: 15 * time.Minute}
		b.WithConfig(cfg)
	})
	seedUser(t, store, User{
		Email:        "amina@example.com",
		PasswordHash: mustHash(t, engine, "correct horse"),
	})

	ctx := context.Background()
	for i := 0; i < 3; i++ {
		if _, err := engine.PasswordSignIn(ctx, "amina@example.com", "wrong horse"); !errors.Is(err, ErrInvalidCredentials) {
			t.Fatalf("attempt %d: error = %v, want ErrInvalidCredentials", i+1, err)
		}
	}

	// Over the budget now; even the right password is refused.
	_, err := engine.PasswordSignIn(ctx, "amina@example.com", "correct horse")
	if !errors.Is(err, ErrRateLimited) {
		t.Fatalf("error = %v, want ErrRateLimited", err)
	}

	snap := engine.MetricsSnapshot()
	if snap.Counters[MetricSignInRateLimited] != 1 {
		t.Fatalf("rate-limited counter = %d, want 1", snap.Counters[MetricSignInRateLimited])
	}
}

func TestPasswordSignInStoreOutageSurfaces(t *testing.T) {
	store := newFakeStore()
	engine := newTestEngine(t, store)
	store.findUserByEmailErr = ErrStoreUnavailable

	_, err := engine.PasswordSignIn(context.Background(), "amina@example.com", "correct horse")
	if !errors.Is(err, ErrStoreUnavailable) {
		t.Fatalf("error = %v, want ErrStoreUnavailable", err)
	}
}

func TestPasswordSignInRejectsMalformedEmail(t *testing.T) {
	engine := newTestEngine(t, newFakeStore())

	for _, email := range []string{"", "   ", "no-at-sign"} {
		if _, err := engine.PasswordSignIn(context.Background(), email, "whatever1"); !errors.Is(err, ErrInvalidCredentials) {
			t.Fatalf("email %q: error = %v, want ErrInvalidCredentials", email, err)
		}
	}
}
