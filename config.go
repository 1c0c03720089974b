package authcore

import (
	"errors"
	"time"

	"github.com/firdaws-app/authcore/password"
	"github.com/firdaws-app/authcore/token"
)

// Config defines engine tuning. Zero values are filled by defaultConfig via
// [New]; instances are treated as immutable after [Builder.Build].
type Config struct {
	Token     token.Config
	Password  password.Config
	TwoFactor TwoFactorConfig
	RateLimit RateLimitConfig

	// StoreTimeout bounds every durable-store round trip made by the
	// engine. On expiry the store error surfaces as ErrStoreUnavailable and
	// each flow applies its own recovery policy.
	StoreTimeout time.Duration
}

// TwoFactorConfig tunes TOTP verification and the ephemeral verification
// tokens it mints.
type TwoFactorConfig struct {
	Issuer string
	Digits int
	Period int
	// Skew is the number of adjacent time steps accepted on either side of
	// the current one.
	Skew int
	// TokenTTL is the lifetime of the single-use verification token minted
	// by a successful code check. Minutes-scale on purpose: the token only
	// needs to survive until the next request re-runs the gate.
	TokenTTL time.Duration
	// MaxAttempts / AttemptWindow throttle code guesses per user.
	MaxAttempts   int
	AttemptWindow time.Duration
}

// RateLimitConfig carries the per-endpoint-class policies. These are policy
// constants, not mechanism; callers may bypass them by passing an explicit
// policy to [Engine.CheckRate].
type RateLimitConfig struct {
	SignIn   RatePolicy
	Mutation RatePolicy
	Read     RatePolicy
	Upload   RatePolicy
	Email    RatePolicy

	// ThrottleByIP adds a second sign-in counter keyed by the client IP
	// when one is attached to the context via [WithClientIP].
	ThrottleByIP bool

	// SweepInterval is how often the in-process fallback evicts expired
	// windows. Ignored when a Redis client is configured.
	SweepInterval time.Duration
}

func defaultConfig() Config {
	return Config{
		Token: token.Config{
			TTL:    30 * 24 * time.Hour,
			Issuer: "firdaws",
			Leeway: 30 * time.Second,
		},
		Password: password.Config{
			Memory:      64 * 1024,
			Time:        3,
			Parallelism: 2,
			SaltLength:  16,
			KeyLength:   32,
		},
		TwoFactor: TwoFactorConfig{
			Issuer:        "Firdaws",
			Digits:        6,
			Period:        30,
			Skew:          1,
			TokenTTL:      5 * time.Minute,
			MaxAttempts:   5,
			AttemptWindow: 5 * time.Minute,
		},
		RateLimit: RateLimitConfig{
			SignIn:        RatePolicy{Max: 5, Window: 15 * time.Minute},
			Mutation:      RatePolicy{Max: 30, Window: time.Minute},
			Read:          RatePolicy{Max: 100, Window: time.Minute},
			Upload:        RatePolicy{Max: 10, Window: time.Hour},
			Email:         RatePolicy{Max: 3, Window: time.Hour},
			ThrottleByIP:  true,
			SweepInterval: 5 * time.Minute,
		},
		StoreTimeout: 3 * time.Second,
	}
}

// Validate reports the first configuration problem found.
func (c Config) Validate() error {
	if c.StoreTimeout <= 0 {
		return errors.New("store timeout must be positive")
	}
	if c.TwoFactor.Digits < 6 || c.TwoFactor.Digits > 8 {
		return errors.New("two-factor digits must be 6..8")
	}
	if c.TwoFactor.Period <= 0 {
		return errors.New("two-factor period must be positive")
	}
	if c.TwoFactor.Skew < 0 || c.TwoFactor.Skew > 2 {
		return errors.New("two-factor skew must be 0..2")
	}
	if c.TwoFactor.TokenTTL <= 0 {
		return errors.New("two-factor token TTL must be positive")
	}
	for _, policy := range []RatePolicy{
		c.RateLimit.SignIn,
		c.RateLimit.Mutation,
		c.RateLimit.Read,
		c.RateLimit.Upload,
		c.RateLimit.Email,
	} {
		if policy.Max <= 0 || policy.Window <= 0 {
			return errors.New("rate policies require positive max and window")
		}
	}
	return nil
}
