package authcore

import "errors"

var (
	// ErrInvalidCredentials is returned for a bad email/password pair. It
	// deliberately also covers "no such user" so responses never disclose
	// account existence.
	ErrInvalidCredentials = errors.New("invalid credentials")
	// ErrFederatedOnlyAccount is returned when password sign-in is attempted
	// on an account that has no password hash and must use federated sign-in.
	ErrFederatedOnlyAccount = errors.New("account has no password, use federated sign-in")
	// ErrNotFound is returned by Store implementations when a row does not
	// exist.
	ErrNotFound = errors.New("record not found")
	// ErrAlreadyExists is returned by Store implementations on a
	// unique-constraint violation. The identity linker recovers from it by
	// re-fetching; it is never surfaced to callers.
	ErrAlreadyExists = errors.New("record already exists")
	// ErrStoreUnavailable is returned when the durable store times out or is
	// unreachable. Surfaced as retryable during initial sign-in; recovered
	// locally by the rate limiter and the claims synchronizer.
	ErrStoreUnavailable = errors.New("store unavailable")
	// ErrRateLimited is returned when a sign-in identifier has exhausted its
	// attempt budget for the current window.
	ErrRateLimited = errors.New("rate limited")
	// ErrTwoFactorNotConfigured is returned when a two-factor operation is
	// attempted for a user without an enabled two-factor secret.
	ErrTwoFactorNotConfigured = errors.New("two-factor not configured")
	// ErrTwoFactorInvalid is returned when a two-factor code does not match.
	ErrTwoFactorInvalid = errors.New("invalid two-factor code")
	// ErrPasswordPolicy is returned when a new password fails the minimum
	// policy enforced by the hasher.
	ErrPasswordPolicy = errors.New("password policy violation")
	// ErrEngineNotReady is returned when an Engine method is called on a nil
	// or unbuilt engine.
	ErrEngineNotReady = errors.New("engine not initialized")
)
