// Package token encodes and verifies the session-token claim set handed to
// the host framework's session layer. Claims stay compact on purpose: the
// avatar/image field is never carried, because binary-ish profile payloads
// in every request's bearer token risk exceeding transport header limits.
package token

import (
	"errors"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
)

// ErrTokenInvalid is returned for tokens that fail parsing, signature
// verification, or time-based validation.
var ErrTokenInvalid = errors.New("invalid session token")

// Claims is the per-request identity claim set. Subject (the user id) lives
// in the embedded registered claims. NeedsPasswordSetup and NeedsTwoFactor
// are the wire form of the precondition gate's state; the engine rewrites
// them on every request that lacks a fresh sign-in.
type Claims struct {
	Name               string `json:"name,omitempty"`
	Email              string `json:"email,omitempty"`
	Location           string `json:"loc,omitempty"`
	Timezone           string `json:"tz,omitempty"`
	NeedsPasswordSetup bool   `json:"npws,omitempty"`
	NeedsTwoFactor     bool   `json:"n2fa,omitempty"`

	// Fresh marks claims minted by this request's own sign-in flow. The
	// synchronizer trusts fresh claims and skips re-derivation. Never
	// serialized: a token read back from the wire is by definition stale.
	Fresh bool `json:"-"`

	jwt.RegisteredClaims
}

// Config holds signing parameters. Secret must be at least 32 bytes.
type Config struct {
	Secret []byte
	TTL    time.Duration
	Issuer string
	Leeway time.Duration
}

// Manager signs and verifies session tokens with HS256.
//
// Manager instances are intended to be configured during initialization and
// then treated as immutable.
type Manager struct {
	config Config
}

// NewManager validates cfg and returns a Manager.
func NewManager(cfg Config) (*Manager, error) {
	if len(cfg.Secret) < 32 {
		return nil, errors.New("token secret must be at least 32 bytes")
	}
	if cfg.TTL <= 0 {
		return nil, errors.New("invalid token TTL configuration")
	}
	if cfg.Leeway < 0 || cfg.Leeway > 2*time.Minute {
		return nil, errors.New("invalid leeway configuration")
	}
	if cfg.Issuer == "" {
		cfg.Issuer = "authcore"
	}
	return &Manager{config: cfg}, nil
}

// Issue signs claims, stamping issuer, issue time, expiry, and a fresh
// token id. The caller's Subject and profile fields are carried as-is.
func (m *Manager) Issue(claims Claims) (string, error) {
	if m == nil {
		return "", errors.New("token manager not initialized")
	}
	now := time.Now().UTC()

	claims.Issuer = m.config.Issuer
	claims.IssuedAt = jwt.NewNumericDate(now)
	claims.ExpiresAt = jwt.NewNumericDate(now.Add(m.config.TTL))
	claims.ID = uuid.NewString()

	signed, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(m.config.Secret)
	if err != nil {
		return "", err
	}
	return signed, nil
}

// Parse verifies signature, issuer, and expiry, and returns the claim set.
// Parsed claims are never Fresh.
func (m *Manager) Parse(tokenStr string) (*Claims, error) {
	if m == nil {
		return nil, errors.New("token manager not initialized")
	}

	claims := &Claims{}
	parsed, err := jwt.ParseWithClaims(tokenStr, claims, func(t *jwt.Token) (any, error) {
		if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, ErrTokenInvalid
		}
		return m.config.Secret, nil
	},
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithIssuer(m.config.Issuer),
		jwt.WithExpirationRequired(),
		jwt.WithLeeway(m.config.Leeway),
	)
	if err != nil || !parsed.Valid {
		return nil, ErrTokenInvalid
	}
	if claims.Subject == "" {
		return nil, ErrTokenInvalid
	}

	claims.Fresh = false
	return claims, nil
}
