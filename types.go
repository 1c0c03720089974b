package authcore

import (
	"context"
	"time"
)

// TwoFactorFlow is the flow prefix under which the precondition gate looks
// up ephemeral verification tokens minted by two-factor verification.
const TwoFactorFlow = "two-factor"

// User is the durable identity record. Email is unique and stored
// lower-cased and trimmed. A User may exist with no password hash
// (federated-only); such a session is parked in the password-setup
// sub-state until one is set.
type User struct {
	ID               string
	Email            string
	Name             string
	Image            string
	Location         string
	Timezone         string
	PasswordHash     string
	TwoFactorEnabled bool
	TwoFactorSecret  string
	CreatedAt        time.Time
	UpdatedAt        time.Time
}

// UserUpdate carries the fields of a partial user update. Nil pointers are
// left untouched.
type UserUpdate struct {
	Name             *string
	Image            *string
	Location         *string
	Timezone         *string
	PasswordHash     *string
	TwoFactorEnabled *bool
	TwoFactorSecret  *string
}

// LinkedAccount ties one provider identity to exactly one User. The pair
// (Provider, ProviderAccountID) is globally unique; the record is never
// mutated after creation except for refreshed provider tokens.
type LinkedAccount struct {
	ID                string
	UserID            string
	Provider          string
	ProviderAccountID string
	AccessToken       string
	RefreshToken      string
	ExpiresAt         time.Time
	CreatedAt         time.Time
}

// FederatedAssertion is the identity attested by an external provider after
// a successful OAuth-style exchange. Email is treated as pre-verified.
type FederatedAssertion struct {
	Provider          string
	ProviderAccountID string
	Email             string
	Name              string
	Image             string
	AccessToken       string
	RefreshToken      string
	ExpiresAt         time.Time
}

// VerificationToken marks an out-of-band check as satisfied for one user
// within one flow. It is short-lived and consumed exactly once.
type VerificationToken struct {
	ID        string
	UserID    string
	Flow      string
	ExpiresAt time.Time
}

// TokenStore holds ephemeral verification tokens. It is embedded in [Store]
// but kept separate so a Redis-backed implementation can override just this
// concern.
//
// ConsumeVerificationToken must be atomic delete-reports-deleted: of two
// concurrent consumers of the same token, at most one may observe true.
type TokenStore interface {
	CreateVerificationToken(ctx context.Context, token *VerificationToken) error
	FindValidVerificationToken(ctx context.Context, userID, flow string) (*VerificationToken, error)
	ConsumeVerificationToken(ctx context.Context, id string) (bool, error)
	DeleteVerificationTokens(ctx context.Context, userID, flow string) error
}

// Store is the durable row store the engine consumes. Implementations must
// report a missing row as [ErrNotFound], a unique-constraint violation as
// [ErrAlreadyExists], and a backend timeout or outage wrapped in
// [ErrStoreUnavailable]. Emails passed in are already normalized.
type Store interface {
	FindUserByEmail(ctx context.Context, email string) (*User, error)
	FindUserByID(ctx context.Context, id string) (*User, error)
	CreateUser(ctx context.Context, user *User) (*User, error)
	UpdateUser(ctx context.Context, id string, update UserUpdate) (*User, error)

	FindLinkedAccount(ctx context.Context, provider, providerAccountID string) (*LinkedAccount, error)
	CreateLinkedAccount(ctx context.Context, account *LinkedAccount) (*LinkedAccount, error)

	TokenStore
}
