// Package memstore is an in-memory implementation of the authcore store
// for tests and single-process local runs. It mirrors the row store's
// semantics exactly: unique constraints report authcore.ErrAlreadyExists,
// missing rows report authcore.ErrNotFound, and verification-token
// consumption is atomic under the store mutex.
package memstore

import (
	"context"
	"sync"
	"time"

	"github.com/firdaws-app/authcore"
	"github.com/google/uuid"
)

type linkKey struct {
	provider          string
	providerAccountID string
}

// Store holds everything under one mutex; contention is irrelevant at the
// scale this backend is meant for.
type Store struct {
	mu sync.Mutex

	usersByID    map[string]authcore.User
	userIDByMail map[string]string
	links        map[linkKey]authcore.LinkedAccount
	tokens       map[string]authcore.VerificationToken

	now func() time.Time
}

var _ authcore.Store = (*Store)(nil)

// New returns an empty store.
func New() *Store {
	return &Store{
		usersByID:    make(map[string]authcore.User),
		userIDByMail: make(map[string]string),
		links:        make(map[linkKey]authcore.LinkedAccount),
		tokens:       make(map[string]authcore.VerificationToken),
		now:          time.Now,
	}
}

// SetClock overrides the store's clock. Test hook.
func (s *Store) SetClock(now func() time.Time) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.now = now
}

func (s *Store) FindUserByEmail(_ context.Context, email string) (*authcore.User, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	id, ok := s.userIDByMail[email]
	if !ok {
		return nil, authcore.ErrNotFound
	}
	user := s.usersByID[id]
	return &user, nil
}

func (s *Store) FindUserByID(_ context.Context, id string) (*authcore.User, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	user, ok := s.usersByID[id]
	if !ok {
		return nil, authcore.ErrNotFound
	}
	return &user, nil
}

func (s *Store) CreateUser(_ context.Context, user *authcore.User) (*authcore.User, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.userIDByMail[user.Email]; exists {
		return nil, authcore.ErrAlreadyExists
	}

	created := *user
	if created.ID == "" {
		created.ID = uuid.NewString()
	}
	if _, exists := s.usersByID[created.ID]; exists {
		return nil, authcore.ErrAlreadyExists
	}
	created.CreatedAt = s.now()
	created.UpdatedAt = created.CreatedAt

	s.usersByID[created.ID] = created
	s.userIDByMail[created.Email] = created.ID

	result := created
	return &result, nil
}

func (s *Store) UpdateUser(_ context.Context, id string, update authcore.UserUpdate) (*authcore.User, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	user, ok := s.usersByID[id]
	if !ok {
		return nil, authcore.ErrNotFound
	}

	if update.Name != nil {
		user.Name = *update.Name
	}
	if update.Image != nil {
		user.Image = *update.Image
	}
	if update.Location != nil {
		user.Location = *update.Location
	}
	if update.Timezone != nil {
		user.Timezone = *update.Timezone
	}
	if update.PasswordHash != nil {
		user.PasswordHash = *update.PasswordHash
	}
	if update.TwoFactorEnabled != nil {
		user.TwoFactorEnabled = *update.TwoFactorEnabled
	}
	if update.TwoFactorSecret != nil {
		user.TwoFactorSecret = *update.TwoFactorSecret
	}
	user.UpdatedAt = s.now()

	s.usersByID[id] = user
	result := user
	return &result, nil
}

func (s *Store) FindLinkedAccount(_ context.Context, provider, providerAccountID string) (*authcore.LinkedAccount, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	link, ok := s.links[linkKey{provider, providerAccountID}]
	if !ok {
		return nil, authcore.ErrNotFound
	}
	return &link, nil
}

func (s *Store) CreateLinkedAccount(_ context.Context, account *authcore.LinkedAccount) (*authcore.LinkedAccount, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	key := linkKey{account.Provider, account.ProviderAccountID}
	if _, exists := s.links[key]; exists {
		return nil, authcore.ErrAlreadyExists
	}
	if _, exists := s.usersByID[account.UserID]; !exists {
		return nil, authcore.ErrNotFound
	}

	created := *account
	if created.ID == "" {
		created.ID = uuid.NewString()
	}
	created.CreatedAt = s.now()

	s.links[key] = created
	result := created
	return &result, nil
}

func (s *Store) CreateVerificationToken(_ context.Context, token *authcore.VerificationToken) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	stored := *token
	if stored.ID == "" {
		stored.ID = uuid.NewString()
	}
	if _, exists := s.tokens[stored.ID]; exists {
		return authcore.ErrAlreadyExists
	}
	s.tokens[stored.ID] = stored
	return nil
}

func (s *Store) FindValidVerificationToken(_ context.Context, userID, flow string) (*authcore.VerificationToken, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	now := s.now()
	var newest *authcore.VerificationToken
	for id := range s.tokens {
		token := s.tokens[id]
		if token.UserID != userID || token.Flow != flow {
			continue
		}
		if !token.ExpiresAt.After(now) {
			continue
		}
		if newest == nil || token.ExpiresAt.After(newest.ExpiresAt) {
			copied := token
			newest = &copied
		}
	}
	if newest == nil {
		return nil, authcore.ErrNotFound
	}
	return newest, nil
}

// ConsumeVerificationToken deletes the token if it is still present and
// unexpired, reporting whether this call was the one that removed it.
func (s *Store) ConsumeVerificationToken(_ context.Context, id string) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	token, ok := s.tokens[id]
	if !ok {
		return false, nil
	}
	delete(s.tokens, id)
	if !token.ExpiresAt.After(s.now()) {
		return false, nil
	}
	return true, nil
}

func (s *Store) DeleteVerificationTokens(_ context.Context, userID, flow string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	for id, token := range s.tokens {
		if token.UserID == userID && token.Flow == flow {
			delete(s.tokens, id)
		}
	}
	return nil
}
