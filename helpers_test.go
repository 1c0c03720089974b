package authcore

import (
	"context"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"

	"github.com/firdaws-app/authcore/password"
	"github.com/firdaws-app/authcore/token"
)

var testSecret = []byte("0123456789abcdef0123456789abcdef")

// testConfig trims the argon2 parameters down to the validation minimums so
// the suite does not spend its time hashing.
func testConfig() Config {
	cfg := defaultConfig()
	cfg.Token.Secret = testSecret
	cfg.Password = password.Config{
		Memory:      8 * 1024,
		Time:        1,
		Parallelism: 1,
		SaltLength:  16,
		KeyLength:   16,
	}
	return cfg
}

func newTestEngine(t *testing.T, store Store, mutate ...func(*Builder)) *Engine {
	t.Helper()

	builder := New().WithConfig(testConfig()).WithStore(store)
	for _, fn := range mutate {
		fn(builder)
	}
	engine, err := builder.Build()
	if err != nil {
		t.Fatalf("Build failed: %v", err)
	}
	t.Cleanup(engine.Close)
	return engine
}

func mustHash(t *testing.T, e *Engine, plaintext string) string {
	t.Helper()
	hash, err := e.passwordHash.Hash(plaintext)
	if err != nil {
		t.Fatalf("hash failed: %v", err)
	}
	return hash
}

func seedUser(t *testing.T, store *fakeStore, user User) *User {
	t.Helper()
	created, err := store.CreateUser(context.Background(), &user)
	if err != nil {
		t.Fatalf("seed user failed: %v", err)
	}
	return created
}

// fakeStore is an in-memory Store with the contract's unique constraints
// and per-method error injection for outage scenarios.
type fakeStore struct {
	mu      sync.Mutex
	users   map[string]*User
	byEmail map[string]string
	links   map[string]*LinkedAccount
	tokens  map[string]*VerificationToken

	findUserByEmailErr error
	findUserByIDErr    error
	createUserErr      error
	updateUserErr      error
	findLinkErr        error
	findLinkErrOnce    bool
	createLinkErr      error
	createTokenErr     error
	findTokenErr       error
	consumeErr         error
	deleteTokensErr    error
}

func newFakeStore() *fakeStore {
	return &fakeStore{
		users:   make(map[string]*User),
		byEmail: make(map[string]string),
		links:   make(map[string]*LinkedAccount),
		tokens:  make(map[string]*VerificationToken),
	}
}

func linkedKey(provider, providerAccountID string) string {
	return provider + "|" + providerAccountID
}

func (s *fakeStore) FindUserByEmail(_ context.Context, email string) (*User, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.findUserByEmailErr != nil {
		return nil, s.findUserByEmailErr
	}
	id, ok := s.byEmail[email]
	if !ok {
		return nil, ErrNotFound
	}
	copied := *s.users[id]
	return &copied, nil
}

func (s *fakeStore) FindUserByID(_ context.Context, id string) (*User, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.findUserByIDErr != nil {
		return nil, s.findUserByIDErr
	}
	user, ok := s.users[id]
	if !ok {
		return nil, ErrNotFound
	}
	copied := *user
	return &copied, nil
}

func (s *fakeStore) CreateUser(_ context.Context, user *User) (*User, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.createUserErr != nil {
		return nil, s.createUserErr
	}
	if _, exists := s.byEmail[user.Email]; exists {
		return nil, fmt.Errorf("users.email: %w", ErrAlreadyExists)
	}
	copied := *user
	if copied.ID == "" {
		copied.ID = uuid.NewString()
	}
	copied.CreatedAt = time.Now()
	copied.UpdatedAt = copied.CreatedAt
	s.users[copied.ID] = &copied
	s.byEmail[copied.Email] = copied.ID
	result := copied
	return &result, nil
}

func (s *fakeStore) UpdateUser(_ context.Context, id string, update UserUpdate) (*User, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.updateUserErr != nil {
		return nil, s.updateUserErr
	}
	user, ok := s.users[id]
	if !ok {
		return nil, ErrNotFound
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
	user.UpdatedAt = time.Now()
	copied := *user
	return &copied, nil
}

func (s *fakeStore) FindLinkedAccount(_ context.Context, provider, providerAccountID string) (*LinkedAccount, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.findLinkErr != nil {
		err := s.findLinkErr
		if s.findLinkErrOnce {
			s.findLinkErr = nil
		}
		return nil, err
	}
	link, ok := s.links[linkedKey(provider, providerAccountID)]
	if !ok {
		return nil, ErrNotFound
	}
	copied := *link
	return &copied, nil
}

func (s *fakeStore) CreateLinkedAccount(_ context.Context, account *LinkedAccount) (*LinkedAccount, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.createLinkErr != nil {
		return nil, s.createLinkErr
	}
	key := linkedKey(account.Provider, account.ProviderAccountID)
	if _, exists := s.links[key]; exists {
		return nil, fmt.Errorf("linked_accounts: %w", ErrAlreadyExists)
	}
	copied := *account
	if copied.ID == "" {
		copied.ID = uuid.NewString()
	}
	copied.CreatedAt = time.Now()
	s.links[key] = &copied
	result := copied
	return &result, nil
}

func (s *fakeStore) CreateVerificationToken(_ context.Context, tok *VerificationToken) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.createTokenErr != nil {
		return s.createTokenErr
	}
	copied := *tok
	if copied.ID == "" {
		copied.ID = uuid.NewString()
		tok.ID = copied.ID
	}
	s.tokens[copied.ID] = &copied
	return nil
}

func (s *fakeStore) FindValidVerificationToken(_ context.Context, userID, flow string) (*VerificationToken, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.findTokenErr != nil {
		return nil, s.findTokenErr
	}
	var newest *VerificationToken
	now := time.Now()
	for _, tok := range s.tokens {
		if tok.UserID != userID || tok.Flow != flow || !tok.ExpiresAt.After(now) {
			continue
		}
		if newest == nil || tok.ExpiresAt.After(newest.ExpiresAt) {
			newest = tok
		}
	}
	if newest == nil {
		return nil, ErrNotFound
	}
	copied := *newest
	return &copied, nil
}

func (s *fakeStore) ConsumeVerificationToken(_ context.Context, id string) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.consumeErr != nil {
		return false, s.consumeErr
	}
	tok, ok := s.tokens[id]
	if !ok {
		return false, nil
	}
	delete(s.tokens, id)
	return tok.ExpiresAt.After(time.Now()), nil
}

func (s *fakeStore) DeleteVerificationTokens(_ context.Context, userID, flow string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.deleteTokensErr != nil {
		return s.deleteTokensErr
	}
	for id, tok := range s.tokens {
		if tok.UserID == userID && tok.Flow == flow {
			delete(s.tokens, id)
		}
	}
	return nil
}

func (s *fakeStore) tokenCount(userID, flow string) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	count := 0
	for _, tok := range s.tokens {
		if tok.UserID == userID && tok.Flow == flow {
			count++
		}
	}
	return count
}

func (s *fakeStore) linkCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.links)
}

func (s *fakeStore) userCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.users)
}

var _ Store = (*fakeStore)(nil)

// collectSink gathers audit events for assertions.
type collectSink struct {
	mu     sync.Mutex
	events []AuditEvent
}

func (s *collectSink) Write(event AuditEvent) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.events = append(s.events, event)
}

func (s *collectSink) names() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	names := make([]string, len(s.events))
	for i, event := range s.events {
		names[i] = event.Event
	}
	return names
}

func parseClaims(t *testing.T, e *Engine, signed string) *token.Claims {
	t.Helper()
	claims, err := e.tokenManager.Parse(signed)
	if err != nil {
		t.Fatalf("parse token failed: %v", err)
	}
	return claims
}
