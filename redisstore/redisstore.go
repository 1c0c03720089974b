// Package redisstore provides a Redis-backed implementation of the
// verification token store. Records are single-use: the consume path
// relies on GETDEL so that concurrent consumers of the same token see
// exactly one winner. Expiry is enforced by Redis TTLs, so an expired
// token can never be found or consumed.
//
// Only token persistence lives here. User and account records stay in
// the relational store; compose the two with authcore.WithTokenStore.
package redisstore

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"

	"github.com/firdaws-app/authcore"
)

// TokenStore implements authcore.TokenStore on top of a Redis client.
// At most one live token exists per (user, flow) pair; creating a new
// token replaces the previous one.
type TokenStore struct {
	client redis.UniversalClient
	prefix string
}

// New wraps an existing Redis client. The client is not closed by this
// package; the caller owns its lifecycle.
func New(client redis.UniversalClient) *TokenStore {
	return &TokenStore{client: client, prefix: "authcore"}
}

func (s *TokenStore) recordKey(id string) string {
	return fmt.Sprintf("%s:vt:%s", s.prefix, id)
}

func (s *TokenStore) indexKey(userID, flow string) string {
	return fmt.Sprintf("%s:vtu:%s:%s", s.prefix, userID, flow)
}

type tokenRecord struct {
	UserID    string    `json:"uid"`
	Flow      string    `json:"flow"`
	ExpiresAt time.Time `json:"exp"`
}

func (s *TokenStore) CreateVerificationToken(ctx context.Context, token *authcore.VerificationToken) error {
	ttl := time.Until(token.ExpiresAt)
	if ttl <= 0 {
		return fmt.Errorf("verification token already expired")
	}
	if token.ID == "" {
		token.ID = uuid.NewString()
	}

	payload, err := json.Marshal(tokenRecord{
		UserID:    token.UserID,
		Flow:      token.Flow,
		ExpiresAt: token.ExpiresAt,
	})
	if err != nil {
		return fmt.Errorf("encode verification token: %w", err)
	}

	// Replace any previous token for this (user, flow) so the index
	// never points at a stale record.
	index := s.indexKey(token.UserID, token.Flow)
	oldID, err := s.client.GetDel(ctx, index).Result()
	if err != nil && !errors.Is(err, redis.Nil) {
		return mapError(err)
	}

	pipe := s.client.TxPipeline()
	if oldID != "" {
		pipe.Del(ctx, s.recordKey(oldID))
	}
	pipe.Set(ctx, s.recordKey(token.ID), payload, ttl)
	pipe.Set(ctx, index, token.ID, ttl)
	if _, err := pipe.Exec(ctx); err != nil {
		return mapError(err)
	}
	return nil
}

func (s *TokenStore) FindValidVerificationToken(ctx context.Context, userID, flow string) (*authcore.VerificationToken, error) {
	id, err := s.client.Get(ctx, s.indexKey(userID, flow)).Result()
	if err != nil {
		return nil, mapError(err)
	}

	raw, err := s.client.Get(ctx, s.recordKey(id)).Bytes()
	if err != nil {
		return nil, mapError(err)
	}

	var record tokenRecord
	if err := json.Unmarshal(raw, &record); err != nil {
		// Unreadable record: drop it rather than wedge the flow.
		s.client.Del(ctx, s.recordKey(id), s.indexKey(userID, flow))
		return nil, authcore.ErrNotFound
	}
	return &authcore.VerificationToken{
		ID:        id,
		UserID:    record.UserID,
		Flow:      record.Flow,
		ExpiresAt: record.ExpiresAt,
	}, nil
}

// ConsumeVerificationToken removes the record atomically. GETDEL
// guarantees that of N concurrent consumers exactly one observes the
// record; the rest get false.
func (s *TokenStore) ConsumeVerificationToken(ctx context.Context, id string) (bool, error) {
	raw, err := s.client.GetDel(ctx, s.recordKey(id)).Bytes()
	if errors.Is(err, redis.Nil) {
		return false, nil
	}
	if err != nil {
		return false, mapError(err)
	}

	var record tokenRecord
	if err := json.Unmarshal(raw, &record); err == nil {
		s.client.Del(ctx, s.indexKey(record.UserID, record.Flow))
	}
	return true, nil
}

func (s *TokenStore) DeleteVerificationTokens(ctx context.Context, userID, flow string) error {
	index := s.indexKey(userID, flow)
	id, err := s.client.GetDel(ctx, index).Result()
	if errors.Is(err, redis.Nil) {
		return nil
	}
	if err != nil {
		return mapError(err)
	}
	if err := s.client.Del(ctx, s.recordKey(id)).Err(); err != nil {
		return mapError(err)
	}
	return nil
}

func mapError(err error) error {
	if errors.Is(err, redis.Nil) {
		return authcore.ErrNotFound
	}
	return fmt.Errorf("%w: %v", authcore.ErrStoreUnavailable, err)
}

var _ authcore.TokenStore = (*TokenStore)(nil)
