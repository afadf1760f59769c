package redis

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"

	"github.com/utafrali/bookshelf/internal/domain"
	apperrors "github.com/utafrali/bookshelf/pkg/errors"
)

const storeName = "token store"

// TokenStore implements repository.TokenStore on Redis. Each entry is a plain
// string key holding the user ID, written with its expiry in one SET.
type TokenStore struct {
	client  redis.UniversalClient
	timeout time.Duration
}

// NewTokenStore creates a Redis-backed token store. A positive timeout bounds
// every command on top of the caller's deadline.
func NewTokenStore(client redis.UniversalClient, timeout time.Duration) *TokenStore {
	return &TokenStore{client: client, timeout: timeout}
}

// Put stores token -> userID, expiring after ttl. A non-positive ttl is
// rejected so no entry can live forever.
func (s *TokenStore) Put(ctx context.Context, token domain.AccessToken, userID uuid.UUID, ttl time.Duration) error {
	if ttl <= 0 {
		return apperrors.InvalidInput(fmt.Sprintf("token ttl must be positive, got %s", ttl))
	}

	ctx, cancel := s.withTimeout(ctx)
	defer cancel()

	if err := s.client.Set(ctx, string(token), userID.String(), ttl).Err(); err != nil {
		return apperrors.StoreUnavailable(storeName, fmt.Errorf("set token: %w", err))
	}
	return nil
}

// Get returns the user bound to token. Absent and expired tokens are
// (uuid.Nil, false, nil).
func (s *TokenStore) Get(ctx context.Context, token domain.AccessToken) (uuid.UUID, bool, error) {
	ctx, cancel := s.withTimeout(ctx)
	defer cancel()

	val, err := s.client.Get(ctx, string(token)).Result()
	if errors.Is(err, redis.Nil) {
		return uuid.Nil, false, nil
	}
	if err != nil {
		return uuid.Nil, false, apperrors.StoreUnavailable(storeName, fmt.Errorf("get token: %w", err))
	}

	id, err := uuid.Parse(val)
	if err != nil {
		return uuid.Nil, false, apperrors.Conversion("user id", val, err)
	}
	return id, true, nil
}

// Delete removes token. Deleting an absent token succeeds.
func (s *TokenStore) Delete(ctx context.Context, token domain.AccessToken) error {
	ctx, cancel := s.withTimeout(ctx)
	defer cancel()

	if err := s.client.Del(ctx, string(token)).Err(); err != nil {
		return apperrors.StoreUnavailable(storeName, fmt.Errorf("delete token: %w", err))
	}
	return nil
}

func (s *TokenStore) withTimeout(ctx context.Context) (context.Context, context.CancelFunc) {
	if s.timeout > 0 {
		return context.WithTimeout(ctx, s.timeout)
	}
	return context.WithCancel(ctx)
}
