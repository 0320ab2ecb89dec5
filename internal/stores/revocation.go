package stores

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

var ErrRevocationUnavailable = errors.New("revocation redis unavailable")

// RevocationStore records revoked token ids until the token would have
// expired on its own.
type RevocationStore struct {
	redis  redis.UniversalClient
	prefix string
}

func NewRevocationStore(redisClient redis.UniversalClient, prefix string) *RevocationStore {
	if prefix == "" {
		prefix = "rvk"
	}
	return &RevocationStore{
		redis:  redisClient,
		prefix: prefix,
	}
}

func (s *RevocationStore) key(tokenID string) string {
	return s.prefix + ":" + tokenID
}

// Revoke marks tokenID revoked for the remaining lifetime of the token.
// A token that has already expired needs no entry and is accepted as a no-op.
func (s *RevocationStore) Revoke(ctx context.Context, tokenID, subject string, expiresAt, now time.Time) error {
	if tokenID == "" {
		return errors.New("revocation token id empty")
	}
	ttl := expiresAt.Sub(now)
	if ttl <= 0 {
		return nil
	}

	value := subject + "|" + now.UTC().Format(time.RFC3339)
	if err := s.redis.Set(ctx, s.key(tokenID), value, ttl).Err(); err != nil {
		return fmt.Errorf("%w: %v", ErrRevocationUnavailable, err)
	}
	return nil
}

// IsRevoked reports whether tokenID has a live revocation entry.
func (s *RevocationStore) IsRevoked(ctx context.Context, tokenID string) (bool, error) {
	if tokenID == "" {
		return false, nil
	}
	n, err := s.redis.Exists(ctx, s.key(tokenID)).Result()
	if err != nil {
		return false, fmt.Errorf("%w: %v", ErrRevocationUnavailable, err)
	}
	return n > 0, nil
}

// Claim revokes tokenID only if no entry exists yet and reports whether this
// call created it. Exactly one of several concurrent callers wins, which
// makes it the gate for single-use rotation. An already expired token is
// never claimable.
func (s *RevocationStore) Claim(ctx context.Context, tokenID, subject string, expiresAt, now time.Time) (bool, error) {
	if tokenID == "" {
		return false, errors.New("revocation token id empty")
	}
	ttl := expiresAt.Sub(now)
	if ttl <= 0 {
		return false, nil
	}

	value := subject + "|" + now.UTC().Format(time.RFC3339)
	ok, err := s.redis.SetNX(ctx, s.key(tokenID), value, ttl).Result()
	if err != nil {
		return false, fmt.Errorf("%w: %v", ErrRevocationUnavailable, err)
	}
	return ok, nil
}
