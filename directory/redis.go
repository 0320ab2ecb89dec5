package directory

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/redis/go-redis/v9"
)

const maxRedisRetries = 8

// RedisStore keeps identities as JSON documents with unique-index keys for
// phone and email. Writes that touch an index run under WATCH.
type RedisStore struct {
	redis  redis.UniversalClient
	prefix string
}

// NewRedisStore returns a [RedisStore] with keys under prefix ("idn" when empty).
func NewRedisStore(redisClient redis.UniversalClient, prefix string) *RedisStore {
	if prefix == "" {
		prefix = "idn"
	}
	return &RedisStore{redis: redisClient, prefix: prefix}
}

func (s *RedisStore) idKey(id string) string       { return s.prefix + ":id:" + id }
func (s *RedisStore) phoneKey(phone string) string { return s.prefix + ":phone:" + phone }
func (s *RedisStore) emailKey(email string) string {
	return s.prefix + ":email:" + NormalizeEmail(email)
}
func (s *RedisStore) createdKey() string { return s.prefix + ":created" }

func (s *RedisStore) GetByID(ctx context.Context, id string) (*Identity, error) {
	return s.load(ctx, s.redis, id)
}

func (s *RedisStore) GetByPhone(ctx context.Context, phone string) (*Identity, error) {
	id, err := s.redis.Get(ctx, s.phoneKey(phone)).Result()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("%w: %v", ErrUnavailable, err)
	}
	return s.load(ctx, s.redis, id)
}

func (s *RedisStore) Create(ctx context.Context, identity *Identity) error {
	if identity == nil || identity.ID == "" || identity.Phone == "" {
		return errors.New("identity incomplete")
	}
	encoded, err := json.Marshal(identity)
	if err != nil {
		return err
	}

	watched := []string{s.phoneKey(identity.Phone), s.idKey(identity.ID)}
	if identity.Email != "" {
		watched = append(watched, s.emailKey(identity.Email))
	}

	return s.retry(ctx, func(tx *redis.Tx) error {
		n, err := tx.Exists(ctx, watched...).Result()
		if err != nil {
			return err
		}
		if n > 0 {
			return ErrConflict
		}

		_, err = tx.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
			pipe.Set(ctx, s.idKey(identity.ID), encoded, 0)
			pipe.Set(ctx, s.phoneKey(identity.Phone), identity.ID, 0)
			if identity.Email != "" {
				pipe.Set(ctx, s.emailKey(identity.Email), identity.ID, 0)
			}
			pipe.ZAdd(ctx, s.createdKey(), redis.Z{Score: float64(identity.CreatedAt.UnixMilli()), Member: identity.ID})
			return nil
		})
		return err
	}, watched...)
}

func (s *RedisStore) UpdatePassword(ctx context.Context, id, passwordHash string, at time.Time) error {
	_, err := s.mutate(ctx, id, nil, func(identity *Identity) error {
		identity.PasswordHash = passwordHash
		identity.UpdatedAt = at.UTC()
		return nil
	})
	return err
}

func (s *RedisStore) SetActive(ctx context.Context, id string, active bool, at time.Time) error {
	_, err := s.mutate(ctx, id, nil, func(identity *Identity) error {
		identity.Active = active
		identity.UpdatedAt = at.UTC()
		return nil
	})
	return err
}

func (s *RedisStore) TouchLogin(ctx context.Context, id string, at time.Time) error {
	_, err := s.mutate(ctx, id, nil, func(identity *Identity) error {
		t := at.UTC()
		identity.LastLoginAt = &t
		return nil
	})
	return err
}

func (s *RedisStore) UpdateProfile(ctx context.Context, id string, update ProfileUpdate, at time.Time) (*Identity, error) {
	var extra []string
	if update.Email != nil && *update.Email != "" {
		extra = append(extra, s.emailKey(*update.Email))
	}

	return s.mutate(ctx, id, extra, func(identity *Identity) error {
		if update.DisplayName != nil {
			identity.DisplayName = *update.DisplayName
		}
		if update.ShippingAddress != nil {
			identity.ShippingAddress = *update.ShippingAddress
		}
		if update.Email != nil {
			identity.Email = *update.Email
		}
		identity.UpdatedAt = at.UTC()
		return nil
	})
}

func (s *RedisStore) CountCreatedSince(ctx context.Context, since time.Time) (int64, error) {
	n, err := s.redis.ZCount(ctx, s.createdKey(), strconv.FormatInt(since.UnixMilli(), 10), "+inf").Result()
	if err != nil {
		return 0, fmt.Errorf("%w: %v", ErrUnavailable, err)
	}
	return n, nil
}

// mutate applies fn to the stored identity under WATCH and keeps the email
// index in step with the result.
func (s *RedisStore) mutate(ctx context.Context, id string, extraWatch []string, fn func(*Identity) error) (*Identity, error) {
	var result *Identity
	watched := append([]string{s.idKey(id)}, extraWatch...)

	err := s.retry(ctx, func(tx *redis.Tx) error {
		identity, err := s.load(ctx, tx, id)
		if err != nil {
			return err
		}
		oldEmail := NormalizeEmail(identity.Email)

		if err := fn(identity); err != nil {
			return err
		}
		newEmail := NormalizeEmail(identity.Email)

		if newEmail != "" && newEmail != oldEmail {
			owner, err := tx.Get(ctx, s.emailKey(newEmail)).Result()
			if err != nil && !errors.Is(err, redis.Nil) {
				return err
			}
			if err == nil && owner != id {
				return ErrConflict
			}
		}

		encoded, err := json.Marshal(identity)
		if err != nil {
			return err
		}
		_, err = tx.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
			pipe.Set(ctx, s.idKey(id), encoded, 0)
			if newEmail != oldEmail {
				if oldEmail != "" {
					pipe.Del(ctx, s.emailKey(oldEmail))
				}
				if newEmail != "" {
					pipe.Set(ctx, s.emailKey(newEmail), id, 0)
				}
			}
			return nil
		})
		if err != nil {
			return err
		}
		result = identity
		return nil
	}, watched...)
	if err != nil {
		return nil, err
	}
	return result, nil
}

func (s *RedisStore) retry(ctx context.Context, fn func(*redis.Tx) error, keys ...string) error {
	for i := 0; i < maxRedisRetries; i++ {
		err := s.redis.Watch(ctx, fn, keys...)
		if errors.Is(err, redis.TxFailedErr) {
			continue
		}
		if err != nil {
			if errors.Is(err, ErrConflict) || errors.Is(err, ErrNotFound) || errors.Is(err, ErrUnavailable) {
				return err
			}
			return fmt.Errorf("%w: %v", ErrUnavailable, err)
		}
		return nil
	}
	return fmt.Errorf("%w: write contention", ErrUnavailable)
}

type getter interface {
	Get(ctx context.Context, key string) *redis.StringCmd
}

func (s *RedisStore) load(ctx context.Context, c getter, id string) (*Identity, error) {
	data, err := c.Get(ctx, s.idKey(id)).Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("%w: %v", ErrUnavailable, err)
	}
	var identity Identity
	if err := json.Unmarshal(data, &identity); err != nil {
		return nil, fmt.Errorf("%w: corrupt identity %s", ErrUnavailable, id)
	}
	return &identity, nil
}
