package stores

import (
	"context"
	"crypto/subtle"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/redis/go-redis/v9"
)

const (
	maxSlotRetries   = 8
	maxRetiredCodes  = 16
	purgeBatchSize   = 256
	defaultOTPPrefix = "otp"
)

var (
	ErrChallengeNotFound    = errors.New("challenge not found")
	ErrChallengeExpired     = errors.New("challenge expired")
	ErrChallengeAttempts    = errors.New("challenge attempts exhausted")
	ErrChallengeMismatch    = errors.New("challenge code mismatch")
	ErrChallengeCooldown    = errors.New("challenge cooldown active")
	ErrChallengeUnavailable = errors.New("challenge redis unavailable")
)

// ChallengeRecord is one issued challenge. Times are unix milliseconds.
type ChallengeRecord struct {
	ID        string
	Phone     string
	Purpose   string
	CodeHash  [32]byte
	CreatedAt int64
	ExpiresAt int64
	Used      bool
	Attempts  uint16
	Payload   []byte
}

type retiredCode struct {
	Hash      [32]byte
	RetiredAt int64
}

type challengeSlot struct {
	Current *ChallengeRecord
	Retired []retiredCode
}

// IssueParams controls a single Issue call.
type IssueParams struct {
	Now       time.Time
	TTL       time.Duration
	Cooldown  time.Duration
	Retention time.Duration
}

// ChallengeStore persists challenge slots in Redis.
type ChallengeStore struct {
	redis  redis.UniversalClient
	prefix string
}

func NewChallengeStore(redisClient redis.UniversalClient, prefix string) *ChallengeStore {
	if prefix == "" {
		prefix = defaultOTPPrefix
	}
	return &ChallengeStore{
		redis:  redisClient,
		prefix: prefix,
	}
}

func (s *ChallengeStore) slotKey(phone, purpose string) string {
	return s.prefix + ":" + purpose + ":" + phone
}

func (s *ChallengeStore) indexKey() string {
	return s.prefix + ":idx"
}

func (s *ChallengeStore) logKey() string {
	return s.prefix + ":log"
}

// Issue supersedes any challenge in the (phone, purpose) slot and installs
// record as the new current challenge. It fails with ErrChallengeCooldown,
// without writing anything, when the current challenge was created less
// than Cooldown ago, whether or not it was used since.
func (s *ChallengeStore) Issue(ctx context.Context, record *ChallengeRecord, p IssueParams) error {
	if record == nil || record.Phone == "" || record.Purpose == "" {
		return errors.New("challenge record incomplete")
	}
	key := s.slotKey(record.Phone, record.Purpose)
	nowMs := p.Now.UnixMilli()

	record.CreatedAt = nowMs
	record.ExpiresAt = p.Now.Add(p.TTL).UnixMilli()
	record.Used = false
	record.Attempts = 0

	for i := 0; i < maxSlotRetries; i++ {
		err := s.redis.Watch(ctx, func(tx *redis.Tx) error {
			slot, err := loadSlot(ctx, tx, key)
			if err != nil {
				return err
			}

			if inCooldown(slot.Current, nowMs, p.Cooldown) {
				return ErrChallengeCooldown
			}

			slot.retireCurrent(nowMs)
			slot.pruneRetired(p.Now.Add(-p.Retention).UnixMilli())
			slot.Current = record

			encoded, err := encodeSlot(slot)
			if err != nil {
				return err
			}

			_, err = tx.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
				pipe.Set(ctx, key, encoded, 0)
				pipe.ZAdd(ctx, s.indexKey(), redis.Z{Score: float64(nowMs), Member: key})
				pipe.ZAdd(ctx, s.logKey(), redis.Z{Score: float64(nowMs), Member: record.ID})
				return nil
			})
			return err
		}, key)

		if errors.Is(err, redis.TxFailedErr) {
			continue
		}
		if err != nil {
			if errors.Is(err, ErrChallengeCooldown) {
				return err
			}
			return fmt.Errorf("%w: %v", ErrChallengeUnavailable, err)
		}
		return nil
	}

	// Every retry lost to a concurrent writer. Only a fresh issue for the
	// same slot makes that a cooldown; verify traffic does not.
	if cooling, err := s.InCooldown(ctx, record.Phone, record.Purpose, p.Now, p.Cooldown); err == nil && cooling {
		return ErrChallengeCooldown
	}
	return fmt.Errorf("%w: slot contention", ErrChallengeUnavailable)
}

// InCooldown reports whether the slot's current challenge was created less
// than cooldown before now. It only reads.
func (s *ChallengeStore) InCooldown(ctx context.Context, phone, purpose string, now time.Time, cooldown time.Duration) (bool, error) {
	cur, err := s.Get(ctx, phone, purpose)
	if err != nil {
		if errors.Is(err, ErrChallengeNotFound) {
			return false, nil
		}
		return false, err
	}
	return inCooldown(cur, now.UnixMilli(), cooldown), nil
}

func inCooldown(cur *ChallengeRecord, nowMs int64, cooldown time.Duration) bool {
	return cur != nil && nowMs-cur.CreatedAt < cooldown.Milliseconds()
}

// Verify checks providedHash against the active challenge in the slot.
//
// Outcomes: ErrChallengeNotFound when there is no unused challenge or the
// code belongs to a retired challenge; ErrChallengeExpired when the
// challenge is past its expiry (no attempt consumed); ErrChallengeAttempts
// when the attempt cap was already reached (the challenge is retired);
// ErrChallengeMismatch when the code is wrong (one attempt consumed). On a
// match the challenge is marked used and returned.
func (s *ChallengeStore) Verify(
	ctx context.Context,
	phone, purpose string,
	providedHash [32]byte,
	now time.Time,
	maxAttempts int,
) (*ChallengeRecord, error) {
	key := s.slotKey(phone, purpose)
	nowMs := now.UnixMilli()

	for i := 0; i < maxSlotRetries; i++ {
		var matched *ChallengeRecord

		err := s.redis.Watch(ctx, func(tx *redis.Tx) error {
			slot, err := loadSlot(ctx, tx, key)
			if err != nil {
				return err
			}

			cur := slot.Current
			if cur == nil || cur.Used {
				return ErrChallengeNotFound
			}
			if nowMs >= cur.ExpiresAt {
				return ErrChallengeExpired
			}

			var outcome error
			switch {
			case int(cur.Attempts) >= maxAttempts:
				cur.Used = true
				outcome = ErrChallengeAttempts
			case subtle.ConstantTimeCompare(cur.CodeHash[:], providedHash[:]) == 1:
				cur.Used = true
				copied := *cur
				matched = &copied
			case slot.isRetired(providedHash):
				return ErrChallengeNotFound
			default:
				cur.Attempts++
				outcome = ErrChallengeMismatch
			}

			encoded, err := encodeSlot(slot)
			if err != nil {
				return err
			}
			_, err = tx.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
				pipe.Set(ctx, key, encoded, 0)
				return nil
			})
			if err != nil {
				return err
			}
			return outcome
		}, key)

		if errors.Is(err, redis.TxFailedErr) {
			continue
		}
		if err != nil {
			switch {
			case errors.Is(err, ErrChallengeNotFound),
				errors.Is(err, ErrChallengeExpired),
				errors.Is(err, ErrChallengeAttempts),
				errors.Is(err, ErrChallengeMismatch):
				return nil, err
			default:
				return nil, fmt.Errorf("%w: %v", ErrChallengeUnavailable, err)
			}
		}
		return matched, nil
	}

	return nil, fmt.Errorf("%w: slot contention", ErrChallengeUnavailable)
}

// Get returns the current challenge in the slot, used or not.
func (s *ChallengeStore) Get(ctx context.Context, phone, purpose string) (*ChallengeRecord, error) {
	data, err := s.redis.Get(ctx, s.slotKey(phone, purpose)).Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil, ErrChallengeNotFound
		}
		return nil, fmt.Errorf("%w: %v", ErrChallengeUnavailable, err)
	}
	slot, err := decodeSlot(data)
	if err != nil {
		return nil, err
	}
	if slot.Current == nil {
		return nil, ErrChallengeNotFound
	}
	return slot.Current, nil
}

// Purge deletes every slot whose current challenge was created at or before
// deadline, regardless of its used state, and trims the issue log. Each slot
// is re-read under WATCH, so a slot re-issued after the index scan survives.
func (s *ChallengeStore) Purge(ctx context.Context, deadline time.Time) (int, error) {
	max := strconv.FormatInt(deadline.UnixMilli(), 10)
	deleted := 0

	for {
		keys, err := s.redis.ZRangeByScore(ctx, s.indexKey(), &redis.ZRangeBy{
			Min:   "-inf",
			Max:   max,
			Count: purgeBatchSize,
		}).Result()
		if err != nil {
			return deleted, fmt.Errorf("%w: %v", ErrChallengeUnavailable, err)
		}
		if len(keys) == 0 {
			break
		}

		progressed := false
		for _, key := range keys {
			removed, touched, err := s.purgeSlot(ctx, key, deadline.UnixMilli())
			if err != nil {
				return deleted, err
			}
			if removed {
				deleted++
			}
			if touched {
				progressed = true
			}
		}
		if !progressed {
			break
		}
	}

	if err := s.redis.ZRemRangeByScore(ctx, s.logKey(), "-inf", max).Err(); err != nil {
		return deleted, fmt.Errorf("%w: %v", ErrChallengeUnavailable, err)
	}
	return deleted, nil
}

func (s *ChallengeStore) purgeSlot(ctx context.Context, key string, deadlineMs int64) (bool, bool, error) {
	for i := 0; i < maxSlotRetries; i++ {
		removed := false
		touched := false

		err := s.redis.Watch(ctx, func(tx *redis.Tx) error {
			data, err := tx.Get(ctx, key).Bytes()
			if err != nil && !errors.Is(err, redis.Nil) {
				return err
			}

			var slot *challengeSlot
			if err == nil {
				slot, err = decodeSlot(data)
				if err != nil {
					return err
				}
			}

			if slot != nil && slot.Current != nil && slot.Current.CreatedAt > deadlineMs {
				// Re-issued after the index was read; realign the score.
				touched = true
				_, err = tx.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
					pipe.ZAdd(ctx, s.indexKey(), redis.Z{Score: float64(slot.Current.CreatedAt), Member: key})
					return nil
				})
				return err
			}

			_, err = tx.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
				pipe.Del(ctx, key)
				pipe.ZRem(ctx, s.indexKey(), key)
				return nil
			})
			if err != nil {
				return err
			}
			removed = slot != nil
			touched = true
			return nil
		}, key)

		if errors.Is(err, redis.TxFailedErr) {
			continue
		}
		if err != nil {
			return false, false, fmt.Errorf("%w: %v", ErrChallengeUnavailable, err)
		}
		return removed, touched, nil
	}
	return false, false, nil
}

// CountIssued returns how many challenges were issued at or after since and
// are still inside the retention window.
func (s *ChallengeStore) CountIssued(ctx context.Context, since time.Time) (int64, error) {
	n, err := s.redis.ZCount(ctx, s.logKey(), strconv.FormatInt(since.UnixMilli(), 10), "+inf").Result()
	if err != nil {
		return 0, fmt.Errorf("%w: %v", ErrChallengeUnavailable, err)
	}
	return n, nil
}

func loadSlot(ctx context.Context, tx *redis.Tx, key string) (*challengeSlot, error) {
	data, err := tx.Get(ctx, key).Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return &challengeSlot{}, nil
		}
		return nil, err
	}
	return decodeSlot(data)
}

func (s *challengeSlot) retireCurrent(nowMs int64) {
	if s.Current == nil {
		return
	}
	s.Retired = append(s.Retired, retiredCode{Hash: s.Current.CodeHash, RetiredAt: nowMs})
	s.Current = nil
	if len(s.Retired) > maxRetiredCodes {
		s.Retired = s.Retired[len(s.Retired)-maxRetiredCodes:]
	}
}

func (s *challengeSlot) pruneRetired(cutoffMs int64) {
	kept := s.Retired[:0]
	for _, r := range s.Retired {
		if r.RetiredAt > cutoffMs {
			kept = append(kept, r)
		}
	}
	s.Retired = kept
}

func (s *challengeSlot) isRetired(hash [32]byte) bool {
	found := 0
	for i := range s.Retired {
		found |= subtle.ConstantTimeCompare(s.Retired[i].Hash[:], hash[:])
	}
	return found == 1
}
