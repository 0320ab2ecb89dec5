package limiters

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/MrEthical07/phoneauth/internal/rate"
	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
)

// Lock reasons reported by [AbuseGuard.IsLocked].
const (
	LockReasonPhone  = "phone"
	LockReasonOrigin = "origin"
)

var (
	// ErrAbuseUnavailable indicates the attempt backend is unreachable.
	ErrAbuseUnavailable = errors.New("abuse guard backend unavailable")
)

// AbuseConfig holds lockout thresholds.
type AbuseConfig struct {
	Window          time.Duration
	PhoneThreshold  int
	OriginThreshold int
}

// Attempt is one authentication attempt. Attempts are append-only.
type Attempt struct {
	ID         string    `json:"id"`
	Phone      string    `json:"phone"`
	Origin     string    `json:"origin,omitempty"`
	Succeeded  bool      `json:"succeeded"`
	OccurredAt time.Time `json:"occurred_at"`
	UserAgent  string    `json:"user_agent,omitempty"`
}

// LockState is the outcome of a lockout check.
type LockState struct {
	Locked bool
	Reason string
}

// AttemptTally aggregates the attempt log over a period.
type AttemptTally struct {
	Succeeded int64
	Failed    int64
}

// AbuseGuard tracks attempts per phone and per origin.
type AbuseGuard struct {
	redis    redis.UniversalClient
	config   AbuseConfig
	byPhone  *rate.Window
	byOrigin *rate.Window
}

// NewAbuseGuard creates an [AbuseGuard].
func NewAbuseGuard(redisClient redis.UniversalClient, cfg AbuseConfig) *AbuseGuard {
	return &AbuseGuard{
		redis:    redisClient,
		config:   cfg,
		byPhone:  rate.NewWindow(redisClient, "aaf:p", cfg.Window),
		byOrigin: rate.NewWindow(redisClient, "aaf:o", cfg.Window),
	}
}

const (
	attemptLogKey     = "aa:log"
	attemptOKIndexKey = "aa:ok"
	attemptKOIndexKey = "aa:fail"
)

// RecordAttempt appends an attempt. Failures also enter the per-phone and
// per-origin sliding windows. Each attempt carries a unique id, so
// concurrent writers never collide.
func (g *AbuseGuard) RecordAttempt(ctx context.Context, a Attempt) error {
	if g == nil || a.Phone == "" {
		return nil
	}
	if a.ID == "" {
		a.ID = uuid.NewString()
	}
	if a.OccurredAt.IsZero() {
		a.OccurredAt = time.Now()
	}

	encoded, err := json.Marshal(a)
	if err != nil {
		return err
	}
	score := float64(a.OccurredAt.UnixMilli())
	index := attemptOKIndexKey
	if !a.Succeeded {
		index = attemptKOIndexKey
	}

	_, err = g.redis.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.ZAdd(ctx, attemptLogKey, redis.Z{Score: score, Member: encoded})
		pipe.ZAdd(ctx, index, redis.Z{Score: score, Member: a.ID})
		return nil
	})
	if err != nil {
		return fmt.Errorf("%w: %v", ErrAbuseUnavailable, err)
	}

	if a.Succeeded {
		return nil
	}
	if err := g.byPhone.Add(ctx, a.Phone, a.ID, a.OccurredAt); err != nil {
		return fmt.Errorf("%w: %v", ErrAbuseUnavailable, err)
	}
	if a.Origin != "" {
		if err := g.byOrigin.Add(ctx, a.Origin, a.ID, a.OccurredAt); err != nil {
			return fmt.Errorf("%w: %v", ErrAbuseUnavailable, err)
		}
	}
	return nil
}

// IsLocked counts failures in the window ending at now. The phone check runs
// first; the origin check only applies when origin is known.
func (g *AbuseGuard) IsLocked(ctx context.Context, phone, origin string, now time.Time) (LockState, error) {
	if g == nil {
		return LockState{}, nil
	}

	if phone != "" && g.config.PhoneThreshold > 0 {
		n, err := g.byPhone.Count(ctx, phone, now)
		if err != nil {
			return LockState{}, fmt.Errorf("%w: %v", ErrAbuseUnavailable, err)
		}
		if n >= g.config.PhoneThreshold {
			return LockState{Locked: true, Reason: LockReasonPhone}, nil
		}
	}

	if origin != "" && g.config.OriginThreshold > 0 {
		n, err := g.byOrigin.Count(ctx, origin, now)
		if err != nil {
			return LockState{}, fmt.Errorf("%w: %v", ErrAbuseUnavailable, err)
		}
		if n >= g.config.OriginThreshold {
			return LockState{Locked: true, Reason: LockReasonOrigin}, nil
		}
	}

	return LockState{}, nil
}

// ClearPhone forgets the failure window of a phone. The attempt log is kept.
func (g *AbuseGuard) ClearPhone(ctx context.Context, phone string) error {
	if g == nil || phone == "" {
		return nil
	}
	if err := g.byPhone.Clear(ctx, phone); err != nil {
		return fmt.Errorf("%w: %v", ErrAbuseUnavailable, err)
	}
	return nil
}

// Tally counts successful and failed attempts at or after since.
func (g *AbuseGuard) Tally(ctx context.Context, since time.Time) (AttemptTally, error) {
	if g == nil {
		return AttemptTally{}, nil
	}
	min := strconv.FormatInt(since.UnixMilli(), 10)

	var okCmd, koCmd *redis.IntCmd
	_, err := g.redis.Pipelined(ctx, func(pipe redis.Pipeliner) error {
		okCmd = pipe.ZCount(ctx, attemptOKIndexKey, min, "+inf")
		koCmd = pipe.ZCount(ctx, attemptKOIndexKey, min, "+inf")
		return nil
	})
	if err != nil {
		return AttemptTally{}, fmt.Errorf("%w: %v", ErrAbuseUnavailable, err)
	}
	return AttemptTally{Succeeded: okCmd.Val(), Failed: koCmd.Val()}, nil
}

// Recent returns up to limit attempts at or after since, oldest first.
func (g *AbuseGuard) Recent(ctx context.Context, since time.Time, limit int64) ([]Attempt, error) {
	if g == nil {
		return nil, nil
	}
	raw, err := g.redis.ZRangeByScore(ctx, attemptLogKey, &redis.ZRangeBy{
		Min:   strconv.FormatInt(since.UnixMilli(), 10),
		Max:   "+inf",
		Count: limit,
	}).Result()
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrAbuseUnavailable, err)
	}

	out := make([]Attempt, 0, len(raw))
	for _, item := range raw {
		var a Attempt
		if err := json.Unmarshal([]byte(item), &a); err != nil {
			continue
		}
		out = append(out, a)
	}
	return out, nil
}

// PurgeBefore deletes attempt log entries that occurred before cutoff and
// returns how many were removed. Entries written after cutoff are untouched.
func (g *AbuseGuard) PurgeBefore(ctx context.Context, cutoff time.Time) (int64, error) {
	if g == nil {
		return 0, nil
	}
	max := "(" + strconv.FormatInt(cutoff.UnixMilli(), 10)

	var logCmd *redis.IntCmd
	_, err := g.redis.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		logCmd = pipe.ZRemRangeByScore(ctx, attemptLogKey, "-inf", max)
		pipe.ZRemRangeByScore(ctx, attemptOKIndexKey, "-inf", max)
		pipe.ZRemRangeByScore(ctx, attemptKOIndexKey, "-inf", max)
		return nil
	})
	if err != nil {
		return 0, fmt.Errorf("%w: %v", ErrAbuseUnavailable, err)
	}
	return logCmd.Val(), nil
}
