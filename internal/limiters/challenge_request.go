package limiters

import (
	"context"
	"errors"
	"time"

	"github.com/MrEthical07/phoneauth/internal/rate"
	"github.com/redis/go-redis/v9"
)

// ChallengeRequestConfig caps challenge requests per origin.
type ChallengeRequestConfig struct {
	Enabled     bool
	MaxRequests int
	Window      time.Duration
}

var (
	// ErrChallengeRequestRateLimited indicates the origin spent its budget.
	ErrChallengeRequestRateLimited = errors.New("challenge request rate limited")
	// ErrChallengeRequestUnavailable indicates the limiter backend is unreachable.
	ErrChallengeRequestUnavailable = errors.New("challenge request limiter unavailable")
)

// ChallengeRequestLimiter throttles challenge requests from one origin, so a
// single client cannot pump messages to many numbers.
type ChallengeRequestLimiter struct {
	counter *rate.Counter
	config  ChallengeRequestConfig
}

// NewChallengeRequestLimiter creates a [ChallengeRequestLimiter].
func NewChallengeRequestLimiter(redisClient redis.UniversalClient, cfg ChallengeRequestConfig) *ChallengeRequestLimiter {
	return &ChallengeRequestLimiter{
		counter: rate.NewCounter(redisClient, "acr:o"),
		config:  cfg,
	}
}

// Check records a request from origin and rejects it once the budget is spent.
func (l *ChallengeRequestLimiter) Check(ctx context.Context, origin string) error {
	if l == nil || !l.config.Enabled || origin == "" {
		return nil
	}
	err := l.counter.Hit(ctx, origin, l.config.MaxRequests, l.config.Window)
	switch {
	case err == nil:
		return nil
	case errors.Is(err, rate.ErrRateLimited):
		return ErrChallengeRequestRateLimited
	default:
		return errors.Join(ErrChallengeRequestUnavailable, err)
	}
}
