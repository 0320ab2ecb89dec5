package limiters

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
)

func newTestRedis(t *testing.T) (*miniredis.Miniredis, *redis.Client) {
	t.Helper()

	mr, err := miniredis.Run()
	if err != nil {
		t.Fatalf("miniredis.Run failed: %v", err)
	}
	t.Cleanup(mr.Close)

	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })
	return mr, client
}

func testAbuseConfig() AbuseConfig {
	return AbuseConfig{Window: time.Hour, PhoneThreshold: 5, OriginThreshold: 10}
}

func TestAbuseGuardPhoneLockout(t *testing.T) {
	_, rdb := newTestRedis(t)
	g := NewAbuseGuard(rdb, testAbuseConfig())
	ctx := context.Background()
	now := time.Now()

	for i := 0; i < 4; i++ {
		if err := g.RecordAttempt(ctx, Attempt{Phone: "+15550001111", Origin: "10.0.0.1", OccurredAt: now}); err != nil {
			t.Fatalf("RecordAttempt failed: %v", err)
		}
	}
	state, err := g.IsLocked(ctx, "+15550001111", "10.0.0.1", now)
	if err != nil || state.Locked {
		t.Fatalf("expected unlocked after 4 failures, got %+v %v", state, err)
	}

	if err := g.RecordAttempt(ctx, Attempt{Phone: "+15550001111", Origin: "10.0.0.1", OccurredAt: now}); err != nil {
		t.Fatalf("RecordAttempt failed: %v", err)
	}
	state, err = g.IsLocked(ctx, "+15550001111", "10.0.0.1", now)
	if err != nil {
		t.Fatalf("IsLocked failed: %v", err)
	}
	if !state.Locked || state.Reason != LockReasonPhone {
		t.Fatalf("expected phone lock, got %+v", state)
	}

	// The window slides past the failures.
	state, _ = g.IsLocked(ctx, "+15550001111", "10.0.0.1", now.Add(61*time.Minute))
	if state.Locked {
		t.Fatalf("expected lock to lapse, got %+v", state)
	}
}

func TestAbuseGuardSuccessesDoNotCount(t *testing.T) {
	_, rdb := newTestRedis(t)
	g := NewAbuseGuard(rdb, testAbuseConfig())
	ctx := context.Background()
	now := time.Now()

	for i := 0; i < 10; i++ {
		_ = g.RecordAttempt(ctx, Attempt{Phone: "+15550001111", Succeeded: true, OccurredAt: now})
	}
	state, _ := g.IsLocked(ctx, "+15550001111", "", now)
	if state.Locked {
		t.Fatalf("successes must not lock, got %+v", state)
	}
}

func TestAbuseGuardOriginLockout(t *testing.T) {
	_, rdb := newTestRedis(t)
	g := NewAbuseGuard(rdb, testAbuseConfig())
	ctx := context.Background()
	now := time.Now()

	phones := []string{"+15550000001", "+15550000002", "+15550000003", "+15550000004", "+15550000005"}
	for i := 0; i < 10; i++ {
		_ = g.RecordAttempt(ctx, Attempt{Phone: phones[i%len(phones)], Origin: "203.0.113.9", OccurredAt: now})
	}

	state, err := g.IsLocked(ctx, "+15559999999", "203.0.113.9", now)
	if err != nil {
		t.Fatalf("IsLocked failed: %v", err)
	}
	if !state.Locked || state.Reason != LockReasonOrigin {
		t.Fatalf("expected origin lock, got %+v", state)
	}

	state, _ = g.IsLocked(ctx, "+15559999999", "198.51.100.1", now)
	if state.Locked {
		t.Fatalf("other origin should be unaffected, got %+v", state)
	}
}

func TestAbuseGuardConcurrentWritesNotLost(t *testing.T) {
	_, rdb := newTestRedis(t)
	g := NewAbuseGuard(rdb, testAbuseConfig())
	ctx := context.Background()
	now := time.Now()

	var wg sync.WaitGroup
	for i := 0; i < 20; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_ = g.RecordAttempt(ctx, Attempt{Phone: "+15550001111", OccurredAt: now})
		}()
	}
	wg.Wait()

	tally, err := g.Tally(ctx, now.Add(-time.Minute))
	if err != nil {
		t.Fatalf("Tally failed: %v", err)
	}
	if tally.Failed != 20 {
		t.Fatalf("expected 20 failures, got %d", tally.Failed)
	}
}

func TestAbuseGuardPurgeAndTally(t *testing.T) {
	_, rdb := newTestRedis(t)
	g := NewAbuseGuard(rdb, testAbuseConfig())
	ctx := context.Background()
	base := time.Now().Add(-10 * 24 * time.Hour)

	_ = g.RecordAttempt(ctx, Attempt{Phone: "+1", Succeeded: true, OccurredAt: base})
	_ = g.RecordAttempt(ctx, Attempt{Phone: "+1", OccurredAt: base})
	_ = g.RecordAttempt(ctx, Attempt{Phone: "+1", Succeeded: true, UserAgent: "ua", OccurredAt: base.Add(9 * 24 * time.Hour)})

	removed, err := g.PurgeBefore(ctx, base.Add(3*24*time.Hour))
	if err != nil {
		t.Fatalf("PurgeBefore failed: %v", err)
	}
	if removed != 2 {
		t.Fatalf("expected 2 removed, got %d", removed)
	}

	tally, _ := g.Tally(ctx, base)
	if tally.Succeeded != 1 || tally.Failed != 0 {
		t.Fatalf("unexpected tally after purge: %+v", tally)
	}

	recent, err := g.Recent(ctx, base, 10)
	if err != nil {
		t.Fatalf("Recent failed: %v", err)
	}
	if len(recent) != 1 || recent[0].UserAgent != "ua" {
		t.Fatalf("unexpected recent attempts: %+v", recent)
	}
}

func TestAbuseGuardNilSafe(t *testing.T) {
	var g *AbuseGuard
	if err := g.RecordAttempt(context.Background(), Attempt{Phone: "+1"}); err != nil {
		t.Fatalf("nil RecordAttempt: %v", err)
	}
	if state, err := g.IsLocked(context.Background(), "+1", "", time.Now()); err != nil || state.Locked {
		t.Fatalf("nil IsLocked: %+v %v", state, err)
	}
}

func TestChallengeRequestLimiter(t *testing.T) {
	_, rdb := newTestRedis(t)
	l := NewChallengeRequestLimiter(rdb, ChallengeRequestConfig{Enabled: true, MaxRequests: 2, Window: time.Hour})
	ctx := context.Background()

	for i := 0; i < 2; i++ {
		if err := l.Check(ctx, "10.0.0.1"); err != nil {
			t.Fatalf("request %d: %v", i+1, err)
		}
	}
	if err := l.Check(ctx, "10.0.0.1"); !errors.Is(err, ErrChallengeRequestRateLimited) {
		t.Fatalf("expected ErrChallengeRequestRateLimited, got %v", err)
	}
	if err := l.Check(ctx, ""); err != nil {
		t.Fatalf("unknown origin is not throttled: %v", err)
	}
}
