// Command phoneauth-loadtest measures challenge store throughput: an issue
// phase that installs a challenge per phone, then a verify phase that
// mixes wrong and correct codes against those slots.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"math/rand"
	"os"
	"slices"
	"sync"
	"sync/atomic"
	"time"

	"github.com/MrEthical07/phoneauth/internal"
	"github.com/MrEthical07/phoneauth/internal/stores"
	"github.com/alicebob/miniredis/v2"
	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
)

const (
	loadPurpose = "login"
	loadCode    = "482913"
	wrongCode   = "000000"
)

func main() {
	var (
		phones      = flag.Int("phones", 20000, "number of distinct phone numbers")
		concurrency = flag.Int("concurrency", 256, "number of concurrent workers")
		ops         = flag.Int("ops", 100000, "operations in the verify phase")
		mismatch    = flag.Float64("mismatch", 0.3, "fraction of verify calls sent with a wrong code")
		redisAddr   = flag.String("redis-addr", "", "redis address; if empty, REDIS_ADDR env or miniredis is used")
		prefix      = flag.String("prefix", "otpload", "challenge key prefix")
	)
	flag.Parse()

	if *phones <= 0 || *concurrency <= 0 || *ops <= 0 || *mismatch < 0 || *mismatch > 1 {
		fmt.Fprintln(os.Stderr, "phones, concurrency, and ops must be > 0; mismatch must be in [0,1]")
		os.Exit(2)
	}

	ctx := context.Background()

	addr := *redisAddr
	if addr == "" {
		addr = os.Getenv("REDIS_ADDR")
	}

	var (
		cleanup func()
		client  redis.UniversalClient
	)
	if addr == "" {
		mr, err := miniredis.Run()
		if err != nil {
			fmt.Fprintf(os.Stderr, "failed to start miniredis: %v\n", err)
			os.Exit(1)
		}
		addr = mr.Addr()
		client = redis.NewUniversalClient(&redis.UniversalOptions{
			Addrs: []string{addr},
		})
		cleanup = func() {
			_ = client.Close()
			mr.Close()
		}
		fmt.Printf("using miniredis at %s\n", addr)
	} else {
		client = redis.NewUniversalClient(&redis.UniversalOptions{
			Addrs: []string{addr},
		})
		cleanup = func() { _ = client.Close() }
		fmt.Printf("using redis at %s\n", addr)
	}
	defer cleanup()

	store := stores.NewChallengeStore(client, *prefix)
	numbers := make([]string, *phones)
	for i := range numbers {
		numbers[i] = fmt.Sprintf("+1555%07d", i)
	}

	issueStats := runIssuePhase(ctx, store, numbers, *concurrency)
	verifyStats := runVerifyPhase(ctx, store, numbers, *ops, *concurrency, *mismatch)

	fmt.Println("---- results ----")
	fmt.Println("issue: ", issueStats)
	fmt.Println("verify:", verifyStats)
}

// op runs one operation. i is the operation index and r the worker's
// private random source. A non-nil error counts as a failure.
type op func(ctx context.Context, i int, r *rand.Rand) error

// runPhase executes ops calls of fn across concurrency workers and
// records per-call latency.
func runPhase(ctx context.Context, ops, concurrency int, fn op) phaseStats {
	var (
		wg       sync.WaitGroup
		cursor   atomic.Int64
		failures atomic.Int64
	)
	perWorker := make([][]time.Duration, concurrency)

	start := time.Now()
	for w := range concurrency {
		wg.Go(func() {
			r := rand.New(rand.NewSource(time.Now().UnixNano() + int64(w)*7919))
			samples := make([]time.Duration, 0, ops/concurrency+1)
			for {
				i := int(cursor.Add(1)) - 1
				if i >= ops {
					break
				}
				t0 := time.Now()
				if err := fn(ctx, i, r); err != nil {
					failures.Add(1)
				}
				samples = append(samples, time.Since(t0))
			}
			perWorker[w] = samples
		})
	}
	wg.Wait()
	elapsed := time.Since(start)

	var all []time.Duration
	for _, samples := range perWorker {
		all = append(all, samples...)
	}
	return computeStats(elapsed, all, failures.Load())
}

func runIssuePhase(ctx context.Context, store *stores.ChallengeStore, numbers []string, concurrency int) phaseStats {
	return runPhase(ctx, len(numbers), concurrency, func(ctx context.Context, i int, _ *rand.Rand) error {
		now := time.Now()
		return store.Issue(ctx, &stores.ChallengeRecord{
			ID:        uuid.NewString(),
			Phone:     numbers[i],
			Purpose:   loadPurpose,
			CodeHash:  hashCode(numbers[i], loadCode),
			CreatedAt: now.UnixMilli(),
			ExpiresAt: now.Add(time.Hour).UnixMilli(),
		}, stores.IssueParams{
			Now:       now,
			TTL:       time.Hour,
			Retention: 2 * time.Hour,
		})
	})
}

// runVerifyPhase counts only infrastructure errors as failures. Mismatch,
// exhausted and consumed slots are expected outcomes under load.
func runVerifyPhase(ctx context.Context, store *stores.ChallengeStore, numbers []string, ops, concurrency int, mismatch float64) phaseStats {
	return runPhase(ctx, ops, concurrency, func(ctx context.Context, _ int, r *rand.Rand) error {
		phone := numbers[r.Intn(len(numbers))]
		code := loadCode
		if r.Float64() < mismatch {
			code = wrongCode
		}
		_, err := store.Verify(ctx, phone, loadPurpose, hashCode(phone, code), time.Now(), 3)
		if errors.Is(err, stores.ErrChallengeUnavailable) {
			return err
		}
		return nil
	})
}

type phaseStats struct {
	elapsed  time.Duration
	ops      int
	failures int64
	p50      time.Duration
	p95      time.Duration
	p99      time.Duration
	opsPerS  float64
}

func (s phaseStats) String() string {
	return fmt.Sprintf("ops=%d failures=%d total=%s ops/sec=%.0f p50=%s p95=%s p99=%s",
		s.ops,
		s.failures,
		s.elapsed.Round(time.Millisecond),
		s.opsPerS,
		s.p50.Round(time.Microsecond),
		s.p95.Round(time.Microsecond),
		s.p99.Round(time.Microsecond),
	)
}

func computeStats(elapsed time.Duration, samples []time.Duration, failures int64) phaseStats {
	stats := phaseStats{elapsed: elapsed, ops: len(samples), failures: failures}
	if len(samples) == 0 {
		return stats
	}
	slices.Sort(samples)
	stats.p50 = percentile(samples, 50)
	stats.p95 = percentile(samples, 95)
	stats.p99 = percentile(samples, 99)
	stats.opsPerS = float64(len(samples)) / elapsed.Seconds()
	return stats
}

// percentile expects sorted samples.
func percentile(samples []time.Duration, p int) time.Duration {
	switch {
	case len(samples) == 0:
		return 0
	case p <= 0:
		return samples[0]
	case p >= 100:
		return samples[len(samples)-1]
	}
	return samples[(len(samples)-1)*p/100]
}

var loadKey = internal.DeriveKey([]byte("phoneauth-loadtest"), "phoneauth challenge code")

func hashCode(phone, code string) [32]byte {
	return internal.HashChallengeCode(loadKey, phone, loadPurpose, code)
}
