package sweeper

import (
	"bytes"
	"context"
	"errors"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/MrEthical07/phoneauth"
	"github.com/rs/zerolog"
)

type fakeEngine struct {
	mu         sync.Mutex
	purgeCalls []time.Time
	statsCalls []time.Time
	purgeErr   error
	purged     chan struct{}
}

func newFakeEngine() *fakeEngine {
	return &fakeEngine{purged: make(chan struct{}, 8)}
}

func (f *fakeEngine) PurgeExpired(_ context.Context, now time.Time) (phoneauth.PurgeReport, error) {
	f.mu.Lock()
	f.purgeCalls = append(f.purgeCalls, now)
	f.mu.Unlock()
	select {
	case f.purged <- struct{}{}:
	default:
	}
	if f.purgeErr != nil {
		return phoneauth.PurgeReport{}, f.purgeErr
	}
	return phoneauth.PurgeReport{Challenges: 3, Attempts: 12}, nil
}

func (f *fakeEngine) Stats(_ context.Context, since time.Time) (phoneauth.Stats, error) {
	f.mu.Lock()
	f.statsCalls = append(f.statsCalls, since)
	f.mu.Unlock()
	return phoneauth.Stats{Since: since, ChallengesIssued: 10, SuccessfulLogins: 9, FailedLogins: 1, SuccessRate: 90}, nil
}

func fixedNow() time.Time {
	return time.Date(2026, 3, 2, 0, 5, 0, 0, time.UTC)
}

func TestNewRegistersJobs(t *testing.T) {
	s, err := New(context.Background(), newFakeEngine(), DefaultConfig(), zerolog.Nop())
	if err != nil {
		t.Fatalf("new failed: %v", err)
	}
	defer s.Shutdown()

	names := strings.Join(s.Jobs(), "|")
	if !strings.Contains(names, PurgeJobName) || !strings.Contains(names, StatsJobName) {
		t.Fatalf("unexpected jobs %q", names)
	}

	cfg := DefaultConfig()
	cfg.DisableStats = true
	s2, err := New(context.Background(), newFakeEngine(), cfg, zerolog.Nop())
	if err != nil {
		t.Fatalf("new failed: %v", err)
	}
	defer s2.Shutdown()
	if len(s2.Jobs()) != 1 {
		t.Fatalf("expected only the purge job, got %v", s2.Jobs())
	}
}

func TestNewRejectsBadInput(t *testing.T) {
	if _, err := New(context.Background(), nil, DefaultConfig(), zerolog.Nop()); err == nil {
		t.Fatalf("expected nil engine to fail")
	}
	cfg := DefaultConfig()
	cfg.StatsHour = 24
	if _, err := New(context.Background(), newFakeEngine(), cfg, zerolog.Nop()); err == nil {
		t.Fatalf("expected invalid stats time to fail")
	}
}

func TestPurgeRunsImmediatelyOnStart(t *testing.T) {
	engine := newFakeEngine()
	cfg := DefaultConfig()
	cfg.Now = fixedNow

	s, err := New(context.Background(), engine, cfg, zerolog.Nop())
	if err != nil {
		t.Fatalf("new failed: %v", err)
	}
	s.Start()
	defer s.Shutdown()

	select {
	case <-engine.purged:
	case <-time.After(2 * time.Second):
		t.Fatalf("purge job did not run on start")
	}

	engine.mu.Lock()
	defer engine.mu.Unlock()
	if !engine.purgeCalls[0].Equal(fixedNow()) {
		t.Fatalf("expected purge at configured clock, got %v", engine.purgeCalls[0])
	}
}

func TestRunStatsUsesWindow(t *testing.T) {
	var buf bytes.Buffer
	engine := newFakeEngine()
	cfg := DefaultConfig()
	cfg.Now = fixedNow

	s, err := New(context.Background(), engine, cfg, zerolog.New(&buf))
	if err != nil {
		t.Fatalf("new failed: %v", err)
	}
	defer s.Shutdown()

	if err := s.RunStats(context.Background()); err != nil {
		t.Fatalf("stats failed: %v", err)
	}
	if want := fixedNow().Add(-24 * time.Hour); !engine.statsCalls[0].Equal(want) {
		t.Fatalf("expected since %v, got %v", want, engine.statsCalls[0])
	}
	out := buf.String()
	if !strings.Contains(out, `"challenges_issued":10`) || !strings.Contains(out, `"success_rate":90`) {
		t.Fatalf("expected stats fields in log, got %s", out)
	}
}

func TestRunPurgeReturnsError(t *testing.T) {
	engine := newFakeEngine()
	engine.purgeErr = phoneauth.ErrUnavailable

	s, err := New(context.Background(), engine, DefaultConfig(), zerolog.Nop())
	if err != nil {
		t.Fatalf("new failed: %v", err)
	}
	defer s.Shutdown()

	if err := s.RunPurge(context.Background()); !errors.Is(err, phoneauth.ErrUnavailable) {
		t.Fatalf("expected ErrUnavailable, got %v", err)
	}
}
