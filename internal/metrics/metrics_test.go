package metrics

import (
	"sync"
	"testing"
	"time"
)

func TestDisabledMetricsAreInert(t *testing.T) {
	m := New(Config{})
	m.Inc(MetricLoginSuccess)
	if m.Value(MetricLoginSuccess) != 0 {
		t.Fatal("disabled metrics counted")
	}
	var nilMetrics *Metrics
	nilMetrics.Inc(MetricLoginSuccess)
	if len(nilMetrics.Snapshot().Counters) != 0 {
		t.Fatal("nil snapshot should be empty")
	}
}

func TestConcurrentIncrements(t *testing.T) {
	m := New(Config{Enabled: true})
	var wg sync.WaitGroup
	for i := 0; i < 16; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for j := 0; j < 1000; j++ {
				m.Inc(MetricChallengeIssued)
			}
		}()
	}
	wg.Wait()
	if got := m.Value(MetricChallengeIssued); got != 16000 {
		t.Fatalf("expected 16000, got %d", got)
	}
	m.Add(MetricPurgedChallenges, 42)
	if got := m.Snapshot().Counters[MetricPurgedChallenges]; got != 42 {
		t.Fatalf("expected 42, got %d", got)
	}
}

func TestLatencyBuckets(t *testing.T) {
	m := New(Config{Enabled: true, EnableLatency: true})
	m.Observe(MetricVerifyAccessLatency, 3*time.Millisecond)
	m.Observe(MetricVerifyAccessLatency, 70*time.Millisecond)
	m.Observe(MetricVerifyAccessLatency, time.Second)
	m.Observe(MetricLoginSuccess, time.Millisecond)

	buckets := m.Snapshot().Histograms[MetricVerifyAccessLatency]
	if len(buckets) != 8 || buckets[0] != 1 || buckets[4] != 1 || buckets[7] != 1 {
		t.Fatalf("unexpected buckets: %v", buckets)
	}
	if _, ok := m.Snapshot().Histograms[MetricLoginSuccess]; ok {
		t.Fatal("non-latency metric must not keep a histogram")
	}
}
