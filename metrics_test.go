package gradauth

import (
	"context"
	"sync"
	"testing"
	"time"
)

func TestMetricsCountFlows(t *testing.T) {
	env := newTestEnv(t, nil, nil)

	session := env.signup(t, "alice@example.com", "correct horse battery")
	if _, err := env.engine.Login(context.Background(), "alice@example.com", "correct horse battery"); err != nil {
		t.Fatalf("login failed: %v", err)
	}
	_, _ = env.engine.Login(context.Background(), "alice@example.com", "wrong pass")
	if _, err := env.engine.Refresh(context.Background(), session.RefreshToken); err != nil {
		t.Fatalf("refresh failed: %v", err)
	}

	snap := env.engine.MetricsSnapshot()
	checks := map[MetricID]uint64{
		MetricSignupSuccess:  1,
		MetricLoginSuccess:   1,
		MetricLoginFailure:   1,
		MetricRefreshSuccess: 1,
		MetricSessionCreated: 3,
	}
	for id, want := range checks {
		if got := snap.Counters[id]; got != want {
			t.Fatalf("counter %d: got %d want %d", id, got, want)
		}
	}
}

func TestMetricsDisabledSnapshotEmpty(t *testing.T) {
	env := newTestEnv(t, func(cfg *Config) {
		cfg.Metrics.Enabled = false
	}, nil)

	env.signup(t, "alice@example.com", "correct horse battery")

	snap := env.engine.MetricsSnapshot()
	if len(snap.Counters) != 0 {
		t.Fatalf("disabled metrics still counted: %v", snap.Counters)
	}
}

func TestMetricsConcurrentIncrements(t *testing.T) {
	m := NewMetrics(MetricsConfig{Enabled: true})

	const workers = 8
	const perWorker = 1000

	var wg sync.WaitGroup
	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for j := 0; j < perWorker; j++ {
				m.Inc(MetricLoginSuccess)
			}
		}()
	}
	wg.Wait()

	if got := m.Value(MetricLoginSuccess); got != workers*perWorker {
		t.Fatalf("lost increments: got %d want %d", got, workers*perWorker)
	}
}

func TestLatencyHistogramBuckets(t *testing.T) {
	m := NewMetrics(MetricsConfig{Enabled: true, EnableLatencyHistograms: true})

	m.Observe(MetricValidateLatency, 2*time.Millisecond)
	m.Observe(MetricValidateLatency, 40*time.Millisecond)
	m.Observe(MetricValidateLatency, 2*time.Second)

	buckets := m.Snapshot().Histograms[MetricValidateLatency]
	if len(buckets) != histBucketCount {
		t.Fatalf("bucket count: got %d", len(buckets))
	}
	if buckets[0] != 1 || buckets[3] != 1 || buckets[histBucketCount-1] != 1 {
		t.Fatalf("unexpected bucket fill: %v", buckets)
	}
}

func TestLatencyObserveIgnoredWhenDisabled(t *testing.T) {
	m := NewMetrics(MetricsConfig{Enabled: true})

	m.Observe(MetricValidateLatency, time.Millisecond)

	if hist, ok := m.Snapshot().Histograms[MetricValidateLatency]; ok {
		t.Fatalf("histogram present with latency disabled: %v", hist)
	}
}
