package sessioncap

import (
	"context"
	"sync"
	"testing"
	"time"
)

func TestMetricsDisabledNoIncrement(t *testing.T) {
	m := NewMetrics(MetricsConfig{Enabled: false})
	m.Inc(MetricLoginSuccess)
	if got := m.Value(MetricLoginSuccess); got != 0 {
		t.Fatalf("expected 0, got %d", got)
	}
	if len(m.Snapshot().Counters) != 0 {
		t.Fatal("disabled metrics must snapshot empty")
	}
}

func TestMetricsNilSafe(t *testing.T) {
	var m *Metrics
	m.Inc(MetricLogout)
	m.Observe(MetricValidateLatency, time.Millisecond)
	if m.Value(MetricLogout) != 0 || m.Enabled() {
		t.Fatal("nil metrics must record nothing")
	}
}

func TestMetricsConcurrentIncrementSafe(t *testing.T) {
	m := NewMetrics(MetricsConfig{Enabled: true})

	const goroutines = 16
	const perG = 2000
	var wg sync.WaitGroup
	wg.Add(goroutines)
	for i := 0; i < goroutines; i++ {
		go func() {
			defer wg.Done()
			for j := 0; j < perG; j++ {
				m.Inc(MetricRefreshSuccess)
			}
		}()
	}
	wg.Wait()

	if got, want := m.Value(MetricRefreshSuccess), uint64(goroutines*perG); got != want {
		t.Fatalf("expected %d, got %d", want, got)
	}
}

func TestMetricsHistogramBuckets(t *testing.T) {
	m := NewMetrics(MetricsConfig{Enabled: true, EnableLatencyHistograms: true})
	for _, d := range []time.Duration{
		5 * time.Millisecond,
		10 * time.Millisecond,
		25 * time.Millisecond,
		50 * time.Millisecond,
		100 * time.Millisecond,
		250 * time.Millisecond,
		500 * time.Millisecond,
		700 * time.Millisecond,
	} {
		m.Observe(MetricValidateLatency, d)
	}
	m.Observe(MetricLoginSuccess, time.Second) // ignored

	buckets := m.Snapshot().Histograms[MetricValidateLatency]
	if len(buckets) != histBucketCount {
		t.Fatalf("expected %d buckets, got %d", histBucketCount, len(buckets))
	}
	for i, v := range buckets {
		if v != 1 {
			t.Fatalf("bucket %d expected 1, got %d", i, v)
		}
	}
}

func TestEngineMetricsForEvictionScenario(t *testing.T) {
	cfg := testConfig()
	cfg.Metrics.EnableLatencyHistograms = true
	f := newMemoryEngine(t, cfg)
	ctx := context.Background()

	var last *LoginResult
	for i := 0; i < 3; i++ {
		last = login(t, f.engine, "alice@example.com", "correct-password-123")
	}
	_, _ = f.engine.Login(ctx, "alice@example.com", "wrong")
	if _, err := f.engine.Refresh(ctx, last.RefreshToken); err != nil {
		t.Fatalf("refresh: %v", err)
	}
	if _, err := f.engine.Authenticate(ctx, last.AccessToken); err != nil {
		t.Fatalf("authenticate: %v", err)
	}

	snap := f.engine.MetricsSnapshot()
	checks := map[MetricID]uint64{
		MetricLoginSuccess:   3,
		MetricLoginFailure:   1,
		MetricSessionCreated: 3,
		MetricSessionEvicted: 1,
		MetricRefreshSuccess: 1,
	}
	for id, want := range checks {
		if got := snap.Counters[id]; got != want {
			t.Fatalf("metric %d: expected %d, got %d", id, want, got)
		}
	}
	var samples uint64
	for _, v := range snap.Histograms[MetricValidateLatency] {
		samples += v
	}
	if samples != 1 {
		t.Fatalf("expected one latency sample, got %d", samples)
	}
}

func BenchmarkMetricsIncParallel(b *testing.B) {
	m := NewMetrics(MetricsConfig{Enabled: true})
	b.ReportAllocs()
	b.RunParallel(func(pb *testing.PB) {
		for pb.Next() {
			m.Inc(MetricLoginSuccess)
		}
	})
}
