package otel

import (
	"context"
	"sync"
	"testing"

	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
	"go.opentelemetry.io/otel/sdk/metric/metricdata"

	"github.com/MrEthical07/sessioncap"
)

type fakeSource struct {
	mu       sync.RWMutex
	counters map[sessioncap.MetricID]uint64
	latency  []uint64
	dropped  uint64
}

func (f *fakeSource) MetricsSnapshot() sessioncap.MetricsSnapshot {
	f.mu.RLock()
	defer f.mu.RUnlock()
	out := sessioncap.MetricsSnapshot{
		Counters:   make(map[sessioncap.MetricID]uint64, len(f.counters)),
		Histograms: map[sessioncap.MetricID][]uint64{},
	}
	for k, v := range f.counters {
		out.Counters[k] = v
	}
	if f.latency != nil {
		out.Histograms[sessioncap.MetricValidateLatency] = append([]uint64(nil), f.latency...)
	}
	return out
}

func (f *fakeSource) AuditDropped() uint64 {
	f.mu.RLock()
	defer f.mu.RUnlock()
	return f.dropped
}

func newReader(t *testing.T) (*sdkmetric.ManualReader, *sdkmetric.MeterProvider) {
	t.Helper()
	reader := sdkmetric.NewManualReader()
	provider := sdkmetric.NewMeterProvider(sdkmetric.WithReader(reader))
	t.Cleanup(func() { _ = provider.Shutdown(context.Background()) })
	return reader, provider
}

func collectSums(t *testing.T, reader *sdkmetric.ManualReader) map[string]int64 {
	t.Helper()
	var rm metricdata.ResourceMetrics
	if err := reader.Collect(context.Background(), &rm); err != nil {
		t.Fatalf("Collect failed: %v", err)
	}
	out := map[string]int64{}
	for _, sm := range rm.ScopeMetrics {
		for _, m := range sm.Metrics {
			switch data := m.Data.(type) {
			case metricdata.Sum[int64]:
				for _, dp := range data.DataPoints {
					out[m.Name] += dp.Value
				}
			case metricdata.Gauge[int64]:
				for _, dp := range data.DataPoints {
					out[m.Name] += dp.Value
				}
			}
		}
	}
	return out
}

func TestExporterReportsSnapshot(t *testing.T) {
	reader, provider := newReader(t)
	src := &fakeSource{
		counters: map[sessioncap.MetricID]uint64{
			sessioncap.MetricLoginSuccess:   3,
			sessioncap.MetricSessionEvicted: 1,
		},
		latency: []uint64{1, 1, 1, 1, 1, 1, 1, 1},
		dropped: 1,
	}

	exp, err := NewExporter(provider.Meter("sessioncap-test"), src)
	if err != nil {
		t.Fatalf("NewExporter failed: %v", err)
	}
	defer func() {
		if err := exp.Close(); err != nil {
			t.Fatalf("Close failed: %v", err)
		}
	}()

	got := collectSums(t, reader)
	checks := map[string]int64{
		"sessioncap_login_success_total":                     3,
		"sessioncap_session_evicted_total":                   1,
		"sessioncap_audit_dropped_total":                     1,
		"sessioncap_validate_latency_seconds_bucket_le_0_01": 2,
		"sessioncap_validate_latency_seconds_count":          8,
	}
	for name, want := range checks {
		if got[name] != want {
			t.Fatalf("%s = %d, want %d (all: %v)", name, got[name], want, got)
		}
	}
}

func TestExporterRejectsNilInputs(t *testing.T) {
	_, provider := newReader(t)
	if _, err := NewExporter(provider.Meter("sessioncap-test"), nil); err != ErrNilSource {
		t.Fatalf("expected ErrNilSource, got %v", err)
	}
	if _, err := NewExporter(nil, &fakeSource{}); err != ErrNilMeter {
		t.Fatalf("expected ErrNilMeter, got %v", err)
	}
}

func TestExporterConcurrentCollectNoPanic(t *testing.T) {
	reader, provider := newReader(t)
	src := &fakeSource{counters: map[sessioncap.MetricID]uint64{sessioncap.MetricLoginSuccess: 1}}

	exp, err := NewExporter(provider.Meter("sessioncap-test"), src)
	if err != nil {
		t.Fatalf("NewExporter failed: %v", err)
	}
	defer func() { _ = exp.Close() }()

	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func(v uint64) {
			defer wg.Done()
			src.mu.Lock()
			src.counters[sessioncap.MetricLoginSuccess] = v
			src.mu.Unlock()

			var rm metricdata.ResourceMetrics
			_ = reader.Collect(context.Background(), &rm)
		}(uint64(i + 1))
	}
	wg.Wait()
}
