package observe

import (
	"context"
	"testing"

	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
	"go.opentelemetry.io/otel/sdk/metric/metricdata"
)

// newTestMetrics returns a Metrics instance backed by a ManualReader for
// programmatic metric inspection.
func newTestMetrics(t *testing.T) (*Metrics, *sdkmetric.ManualReader) {
	t.Helper()
	reader := sdkmetric.NewManualReader()
	mp := sdkmetric.NewMeterProvider(sdkmetric.WithReader(reader))
	t.Cleanup(func() { _ = mp.Shutdown(context.Background()) })

	m, err := NewMetrics(mp)
	if err != nil {
		t.Fatalf("NewMetrics: %v", err)
	}
	return m, reader
}

// collect gathers all metric data from the reader.
func collect(t *testing.T, reader *sdkmetric.ManualReader) metricdata.ResourceMetrics {
	t.Helper()
	var rm metricdata.ResourceMetrics
	if err := reader.Collect(context.Background(), &rm); err != nil {
		t.Fatalf("Collect: %v", err)
	}
	return rm
}

// findMetric searches for a metric by name across all scope metrics.
func findMetric(rm metricdata.ResourceMetrics, name string) *metricdata.Metrics {
	for _, sm := range rm.ScopeMetrics {
		for i := range sm.Metrics {
			if sm.Metrics[i].Name == name {
				return &sm.Metrics[i]
			}
		}
	}
	return nil
}

func TestNewMetrics_CreatesWithoutError(t *testing.T) {
	m, _ := newTestMetrics(t)
	if m == nil {
		t.Fatal("NewMetrics returned nil")
	}
}

func TestRecordToolCall(t *testing.T) {
	m, reader := newTestMetrics(t)
	ctx := context.Background()

	m.RecordToolCall(ctx, "run_inspection", "ok", 1.25)
	m.RecordToolCall(ctx, "run_inspection", "error", 0.1)

	rm := collect(t, reader)

	calls := findMetric(rm, "techvox.tool.calls")
	if calls == nil {
		t.Fatal("techvox.tool.calls not found")
	}
	sum, ok := calls.Data.(metricdata.Sum[int64])
	if !ok {
		t.Fatalf("tool.calls data type = %T", calls.Data)
	}
	var total int64
	for _, dp := range sum.DataPoints {
		total += dp.Value
	}
	if total != 2 {
		t.Errorf("tool.calls total = %d, want 2", total)
	}

	dur := findMetric(rm, "techvox.tool.duration")
	if dur == nil {
		t.Fatal("techvox.tool.duration not found")
	}
	hist, ok := dur.Data.(metricdata.Histogram[float64])
	if !ok {
		t.Fatalf("tool.duration data type = %T", dur.Data)
	}
	if len(hist.DataPoints) == 0 || hist.DataPoints[0].Count == 0 {
		t.Error("tool.duration recorded no observations")
	}
}

func TestSessionGauge(t *testing.T) {
	m, reader := newTestMetrics(t)
	ctx := context.Background()

	m.SessionStarted(ctx)
	m.SessionStarted(ctx)
	m.SessionEnded(ctx)

	rm := collect(t, reader)
	g := findMetric(rm, "techvox.active_sessions")
	if g == nil {
		t.Fatal("techvox.active_sessions not found")
	}
	sum, ok := g.Data.(metricdata.Sum[int64])
	if !ok {
		t.Fatalf("active_sessions data type = %T", g.Data)
	}
	if len(sum.DataPoints) != 1 || sum.DataPoints[0].Value != 1 {
		t.Errorf("active_sessions = %+v, want single point with value 1", sum.DataPoints)
	}
}

func TestObserveDroppedPlayback(t *testing.T) {
	m, reader := newTestMetrics(t)

	var dropped int64 = 4096
	if err := m.ObserveDroppedPlayback(func() int64 { return dropped }); err != nil {
		t.Fatalf("ObserveDroppedPlayback: %v", err)
	}

	rm := collect(t, reader)
	g := findMetric(rm, "techvox.audio.playback_dropped_bytes")
	if g == nil {
		t.Fatal("techvox.audio.playback_dropped_bytes not found")
	}
	sum, ok := g.Data.(metricdata.Sum[int64])
	if !ok {
		t.Fatalf("dropped bytes data type = %T", g.Data)
	}
	if len(sum.DataPoints) != 1 || sum.DataPoints[0].Value != 4096 {
		t.Errorf("dropped bytes = %+v, want 4096", sum.DataPoints)
	}
}

func TestNilMetricsAreSafe(t *testing.T) {
	var m *Metrics
	ctx := context.Background()

	// None of these may panic.
	m.RecordToolCall(ctx, "run_inspection", "ok", 1)
	m.AddReconnectAttempt(ctx)
	m.AddRelayEvent(ctx, "audio")
	m.RecordTransition(ctx, "idle", "passive_listening")
	m.RecordWakeTrigger(ctx, "accepted")
	m.SessionStarted(ctx)
	m.SessionEnded(ctx)
	if err := m.ObserveDroppedPlayback(func() int64 { return 0 }); err != nil {
		t.Errorf("nil ObserveDroppedPlayback error = %v", err)
	}
}
