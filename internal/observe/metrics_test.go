package observe

import (
	"context"
	"testing"
	"time"

	"go.opentelemetry.io/otel/attribute"
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

// sumWhere returns the value of the int64 sum data point whose attributes
// include every key/value in match.
func sumWhere(t *testing.T, rm metricdata.ResourceMetrics, name string, match ...attribute.KeyValue) int64 {
	t.Helper()
	met := findMetric(rm, name)
	if met == nil {
		t.Fatalf("metric %q not found", name)
	}
	sum, ok := met.Data.(metricdata.Sum[int64])
	if !ok {
		t.Fatalf("metric %q is not an int64 sum", name)
	}
	var total int64
	for _, dp := range sum.DataPoints {
		matched := true
		for _, kv := range match {
			if v, ok := dp.Attributes.Value(kv.Key); !ok || v.Emit() != kv.Value.Emit() {
				matched = false
				break
			}
		}
		if matched {
			total += dp.Value
		}
	}
	return total
}

func TestNewMetrics_CreatesWithoutError(t *testing.T) {
	m, _ := newTestMetrics(t)
	if m == nil {
		t.Fatal("NewMetrics returned nil")
	}
}

func TestRecordFrames(t *testing.T) {
	m, reader := newTestMetrics(t)
	ctx := context.Background()

	m.RecordFrames(ctx, DirectionSent, "data", 47, 96000*2)
	m.RecordFrames(ctx, DirectionSent, "sentinel", 1, 0)
	m.RecordFrames(ctx, DirectionReceived, "data", 3, 9000)

	rm := collect(t, reader)
	if got := sumWhere(t, rm, "voxclient.frames", Attr("direction", DirectionSent), Attr("kind", "data")); got != 47 {
		t.Errorf("sent data frames = %d, want 47", got)
	}
	if got := sumWhere(t, rm, "voxclient.frames", Attr("kind", "sentinel")); got != 1 {
		t.Errorf("sentinels = %d, want 1", got)
	}
	if got := sumWhere(t, rm, "voxclient.payload.bytes", Attr("direction", DirectionReceived)); got != 9000 {
		t.Errorf("received bytes = %d, want 9000", got)
	}
}

func TestRecordTransition(t *testing.T) {
	m, reader := newTestMetrics(t)
	ctx := context.Background()

	m.RecordTransition(ctx, "idle", "recording", "wake_confirmed")
	m.RecordTransition(ctx, "recording", "playing", "ack_received")
	m.RecordTransition(ctx, "playing", "idle", "end_of_stream")
	m.RecordTransition(ctx, "idle", "recording", "wake_confirmed")

	rm := collect(t, reader)
	if got := sumWhere(t, rm, "voxclient.session.transitions", Attr("to", "recording")); got != 2 {
		t.Errorf("transitions to recording = %d, want 2", got)
	}
	if got := sumWhere(t, rm, "voxclient.session.transitions"); got != 4 {
		t.Errorf("all transitions = %d, want 4", got)
	}
}

func TestConnectionCounters(t *testing.T) {
	m, reader := newTestMetrics(t)
	ctx := context.Background()

	for range 4 {
		m.RecordConnectAttempt(ctx, "error")
	}
	m.RecordConnectAttempt(ctx, "ok")
	m.RecordReconnect(ctx, "transport")
	m.LinkResets.Add(ctx, 1)
	m.Connected.Add(ctx, 1)
	m.Connected.Add(ctx, -1)
	m.Connected.Add(ctx, 1)

	rm := collect(t, reader)
	if got := sumWhere(t, rm, "voxclient.conn.attempts", Attr("status", "error")); got != 4 {
		t.Errorf("failed attempts = %d, want 4", got)
	}
	if got := sumWhere(t, rm, "voxclient.conn.reconnects", Attr("reason", "transport")); got != 1 {
		t.Errorf("reconnects = %d, want 1", got)
	}
	if got := sumWhere(t, rm, "voxclient.link.resets"); got != 1 {
		t.Errorf("link resets = %d, want 1", got)
	}
	if got := sumWhere(t, rm, "voxclient.conn.connected"); got != 1 {
		t.Errorf("connected = %d, want 1", got)
	}
}

func TestDurationHistograms(t *testing.T) {
	m, reader := newTestMetrics(t)
	ctx := context.Background()

	m.RecordRecording(ctx, 3*time.Second, "max_duration")
	m.RecordRecording(ctx, 1200*time.Millisecond, "silence")
	m.PlaybackDuration.Record(ctx, 2.5)

	rm := collect(t, reader)
	for name, want := range map[string]uint64{
		"voxclient.session.recording.duration": 2,
		"voxclient.session.playback.duration":  1,
	} {
		met := findMetric(rm, name)
		if met == nil {
			t.Fatalf("metric %q not found", name)
		}
		hist, ok := met.Data.(metricdata.Histogram[float64])
		if !ok {
			t.Fatalf("metric %q is not a histogram", name)
		}
		var count uint64
		for _, dp := range hist.DataPoints {
			count += dp.Count
		}
		if count != want {
			t.Errorf("%s count = %d, want %d", name, count, want)
		}
	}
}

func TestDefaultMetrics_Singleton(t *testing.T) {
	if DefaultMetrics() != DefaultMetrics() {
		t.Error("DefaultMetrics returned different instances")
	}
}
