package observe

import (
	"context"
	"testing"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
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

// sumFor returns the value of the Int64 sum data point whose attribute key
// equals value, or -1 if none matches.
func sumFor(t *testing.T, met *metricdata.Metrics, key, value string) int64 {
	t.Helper()
	sum, ok := met.Data.(metricdata.Sum[int64])
	if !ok {
		t.Fatalf("metric %q is not an int64 sum", met.Name)
	}
	for _, dp := range sum.DataPoints {
		if v, ok := dp.Attributes.Value(attribute.Key(key)); ok && v.AsString() == value {
			return dp.Value
		}
	}
	return -1
}

func TestNewMetrics_CreatesWithoutError(t *testing.T) {
	m, _ := newTestMetrics(t)
	if m == nil {
		t.Fatal("NewMetrics returned nil")
	}
}

func TestHistogramObservation(t *testing.T) {
	m, reader := newTestMetrics(t)
	ctx := context.Background()

	histograms := []struct {
		name string
		h    metric.Float64Histogram
	}{
		{"speechstudio.generation.duration", m.GenerationDuration},
		{"speechstudio.decode.duration", m.DecodeDuration},
		{"speechstudio.tool_execution.duration", m.ToolExecutionDuration},
		{"speechstudio.http.request.duration", m.HTTPRequestDuration},
	}

	for _, tc := range histograms {
		tc.h.Record(ctx, 0.123)
		tc.h.Record(ctx, 0.456)
	}

	rm := collect(t, reader)

	for _, tc := range histograms {
		t.Run(tc.name, func(t *testing.T) {
			met := findMetric(rm, tc.name)
			if met == nil {
				t.Fatalf("metric %q not found", tc.name)
			}
			hist, ok := met.Data.(metricdata.Histogram[float64])
			if !ok {
				t.Fatalf("metric %q is not a histogram", tc.name)
			}
			if len(hist.DataPoints) == 0 {
				t.Fatalf("metric %q has no data points", tc.name)
			}
			if got := hist.DataPoints[0].Count; got != 2 {
				t.Errorf("sample count = %d, want 2", got)
			}
		})
	}
}

func TestRecordGeneration(t *testing.T) {
	m, reader := newTestMetrics(t)
	ctx := context.Background()

	m.RecordGeneration(ctx, "gemini", 1.5, "")
	m.RecordGeneration(ctx, "gemini", 0.2, "")
	m.RecordGeneration(ctx, "gemini", 0.1, "text_not_audio")

	rm := collect(t, reader)

	req := findMetric(rm, "speechstudio.provider.requests")
	if req == nil {
		t.Fatal("provider.requests not found")
	}
	if got := sumFor(t, req, "status", "ok"); got != 2 {
		t.Errorf("ok requests = %d, want 2", got)
	}
	if got := sumFor(t, req, "status", "error"); got != 1 {
		t.Errorf("error requests = %d, want 1", got)
	}

	errs := findMetric(rm, "speechstudio.provider.errors")
	if errs == nil {
		t.Fatal("provider.errors not found")
	}
	if got := sumFor(t, errs, "reason", "text_not_audio"); got != 1 {
		t.Errorf("text_not_audio errors = %d, want 1", got)
	}

	dur := findMetric(rm, "speechstudio.generation.duration")
	if dur == nil {
		t.Fatal("generation.duration not found")
	}
	hist := dur.Data.(metricdata.Histogram[float64])
	var total uint64
	for _, dp := range hist.DataPoints {
		total += dp.Count
	}
	if total != 3 {
		t.Errorf("duration samples = %d, want 3", total)
	}
}

func TestPlaybackCounters(t *testing.T) {
	m, reader := newTestMetrics(t)
	ctx := context.Background()

	m.RecordPlaybackStart(ctx, "generate")
	m.RecordPlaybackStart(ctx, "replay")
	m.RecordPlaybackStart(ctx, "replay")
	m.RecordPlaybackEnd(ctx, "drained")
	m.RecordPlaybackEnd(ctx, "stopped")

	rm := collect(t, reader)

	starts := findMetric(rm, "speechstudio.playback.starts")
	if starts == nil {
		t.Fatal("playback.starts not found")
	}
	if got := sumFor(t, starts, "trigger", "replay"); got != 2 {
		t.Errorf("replay starts = %d, want 2", got)
	}
	ends := findMetric(rm, "speechstudio.playback.ends")
	if ends == nil {
		t.Fatal("playback.ends not found")
	}
	if got := sumFor(t, ends, "reason", "drained"); got != 1 {
		t.Errorf("drained ends = %d, want 1", got)
	}
}

func TestToolCallsCounter(t *testing.T) {
	m, reader := newTestMetrics(t)
	ctx := context.Background()

	m.RecordToolCall(ctx, "generate_speech", "ok")
	m.RecordToolCall(ctx, "generate_speech", "ok")
	m.RecordToolCall(ctx, "export_wav", "error")

	rm := collect(t, reader)
	met := findMetric(rm, "speechstudio.tool.calls")
	if met == nil {
		t.Fatal("metric not found")
	}
	if got := sumFor(t, met, "tool", "generate_speech"); got != 2 {
		t.Errorf("generate_speech calls = %d, want 2", got)
	}
}

func TestExportsAndFrames(t *testing.T) {
	m, reader := newTestMetrics(t)
	ctx := context.Background()

	m.RecordExport(ctx, "http")
	m.VisualFrames.Add(ctx, 60)
	m.VisualizerClients.Add(ctx, 2)
	m.VisualizerClients.Add(ctx, -1)

	rm := collect(t, reader)

	if met := findMetric(rm, "speechstudio.exports"); met == nil {
		t.Error("exports not found")
	} else if got := sumFor(t, met, "target", "http"); got != 1 {
		t.Errorf("http exports = %d, want 1", got)
	}

	gauges := []struct {
		name string
		want int64
	}{
		{"speechstudio.visual.frames", 60},
		{"speechstudio.visualizer.clients", 1},
	}
	for _, tc := range gauges {
		t.Run(tc.name, func(t *testing.T) {
			met := findMetric(rm, tc.name)
			if met == nil {
				t.Fatalf("metric %q not found", tc.name)
			}
			sum, ok := met.Data.(metricdata.Sum[int64])
			if !ok {
				t.Fatalf("metric %q is not a sum", tc.name)
			}
			if len(sum.DataPoints) == 0 {
				t.Fatalf("metric %q has no data points", tc.name)
			}
			if got := sum.DataPoints[0].Value; got != tc.want {
				t.Errorf("value = %d, want %d", got, tc.want)
			}
		})
	}
}

func TestDefaultMetrics_ReturnsSameInstance(t *testing.T) {
	// DefaultMetrics uses the global OTel provider so we just check
	// that repeated calls return the same pointer.
	a := DefaultMetrics()
	b := DefaultMetrics()
	if a != b {
		t.Error("DefaultMetrics returned different pointers")
	}
}
