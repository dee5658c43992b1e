// Package observe provides application-wide observability primitives for the
// speech studio: OpenTelemetry metrics, tracing, structured logging, and HTTP
// middleware that ties them together.
//
// Metrics are recorded through the OpenTelemetry Metrics API. A Prometheus
// exporter bridge is set up by [InitProvider] so that metrics can be scraped
// via the standard /metrics endpoint. A package-level default [Metrics]
// instance ([DefaultMetrics]) is provided for convenience; tests should use
// [NewMetrics] with a custom [metric.MeterProvider] to avoid cross-test
// pollution.
package observe

import (
	"context"
	"sync"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
)

// meterName is the instrumentation scope name used for all studio metrics.
const meterName = "github.com/MrWong99/speechstudio"

// Metrics holds all OpenTelemetry metric instruments for the application.
// All fields are safe for concurrent use; the underlying OTel types handle
// their own synchronisation.
type Metrics struct {
	// --- Latency histograms ---

	// GenerationDuration tracks the round trip to the speech provider. Use
	// with attributes provider and status.
	GenerationDuration metric.Float64Histogram

	// DecodeDuration tracks base64 decoding plus PCM conversion.
	DecodeDuration metric.Float64Histogram

	// ToolExecutionDuration tracks MCP tool execution latency.
	ToolExecutionDuration metric.Float64Histogram

	// --- Counters ---

	// ProviderRequests counts provider API calls. Use with attributes:
	//   attribute.String("provider", ...), attribute.String("status", ...)
	ProviderRequests metric.Int64Counter

	// ProviderErrors counts failed generations by classified reason. Use with
	// attributes:
	//   attribute.String("provider", ...), attribute.String("reason", ...)
	ProviderErrors metric.Int64Counter

	// ToolCalls counts tool invocations. Use with attributes:
	//   attribute.String("tool", ...), attribute.String("status", ...)
	ToolCalls metric.Int64Counter

	// PlaybackStarts counts started playback sessions. Use with attribute:
	//   attribute.String("trigger", "generate"|"replay")
	PlaybackStarts metric.Int64Counter

	// PlaybackEnds counts finished playback sessions. Use with attribute:
	//   attribute.String("reason", "drained"|"stopped"|"superseded"|"replayed")
	PlaybackEnds metric.Int64Counter

	// VisualFrames counts frames emitted by the visualization feed.
	VisualFrames metric.Int64Counter

	// Exports counts WAV exports. Use with attribute:
	//   attribute.String("target", "http"|"file"|"cli"|"mcp")
	Exports metric.Int64Counter

	// --- Gauges ---

	// VisualizerClients tracks connected visualizer WebSocket clients.
	VisualizerClients metric.Int64UpDownCounter

	// --- HTTP middleware ---

	// HTTPRequestDuration tracks HTTP request processing time. Use with attributes:
	//   attribute.String("method", ...), attribute.String("path", ...)
	HTTPRequestDuration metric.Float64Histogram
}

// latencyBuckets defines histogram bucket boundaries (in seconds). Speech
// generation for a paragraph commonly takes several seconds.
var latencyBuckets = []float64{
	0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10, 30,
}

// NewMetrics creates a fully initialised [Metrics] struct using the given
// [metric.MeterProvider]. Returns an error if any instrument creation fails.
func NewMetrics(mp metric.MeterProvider) (*Metrics, error) {
	m := mp.Meter(meterName)
	var err error
	met := &Metrics{}

	// Histograms.
	if met.GenerationDuration, err = m.Float64Histogram("speechstudio.generation.duration",
		metric.WithDescription("Latency of speech generation requests."),
		metric.WithUnit("s"),
		metric.WithExplicitBucketBoundaries(latencyBuckets...),
	); err != nil {
		return nil, err
	}
	if met.DecodeDuration, err = m.Float64Histogram("speechstudio.decode.duration",
		metric.WithDescription("Latency of decoding generated audio into a playable buffer."),
		metric.WithUnit("s"),
		metric.WithExplicitBucketBoundaries(latencyBuckets...),
	); err != nil {
		return nil, err
	}
	if met.ToolExecutionDuration, err = m.Float64Histogram("speechstudio.tool_execution.duration",
		metric.WithDescription("Latency of MCP tool execution."),
		metric.WithUnit("s"),
		metric.WithExplicitBucketBoundaries(latencyBuckets...),
	); err != nil {
		return nil, err
	}

	// Counters.
	if met.ProviderRequests, err = m.Int64Counter("speechstudio.provider.requests",
		metric.WithDescription("Total provider API requests by provider and status."),
	); err != nil {
		return nil, err
	}
	if met.ProviderErrors, err = m.Int64Counter("speechstudio.provider.errors",
		metric.WithDescription("Total failed generations by provider and reason."),
	); err != nil {
		return nil, err
	}
	if met.ToolCalls, err = m.Int64Counter("speechstudio.tool.calls",
		metric.WithDescription("Total tool invocations by tool name and status."),
	); err != nil {
		return nil, err
	}
	if met.PlaybackStarts, err = m.Int64Counter("speechstudio.playback.starts",
		metric.WithDescription("Total playback sessions started by trigger."),
	); err != nil {
		return nil, err
	}
	if met.PlaybackEnds, err = m.Int64Counter("speechstudio.playback.ends",
		metric.WithDescription("Total playback sessions ended by reason."),
	); err != nil {
		return nil, err
	}
	if met.VisualFrames, err = m.Int64Counter("speechstudio.visual.frames",
		metric.WithDescription("Total frames emitted by the visualization feed."),
	); err != nil {
		return nil, err
	}
	if met.Exports, err = m.Int64Counter("speechstudio.exports",
		metric.WithDescription("Total WAV exports by target."),
	); err != nil {
		return nil, err
	}

	// Gauges (UpDownCounters).
	if met.VisualizerClients, err = m.Int64UpDownCounter("speechstudio.visualizer.clients",
		metric.WithDescription("Number of connected visualizer clients."),
	); err != nil {
		return nil, err
	}

	// HTTP middleware histogram.
	if met.HTTPRequestDuration, err = m.Float64Histogram("speechstudio.http.request.duration",
		metric.WithDescription("HTTP request latency by method and path."),
		metric.WithUnit("s"),
	); err != nil {
		return nil, err
	}

	return met, nil
}

// defaultMetrics is the lazily-initialised package-level Metrics instance.
var (
	defaultMetrics     *Metrics
	defaultMetricsOnce sync.Once
)

// DefaultMetrics returns the package-level [Metrics] instance, creating it on
// first call using [otel.GetMeterProvider]. Subsequent calls return the same
// pointer. Panics if instrument creation fails (should not happen with the
// global provider).
func DefaultMetrics() *Metrics {
	defaultMetricsOnce.Do(func() {
		var err error
		defaultMetrics, err = NewMetrics(otel.GetMeterProvider())
		if err != nil {
			panic("observe: failed to create default metrics: " + err.Error())
		}
	})
	return defaultMetrics
}

// Attr is a convenience alias for [attribute.String] to reduce verbosity at
// call sites.
func Attr(key, value string) attribute.KeyValue {
	return attribute.String(key, value)
}

// RecordGeneration records one provider round trip: the request counter, the
// latency histogram and, when reason is non-empty, the error counter.
func (m *Metrics) RecordGeneration(ctx context.Context, provider string, seconds float64, reason string) {
	status := "ok"
	if reason != "" {
		status = "error"
	}
	attrs := metric.WithAttributes(
		attribute.String("provider", provider),
		attribute.String("status", status),
	)
	m.ProviderRequests.Add(ctx, 1, attrs)
	m.GenerationDuration.Record(ctx, seconds, attrs)
	if reason != "" {
		m.ProviderErrors.Add(ctx, 1, metric.WithAttributes(
			attribute.String("provider", provider),
			attribute.String("reason", reason),
		))
	}
}

// RecordToolCall is a convenience method that records a tool call counter
// increment with the standard attribute set.
func (m *Metrics) RecordToolCall(ctx context.Context, tool, status string) {
	m.ToolCalls.Add(ctx, 1,
		metric.WithAttributes(
			attribute.String("tool", tool),
			attribute.String("status", status),
		),
	)
}

// RecordPlaybackStart counts a playback session started by trigger.
func (m *Metrics) RecordPlaybackStart(ctx context.Context, trigger string) {
	m.PlaybackStarts.Add(ctx, 1, metric.WithAttributes(attribute.String("trigger", trigger)))
}

// RecordPlaybackEnd counts a playback session ended for reason.
func (m *Metrics) RecordPlaybackEnd(ctx context.Context, reason string) {
	m.PlaybackEnds.Add(ctx, 1, metric.WithAttributes(attribute.String("reason", reason)))
}

// RecordExport counts a WAV export to target.
func (m *Metrics) RecordExport(ctx context.Context, target string) {
	m.Exports.Add(ctx, 1, metric.WithAttributes(attribute.String("target", target)))
}
