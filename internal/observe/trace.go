package observe

import (
	"context"
	"log/slog"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
)

const tracerName = "github.com/MrWong99/speechstudio"

// Tracer returns the studio tracer from the global provider.
func Tracer() trace.Tracer {
	return otel.Tracer(tracerName)
}

// GenerationSpan starts the span that covers one generation request and
// returns a logger carrying the generation's identity. When the span has a
// valid trace ID, the logger also carries trace_id so that log lines can be
// joined with the exported trace. The caller ends the span.
func GenerationSpan(ctx context.Context, log *slog.Logger, id, voice, provider string) (context.Context, trace.Span, *slog.Logger) {
	if log == nil {
		log = slog.Default()
	}
	ctx, span := Tracer().Start(ctx, "studio.generate", trace.WithAttributes(
		attribute.String("generation.id", id),
		attribute.String("generation.voice", voice),
		attribute.String("generation.provider", provider),
	))
	log = log.With("generation_id", id, "voice", voice, "provider", provider)
	if tid := CorrelationID(ctx); tid != "" {
		log = log.With("trace_id", tid)
	}
	return ctx, span, log
}

// CorrelationID is the hex trace ID of the span in ctx, or "" without one.
// HTTP responses echo it in the X-Correlation-ID header.
func CorrelationID(ctx context.Context) string {
	sc := trace.SpanContextFromContext(ctx)
	if !sc.HasTraceID() {
		return ""
	}
	return sc.TraceID().String()
}
