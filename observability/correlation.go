package observability

import (
	"context"
	"net/http"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
)

type contextKey string

// CorrelationIDKey is the context key holding the inbound webhook's
// correlation ID, propagated from X-Correlation-ID or generated fresh.
const CorrelationIDKey contextKey = "correlation_id"

// HeaderCorrelationID is the HTTP header used to propagate the correlation
// ID across a webhook's inbound receipt and its outbound fan-out calls.
const HeaderCorrelationID = "X-Correlation-ID"

// CorrelationMiddleware tags every inbound webhook request with a
// correlation ID, echoing it back on the response and attaching it to the
// active span so a single delivery can be traced from ingress through
// retries to the outbound call.
func CorrelationMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ctx := r.Context()

		correlationID := r.Header.Get(HeaderCorrelationID)
		if correlationID == "" {
			correlationID = uuid.New().String()
		}
		ctx = context.WithValue(ctx, CorrelationIDKey, correlationID)

		if span := trace.SpanFromContext(ctx); span.IsRecording() {
			span.SetAttributes(attribute.String("correlation.id", correlationID))
		}

		w.Header().Set(HeaderCorrelationID, correlationID)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

// CorrelationID retrieves the correlation ID from ctx, if any.
func CorrelationID(ctx context.Context) string {
	if id, ok := ctx.Value(CorrelationIDKey).(string); ok {
		return id
	}
	return ""
}

// EnrichLogFields merges correlation and trace identifiers into a
// logger.Logger field map.
func EnrichLogFields(ctx context.Context, fields map[string]interface{}) map[string]interface{} {
	if fields == nil {
		fields = make(map[string]interface{})
	}
	if id := CorrelationID(ctx); id != "" {
		fields["correlation_id"] = id
	}
	if span := trace.SpanFromContext(ctx); span.IsRecording() {
		sc := span.SpanContext()
		fields["trace_id"] = sc.TraceID().String()
		fields["span_id"] = sc.SpanID().String()
	}
	return fields
}
