package middleware

import (
	"net/http"

	semconv "go.opentelemetry.io/otel/semconv/v1.26.0"
	"go.opentelemetry.io/otel/trace"
)

// TraceRoute renames the active server span to "METHOD /route/{pattern}" once
// chi has matched the request, and records the pattern as http.route.
// Unmatched requests keep whatever name the span was started with.
//
// It must run inside the otelhttp handler so the span is in the context.
func TraceRoute(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		next.ServeHTTP(w, r)

		pattern := routePattern(r)
		if pattern == "" {
			return
		}
		span := trace.SpanFromContext(r.Context())
		span.SetName(r.Method + " " + pattern)
		span.SetAttributes(semconv.HTTPRoute(pattern))
	})
}
