package middleware

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"
)

// OTelHTTP traces every request under its chi route pattern, so
// /api/orders/{id} stays one span name instead of one per order.
// Health probes are left out of the traces entirely.
func OTelHTTP(serviceName string) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return otelhttp.NewMiddleware(serviceName,
			otelhttp.WithSpanNameFormatter(spanNameFromRoute),
			otelhttp.WithFilter(func(r *http.Request) bool {
				return r.URL.Path != "/api/health"
			}),
		)(next)
	}
}

func spanNameFromRoute(_ string, r *http.Request) string {
	pattern := chi.RouteContext(r.Context()).RoutePattern()
	if pattern == "" {
		pattern = r.URL.Path
	}
	return r.Method + " " + pattern
}
