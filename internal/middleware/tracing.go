package middleware

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"
)

// Tracing opens a server span per request, named "METHOD /route/{pattern}".
// The route is resolved against the chi router before the span starts;
// requests that match no route keep the service name.
func Tracing(service string) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return otelhttp.NewHandler(next, service, otelhttp.WithSpanNameFormatter(spanName))
	}
}

func spanName(operation string, r *http.Request) string {
	rctx := chi.RouteContext(r.Context())
	if rctx == nil || rctx.Routes == nil {
		return operation
	}
	match := chi.NewRouteContext()
	if !rctx.Routes.Match(match, r.Method, r.URL.Path) {
		return operation
	}
	if pattern := match.RoutePattern(); pattern != "" {
		return r.Method + " " + pattern
	}
	return operation
}
