package middleware

import (
	"net/http"
	"time"

	"github.com/go-chi/chi"

	"github.com/frahmantamala/employee-management/pkg/metrics"
)

// Metrics records request count and latency. Requests to the data dispatcher
// are labelled by their endpoint query parameter, everything else by route pattern.
func Metrics(m *metrics.Registry) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			start := time.Now()
			rec := newRecorder(w)
			next.ServeHTTP(rec, r)
			m.ObserveHTTPRequest(r.Method, endpointLabel(r), rec.Status(), time.Since(start))
		})
	}
}

func endpointLabel(r *http.Request) string {
	if endpoint := r.URL.Query().Get("endpoint"); endpoint != "" {
		return endpoint
	}
	if rctx := chi.RouteContext(r.Context()); rctx != nil {
		if pattern := rctx.RoutePattern(); pattern != "" {
			return pattern
		}
	}
	return "unmatched"
}
