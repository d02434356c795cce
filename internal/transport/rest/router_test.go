package rest_test

import (
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"

	"github.com/go-chi/chi"
	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"github.com/frahmantamala/employee-management/internal/access"
	"github.com/frahmantamala/employee-management/internal/transport"
	"github.com/frahmantamala/employee-management/internal/transport/middleware"
	"github.com/frahmantamala/employee-management/internal/transport/rest"
	"github.com/frahmantamala/employee-management/pkg/metrics"
)

var _ = Describe("RegisterAllRoutes", func() {
	var router *chi.Mux

	BeforeEach(func() {
		logger := slog.New(slog.NewTextHandler(io.Discard, nil))
		base := transport.NewBaseHandler(logger)
		dispatcher := rest.NewDispatcher(base, headerAuth, access.NewAuthorization(access.NewEvaluator(), logger))
		dispatcher.Handle("auth", http.MethodPost, rest.Route{Public: true, Handler: func(w http.ResponseWriter, r *http.Request) {
			w.WriteHeader(http.StatusOK)
		}})

		router = chi.NewRouter()
		rest.RegisterAllRoutes(router, rest.RouterConfig{
			AllowedOrigins: "http://localhost:3000",
			MetricsPath:    "/metrics",
			OpenAPI:        []byte("openapi: 3.0.3\n"),
		}, rest.NewHealthHandler(base, nil, nil), dispatcher, metrics.New(), logger)
	})

	get := func(target string) *httptest.ResponseRecorder {
		w := httptest.NewRecorder()
		router.ServeHTTP(w, httptest.NewRequest(http.MethodGet, target, nil))
		return w
	}

	It("serves the probes", func() {
		Expect(get("/api/v1/ping").Body.String()).To(ContainSubstring(`"status":"OK"`))

		w := get("/api/v1/health")
		Expect(w.Code).To(Equal(http.StatusOK))
		Expect(w.Body.String()).To(ContainSubstring(`"status":"healthy"`))
	})

	It("serves the openapi document and metrics", func() {
		Expect(get("/openapi.yml").Body.String()).To(HavePrefix("openapi: 3.0.3"))
		Expect(get("/api/data?endpoint=nope").Code).To(Equal(http.StatusNotFound))

		w := get("/metrics")
		Expect(w.Code).To(Equal(http.StatusOK))
		Expect(w.Body.String()).To(ContainSubstring("http_requests_total"))
	})

	It("tags every response with a trace id", func() {
		Expect(get("/api/v1/ping").Header().Get(middleware.TraceHeader)).NotTo(BeEmpty())
	})

	It("answers CORS preflights for allowed origins only", func() {
		preflight := func(origin string) *httptest.ResponseRecorder {
			req := httptest.NewRequest(http.MethodOptions, "/api/data?endpoint=auth", nil)
			req.Header.Set("Origin", origin)
			req.Header.Set("Access-Control-Request-Method", http.MethodPost)
			w := httptest.NewRecorder()
			router.ServeHTTP(w, req)
			return w
		}

		w := preflight("http://localhost:3000")
		Expect(w.Code).To(Equal(http.StatusNoContent))
		Expect(w.Header().Get("Access-Control-Allow-Origin")).To(Equal("http://localhost:3000"))

		Expect(preflight("http://evil.example").Header().Get("Access-Control-Allow-Origin")).To(BeEmpty())
	})
})
