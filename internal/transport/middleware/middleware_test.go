package middleware

import (
	"bytes"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"github.com/frahmantamala/employee-management/internal"
)

func TestMiddleware(t *testing.T) {
	RegisterFailHandler(Fail)
	RunSpecs(t, "Middleware Suite")
}

var _ = Describe("IPRateLimiter", func() {
	var (
		limiter *IPRateLimiter
		now     time.Time
		handler http.HandlerFunc
	)

	BeforeEach(func() {
		now = time.Date(2024, 6, 3, 9, 0, 0, 0, time.UTC)
		limiter = NewIPRateLimiter(5)
		limiter.now = func() time.Time { return now }
		handler = limiter.Wrap(func(w http.ResponseWriter, r *http.Request) {
			w.WriteHeader(http.StatusOK)
		})
	})

	attempt := func(ip string) int {
		req := httptest.NewRequest(http.MethodPost, "/api/data?endpoint=auth", nil)
		req.Header.Set("X-Forwarded-For", ip)
		w := httptest.NewRecorder()
		handler(w, req)
		return w.Code
	}

	It("allows five attempts per minute for each address", func() {
		for i := 0; i < 5; i++ {
			Expect(attempt("10.0.0.1")).To(Equal(http.StatusOK))
		}
		Expect(attempt("10.0.0.1")).To(Equal(http.StatusTooManyRequests))
		Expect(attempt("10.0.0.2")).To(Equal(http.StatusOK))

		now = now.Add(12 * time.Second)
		Expect(attempt("10.0.0.1")).To(Equal(http.StatusOK))
	})

	It("answers 429 with the error body", func() {
		for i := 0; i < 5; i++ {
			attempt("10.0.0.1")
		}
		req := httptest.NewRequest(http.MethodPost, "/", nil)
		req.Header.Set("X-Forwarded-For", "10.0.0.1")
		w := httptest.NewRecorder()
		handler(w, req)

		var body internal.Response
		Expect(json.NewDecoder(w.Body).Decode(&body)).To(Succeed())
		Expect(body.Code).To(Equal(internal.ErrCodeTooManyAttempts))
		Expect(w.Header().Get("Retry-After")).To(Equal("60"))
	})

	It("forgets idle clients", func() {
		attempt("10.0.0.1")
		now = now.Add(11 * time.Minute)
		attempt("10.0.0.2")

		Expect(limiter.Cleanup()).To(Equal(1))
	})
})

var _ = Describe("filterBody", func() {
	It("masks nested sensitive keys", func() {
		out := filterBody([]byte(`{"email":"a@b.c","password":"x","user":{"token":"t","name":"n"}}`))

		Expect(out).To(ContainSubstring(`"password":"[FILTERED]"`))
		Expect(out).To(ContainSubstring(`"token":"[FILTERED]"`))
		Expect(out).To(ContainSubstring(`"name":"n"`))
		Expect(out).To(ContainSubstring(`"email":"a@b.c"`))
	})

	It("drops non-JSON text that mentions a secret", func() {
		Expect(filterBody([]byte("password=hunter2"))).To(Equal("[FILTERED - Contains sensitive data]"))
	})
})

var _ = Describe("stack", func() {
	var (
		logs   *bytes.Buffer
		logger *slog.Logger
	)

	BeforeEach(func() {
		logs = &bytes.Buffer{}
		logger = slog.New(slog.NewTextHandler(logs, nil))
	})

	It("recovers panics as a 500 without leaking the panic value", func() {
		h := RecoveryMiddleware(logger)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			panic("boom")
		}))
		w := httptest.NewRecorder()
		h.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/", nil))

		Expect(w.Code).To(Equal(http.StatusInternalServerError))
		Expect(w.Body.String()).To(ContainSubstring("Internal server error"))
		Expect(w.Body.String()).NotTo(ContainSubstring("boom"))
	})

	It("echoes the caller's trace id or mints one", func() {
		h := RequestID(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {}))

		req := httptest.NewRequest(http.MethodGet, "/", nil)
		req.Header.Set(TraceHeader, "trace-123")
		w := httptest.NewRecorder()
		h.ServeHTTP(w, req)
		Expect(w.Header().Get(TraceHeader)).To(Equal("trace-123"))

		w = httptest.NewRecorder()
		h.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/", nil))
		Expect(w.Header().Get(TraceHeader)).To(HaveLen(36))
	})

	It("logs requests with the password masked", func() {
		h := LoggingMiddleware(logger)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			body, _ := io.ReadAll(r.Body)
			Expect(string(body)).To(ContainSubstring("s3cret"))
			w.Header().Set("Content-Type", "application/json")
			w.WriteHeader(http.StatusCreated)
			_, _ = w.Write([]byte(`{"token":"abc"}`))
		}))
		req := httptest.NewRequest(http.MethodPost, "/api/data?endpoint=auth", bytes.NewBufferString(`{"email":"a@b.c","password":"s3cret"}`))
		req.Header.Set("Authorization", "Bearer abc")
		w := httptest.NewRecorder()
		h.ServeHTTP(w, req)

		Expect(w.Code).To(Equal(http.StatusCreated))
		Expect(w.Body.String()).To(Equal(`{"token":"abc"}`))
		Expect(logs.String()).NotTo(ContainSubstring("s3cret"))
		Expect(logs.String()).NotTo(ContainSubstring("Bearer abc"))
		Expect(logs.String()).To(ContainSubstring("[FILTERED]"))
		Expect(logs.String()).To(ContainSubstring("status_code=201"))
	})
})
