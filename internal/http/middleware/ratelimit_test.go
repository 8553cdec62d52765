package middleware

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/require"
)

func newLimiter(t *testing.T, query, report RateConfig) *RateLimiter {
	t.Helper()
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })
	return NewRateLimiter(client, query, report)
}

func okHandler() http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
	})
}

func TestRateLimiterAllowsWithinBurst(t *testing.T) {
	limiter := newLimiter(t, RateConfig{Rate: 1, Burst: 2}, RateConfig{Rate: 1, Burst: 2})
	h := limiter.Middleware(okHandler())

	for i := 0; i < 2; i++ {
		req := httptest.NewRequest(http.MethodGet, "/v1/bookings/abc", nil)
		req.Header.Set("X-Client-ID", "client-a")
		rec := httptest.NewRecorder()
		h.ServeHTTP(rec, req)
		require.Equal(t, http.StatusOK, rec.Code)
	}
}

func TestRateLimiterBlocksOverBurst(t *testing.T) {
	limiter := newLimiter(t, RateConfig{Rate: 1, Burst: 1}, RateConfig{Rate: 1, Burst: 1})
	h := limiter.Middleware(okHandler())

	first := httptest.NewRequest(http.MethodPost, "/v1/sessions/abc/location", nil)
	first.Header.Set("X-Client-ID", "device-1")
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, first)
	require.Equal(t, http.StatusOK, rec.Code)

	second := httptest.NewRequest(http.MethodPost, "/v1/sessions/abc/location", nil)
	second.Header.Set("X-Client-ID", "device-1")
	rec = httptest.NewRecorder()
	h.ServeHTTP(rec, second)
	require.Equal(t, http.StatusTooManyRequests, rec.Code)
	require.NotEmpty(t, rec.Header().Get("Retry-After"))
}

func TestRateLimiterScopesAreIndependent(t *testing.T) {
	// Report bucket exhausted; query traffic from the same client still flows.
	limiter := newLimiter(t, RateConfig{Rate: 10, Burst: 10}, RateConfig{Rate: 1, Burst: 1})
	h := limiter.Middleware(okHandler())

	report := httptest.NewRequest(http.MethodPost, "/v1/sessions/abc/location", nil)
	report.Header.Set("X-Client-ID", "device-2")
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, report)
	require.Equal(t, http.StatusOK, rec.Code)

	rec = httptest.NewRecorder()
	h.ServeHTTP(rec, report)
	require.Equal(t, http.StatusTooManyRequests, rec.Code)

	query := httptest.NewRequest(http.MethodGet, "/v1/sessions/abc/snapshot", nil)
	query.Header.Set("X-Client-ID", "device-2")
	rec = httptest.NewRecorder()
	h.ServeHTTP(rec, query)
	require.Equal(t, http.StatusOK, rec.Code)
}

func TestRateLimiterSeparatesClients(t *testing.T) {
	limiter := newLimiter(t, RateConfig{Rate: 1, Burst: 1}, RateConfig{Rate: 1, Burst: 1})
	h := limiter.Middleware(okHandler())

	a := httptest.NewRequest(http.MethodGet, "/", nil)
	a.Header.Set("X-Client-ID", "client-a")
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, a)
	require.Equal(t, http.StatusOK, rec.Code)

	rec = httptest.NewRecorder()
	h.ServeHTTP(rec, a)
	require.Equal(t, http.StatusTooManyRequests, rec.Code)

	b := httptest.NewRequest(http.MethodGet, "/", nil)
	b.Header.Set("X-Client-ID", "client-b")
	rec = httptest.NewRecorder()
	h.ServeHTTP(rec, b)
	require.Equal(t, http.StatusOK, rec.Code)
}

func TestRateLimiterDisabledWithoutClient(t *testing.T) {
	h := NewRateLimiter(nil, RateConfig{Rate: 1, Burst: 1}, RateConfig{Rate: 1, Burst: 1})
	require.Nil(t, h)
	// A nil limiter's Middleware passes requests through untouched.
	wrapped := h.Middleware(okHandler())
	rec := httptest.NewRecorder()
	wrapped.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/", nil))
	require.Equal(t, http.StatusOK, rec.Code)
}
