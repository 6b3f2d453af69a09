package httpserver

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestConnectLimiterAllowsBurstThenRejects(t *testing.T) {
	limiter := newConnectLimiter(1, 2, time.Minute)

	assert.True(t, limiter.allow("203.0.113.7"))
	assert.True(t, limiter.allow("203.0.113.7"))
	assert.False(t, limiter.allow("203.0.113.7"), "third attempt within burst window should be throttled")
}

func TestConnectLimiterTracksIPsIndependently(t *testing.T) {
	limiter := newConnectLimiter(1, 1, time.Minute)

	assert.True(t, limiter.allow("203.0.113.1"))
	assert.True(t, limiter.allow("203.0.113.2"), "a different IP should have its own budget")
	assert.False(t, limiter.allow("203.0.113.1"), "first IP already exhausted its burst")
}

func TestRateLimitConnectRejectsWith429(t *testing.T) {
	limiter := newConnectLimiter(1, 1, time.Minute)
	metrics := NewMetrics()
	inner := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	})
	handler := rateLimitConnect(limiter, metrics, inner)

	req := httptest.NewRequest(http.MethodGet, "/events", nil)
	req.RemoteAddr = "198.51.100.9:5555"

	rec1 := httptest.NewRecorder()
	handler.ServeHTTP(rec1, req)
	assert.Equal(t, http.StatusOK, rec1.Code)

	rec2 := httptest.NewRecorder()
	handler.ServeHTTP(rec2, req)
	assert.Equal(t, http.StatusTooManyRequests, rec2.Code)
}

func TestClientIPFallsBackToRemoteAddrWithoutPort(t *testing.T) {
	req := httptest.NewRequest(http.MethodGet, "/events", nil)
	req.RemoteAddr = "not-a-valid-host-port"
	assert.Equal(t, "not-a-valid-host-port", clientIP(req))
}
