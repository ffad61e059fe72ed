package httpx

import (
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

type fakeClock struct {
	mu  sync.Mutex
	now time.Time
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
}

func limitedHandler(cfg IPRateLimitConfig) http.Handler {
	return RateLimitByIP(cfg)(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusNoContent)
	}))
}

func loginFrom(h http.Handler, remoteAddr, forwardedFor string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(http.MethodGet, "/auth/login", nil)
	req.RemoteAddr = remoteAddr
	if forwardedFor != "" {
		req.Header.Set("X-Forwarded-For", forwardedFor)
	}
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	return rec
}

func TestRateLimitByIP_Disabled(t *testing.T) {
	h := limitedHandler(IPRateLimitConfig{})

	for range 50 {
		assert.Equal(t, http.StatusNoContent, loginFrom(h, "10.0.0.1:1234", "").Code)
	}
}

func TestRateLimitByIP_BurstThenRefill(t *testing.T) {
	clock := &fakeClock{now: time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)}
	h := limitedHandler(IPRateLimitConfig{PerMinute: 6, Burst: 2, Now: clock.Now})

	assert.Equal(t, http.StatusNoContent, loginFrom(h, "10.0.0.1:1234", "").Code)
	assert.Equal(t, http.StatusNoContent, loginFrom(h, "10.0.0.1:5678", "").Code)

	rec := loginFrom(h, "10.0.0.1:1234", "")
	assert.Equal(t, http.StatusTooManyRequests, rec.Code)
	assert.Equal(t, "10", rec.Header().Get("Retry-After"))
	assert.Equal(t, "rate_limited", decodeErrorBody(t, rec)["error"])

	// Other clients have their own bucket.
	assert.Equal(t, http.StatusNoContent, loginFrom(h, "10.0.0.2:1234", "").Code)

	clock.Advance(10 * time.Second)
	assert.Equal(t, http.StatusNoContent, loginFrom(h, "10.0.0.1:1234", "").Code)
	assert.Equal(t, http.StatusTooManyRequests, loginFrom(h, "10.0.0.1:1234", "").Code)
}

func TestRateLimitByIP_TrustProxy(t *testing.T) {
	clock := &fakeClock{now: time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)}

	t.Run("keys on first forwarded hop", func(t *testing.T) {
		h := limitedHandler(IPRateLimitConfig{PerMinute: 1, Burst: 1, TrustProxy: true, Now: clock.Now})

		assert.Equal(t, http.StatusNoContent, loginFrom(h, "192.0.2.1:80", "203.0.113.7, 192.0.2.1").Code)
		assert.Equal(t, http.StatusTooManyRequests, loginFrom(h, "192.0.2.1:80", "203.0.113.7").Code)
		assert.Equal(t, http.StatusNoContent, loginFrom(h, "192.0.2.1:80", "203.0.113.8").Code)
	})

	t.Run("ignores forwarded header when untrusted", func(t *testing.T) {
		h := limitedHandler(IPRateLimitConfig{PerMinute: 1, Burst: 1, Now: clock.Now})

		assert.Equal(t, http.StatusNoContent, loginFrom(h, "192.0.2.1:80", "203.0.113.7").Code)
		assert.Equal(t, http.StatusTooManyRequests, loginFrom(h, "192.0.2.1:80", "203.0.113.8").Code)
	})
}

func TestIPLimiters_SweepsIdleClients(t *testing.T) {
	clock := &fakeClock{now: time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)}
	l := &ipLimiters{
		cfg:       IPRateLimitConfig{PerMinute: 60, Burst: 1, IdleTTL: time.Minute, Now: clock.Now},
		clients:   make(map[string]*ipLimiter),
		lastSweep: clock.Now(),
	}

	l.allow("10.0.0.1")
	l.allow("10.0.0.2")
	assert.Len(t, l.clients, 2)

	clock.Advance(2 * time.Minute)
	l.allow("10.0.0.3")
	assert.Len(t, l.clients, 1)
	assert.Contains(t, l.clients, "10.0.0.3")
}
