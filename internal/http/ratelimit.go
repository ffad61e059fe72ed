package httpx

import (
	"errors"
	"net/http"
	"strconv"
	"sync"
	"time"

	"golang.org/x/time/rate"
)

// IPRateLimitConfig configures RateLimitByIP.
type IPRateLimitConfig struct {
	// PerMinute is the sustained request rate per client. Zero disables limiting.
	PerMinute int
	Burst     int
	// TrustProxy takes the client address from X-Forwarded-For.
	TrustProxy bool
	// IdleTTL drops limiters for clients not seen within this window.
	IdleTTL time.Duration
	Now     func() time.Time
}

type ipLimiter struct {
	limiter  *rate.Limiter
	lastSeen time.Time
}

type ipLimiters struct {
	mu        sync.Mutex
	cfg       IPRateLimitConfig
	clients   map[string]*ipLimiter
	lastSweep time.Time
}

func (l *ipLimiters) allow(ip string) bool {
	now := l.cfg.Now()
	l.mu.Lock()
	defer l.mu.Unlock()

	if now.Sub(l.lastSweep) > l.cfg.IdleTTL {
		for k, c := range l.clients {
			if now.Sub(c.lastSeen) > l.cfg.IdleTTL {
				delete(l.clients, k)
			}
		}
		l.lastSweep = now
	}

	c, ok := l.clients[ip]
	if !ok {
		c = &ipLimiter{limiter: rate.NewLimiter(rate.Limit(float64(l.cfg.PerMinute)/60), l.cfg.Burst)}
		l.clients[ip] = c
	}
	c.lastSeen = now
	return c.limiter.AllowN(now, 1)
}

// RateLimitByIP returns a middleware that applies a token bucket per client
// address and answers 429 once the bucket is empty.
func RateLimitByIP(cfg IPRateLimitConfig) func(http.Handler) http.Handler {
	if cfg.PerMinute <= 0 {
		return func(next http.Handler) http.Handler { return next }
	}
	if cfg.Burst < 1 {
		cfg.Burst = 1
	}
	if cfg.IdleTTL <= 0 {
		cfg.IdleTTL = 10 * time.Minute
	}
	if cfg.Now == nil {
		cfg.Now = time.Now
	}
	limiters := &ipLimiters{cfg: cfg, clients: make(map[string]*ipLimiter), lastSweep: cfg.Now()}
	retryAfter := strconv.Itoa(max(1, 60/cfg.PerMinute))

	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if !limiters.allow(clientIP(r, cfg.TrustProxy)) {
				w.Header().Set("Retry-After", retryAfter)
				WriteError(w, ErrorParams{
					Code:    http.StatusTooManyRequests,
					ErrCode: "rate_limited",
					Err:     errors.New("too many requests, try again later"),
				})
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}
