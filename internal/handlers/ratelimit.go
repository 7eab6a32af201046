package handlers

import (
	"net/http"
	"sync"
	"time"

	"github.com/hashicorp/golang-lru/v2/expirable"
	"golang.org/x/time/rate"
)

const (
	limiterBuckets = 10000
	limiterIdleTTL = 5 * time.Minute
)

// LoginLimiter throttles login attempts with a token bucket per client IP.
// Idle buckets are evicted by the LRU, so no sweeper goroutine is needed.
type LoginLimiter struct {
	mu      sync.Mutex
	buckets *expirable.LRU[string, *rate.Limiter]
	limit   rate.Limit
	burst   int
}

// NewLoginLimiter returns nil when perSecond is not positive; a nil limiter
// lets every request through.
func NewLoginLimiter(perSecond float64, burst int) *LoginLimiter {
	if perSecond <= 0 {
		return nil
	}
	if burst < 1 {
		burst = 1
	}
	return &LoginLimiter{
		buckets: expirable.NewLRU[string, *rate.Limiter](limiterBuckets, nil, limiterIdleTTL),
		limit:   rate.Limit(perSecond),
		burst:   burst,
	}
}

// Allow reports whether ip may attempt another login now.
func (l *LoginLimiter) Allow(ip string) bool {
	if l == nil {
		return true
	}
	if ip == "" {
		ip = "unknown"
	}

	l.mu.Lock()
	lim, ok := l.buckets.Get(ip)
	if !ok {
		lim = rate.NewLimiter(l.limit, l.burst)
	}
	// Re-adding refreshes the idle TTL.
	l.buckets.Add(ip, lim)
	l.mu.Unlock()

	return lim.Allow()
}

func (l *LoginLimiter) Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if !l.Allow(clientIP(r)) {
			writeError(w, r, http.StatusTooManyRequests, "Too many login attempts")
			return
		}
		next.ServeHTTP(w, r)
	})
}
