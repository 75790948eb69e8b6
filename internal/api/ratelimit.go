package api

import (
	"log/slog"
	"net/http"
	"sync"
	"time"

	"github.com/go-chi/chi/v5"
	"golang.org/x/time/rate"
)

const (
	limiterIdleTTL = 10 * time.Minute
	maxLimiterKeys = 10_000
)

type limiterEntry struct {
	limiter  *rate.Limiter
	lastSeen time.Time
}

// userRateLimiter throttles mutating requests per user ID, falling back to
// the remote address.
type userRateLimiter struct {
	mu       sync.Mutex
	limiters map[string]*limiterEntry
	rate     rate.Limit
	burst    int
	now      func() time.Time
}

func newUserRateLimiter(rps float64, burst int) *userRateLimiter {
	return &userRateLimiter{
		limiters: make(map[string]*limiterEntry),
		rate:     rate.Limit(rps),
		burst:    burst,
		now:      time.Now,
	}
}

func (rl *userRateLimiter) allow(key string) bool {
	rl.mu.Lock()
	defer rl.mu.Unlock()

	now := rl.now()

	e, ok := rl.limiters[key]
	if !ok {
		if len(rl.limiters) >= maxLimiterKeys {
			rl.pruneLocked(now)
		}

		if len(rl.limiters) >= maxLimiterKeys {
			rl.evictOldestLocked()
		}

		e = &limiterEntry{limiter: rate.NewLimiter(rl.rate, rl.burst)}
		rl.limiters[key] = e
	}

	e.lastSeen = now

	return e.limiter.AllowN(now, 1)
}

func (rl *userRateLimiter) pruneLocked(now time.Time) {
	for k, e := range rl.limiters {
		if now.Sub(e.lastSeen) > limiterIdleTTL {
			delete(rl.limiters, k)
		}
	}
}

// evictOldestLocked drops the least recently seen bucket so a flood of
// distinct keys cannot grow the map past maxLimiterKeys.
func (rl *userRateLimiter) evictOldestLocked() {
	var (
		oldestKey string
		oldest    time.Time
		found     bool
	)

	for k, e := range rl.limiters {
		if !found || e.lastSeen.Before(oldest) {
			oldestKey, oldest, found = k, e.lastSeen, true
		}
	}

	if found {
		delete(rl.limiters, oldestKey)
	}
}

func (rl *userRateLimiter) Handler(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		key := chi.URLParam(r, "userId")
		if key == "" {
			key = r.RemoteAddr
		}

		if !rl.allow(key) {
			slog.Warn("rate limit exceeded", "key", key, "method", r.Method, "path", r.URL.Path)

			w.Header().Set("Retry-After", "1")
			writeError(w, http.StatusTooManyRequests, "rate limit exceeded")

			return
		}

		next.ServeHTTP(w, r)
	})
}
