package middleware

import (
	"fmt"
	"log/slog"
	"math"
	"net/http"
	"sync"
	"time"

	"golang.org/x/time/rate"

	"github.com/sandeepkv93/weapp-session-service/internal/http/response"
)

type RateLimitPolicy struct {
	PerMinute int
	Burst     int
}

type visitor struct {
	limiter  *rate.Limiter
	lastSeen time.Time
}

// RateLimiter keeps one token bucket per key. Buckets idle for longer than
// idleTTL are dropped on the next sweep.
type RateLimiter struct {
	mu       sync.Mutex
	visitors map[string]*visitor
	limit    rate.Limit
	burst    int
	idleTTL  time.Duration
	sweepAt  time.Time
	now      func() time.Time
	keyFunc  func(r *http.Request) string
	applies  func(r *http.Request) bool
	scope    string
}

func NewRateLimiter(policy RateLimitPolicy, scope string) *RateLimiter {
	if policy.PerMinute <= 0 {
		policy.PerMinute = 1
	}
	if policy.Burst <= 0 {
		policy.Burst = policy.PerMinute
	}
	return &RateLimiter{
		visitors: make(map[string]*visitor),
		limit:    rate.Limit(float64(policy.PerMinute) / 60),
		burst:    policy.Burst,
		idleTTL:  10 * time.Minute,
		now:      time.Now,
		keyFunc:  clientIP,
		applies:  func(*http.Request) bool { return true },
		scope:    scope,
	}
}

// NewVerifyRateLimiter limits only requests that carry profile data, which
// are the ones that reach the identity provider.
func NewVerifyRateLimiter(policy RateLimitPolicy) *RateLimiter {
	rl := NewRateLimiter(policy, "session_verify")
	rl.applies = func(r *http.Request) bool {
		return r.Header.Get(HeaderCode) != "" && r.Header.Get(HeaderRawData) != ""
	}
	return rl
}

func (rl *RateLimiter) Middleware() func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if !rl.applies(r) {
				next.ServeHTTP(w, r)
				return
			}
			key := rl.keyFunc(r)
			res := rl.reserve(key)
			if !res.OK() {
				rl.reject(w, r, key, time.Minute)
				return
			}
			if delay := res.DelayFrom(rl.now()); delay > 0 {
				res.CancelAt(rl.now())
				rl.reject(w, r, key, delay)
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}

func (rl *RateLimiter) reject(w http.ResponseWriter, r *http.Request, key string, retry time.Duration) {
	slog.WarnContext(r.Context(), "rate limit exceeded", "scope", rl.scope, "key", key, "path", r.URL.Path)
	w.Header().Set("Retry-After", retryAfterHeader(retry))
	response.Error(w, r, http.StatusTooManyRequests, "RATE_LIMITED", "too many requests", nil)
}

func (rl *RateLimiter) reserve(key string) *rate.Reservation {
	now := rl.now()
	rl.mu.Lock()
	defer rl.mu.Unlock()

	if now.After(rl.sweepAt) {
		for k, v := range rl.visitors {
			if now.Sub(v.lastSeen) > rl.idleTTL {
				delete(rl.visitors, k)
			}
		}
		rl.sweepAt = now.Add(rl.idleTTL)
	}

	v, ok := rl.visitors[key]
	if !ok {
		v = &visitor{limiter: rate.NewLimiter(rl.limit, rl.burst)}
		rl.visitors[key] = v
	}
	v.lastSeen = now
	return v.limiter.ReserveN(now, 1)
}

func retryAfterHeader(d time.Duration) string {
	seconds := int(math.Ceil(d.Seconds()))
	if seconds <= 0 {
		seconds = 1
	}
	return fmt.Sprintf("%d", seconds)
}
