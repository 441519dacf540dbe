package httpx

import (
	"net"
	"net/http"
	"strconv"
	"strings"
	"sync"
	"time"
)

// RateLimiter is a per-client fixed-window limiter kept in process memory. Use
// RedisRateLimiter when several replicas serve the same clients.
type RateLimiter struct {
	limit    int
	window   time.Duration
	now      func() time.Time
	mu       sync.Mutex
	visitors map[string]*visitor
}

type visitor struct {
	count     int
	resetTime time.Time
}

func NewRateLimiter(limit int, window time.Duration) *RateLimiter {
	if limit <= 0 {
		limit = 60
	}
	if window <= 0 {
		window = time.Minute
	}
	return &RateLimiter{
		limit:    limit,
		window:   window,
		now:      time.Now,
		visitors: map[string]*visitor{},
	}
}

func (rl *RateLimiter) Middleware() Middleware {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			count, reset := rl.hit(clientKey(r))
			if !admit(w, rl.limit, int64(count), reset) {
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}

// hit counts one request for key and returns the window count and the time until it resets.
func (rl *RateLimiter) hit(key string) (int, time.Duration) {
	rl.mu.Lock()
	defer rl.mu.Unlock()

	now := rl.now()
	v := rl.visitors[key]
	if v == nil || now.After(v.resetTime) {
		if len(rl.visitors) > 10000 {
			rl.evictExpired(now)
		}
		v = &visitor{resetTime: now.Add(rl.window)}
		rl.visitors[key] = v
	}
	if v.count <= rl.limit {
		v.count++
	}
	return v.count, v.resetTime.Sub(now)
}

func (rl *RateLimiter) evictExpired(now time.Time) {
	for k, v := range rl.visitors {
		if now.After(v.resetTime) {
			delete(rl.visitors, k)
		}
	}
}

// admit sets the rate limit headers and answers 429 once count exceeds limit.
func admit(w http.ResponseWriter, limit int, count int64, reset time.Duration) bool {
	h := w.Header()
	h.Set("X-RateLimit-Limit", strconv.Itoa(limit))
	h.Set("X-RateLimit-Remaining", strconv.FormatInt(max(int64(limit)-count, 0), 10))
	if count <= int64(limit) {
		return true
	}
	secs := int((reset + time.Second - 1) / time.Second)
	h.Set("Retry-After", strconv.Itoa(max(secs, 1)))
	WriteError(w, http.StatusTooManyRequests, "rate limit exceeded")
	return false
}

func clientKey(r *http.Request) string {
	if fwd := r.Header.Get("X-Forwarded-For"); fwd != "" {
		first, _, _ := strings.Cut(fwd, ",")
		return strings.TrimSpace(first)
	}
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err == nil {
		return host
	}
	return r.RemoteAddr
}
