package httpx

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/redis/go-redis/v9"
)

// RedisRateLimiter is a fixed-window limiter shared by all replicas through Redis.
type RedisRateLimiter struct {
	limit  int
	window time.Duration
	prefix string
	incr   func(ctx context.Context, key string) (int64, time.Duration, error)
}

// The script returns the window count and the key's remaining lifetime in milliseconds.
var fixedWindowScript = redis.NewScript(`
local current = redis.call("INCR", KEYS[1])
if current == 1 then
  redis.call("PEXPIRE", KEYS[1], ARGV[1])
end
return {current, redis.call("PTTL", KEYS[1])}
`)

func NewRedisRateLimiter(rdb redis.Scripter, limit int, window time.Duration, prefix string) *RedisRateLimiter {
	if limit <= 0 {
		limit = 60
	}
	if window <= 0 {
		window = time.Minute
	}
	prefix = strings.TrimSpace(prefix)
	if prefix == "" {
		prefix = "rl"
	}
	rl := &RedisRateLimiter{limit: limit, window: window, prefix: prefix}
	rl.incr = func(ctx context.Context, key string) (int64, time.Duration, error) {
		return runFixedWindow(ctx, rdb, key, window)
	}
	return rl
}

// Middleware enforces the limit. With failOpen a Redis outage lets traffic through.
func (rl *RedisRateLimiter) Middleware(logger *slog.Logger, failOpen bool) Middleware {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			count, ttl, err := rl.incr(r.Context(), rl.prefix+":"+clientKey(r))
			if err != nil {
				if logger != nil {
					logger.Warn("redis rate limiter error", "request_id", RequestIDFromContext(r.Context()), "err", err)
				}
				if failOpen {
					next.ServeHTTP(w, r)
					return
				}
				WriteError(w, http.StatusServiceUnavailable, "rate limiter unavailable")
				return
			}
			if ttl <= 0 {
				ttl = rl.window
			}
			if !admit(w, rl.limit, count, ttl) {
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}

func runFixedWindow(ctx context.Context, rdb redis.Scripter, key string, window time.Duration) (int64, time.Duration, error) {
	res, err := fixedWindowScript.Run(ctx, rdb, []string{key}, window.Milliseconds()).Int64Slice()
	if err != nil {
		return 0, 0, err
	}
	if len(res) != 2 {
		return 0, 0, fmt.Errorf("unexpected rate limit script result %v", res)
	}
	return res[0], time.Duration(res[1]) * time.Millisecond, nil
}
