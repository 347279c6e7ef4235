// Package ratelimit throttles booking creation with a counter shared by every instance.
package ratelimit

import (
	"context"
	"fmt"
	"net/http"
	"strconv"
	"time"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

var fixedWindowScript = redis.NewScript(`
local current = redis.call("INCR", KEYS[1])
if current == 1 then
  redis.call("PEXPIRE", KEYS[1], ARGV[1])
end
return current
`)

type counter interface {
	incr(ctx context.Context, key string, window time.Duration) (int64, error)
}

type redisCounter struct {
	rdb *redis.Client
}

func (c redisCounter) incr(ctx context.Context, key string, window time.Duration) (int64, error) {
	res, err := fixedWindowScript.Run(ctx, c.rdb, []string{key}, window.Milliseconds()).Result()
	if err != nil {
		return 0, err
	}
	switch v := res.(type) {
	case int64:
		return v, nil
	case string:
		return strconv.ParseInt(v, 10, 64)
	default:
		return 0, fmt.Errorf("unexpected redis script result %T", res)
	}
}

// Limiter is a fixed-window limiter. It fails open: an unreachable Redis
// never blocks a booking, since overlap safety lives in the database.
type Limiter struct {
	c      counter
	limit  int64
	window time.Duration
	prefix string
	log    *zap.Logger
}

func New(rdb *redis.Client, limit int, window time.Duration, log *zap.Logger) *Limiter {
	if limit <= 0 {
		limit = 30
	}
	if window <= 0 {
		window = time.Minute
	}
	return &Limiter{c: redisCounter{rdb: rdb}, limit: int64(limit), window: window, prefix: "rl:booking", log: log}
}

// Allow reports whether key is still under the limit in the current window.
func (l *Limiter) Allow(ctx context.Context, key string) bool {
	n, err := l.c.incr(ctx, l.prefix+":"+key, l.window)
	if err != nil {
		l.log.Warn("rate limiter unavailable, allowing request", zap.Error(err))
		return true
	}
	return n <= l.limit
}

// Middleware throttles by the key returned from keyFn (usually the caller id).
func (l *Limiter) Middleware(keyFn func(*http.Request) string) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if !l.Allow(r.Context(), keyFn(r)) {
				w.Header().Set("Content-Type", "application/json")
				w.Header().Set("Retry-After", strconv.Itoa(int(l.window.Seconds())))
				w.WriteHeader(http.StatusTooManyRequests)
				_, _ = w.Write([]byte(`{"error_code":"RATE_LIMITED","message":"too many booking attempts"}`))
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}
