package middleware

import (
	"log"
	"net/http"
	"time"

	"github.com/redis/go-redis/v9"
)

// RateLimit caps requests per remote address over a sliding window backed
// by a Redis counter. When Redis is unreachable the limiter fails open:
// visit tracking is not worth rejecting traffic over.
func RateLimit(rdb *redis.Client, limit int, window time.Duration) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			ctx := r.Context()
			key := "instantin:ratelimit:" + r.RemoteAddr

			current, err := rdb.Incr(ctx, key).Result()
			if err != nil {
				log.Printf("[RateLimit] Redis error, failing open: %v", err)
				next.ServeHTTP(w, r)
				return
			}
			if current == 1 {
				rdb.Expire(ctx, key, window)
			}
			if current > int64(limit) {
				http.Error(w, "Too Many Requests", http.StatusTooManyRequests)
				return
			}

			next.ServeHTTP(w, r)
		})
	}
}
