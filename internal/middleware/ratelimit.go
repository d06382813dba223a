package middleware

import (
	"context"
	"fmt"
	"net"
	"net/http"
	"strings"
	"time"

	"github.com/aditya/haggle/pkg/utils"
	"github.com/redis/go-redis/v9"
	log "github.com/sirupsen/logrus"
)

// KeyFunc names the bucket a request is counted against. Requests it
// cannot key pass through uncounted.
type KeyFunc func(r *http.Request) (string, bool)

// ByClientIP counts every request against its client address. Mount it
// ahead of authentication so anonymous floods are limited too.
func ByClientIP(r *http.Request) (string, bool) {
	return "ip:" + clientIP(r), true
}

// ByCaller counts authenticated requests per user.
func ByCaller(r *http.Request) (string, bool) {
	userID, ok := UserIDFromContext(r.Context())
	if !ok {
		return "", false
	}
	return "user:" + userID, true
}

// RateLimiter is a fixed-window limiter shared by all replicas through Redis.
type RateLimiter struct {
	redis    *redis.Client
	requests int
	window   time.Duration
	keyFn    KeyFunc
}

func NewRateLimiter(redisClient *redis.Client, requests int, window time.Duration, keyFn KeyFunc) *RateLimiter {
	return &RateLimiter{
		redis:    redisClient,
		requests: requests,
		window:   window,
		keyFn:    keyFn,
	}
}

func (rl *RateLimiter) Handler(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		subject, ok := rl.keyFn(r)
		if !ok {
			next.ServeHTTP(w, r)
			return
		}
		key := fmt.Sprintf("ratelimit:%s:%d", subject, time.Now().UnixNano()/int64(rl.window))
		ctx := r.Context()

		allowed, remaining, err := rl.isAllowed(ctx, key)
		if err != nil {
			// On error, allow the request
			log.WithError(err).Warn("rate limiter unavailable")
			next.ServeHTTP(w, r)
			return
		}

		w.Header().Set("X-RateLimit-Limit", fmt.Sprintf("%d", rl.requests))
		w.Header().Set("X-RateLimit-Remaining", fmt.Sprintf("%d", remaining))

		if !allowed {
			w.Header().Set("Retry-After", fmt.Sprintf("%d", int(rl.window.Seconds())))
			utils.JSON(w, http.StatusTooManyRequests, map[string]string{
				"error":   "rate_limit_exceeded",
				"message": "too many requests, please try again later",
			})
			return
		}

		next.ServeHTTP(w, r)
	})
}

func (rl *RateLimiter) isAllowed(ctx context.Context, key string) (bool, int, error) {
	pipe := rl.redis.Pipeline()

	incr := pipe.Incr(ctx, key)
	pipe.Expire(ctx, key, rl.window)

	_, err := pipe.Exec(ctx)
	if err != nil {
		return true, rl.requests, err
	}

	count := int(incr.Val())
	remaining := rl.requests - count
	if remaining < 0 {
		remaining = 0
	}

	return count <= rl.requests, remaining, nil
}

func clientIP(r *http.Request) string {
	if forwarded := r.Header.Get("X-Forwarded-For"); forwarded != "" {
		first, _, _ := strings.Cut(forwarded, ",")
		return strings.TrimSpace(first)
	}
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return host
}
