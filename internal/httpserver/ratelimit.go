package httpserver

import (
	"context"
	"fmt"
	"net"
	"net/http"
	"strconv"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"

	"chatup/internal/metrics"
)

// RateLimiter is a redis-backed sliding window limiter keyed by client IP.
// It fails open: when redis is unreachable requests pass and a warning is
// logged.
type RateLimiter struct {
	hits hitWindow
	log  zerolog.Logger
	now  func() time.Time
}

// hitWindow records a hit at now and returns how many earlier hits fall
// inside the trailing window.
type hitWindow interface {
	Record(ctx context.Context, key string, now time.Time, window time.Duration) (int, error)
}

func NewRateLimiter(client *redis.Client, logger zerolog.Logger) *RateLimiter {
	return newRateLimiter(redisWindow{client: client}, logger)
}

func newRateLimiter(hits hitWindow, logger zerolog.Logger) *RateLimiter {
	return &RateLimiter{
		hits: hits,
		log:  logger.With().Str("component", "ratelimit").Logger(),
		now:  time.Now,
	}
}

// redisWindow keeps one sorted set per key scored by hit time in ms.
type redisWindow struct {
	client *redis.Client
}

func (rw redisWindow) Record(ctx context.Context, key string, now time.Time, window time.Duration) (int, error) {
	windowStart := now.Add(-window)

	pipe := rw.client.TxPipeline()
	pipe.ZRemRangeByScore(ctx, key, "-inf", strconv.FormatInt(windowStart.UnixMilli(), 10))
	countCmd := pipe.ZCard(ctx, key)
	pipe.ZAdd(ctx, key, redis.Z{
		Score:  float64(now.UnixMilli()),
		Member: strconv.FormatInt(now.UnixNano(), 10),
	})
	pipe.Expire(ctx, key, window)
	if _, err := pipe.Exec(ctx); err != nil {
		return 0, fmt.Errorf("rate limit pipeline: %w", err)
	}
	return int(countCmd.Val()), nil
}

// Allow records a hit for key and reports whether it is within limit for
// the trailing window, along with the hits left.
func (rl *RateLimiter) Allow(ctx context.Context, key string, limit int, window time.Duration) (bool, int, error) {
	count, err := rl.hits.Record(ctx, key, rl.now(), window)
	if err != nil {
		return true, limit, err
	}

	remaining := limit - count - 1
	if remaining < 0 {
		remaining = 0
	}
	return count < limit, remaining, nil
}

// Limit returns middleware allowing `requests` per client IP per window on
// the routes it wraps; name labels the bucket and the metric.
func (rl *RateLimiter) Limit(name string, requests int, window time.Duration) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			ip := clientIP(r)
			key := "ratelimit:" + name + ":" + ip

			allowed, remaining, err := rl.Allow(r.Context(), key, requests, window)
			if err != nil {
				rl.log.Warn().Err(err).Str("route", name).Msg("rate limiter unavailable, allowing request")
				next.ServeHTTP(w, r)
				return
			}

			w.Header().Set("X-RateLimit-Limit", strconv.Itoa(requests))
			w.Header().Set("X-RateLimit-Remaining", strconv.Itoa(remaining))
			if !allowed {
				metrics.RateLimitHits.WithLabelValues(name).Inc()
				rl.log.Warn().
					Str("event", "rate_limit_exceeded").
					Str("ip", ip).
					Str("route", name).
					Msg("rate limit exceeded")
				w.Header().Set("Retry-After", strconv.Itoa(int(window.Seconds())))
				writeFail(w, http.StatusTooManyRequests, "too many requests, try again later")
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}

// clientIP relies on chi's RealIP middleware having rewritten RemoteAddr.
func clientIP(r *http.Request) string {
	ip, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return ip
}
