package middleware

import (
	"encoding/json"
	"log/slog"
	"net"
	"net/http"
	"strconv"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"
	"golang.org/x/time/rate"

	"github.com/krzysztofKolodziej/idea-match/internal/auth"
	"github.com/krzysztofKolodziej/idea-match/internal/metrics"
)

// RateLimit enforces a per-client token bucket held in process memory.
// rps is the refill rate, burst the bucket size.
//
// The client key is the authenticated user id when an earlier middleware
// stored one, otherwise the client IP (after chi's RealIP has run).
//
// Memory is bounded by the number of clients seen within the idle window
// (see newMemoryLimiter); older buckets are dropped.
func RateLimit(rps float64, burst int) func(http.Handler) http.Handler {
	limiter := newMemoryLimiter(rps, burst, time.Now)

	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if !limiter.allow(clientKey(r)) {
				metrics.RateLimitRejected.WithLabelValues("memory").Inc()
				writeRateLimited(w, time.Second)
				return
			}
			metrics.RateLimitAllowed.WithLabelValues("memory").Inc()
			next.ServeHTTP(w, r)
		})
	}
}

const (
	minLimiterIdle = time.Minute
	maxLimiterIdle = 24 * time.Hour
)

type limitedClient struct {
	limiter  *rate.Limiter
	lastSeen time.Time
}

// memoryLimiter keeps one token bucket per client key. A bucket unused for
// idle has refilled completely, so dropping it loses nothing; idle is the
// full-refill time burst/rps, clamped to [minLimiterIdle, maxLimiterIdle].
type memoryLimiter struct {
	rps   rate.Limit
	burst int
	idle  time.Duration
	now   func() time.Time

	mu        sync.Mutex
	clients   map[string]*limitedClient
	lastSweep time.Time
}

func newMemoryLimiter(rps float64, burst int, now func() time.Time) *memoryLimiter {
	idle := maxLimiterIdle
	if rps > 0 {
		if refill := float64(burst) / rps; refill < maxLimiterIdle.Seconds() {
			idle = max(time.Duration(refill*float64(time.Second)), minLimiterIdle)
		}
	}
	return &memoryLimiter{
		rps:       rate.Limit(rps),
		burst:     burst,
		idle:      idle,
		now:       now,
		clients:   make(map[string]*limitedClient),
		lastSweep: now(),
	}
}

func (l *memoryLimiter) allow(key string) bool {
	l.mu.Lock()
	defer l.mu.Unlock()

	now := l.now()
	if now.Sub(l.lastSweep) >= l.idle {
		for k, c := range l.clients {
			if now.Sub(c.lastSeen) >= l.idle {
				delete(l.clients, k)
			}
		}
		l.lastSweep = now
	}

	c, ok := l.clients[key]
	if !ok {
		c = &limitedClient{limiter: rate.NewLimiter(l.rps, l.burst)}
		l.clients[key] = c
	}
	c.lastSeen = now
	return c.limiter.AllowN(now, 1)
}

// RedisRateLimit is a fixed-window limiter shared by every server instance
// using the same Redis. Each client gets rps*window+burst requests per
// window; the window starts with the client's first request.
//
// A nil client falls back to RateLimit. When Redis is unreachable the
// request is let through and the failure is logged.
func RedisRateLimit(client *redis.Client, rps float64, burst int, window time.Duration, logger *slog.Logger) func(http.Handler) http.Handler {
	if client == nil {
		return RateLimit(rps, burst)
	}
	if window < time.Second {
		window = time.Second
	}
	allowed := int64(rps*window.Seconds()) + int64(burst)

	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			ctx := r.Context()
			redisKey := "rl:" + clientKey(r)

			count, err := client.Incr(ctx, redisKey).Result()
			if err != nil {
				logger.Warn("rate limit check failed, allowing request",
					slog.String("key", redisKey),
					slog.String("error", err.Error()),
				)
				next.ServeHTTP(w, r)
				return
			}
			if count == 1 {
				if err := client.Expire(ctx, redisKey, window).Err(); err != nil {
					logger.Warn("setting rate limit window failed",
						slog.String("key", redisKey),
						slog.String("error", err.Error()),
					)
				}
			}

			if count > allowed {
				metrics.RateLimitRejected.WithLabelValues("redis").Inc()
				retry := window
				if ttl, err := client.TTL(ctx, redisKey).Result(); err == nil && ttl > 0 {
					retry = ttl
				}
				writeRateLimited(w, retry)
				return
			}
			metrics.RateLimitAllowed.WithLabelValues("redis").Inc()
			next.ServeHTTP(w, r)
		})
	}
}

func clientKey(r *http.Request) string {
	if id, ok := auth.UserIDFromContext(r.Context()); ok {
		return "user:" + strconv.FormatInt(id, 10)
	}
	host := r.RemoteAddr
	if h, _, err := net.SplitHostPort(host); err == nil {
		host = h
	}
	if host == "" {
		host = "unknown"
	}
	return "ip:" + host
}

func writeRateLimited(w http.ResponseWriter, retryAfter time.Duration) {
	seconds := int(retryAfter.Round(time.Second).Seconds())
	if seconds < 1 {
		seconds = 1
	}
	w.Header().Set("Retry-After", strconv.Itoa(seconds))
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusTooManyRequests)
	_ = json.NewEncoder(w).Encode(map[string]string{
		"error":   "rate_limited",
		"message": "too many requests, try again later",
	})
}
