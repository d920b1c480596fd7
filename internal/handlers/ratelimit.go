package handlers

import (
	"context"
	"fmt"
	"net"
	"net/http"
	"time"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

// Counter increments a windowed counter and returns its new value.
type Counter interface {
	Incr(ctx context.Context, key string, window time.Duration) (int64, error)
}

// RedisCounter is a fixed-window Counter backed by INCR and EXPIRE.
type RedisCounter struct {
	client *redis.Client
}

func NewRedisCounter(client *redis.Client) *RedisCounter {
	return &RedisCounter{client: client}
}

func (c *RedisCounter) Incr(ctx context.Context, key string, window time.Duration) (int64, error) {
	pipe := c.client.TxPipeline()
	incr := pipe.Incr(ctx, key)
	pipe.ExpireNX(ctx, key, window)
	if _, err := pipe.Exec(ctx); err != nil {
		return 0, err
	}
	return incr.Val(), nil
}

// RateLimiter caps requests per client address within a window.
type RateLimiter struct {
	counter Counter
	prefix  string
	limit   int
	window  time.Duration
	logger  *zap.Logger
}

func NewRateLimiter(counter Counter, prefix string, limit int, window time.Duration, logger *zap.Logger) *RateLimiter {
	return &RateLimiter{
		counter: counter,
		prefix:  prefix,
		limit:   limit,
		window:  window,
		logger:  logger,
	}
}

// Middleware rejects requests above the limit with 429. Counter failures let
// the request through.
func (l *RateLimiter) Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		key := fmt.Sprintf("%s:%s:%s", l.prefix, r.URL.Path, clientAddr(r))
		count, err := l.counter.Incr(r.Context(), key, l.window)
		if err != nil {
			l.logger.Warn("rate limiter unavailable", zap.String("key", key), zap.Error(err))
			next.ServeHTTP(w, r)
			return
		}
		if count > int64(l.limit) {
			w.Header().Set("Retry-After", fmt.Sprintf("%d", int(l.window.Seconds())))
			sendErrors(w, http.StatusTooManyRequests, nil, "Too many requests, try again later")
			return
		}
		next.ServeHTTP(w, r)
	})
}

const contextPeerKey contextKey = "peer"

// CapturePeer records the socket peer address before any middleware rewrites
// RemoteAddr from forwarding headers. It must run ahead of middleware.RealIP.
func CapturePeer(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ctx := context.WithValue(r.Context(), contextPeerKey, r.RemoteAddr)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

// clientAddr is the host of the captured socket peer, or of RemoteAddr when
// CapturePeer did not run. Forwarding headers are client controlled and are
// never used as a limiter key.
func clientAddr(r *http.Request) string {
	addr, ok := r.Context().Value(contextPeerKey).(string)
	if !ok {
		addr = r.RemoteAddr
	}
	host, _, err := net.SplitHostPort(addr)
	if err != nil {
		return addr
	}
	return host
}
