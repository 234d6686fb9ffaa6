package httpapi

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"log"
	"net"
	"net/http"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"
)

type RateLimitConfig struct {
	IPPerMinute       int
	IPBurst           int
	BusinessPerMinute int
	BusinessBurst     int
}

type keyLimiter interface {
	allow(ctx context.Context, key string) bool
}

// RateLimiter throttles per client IP and per business. IP buckets always
// live in process; business counters move to Redis when a client is given,
// so every replica shares them.
type RateLimiter struct {
	ipLimiter       keyLimiter
	businessLimiter keyLimiter
}

func NewRateLimiter(cfg RateLimitConfig) *RateLimiter {
	return &RateLimiter{
		ipLimiter:       newTokenLimiter(cfg.IPPerMinute, cfg.IPBurst),
		businessLimiter: newTokenLimiter(cfg.BusinessPerMinute, cfg.BusinessBurst),
	}
}

func NewRedisRateLimiter(client redis.Cmdable, cfg RateLimitConfig) *RateLimiter {
	return &RateLimiter{
		ipLimiter:       newTokenLimiter(cfg.IPPerMinute, cfg.IPBurst),
		businessLimiter: newRedisLimiter(client, cfg.BusinessPerMinute, cfg.BusinessBurst),
	}
}

func (l *RateLimiter) Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ip := clientIP(r)
		if ip != "" && !l.ipLimiter.allow(r.Context(), ip) {
			writeError(w, "", http.StatusTooManyRequests, "rate_limited", "too many requests")
			return
		}

		businessID, requestID := extractBusinessAndRequestID(r)
		if businessID != "" && !l.businessLimiter.allow(r.Context(), businessID) {
			writeError(w, requestID, http.StatusTooManyRequests, "rate_limited", "too many requests")
			return
		}

		next.ServeHTTP(w, r)
	})
}

type tokenLimiter struct {
	mu     sync.Mutex
	rate   float64
	burst  float64
	bucket map[string]*bucket
	now    func() time.Time
}

type bucket struct {
	tokens float64
	last   time.Time
}

func newTokenLimiter(perMinute, burst int) *tokenLimiter {
	if perMinute <= 0 {
		perMinute = 60
	}
	if burst <= 0 {
		burst = 20
	}
	return &tokenLimiter{
		rate:   float64(perMinute) / 60.0,
		burst:  float64(burst),
		bucket: make(map[string]*bucket),
		now:    time.Now,
	}
}

func (l *tokenLimiter) allow(_ context.Context, key string) bool {
	l.mu.Lock()
	defer l.mu.Unlock()

	now := l.now()
	b, ok := l.bucket[key]
	if !ok {
		l.bucket[key] = &bucket{tokens: l.burst - 1, last: now}
		return true
	}
	elapsed := now.Sub(b.last).Seconds()
	b.tokens = min(l.burst, b.tokens+elapsed*l.rate)
	b.last = now
	if b.tokens < 1 {
		return false
	}
	b.tokens -= 1
	return true
}

// redisLimiter counts requests in fixed one-minute windows. The burst is
// added on top of the per-minute allowance.
type redisLimiter struct {
	client redis.Cmdable
	limit  int64
	now    func() time.Time
}

func newRedisLimiter(client redis.Cmdable, perMinute, burst int) *redisLimiter {
	if perMinute <= 0 {
		perMinute = 60
	}
	if burst < 0 {
		burst = 0
	}
	return &redisLimiter{client: client, limit: int64(perMinute + burst), now: time.Now}
}

func (l *redisLimiter) allow(ctx context.Context, key string) bool {
	window := l.now().Unix() / 60
	redisKey := "queueline:ratelimit:" + key + ":" + strconv.FormatInt(window, 10)

	var incr *redis.IntCmd
	_, err := l.client.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		incr = pipe.Incr(ctx, redisKey)
		pipe.Expire(ctx, redisKey, 2*time.Minute)
		return nil
	})
	if err != nil {
		log.Printf("rate limit store error key=%s err=%v", key, err)
		return true
	}
	return incr.Val() <= l.limit
}

func clientIP(r *http.Request) string {
	if forwarded := r.Header.Get("X-Forwarded-For"); forwarded != "" {
		parts := strings.Split(forwarded, ",")
		return strings.TrimSpace(parts[0])
	}
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return host
}

func extractBusinessAndRequestID(r *http.Request) (string, string) {
	businessID := strings.TrimSpace(r.Header.Get("X-Business-ID"))
	requestID := strings.TrimSpace(r.Header.Get("X-Request-ID"))
	if businessID == "" {
		businessID = strings.TrimSpace(r.URL.Query().Get("business_id"))
	}
	if businessID != "" || r.Body == nil {
		return businessID, requestID
	}
	contentType := r.Header.Get("Content-Type")
	if !strings.Contains(contentType, "application/json") {
		return businessID, requestID
	}

	body, err := readBody(r)
	if err != nil {
		return businessID, requestID
	}
	var payload map[string]interface{}
	if err := json.Unmarshal(body, &payload); err != nil {
		return businessID, requestID
	}
	if value, ok := payload["business_id"].(string); ok {
		businessID = strings.TrimSpace(value)
	}
	if requestID == "" {
		if value, ok := payload["request_id"].(string); ok {
			requestID = strings.TrimSpace(value)
		}
	}
	return businessID, requestID
}

func readBody(r *http.Request) ([]byte, error) {
	body, err := io.ReadAll(io.LimitReader(r.Body, 1<<20))
	if err != nil {
		return nil, err
	}
	_ = r.Body.Close()
	r.Body = io.NopCloser(bytes.NewReader(body))
	return body, nil
}
