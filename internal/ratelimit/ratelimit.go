// Package ratelimit enforces per-client request quotas over fixed windows.
package ratelimit

import (
	"context"
	"fmt"
	"log/slog"
	"math"
	"net"
	"net/http"
	"strconv"
	"time"

	"github.com/digitaldrreamer/haveibeendrained-sub003/internal/domain"
	"github.com/digitaldrreamer/haveibeendrained-sub003/internal/metrics"
)

// Client tiers.
const (
	TierAnonymous = "anonymous"
	TierKeyed     = "keyed"
)

// Client identifies the caller a quota is charged to.
type Client struct {
	// Key is the counter key, e.g. "key:<id>" or "ip:<addr>".
	Key  string
	Tier string

	// Limit overrides the tier default when positive.
	Limit int
}

// Result is the outcome of one Allow call.
type Result struct {
	Allowed   bool
	Limit     int
	Remaining int
	ResetAt   time.Time
}

// Limiter counts requests in the shared cache so every replica sees the
// same quota when the cache is Redis-backed.
type Limiter struct {
	cache          domain.Cache
	window         time.Duration
	anonymousLimit int
	keyedLimit     int
	now            func() time.Time
}

// New creates a limiter. Non-positive settings fall back to the defaults.
func New(cache domain.Cache, cfg domain.RateLimitConfig) (*Limiter, error) {
	if cache == nil {
		return nil, fmt.Errorf("rate limiter requires a cache")
	}
	l := &Limiter{
		cache:          cache,
		window:         cfg.Window,
		anonymousLimit: cfg.AnonymousLimit,
		keyedLimit:     cfg.KeyedLimit,
		now:            time.Now,
	}
	if l.window <= 0 {
		l.window = time.Minute
	}
	if l.anonymousLimit <= 0 {
		l.anonymousLimit = 30
	}
	if l.keyedLimit <= 0 {
		l.keyedLimit = 300
	}
	return l, nil
}

// LimitFor returns the quota applied to c.
func (l *Limiter) LimitFor(c Client) int {
	if c.Limit > 0 {
		return c.Limit
	}
	if c.Tier == TierKeyed {
		return l.keyedLimit
	}
	return l.anonymousLimit
}

// Allow charges one request to c. Cache failures let the request through.
func (l *Limiter) Allow(ctx context.Context, c Client) (Result, error) {
	limit := l.LimitFor(c)
	now := l.now()
	windowStart := now.Truncate(l.window)
	res := Result{
		Limit:   limit,
		ResetAt: windowStart.Add(l.window),
	}

	key := c.Key + ":" + strconv.FormatInt(windowStart.Unix(), 10)
	count, err := l.cache.IncrementCounter(ctx, domain.ScopeRateLimit, key, l.window)
	if err != nil {
		res.Allowed = true
		res.Remaining = limit
		return res, err
	}

	res.Allowed = count <= int64(limit)
	res.Remaining = int(max(0, int64(limit)-count))
	return res, nil
}

// ClientFunc resolves the caller of a request.
type ClientFunc func(r *http.Request) Client

// Middleware rejects requests over quota with 429 and a Retry-After header.
func (l *Limiter) Middleware(identify ClientFunc) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			client := identify(r)
			res, err := l.Allow(r.Context(), client)
			if err != nil {
				slog.Warn("rate limit check failed, allowing request",
					"client", client.Key,
					"error", err,
				)
			}

			w.Header().Set("X-RateLimit-Limit", strconv.Itoa(res.Limit))
			w.Header().Set("X-RateLimit-Remaining", strconv.Itoa(res.Remaining))
			w.Header().Set("X-RateLimit-Reset", strconv.FormatInt(res.ResetAt.Unix(), 10))

			if !res.Allowed {
				retryAfter := int(math.Ceil(res.ResetAt.Sub(l.now()).Seconds()))
				if retryAfter < 1 {
					retryAfter = 1
				}
				metrics.RateLimitedTotal.WithLabelValues(client.Tier).Inc()
				w.Header().Set("Retry-After", strconv.Itoa(retryAfter))
				w.Header().Set("Content-Type", "application/json")
				w.WriteHeader(http.StatusTooManyRequests)
				w.Write([]byte(`{"error":"rate limit exceeded"}`))
				return
			}

			next.ServeHTTP(w, r)
		})
	}
}

// ClientIP returns the request's remote host without the port.
func ClientIP(r *http.Request) string {
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return host
}
