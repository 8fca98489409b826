package middleware

import (
	"context"
	"log/slog"
	"net"
	"net/http"
	"strconv"
	"sync"
	"time"

	"feature-flag-service/internal/http/response"
)

// Decision is the outcome of one rate-limit check.
type Decision struct {
	Allowed    bool
	Remaining  int
	RetryAfter time.Duration
}

// Limiter admits or rejects one request for a client key.
type Limiter interface {
	Allow(ctx context.Context, key string) (Decision, error)
}

// LocalFixedWindowLimiter is the in-process fallback used when no Redis is
// configured. One fixed window of one minute per client key.
type LocalFixedWindowLimiter struct {
	limit int

	mu      sync.Mutex
	windows map[string]*localWindow
}

type localWindow struct {
	start time.Time
	count int
}

func NewLocalFixedWindowLimiter(perMinute int) *LocalFixedWindowLimiter {
	if perMinute <= 0 {
		perMinute = 60
	}
	return &LocalFixedWindowLimiter{limit: perMinute, windows: map[string]*localWindow{}}
}

func (l *LocalFixedWindowLimiter) Allow(_ context.Context, key string) (Decision, error) {
	now := time.Now()
	l.mu.Lock()
	defer l.mu.Unlock()

	w, ok := l.windows[key]
	if !ok || now.Sub(w.start) >= time.Minute {
		w = &localWindow{start: now}
		l.windows[key] = w
	}
	if w.count >= l.limit {
		return Decision{Allowed: false, RetryAfter: w.start.Add(time.Minute).Sub(now)}, nil
	}
	w.count++
	return Decision{Allowed: true, Remaining: l.limit - w.count}, nil
}

// RateLimit rejects over-limit requests with 429. Limiter failures fail open:
// a broken limiter backend must not take the API down with it.
func RateLimit(limiter Limiter, logger *slog.Logger) func(http.Handler) http.Handler {
	if logger == nil {
		logger = slog.Default()
	}
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			decision, err := limiter.Allow(r.Context(), clientKey(r))
			if err != nil {
				logger.WarnContext(r.Context(), "rate limiter unavailable, failing open", "error", err)
				next.ServeHTTP(w, r)
				return
			}
			if !decision.Allowed {
				retrySecs := int(decision.RetryAfter / time.Second)
				if retrySecs < 1 {
					retrySecs = 1
				}
				w.Header().Set("Retry-After", strconv.Itoa(retrySecs))
				response.Error(w, r, http.StatusTooManyRequests, "RATE_LIMITED", "too many requests", nil)
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}

func clientKey(r *http.Request) string {
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return host
}
