package middleware

import (
	"net"
	"net/http"
	"strconv"
	"sync"
	"time"

	"github.com/haulstack/console-gateway/internal/http/response"
)

// RateLimiter is a per-key fixed-window limiter for the credential endpoints.
// The gateway fronts a single terminal, so an in-process window is enough; it
// exists to slow down someone hammering the login form, not to shape traffic.
type RateLimiter struct {
	limit  int
	window time.Duration

	mu      sync.Mutex
	hits    map[string][]time.Time
	sweepAt time.Time
}

func NewRateLimiter(limit int, window time.Duration) *RateLimiter {
	return &RateLimiter{
		limit:   limit,
		window:  window,
		hits:    make(map[string][]time.Time),
		sweepAt: time.Now().Add(window),
	}
}

func (l *RateLimiter) allow(key string, now time.Time) (bool, time.Duration) {
	l.mu.Lock()
	defer l.mu.Unlock()

	if now.After(l.sweepAt) {
		for k, times := range l.hits {
			if len(times) == 0 || now.Sub(times[len(times)-1]) > l.window {
				delete(l.hits, k)
			}
		}
		l.sweepAt = now.Add(l.window)
	}

	cutoff := now.Add(-l.window)
	kept := l.hits[key][:0]
	for _, ts := range l.hits[key] {
		if ts.After(cutoff) {
			kept = append(kept, ts)
		}
	}
	if len(kept) >= l.limit {
		l.hits[key] = kept
		retryAfter := l.window - now.Sub(kept[0])
		if retryAfter < time.Second {
			retryAfter = time.Second
		}
		return false, retryAfter
	}
	l.hits[key] = append(kept, now)
	return true, 0
}

func (l *RateLimiter) Middleware() func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			ok, retryAfter := l.allow(clientKey(r), time.Now())
			if !ok {
				w.Header().Set("Retry-After", strconv.Itoa(int(retryAfter.Seconds()+0.5)))
				response.Error(w, r, http.StatusTooManyRequests, "RATE_LIMITED", "too many attempts, slow down", nil)
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
