package authapi

import (
	"net/http"
	"strconv"
	"sync"
	"time"
)

// ipRateLimiter is a per-key sliding-window limiter. Keys are client IPs;
// each key tracks its own window of event timestamps.
type ipRateLimiter struct {
	mu     sync.Mutex
	perKey map[string][]time.Time
	limit  int
	window time.Duration
}

func newIPRateLimiter(limit int, window time.Duration) *ipRateLimiter {
	if limit <= 0 {
		limit = 100
	}
	if window <= 0 {
		window = 10 * time.Minute
	}
	return &ipRateLimiter{
		perKey: make(map[string][]time.Time),
		limit:  limit,
		window: window,
	}
}

// Allow reports whether an event for key at time "now" is permitted.
// When denied, retryAfter is how long until the oldest event in the window
// ages out.
func (l *ipRateLimiter) Allow(key string, now time.Time) (allowed bool, retryAfter time.Duration) {
	l.mu.Lock()
	defer l.mu.Unlock()

	cut := now.Add(-l.window)
	events := l.perKey[key]
	dst := events[:0]
	for _, t := range events {
		if t.After(cut) {
			dst = append(dst, t)
		}
	}

	if len(dst) >= l.limit {
		l.perKey[key] = dst
		return false, dst[0].Sub(cut)
	}

	l.perKey[key] = append(dst, now)

	// Drop fully idle keys opportunistically so the map does not grow
	// without bound under churning client IPs.
	if len(l.perKey) > 4*l.limit {
		for k, ts := range l.perKey {
			if len(ts) == 0 || !ts[len(ts)-1].After(cut) {
				delete(l.perKey, k)
			}
		}
	}
	return true, 0
}

// limited wraps next with the per-IP limiter. Denied requests get 429 with
// Retry-After in whole seconds, rounded up.
func (h *Handler) limited(next http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ip := clientIP(r, h.cfg.TrustProxy)
		if allowed, retryAfter := h.limiter.Allow(ip, time.Now().UTC()); !allowed {
			secs := int64((retryAfter + time.Second - 1) / time.Second)
			if secs < 1 {
				secs = 1
			}
			w.Header().Set("Retry-After", strconv.FormatInt(secs, 10))
			rateLimitedTotal.Inc()
			writeError(w, http.StatusTooManyRequests, codeRateLimited, "too many requests")
			return
		}
		next(w, r)
	}
}
