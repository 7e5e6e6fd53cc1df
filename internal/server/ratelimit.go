package server

import (
	"net"
	"net/http"
	"strconv"
	"sync"
	"time"
)

// connectLimiter is a sliding-window limiter keyed by remote IP.
type connectLimiter struct {
	limit  int
	window time.Duration

	mu      sync.Mutex
	buckets map[string][]time.Time
	now     func() time.Time
}

func newConnectLimiter(limit int, window time.Duration) *connectLimiter {
	return &connectLimiter{
		limit:   limit,
		window:  window,
		buckets: make(map[string][]time.Time),
		now:     time.Now,
	}
}

// allow records an attempt for key and reports whether it is within the limit.
func (l *connectLimiter) allow(key string) bool {
	l.mu.Lock()
	defer l.mu.Unlock()

	now := l.now()
	cutoff := now.Add(-l.window)

	// Sweep other stale keys while we hold the lock anyway.
	for k, stamps := range l.buckets {
		if k != key && len(stamps) > 0 && !stamps[len(stamps)-1].After(cutoff) {
			delete(l.buckets, k)
		}
	}

	stamps := l.buckets[key][:0:0]
	for _, ts := range l.buckets[key] {
		if ts.After(cutoff) {
			stamps = append(stamps, ts)
		}
	}
	if len(stamps) >= l.limit {
		l.buckets[key] = stamps
		return false
	}
	l.buckets[key] = append(stamps, now)
	return true
}

func (l *connectLimiter) middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if !l.allow(remoteIP(r)) {
			w.Header().Set("Retry-After", strconv.Itoa(int(l.window.Seconds())))
			respondJSON(w, http.StatusTooManyRequests, map[string]string{"error": "rate limit exceeded"})
			return
		}
		next.ServeHTTP(w, r)
	})
}

// remoteIP strips the port from r.RemoteAddr. Forwarded headers are ignored
// because the server is not meant to sit behind a proxy.
func remoteIP(r *http.Request) string {
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return host
}
