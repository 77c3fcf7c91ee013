package middleware

import (
	"net"
	"net/http"
	"strings"
	"sync"
	"time"
)

// limiter tracks fixed-window request counts per client IP. Windows are
// lazily reset on access and stale entries are swept once per window so the
// map does not grow with one-off callers.
type limiter struct {
	mu        sync.Mutex
	limit     int
	window    time.Duration
	counts    map[string]*window
	nextSweep time.Time
}

type window struct {
	hits  int
	reset time.Time
}

// RateLimit caps each client IP at limit requests per window, answering 429
// beyond it.
func RateLimit(limit int, per time.Duration) func(http.Handler) http.Handler {
	l := &limiter{
		limit:     limit,
		window:    per,
		counts:    make(map[string]*window),
		nextSweep: time.Now().Add(per),
	}
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if !l.allow(clientIPForRateLimit(r)) {
				w.WriteHeader(http.StatusTooManyRequests)
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}

func (l *limiter) allow(ip string) bool {
	now := time.Now()
	l.mu.Lock()
	defer l.mu.Unlock()

	if now.After(l.nextSweep) {
		for key, win := range l.counts {
			if now.After(win.reset) {
				delete(l.counts, key)
			}
		}
		l.nextSweep = now.Add(l.window)
	}

	win, ok := l.counts[ip]
	if !ok || now.After(win.reset) {
		win = &window{reset: now.Add(l.window)}
		l.counts[ip] = win
	}
	if win.hits >= l.limit {
		return false
	}
	win.hits++
	return true
}

// clientIPForRateLimit prefers the first valid forwarded address; proxies
// append, so the leftmost entry is the original client.
func clientIPForRateLimit(r *http.Request) string {
	if xf := r.Header.Get("X-Forwarded-For"); xf != "" {
		for _, part := range strings.Split(xf, ",") {
			if ip := strings.TrimSpace(part); net.ParseIP(ip) != nil {
				return ip
			}
		}
	}
	if host, _, err := net.SplitHostPort(r.RemoteAddr); err == nil && net.ParseIP(host) != nil {
		return host
	}
	return r.RemoteAddr
}
