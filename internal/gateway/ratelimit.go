package gateway

import (
	"log/slog"
	"net"
	"net/http"
	"strconv"
	"sync"
	"time"
)

// RateLimitConfig bounds retrieve calls per client address. Zero disables
// limiting.
type RateLimitConfig struct {
	RequestsPerMin int `yaml:"requests_per_min"`
}

// rateLimiter is a sliding-window limiter keyed by client.
type rateLimiter struct {
	mu      sync.Mutex
	window  time.Duration
	limit   int
	clients map[string][]time.Time
	now     func() time.Time
}

func newRateLimiter(limit int, window time.Duration) *rateLimiter {
	return &rateLimiter{
		window:  window,
		limit:   limit,
		clients: make(map[string][]time.Time),
		now:     time.Now,
	}
}

// allow records a request for key and reports whether it fits the window.
// When it does not, it also returns how long until the oldest request
// leaves the window.
func (rl *rateLimiter) allow(key string) (bool, time.Duration) {
	rl.mu.Lock()
	defer rl.mu.Unlock()

	now := rl.now()
	events := evict(rl.clients[key], now.Add(-rl.window))
	if len(events) >= rl.limit {
		rl.clients[key] = events
		return false, events[0].Add(rl.window).Sub(now)
	}
	rl.clients[key] = append(events, now)
	rl.sweep(now)
	return true, 0
}

// sweep drops clients with no requests inside the window so the map does
// not grow with every address ever seen.
func (rl *rateLimiter) sweep(now time.Time) {
	if len(rl.clients) < 1024 {
		return
	}
	cutoff := now.Add(-rl.window)
	for key, events := range rl.clients {
		if len(evict(events, cutoff)) == 0 {
			delete(rl.clients, key)
		}
	}
}

// evict removes events before cutoff. Events are chronological.
func evict(events []time.Time, cutoff time.Time) []time.Time {
	i := 0
	for i < len(events) && events[i].Before(cutoff) {
		i++
	}
	return events[i:]
}

// rateLimitMiddleware answers 429 once a client exceeds the limit.
func rateLimitMiddleware(rl *rateLimiter, logger *slog.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			key := clientKey(r)
			ok, wait := rl.allow(key)
			if !ok {
				logger.Warn("gateway: rate limited", "client", key, "path", r.URL.Path)
				secs := int(wait.Seconds())
				if secs < 1 {
					secs = 1
				}
				w.Header().Set("Retry-After", strconv.Itoa(secs))
				writeError(w, http.StatusTooManyRequests, "rate limit exceeded")
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
