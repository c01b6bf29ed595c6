package middleware

import (
	"net"
	"net/http"
	"strconv"
	"sync"
	"time"
)

type window struct {
	count      int
	windowEnds time.Time
}

// IPRateLimiter allows limit requests per client IP in each fixed window.
// At most maxEntries IPs are tracked; when full, expired windows are
// dropped first and then the one closest to expiry.
type IPRateLimiter struct {
	mu         sync.Mutex
	limit      int
	window     time.Duration
	maxEntries int
	clients    map[string]window
	now        func() time.Time
}

func NewIPRateLimiter(limit int, window time.Duration) *IPRateLimiter {
	return NewIPRateLimiterWithMaxEntries(limit, window, 10000)
}

func NewIPRateLimiterWithMaxEntries(limit int, per time.Duration, maxEntries int) *IPRateLimiter {
	if limit <= 0 {
		limit = 1
	}
	if per <= 0 {
		per = time.Minute
	}
	if maxEntries <= 0 {
		maxEntries = 10000
	}
	return &IPRateLimiter{
		limit:      limit,
		window:     per,
		maxEntries: maxEntries,
		clients:    map[string]window{},
		now:        time.Now,
	}
}

func (rl *IPRateLimiter) Middleware(message string) func(http.Handler) http.Handler {
	if message == "" {
		message = "Rate limit exceeded"
	}
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			ip := clientIP(r.RemoteAddr)
			if ip == "" {
				ip = "unknown"
			}

			allowed, retryAfter := rl.allow(ip)
			if !allowed {
				w.Header().Set("Retry-After", strconv.Itoa(int(retryAfter.Round(time.Second)/time.Second)))
				writeError(w, r, http.StatusTooManyRequests, "RATE_LIMITED", message, nil)
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}

func (rl *IPRateLimiter) allow(ip string) (bool, time.Duration) {
	now := rl.now()
	rl.mu.Lock()
	defer rl.mu.Unlock()

	entry, ok := rl.clients[ip]
	if !ok && len(rl.clients) >= rl.maxEntries {
		rl.evict(now)
	}
	if entry.windowEnds.Before(now) {
		entry = window{windowEnds: now.Add(rl.window)}
	}
	entry.count++
	rl.clients[ip] = entry

	if entry.count > rl.limit {
		return false, entry.windowEnds.Sub(now)
	}
	return true, 0
}

// evict makes room for one entry. Callers hold mu.
func (rl *IPRateLimiter) evict(now time.Time) {
	for ip, entry := range rl.clients {
		if entry.windowEnds.Before(now) {
			delete(rl.clients, ip)
		}
	}
	if len(rl.clients) < rl.maxEntries {
		return
	}
	var (
		oldestIP string
		oldest   time.Time
	)
	for ip, entry := range rl.clients {
		if oldestIP == "" || entry.windowEnds.Before(oldest) {
			oldestIP, oldest = ip, entry.windowEnds
		}
	}
	delete(rl.clients, oldestIP)
}

func (rl *IPRateLimiter) tracked() int {
	rl.mu.Lock()
	defer rl.mu.Unlock()
	return len(rl.clients)
}

func clientIP(remoteAddr string) string {
	host, _, err := net.SplitHostPort(remoteAddr)
	if err != nil {
		return remoteAddr
	}
	return host
}
