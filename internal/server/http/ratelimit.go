package httpserver

import (
	"net"
	"net/http"
	"sync"
	"time"

	"golang.org/x/time/rate"
)

// connectLimiter throttles /events connect attempts per remote IP, a
// trimmed, single-level version (no separate global bucket) of
// adred-codev-ws_poc/ws/internal/shared/limits/connection_rate_limiter.go's
// token-bucket-per-IP design — this fabric's global ceiling is already the
// bounded mailbox/queue backpressure C4 and C6 enforce, so only the per-IP
// flood case needs a dedicated limiter here.
type connectLimiter struct {
	mu       sync.Mutex
	perIP    map[string]*ipEntry
	rate     rate.Limit
	burst    int
	ttl      time.Duration
	lastSwept time.Time
}

type ipEntry struct {
	limiter    *rate.Limiter
	lastAccess time.Time
}

// newConnectLimiter builds a limiter allowing burst connects per IP, then
// sustainedPerSec thereafter. Stale per-IP entries are swept opportunistically
// on Allow so the map never grows unbounded under a long-lived process.
func newConnectLimiter(sustainedPerSec float64, burst int, ttl time.Duration) *connectLimiter {
	if sustainedPerSec <= 0 {
		sustainedPerSec = 1
	}
	if burst <= 0 {
		burst = 10
	}
	if ttl <= 0 {
		ttl = 5 * time.Minute
	}
	return &connectLimiter{
		perIP: make(map[string]*ipEntry),
		rate:  rate.Limit(sustainedPerSec),
		burst: burst,
		ttl:   ttl,
	}
}

func (l *connectLimiter) allow(ip string) bool {
	l.mu.Lock()
	defer l.mu.Unlock()

	now := time.Now()
	if now.Sub(l.lastSwept) > l.ttl {
		for k, e := range l.perIP {
			if now.Sub(e.lastAccess) > l.ttl {
				delete(l.perIP, k)
			}
		}
		l.lastSwept = now
	}

	e, ok := l.perIP[ip]
	if !ok {
		e = &ipEntry{limiter: rate.NewLimiter(l.rate, l.burst)}
		l.perIP[ip] = e
	}
	e.lastAccess = now
	return e.limiter.Allow()
}

// rateLimitConnect wraps next, rejecting with 429 when the caller's IP has
// exceeded its connect-attempt budget.
func rateLimitConnect(limiter *connectLimiter, metrics *Metrics, next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ip := clientIP(r)
		if !limiter.allow(ip) {
			metrics.ConnectionRejected("rate_limited")
			http.Error(w, "too many connection attempts", http.StatusTooManyRequests)
			return
		}
		next.ServeHTTP(w, r)
	})
}

func clientIP(r *http.Request) string {
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return host
}
