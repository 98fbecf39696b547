/*
Package limiter throttles the admin API per client IP.

Each IP gets its own token bucket (rate.Limiter). Buckets that refill back
to full are reaped periodically so one-off callers do not accumulate in
memory.
*/
package limiter

import (
	"net"
	"net/http"
	"sync"
	"time"

	"chatwire/internal/pkg/errs"
	"chatwire/internal/pkg/logx"
	"chatwire/internal/pkg/resp"

	"golang.org/x/time/rate"
)

// reapInterval is how often idle buckets are swept out.
const reapInterval = 3 * time.Minute

// IPRateLimiter holds one token bucket per client IP.
type IPRateLimiter struct {
	mu      sync.RWMutex
	buckets map[string]*rate.Limiter

	// r and b are the per-IP sustained rate and burst capacity.
	r rate.Limit
	b int
}

// NewIPRateLimiter builds the limiter and starts the background reaper.
func NewIPRateLimiter(r rate.Limit, b int) *IPRateLimiter {
	i := &IPRateLimiter{
		buckets: make(map[string]*rate.Limiter),
		r:       r,
		b:       b,
	}

	go i.reapIdle()

	return i
}

// GetLimiter returns the bucket for the given IP, creating it on first use.
func (i *IPRateLimiter) GetLimiter(ip string) *rate.Limiter {
	i.mu.RLock()
	bucket, exists := i.buckets[ip]
	i.mu.RUnlock()

	if !exists {
		i.mu.Lock()
		bucket, exists = i.buckets[ip]
		if !exists {
			bucket = rate.NewLimiter(i.r, i.b)
			i.buckets[ip] = bucket
		}
		i.mu.Unlock()
	}

	return bucket
}

// reapIdle drops buckets that have refilled to capacity. A full bucket means
// the IP has been quiet long enough to be indistinguishable from a new one.
func (i *IPRateLimiter) reapIdle() {
	ticker := time.NewTicker(reapInterval)
	defer ticker.Stop()

	for range ticker.C {
		i.mu.Lock()
		removed := 0
		for ip, bucket := range i.buckets {
			if bucket.TokensAt(time.Now()) >= float64(bucket.Burst()) {
				delete(i.buckets, ip)
				removed++
			}
		}
		remaining := len(i.buckets)
		i.mu.Unlock()

		logx.Debug("Rate limiter reaped idle buckets",
			"removed", removed,
			"remaining", remaining,
		)
	}
}

// Middleware rejects requests from IPs that have exhausted their bucket
// with a 429 and the rate-limit business code.
func (i *IPRateLimiter) Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ip, _, err := net.SplitHostPort(r.RemoteAddr)
		if err != nil {
			ip = r.RemoteAddr
		}
		if ip == "" {
			ip = "unknown_ip"
		}

		if !i.GetLimiter(ip).Allow() {
			resp.RespondError(w, r, errs.NewError(errs.ErrRateLimitExceeded))
			return
		}

		next.ServeHTTP(w, r)
	})
}
