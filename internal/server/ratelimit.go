package server

import (
	"net"
	"net/http"
	"sync"

	"golang.org/x/time/rate"
)

// Limiter gates requests by caller key. The transport owns limiting;
// the engines behind it never see a rejected request.
type Limiter interface {
	Allow(key string) bool
}

// AddressLimiter is a token-bucket limiter per remote address.
type AddressLimiter struct {
	mu       sync.Mutex
	limiters map[string]*rate.Limiter
	rps      rate.Limit
	burst    int
}

// NewAddressLimiter allows rps requests per second with the given burst
// for each distinct remote address.
func NewAddressLimiter(rps float64, burst int) *AddressLimiter {
	return &AddressLimiter{
		limiters: make(map[string]*rate.Limiter),
		rps:      rate.Limit(rps),
		burst:    burst,
	}
}

func (l *AddressLimiter) Allow(key string) bool {
	l.mu.Lock()
	limiter, ok := l.limiters[key]
	if !ok {
		limiter = rate.NewLimiter(l.rps, l.burst)
		l.limiters[key] = limiter
	}
	l.mu.Unlock()
	return limiter.Allow()
}

// RateLimit rejects over-limit requests with 429. A nil limiter
// disables limiting entirely.
func RateLimit(l Limiter) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if l != nil {
				key := r.RemoteAddr
				if host, _, err := net.SplitHostPort(r.RemoteAddr); err == nil {
					key = host
				}
				if !l.Allow(key) {
					w.Header().Set("Retry-After", "1")
					http.Error(w, "rate limit exceeded", http.StatusTooManyRequests)
					return
				}
			}
			next.ServeHTTP(w, r)
		})
	}
}
