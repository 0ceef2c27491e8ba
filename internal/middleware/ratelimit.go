package middleware

import (
	"encoding/json"
	"net"
	"net/http"
	"strings"
	"sync"
	"time"
)

// RateLimiter implements a per-client token bucket rate limiter.
type RateLimiter struct {
	mu             sync.Mutex
	clients        map[string]*bucket
	requestsPerMin int
	cleanupTicker  *time.Ticker
	done           chan struct{}
	stopOnce       sync.Once
	now            func() time.Time
}

type bucket struct {
	tokens     int
	lastRefill time.Time
	lastSeen   time.Time
}

// NewRateLimiter creates a limiter allowing requestsPerMin requests per client.
// A non-positive limit disables limiting.
func NewRateLimiter(requestsPerMin int) *RateLimiter {
	rl := &RateLimiter{
		clients:        make(map[string]*bucket),
		requestsPerMin: requestsPerMin,
		cleanupTicker:  time.NewTicker(5 * time.Minute),
		done:           make(chan struct{}),
		now:            time.Now,
	}

	go rl.cleanup()

	return rl
}

// Middleware wraps a handler func.
func (rl *RateLimiter) Middleware(next http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if !rl.allow(ClientKey(r)) {
			w.Header().Set("Content-Type", "application/json")
			w.Header().Set("Retry-After", "60")
			w.WriteHeader(http.StatusTooManyRequests)
			_ = json.NewEncoder(w).Encode(map[string]string{"error": "rate limit exceeded, try again later"})
			return
		}
		next(w, r)
	}
}

// Handler adapts Middleware for routers that chain http.Handler.
func (rl *RateLimiter) Handler(next http.Handler) http.Handler {
	return rl.Middleware(next.ServeHTTP)
}

// ClientKey identifies the caller: the first X-Forwarded-For hop when
// present, otherwise the remote host without port.
func ClientKey(r *http.Request) string {
	if fwd := r.Header.Get("X-Forwarded-For"); fwd != "" {
		if first := strings.TrimSpace(strings.Split(fwd, ",")[0]); first != "" {
			return first
		}
	}
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return host
}

func (rl *RateLimiter) allow(client string) bool {
	if rl.requestsPerMin <= 0 {
		return true
	}
	rl.mu.Lock()
	defer rl.mu.Unlock()

	now := rl.now()
	b, exists := rl.clients[client]
	if !exists {
		rl.clients[client] = &bucket{tokens: rl.requestsPerMin - 1, lastRefill: now, lastSeen: now}
		return true
	}
	b.lastSeen = now

	tokensToAdd := int(now.Sub(b.lastRefill).Minutes() * float64(rl.requestsPerMin))
	if tokensToAdd > 0 {
		b.tokens = min(rl.requestsPerMin, b.tokens+tokensToAdd)
		b.lastRefill = now
	}

	if b.tokens > 0 {
		b.tokens--
		return true
	}
	return false
}

// cleanup drops clients idle for more than 10 minutes.
func (rl *RateLimiter) cleanup() {
	for {
		select {
		case <-rl.done:
			return
		case <-rl.cleanupTicker.C:
			rl.mu.Lock()
			now := rl.now()
			for client, b := range rl.clients {
				if now.Sub(b.lastSeen) > 10*time.Minute {
					delete(rl.clients, client)
				}
			}
			rl.mu.Unlock()
		}
	}
}

// Stop ends the cleanup goroutine. Safe to call more than once.
func (rl *RateLimiter) Stop() {
	rl.stopOnce.Do(func() {
		rl.cleanupTicker.Stop()
		close(rl.done)
	})
}
