package middleware

import (
	"net"
	"net/http"
	"strings"
	"sync"

	"golang.org/x/time/rate"
)

// RateLimiter applies a global token bucket shared across all callers, and a
// second per-caller bucket keyed by agent ID (falling back to remote IP) so
// one noisy caller can't starve the rest. Mirrors the two-tier shape of
// dativo-io-talon's gateway.RateLimiter.
type RateLimiter struct {
	mu         sync.Mutex
	global     *rate.Limiter
	callers    map[string]*rate.Limiter
	callerRate rate.Limit
	callerBurst int
}

// NewRateLimiter builds a RateLimiter with a global bucket of
// (globalRPS, globalBurst) and lazily-created per-caller buckets of
// (callerRPS, callerBurst).
func NewRateLimiter(callerRPS float64, callerBurst int, globalRPS float64, globalBurst int) *RateLimiter {
	return &RateLimiter{
		global:      rate.NewLimiter(rate.Limit(globalRPS), globalBurst),
		callers:     make(map[string]*rate.Limiter),
		callerRate:  rate.Limit(callerRPS),
		callerBurst: callerBurst,
	}
}

// Allow checks the global bucket first, then the caller's own bucket,
// creating one on first sight of a caller name.
func (rl *RateLimiter) Allow(callerName string) bool {
	if !rl.global.Allow() {
		return false
	}

	rl.mu.Lock()
	limiter, ok := rl.callers[callerName]
	if !ok {
		limiter = rate.NewLimiter(rl.callerRate, rl.callerBurst)
		rl.callers[callerName] = limiter
	}
	rl.mu.Unlock()

	return limiter.Allow()
}

// callerKey identifies the caller a request should be rate-limited as: the
// agent ID path segment for proxy routes when present, otherwise the
// client's IP address (preferring a forwarded-for header set by a trusted
// upstream load balancer).
func callerKey(r *http.Request) string {
	if agentID := agentIDFromPath(r.URL.Path); agentID != "" {
		return "agent:" + agentID
	}
	return "ip:" + clientIP(r)
}

// agentIDFromPath extracts the agent ID segment from proxy routes of the
// form /v1/openai/{agentId}/... or /v1/anthropic/{agentId}/....
func agentIDFromPath(path string) string {
	parts := strings.Split(strings.Trim(path, "/"), "/")
	for i, p := range parts {
		if (p == "openai" || p == "anthropic") && i+1 < len(parts) && parts[i+1] != "" {
			return parts[i+1]
		}
	}
	return ""
}

func clientIP(r *http.Request) string {
	if fwd := r.Header.Get("X-Forwarded-For"); fwd != "" {
		if ip := strings.TrimSpace(strings.Split(fwd, ",")[0]); ip != "" {
			return ip
		}
	}
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return host
}

// RateLimit returns middleware enforcing limiter's global and per-caller
// buckets, rejecting over-limit requests with 429 via onLimited.
func RateLimit(limiter *RateLimiter, onLimited http.HandlerFunc) func(http.HandlerFunc) http.HandlerFunc {
	return func(next http.HandlerFunc) http.HandlerFunc {
		return func(w http.ResponseWriter, r *http.Request) {
			if !limiter.Allow(callerKey(r)) {
				onLimited(w, r)
				return
			}
			next(w, r)
		}
	}
}
