package middleware

import (
	"fmt"
	"net"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/kiranshivaraju/automlpro/internal/api/response"
	"github.com/kiranshivaraju/automlpro/internal/cache"
)

const (
	defaultRequestsPerMinute = 60
	rateLimitWindow          = 60 * time.Second
)

// KeyFunc identifies the caller a request is counted against. Returning false
// exempts the request.
type KeyFunc func(r *http.Request) (string, bool)

// ByToken counts requests per access token. It must run after Authenticate.
func ByToken(r *http.Request) (string, bool) {
	id, ok := GetTokenID(r)
	if !ok {
		return "", false
	}
	return id.String(), true
}

// ByClientIP counts requests per remote address. Forwarding headers are
// ignored.
func ByClientIP(r *http.Request) (string, bool) {
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		host = r.RemoteAddr
	}
	return host, host != ""
}

// ByForwardedClientIP counts requests per client address behind the given
// proxies. X-Forwarded-For is read only when the connection itself comes from
// a trusted proxy; the client is then the rightmost hop that is not one.
// With no trusted proxies it behaves like ByClientIP.
func ByForwardedClientIP(trusted []*net.IPNet) KeyFunc {
	if len(trusted) == 0 {
		return ByClientIP
	}
	return func(r *http.Request) (string, bool) {
		peer, ok := ByClientIP(r)
		if !ok || !inNets(trusted, net.ParseIP(peer)) {
			return peer, ok
		}

		hops := strings.Split(strings.Join(r.Header.Values("X-Forwarded-For"), ","), ",")
		for i := len(hops) - 1; i >= 0; i-- {
			ip := net.ParseIP(strings.TrimSpace(hops[i]))
			if ip == nil {
				break
			}
			if !inNets(trusted, ip) {
				return ip.String(), true
			}
		}
		return peer, true
	}
}

func inNets(nets []*net.IPNet, ip net.IP) bool {
	if ip == nil {
		return false
	}
	for _, n := range nets {
		if n.Contains(ip) {
			return true
		}
	}
	return false
}

// RateLimit provides fixed-window rate limiting via Redis.
type RateLimit struct {
	cache          cache.Cache
	requestsPerMin int
	scope          string
	key            KeyFunc
}

// NewRateLimit creates a limiter. scope namespaces the counters so that
// several limiters can share one cache.
func NewRateLimit(c cache.Cache, requestsPerMin int, scope string, key KeyFunc) *RateLimit {
	if requestsPerMin <= 0 {
		requestsPerMin = defaultRequestsPerMinute
	}
	return &RateLimit{cache: c, requestsPerMin: requestsPerMin, scope: scope, key: key}
}

func (rl *RateLimit) Limit(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		id, ok := rl.key(r)
		if !ok {
			next.ServeHTTP(w, r)
			return
		}

		count, err := rl.cache.IncrWithExpiry(r.Context(), cache.RateLimitKey(rl.scope, id), rateLimitWindow)
		if err != nil {
			// fail open
			next.ServeHTTP(w, r)
			return
		}

		remaining := rl.requestsPerMin - int(count)
		if remaining < 0 {
			remaining = 0
		}
		resetTime := time.Now().Add(rateLimitWindow).Unix()

		w.Header().Set("X-RateLimit-Limit", strconv.Itoa(rl.requestsPerMin))
		w.Header().Set("X-RateLimit-Remaining", strconv.Itoa(remaining))
		w.Header().Set("X-RateLimit-Reset", fmt.Sprintf("%d", resetTime))

		if count > int64(rl.requestsPerMin) {
			w.Header().Set("Retry-After", "60")
			response.Error(w, http.StatusTooManyRequests,
				"RATE_LIMIT_EXCEEDED", "Too many requests", nil)
			return
		}

		next.ServeHTTP(w, r)
	})
}
