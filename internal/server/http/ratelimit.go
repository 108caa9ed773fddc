package httpserver

import (
	"sync"
	"time"

	"github.com/patrickmn/go-cache"
	"golang.org/x/time/rate"
)

const idleLimiterTTL = 10 * time.Minute

// clientRateLimiter throttles token requests per client_id. Idle buckets
// expire from the cache.
type clientRateLimiter struct {
	mu      sync.Mutex
	perMin  int
	buckets *cache.Cache
}

// newClientRateLimiter returns nil when perMinute is not positive.
func newClientRateLimiter(perMinute int) *clientRateLimiter {
	if perMinute <= 0 {
		return nil
	}
	return &clientRateLimiter{
		perMin:  perMinute,
		buckets: cache.New(idleLimiterTTL, idleLimiterTTL),
	}
}

// Allow reports whether clientID may make another request now.
func (l *clientRateLimiter) Allow(clientID string) bool {
	if l == nil {
		return true
	}
	l.mu.Lock()
	defer l.mu.Unlock()
	var lim *rate.Limiter
	if v, ok := l.buckets.Get(clientID); ok {
		lim = v.(*rate.Limiter)
	} else {
		lim = rate.NewLimiter(rate.Limit(float64(l.perMin)/60), l.perMin)
	}
	l.buckets.SetDefault(clientID, lim)
	return lim.Allow()
}
