package middleware

import (
	"encoding/json"
	"math"
	"net"
	"net/http"
	"strconv"
	"sync"
	"time"

	"go.uber.org/zap"
	"golang.org/x/time/rate"

	"github.com/cutroom-studio/cutroom-engine/pkg/auth"
)

// idleTTL is how long an unused limiter is kept before it is evicted.
const idleTTL = 10 * time.Minute

type limiterEntry struct {
	limiter  *rate.Limiter
	lastSeen time.Time
}

// RateLimiter applies a token bucket per caller. Authenticated requests are
// keyed by account id, anonymous ones by remote address.
type RateLimiter struct {
	rps    rate.Limit
	burst  int
	logger *zap.Logger
	now    func() time.Time

	mu        sync.Mutex
	limiters  map[string]*limiterEntry
	lastSweep time.Time
}

// NewRateLimiter creates a limiter allowing rps requests per second with the
// given burst. A non-positive rps disables limiting.
func NewRateLimiter(rps float64, burst int, logger *zap.Logger) *RateLimiter {
	if burst < 1 {
		burst = 1
	}
	return &RateLimiter{
		rps:      rate.Limit(rps),
		burst:    burst,
		logger:   logger,
		now:      time.Now,
		limiters: make(map[string]*limiterEntry),
	}
}

// Wrap returns next guarded by the limiter. Place it after auth so the caller
// is known.
func (l *RateLimiter) Wrap(next http.HandlerFunc) http.HandlerFunc {
	if l == nil || l.rps <= 0 {
		return next
	}
	return func(w http.ResponseWriter, r *http.Request) {
		key := callerKey(r)
		if !l.allow(key) {
			l.logger.Debug("Rate limit exceeded", zap.String("key", key), zap.String("path", r.URL.Path))
			w.Header().Set("Content-Type", "application/json")
			w.Header().Set("Retry-After", strconv.Itoa(l.retryAfter()))
			w.WriteHeader(http.StatusTooManyRequests)
			_ = json.NewEncoder(w).Encode(map[string]string{
				"error":   "rate_limited",
				"message": "Too many requests",
			})
			return
		}
		next(w, r)
	}
}

func (l *RateLimiter) allow(key string) bool {
	l.mu.Lock()
	defer l.mu.Unlock()

	now := l.now()
	if now.Sub(l.lastSweep) > idleTTL {
		for k, e := range l.limiters {
			if now.Sub(e.lastSeen) > idleTTL {
				delete(l.limiters, k)
			}
		}
		l.lastSweep = now
	}

	e, ok := l.limiters[key]
	if !ok {
		e = &limiterEntry{limiter: rate.NewLimiter(l.rps, l.burst)}
		l.limiters[key] = e
	}
	e.lastSeen = now
	return e.limiter.AllowN(now, 1)
}

// retryAfter is the whole number of seconds until one token refills.
func (l *RateLimiter) retryAfter() int {
	secs := int(math.Ceil(1 / float64(l.rps)))
	if secs < 1 {
		return 1
	}
	return secs
}

// size reports how many callers are tracked.
func (l *RateLimiter) size() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.limiters)
}

func callerKey(r *http.Request) string {
	if caller, ok := auth.GetCaller(r.Context()); ok {
		return "caller:" + caller.ID.String()
	}
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		host = r.RemoteAddr
	}
	return "addr:" + host
}
