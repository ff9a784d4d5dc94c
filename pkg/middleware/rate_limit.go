package middleware

import (
	"net/http"
	"sync"
	"time"

	apperrors "bikeshare/pkg/errors"
	httputil "bikeshare/pkg/http"
	"bikeshare/pkg/logger"

	"golang.org/x/time/rate"
)

const HeaderUserID = "X-User-ID"

const limiterIdleTTL = time.Hour

type requesterLimiter struct {
	limiter  *rate.Limiter
	lastSeen time.Time
}

// RequesterRateLimiter keeps one token bucket per requester. A requester
// may send limit requests per window, all of them in a burst.
type RequesterRateLimiter struct {
	mu       sync.Mutex
	limiters map[string]*requesterLimiter
	every    rate.Limit
	burst    int
	log      *logger.Logger
	stopCh   chan struct{}
	stopOnce sync.Once
}

func NewRequesterRateLimiter(limit int, window time.Duration, log *logger.Logger) *RequesterRateLimiter {
	rl := &RequesterRateLimiter{
		limiters: make(map[string]*requesterLimiter),
		every:    rate.Every(window / time.Duration(limit)),
		burst:    limit,
		log:      log,
		stopCh:   make(chan struct{}),
	}

	go rl.cleanup()

	return rl
}

func (rl *RequesterRateLimiter) Allow(requester string) bool {
	if requester == "" {
		return true
	}

	now := time.Now()
	rl.mu.Lock()
	entry, ok := rl.limiters[requester]
	if !ok {
		entry = &requesterLimiter{limiter: rate.NewLimiter(rl.every, rl.burst)}
		rl.limiters[requester] = entry
	}
	entry.lastSeen = now
	rl.mu.Unlock()

	return entry.limiter.AllowN(now, 1)
}

func (rl *RequesterRateLimiter) cleanup() {
	ticker := time.NewTicker(limiterIdleTTL)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			rl.mu.Lock()
			for requester, entry := range rl.limiters {
				if time.Since(entry.lastSeen) > limiterIdleTTL {
					delete(rl.limiters, requester)
				}
			}
			rl.mu.Unlock()
		case <-rl.stopCh:
			return
		}
	}
}

func (rl *RequesterRateLimiter) Stop() {
	rl.stopOnce.Do(func() { close(rl.stopCh) })
}

// RequesterRateLimit answers 429 once the X-User-ID requester exceeds its
// budget. Anonymous requests pass through.
func RequesterRateLimit(limiter *RequesterRateLimiter) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			requester := r.Header.Get(HeaderUserID)

			if !limiter.Allow(requester) {
				limiter.log.Warn("Rate limit exceeded",
					"request_id", RequestID(r.Context()),
					"user_id", requester,
					"path", r.URL.Path,
				)
				_ = httputil.WriteError(w, apperrors.RateLimited("Rate limit exceeded"))
				return
			}

			next.ServeHTTP(w, r)
		})
	}
}
