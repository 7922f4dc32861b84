package middleware

import (
	"math"
	"net/http"
	"strconv"
	"sync"
	"sync/atomic"
	"time"

	"golang.org/x/time/rate"

	"github.com/edduval373/aisentinel-sub002/internal/roles"
	"github.com/edduval373/aisentinel-sub002/internal/utils"
)

// DemoLimiter keeps one token bucket per demo user. Buckets idle long
// enough to have refilled are dropped by PruneIdle.
type DemoLimiter struct {
	limiters sync.Map // user id -> *limiterEntry
	rps      rate.Limit
	burst    int
	now      func() time.Time
}

type limiterEntry struct {
	lim      *rate.Limiter
	lastSeen atomic.Int64 // unix nanoseconds
}

func NewDemoLimiter(rps float64, burst int) *DemoLimiter {
	return &DemoLimiter{rps: rate.Limit(rps), burst: burst, now: time.Now}
}

func (l *DemoLimiter) limiter(userID string) *rate.Limiter {
	v, ok := l.limiters.Load(userID)
	if !ok {
		v, _ = l.limiters.LoadOrStore(userID, &limiterEntry{lim: rate.NewLimiter(l.rps, l.burst)})
	}
	e := v.(*limiterEntry)
	e.lastSeen.Store(l.now().UnixNano())
	return e.lim
}

// idleAfter is how long a bucket takes to refill completely. A bucket
// untouched for that long behaves exactly like a new one.
func (l *DemoLimiter) idleAfter() time.Duration {
	if l.rps <= 0 {
		return time.Hour
	}
	return time.Duration(float64(l.burst) / float64(l.rps) * float64(time.Second))
}

// PruneIdle drops buckets not used within idleAfter of now and returns how
// many it dropped.
func (l *DemoLimiter) PruneIdle(now time.Time) int {
	cutoff := now.Add(-l.idleAfter()).UnixNano()
	n := 0
	l.limiters.Range(func(k, v any) bool {
		if v.(*limiterEntry).lastSeen.Load() <= cutoff && l.limiters.CompareAndDelete(k, v) {
			n++
		}
		return true
	})
	return n
}

// Len reports how many buckets are held.
func (l *DemoLimiter) Len() int {
	n := 0
	l.limiters.Range(func(_, _ any) bool {
		n++
		return true
	})
	return n
}

// retryAfter is the whole number of seconds until one more request is allowed.
func (l *DemoLimiter) retryAfter() int {
	if l.rps <= 0 {
		return 60
	}
	secs := int(math.Ceil(1 / float64(l.rps)))
	if secs < 1 {
		secs = 1
	}
	return secs
}

// DemoRateLimit throttles callers whose effective level is demo. Everyone
// else, including anonymous callers, passes through untouched.
func DemoRateLimit(l *DemoLimiter) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			id, ok := utils.GetIdentityFromContext(r.Context())
			if !ok || id.EffectiveRoleLevel() > roles.Demo {
				next.ServeHTTP(w, r)
				return
			}

			if !l.limiter(id.UserID).Allow() {
				w.Header().Set("Retry-After", strconv.Itoa(l.retryAfter()))
				WriteJSON(w, http.StatusTooManyRequests, map[string]string{
					"message": "Demo accounts are rate limited, please slow down",
				})
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}
