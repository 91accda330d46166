package auth

import (
	"sync"
	"time"

	"golang.org/x/time/rate"
)

// Limiter throttles failed REGISTER and LOGIN attempts per source.
// Implementations must be thread-safe.
type Limiter interface {
	// Allow reports whether the source may attempt again.
	Allow(key string) bool
	// Failed records one failed attempt.
	Failed(key string)
}

// pruneAt is how many tracked sources trigger a sweep of idle ones.
const pruneAt = 1024

// AttemptLimiter is a token bucket per source: burst failures are free, then
// one more is allowed every 1/perSecond seconds.
type AttemptLimiter struct {
	limit rate.Limit
	burst int
	now   func() time.Time

	mu      sync.Mutex
	buckets map[string]*rate.Limiter
}

func NewAttemptLimiter(perSecond float64, burst int) *AttemptLimiter {
	return &AttemptLimiter{
		limit:   rate.Limit(perSecond),
		burst:   burst,
		now:     time.Now,
		buckets: make(map[string]*rate.Limiter),
	}
}

func (l *AttemptLimiter) Allow(key string) bool {
	l.mu.Lock()
	defer l.mu.Unlock()
	b, ok := l.buckets[key]
	if !ok {
		return true
	}
	return b.TokensAt(l.now()) >= 1
}

func (l *AttemptLimiter) Failed(key string) {
	l.mu.Lock()
	defer l.mu.Unlock()
	now := l.now()
	b, ok := l.buckets[key]
	if !ok {
		if len(l.buckets) >= pruneAt {
			l.prune(now)
		}
		b = rate.NewLimiter(l.limit, l.burst)
		l.buckets[key] = b
	}
	b.AllowN(now, 1)
}

// prune forgets sources whose bucket has refilled; a fresh bucket behaves
// the same. Caller holds mu.
func (l *AttemptLimiter) prune(now time.Time) {
	for k, b := range l.buckets {
		if b.TokensAt(now) >= float64(l.burst) {
			delete(l.buckets, k)
		}
	}
}

// Len returns the number of sources being tracked.
func (l *AttemptLimiter) Len() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.buckets)
}

type noLimit struct{}

func (noLimit) Allow(string) bool { return true }
func (noLimit) Failed(string)     {}
