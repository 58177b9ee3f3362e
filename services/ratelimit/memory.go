package ratelimitsvc

import (
	"context"
	"sync"
	"time"

	"golang.org/x/time/rate"

	"github.com/cornelabs/lms/core"
)

// idle limiters are dropped once they have been full for this long
const memoryIdleTTL = 10 * time.Minute

type memoryEntry struct {
	limiter  *rate.Limiter
	lastSeen time.Time
}

// MemoryLimiter is a token bucket limiter per key. It only limits requests served by this process.
type MemoryLimiter struct {
	mu       sync.Mutex
	limiters map[string]*memoryEntry
	limit    rate.Limit
	burst    int
	now      func() time.Time
}

var _ core.RateLimiter = (*MemoryLimiter)(nil)

func NewMemoryLimiter(requests int, window time.Duration) *MemoryLimiter {
	if requests <= 0 {
		requests = 1
	}
	if window <= 0 {
		window = time.Minute
	}
	return &MemoryLimiter{
		limiters: make(map[string]*memoryEntry),
		limit:    rate.Every(window / time.Duration(requests)),
		burst:    requests,
		now:      time.Now,
	}
}

func (l *MemoryLimiter) Allow(_ context.Context, key string) (bool, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	now := l.now()
	l.evict(now)

	entry, ok := l.limiters[key]
	if !ok {
		entry = &memoryEntry{limiter: rate.NewLimiter(l.limit, l.burst)}
		l.limiters[key] = entry
	}
	entry.lastSeen = now
	return entry.limiter.AllowN(now, 1), nil
}

func (l *MemoryLimiter) evict(now time.Time) {
	for key, entry := range l.limiters {
		if now.Sub(entry.lastSeen) > memoryIdleTTL {
			delete(l.limiters, key)
		}
	}
}

// Reset forgets every key.
func (l *MemoryLimiter) Reset() {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.limiters = make(map[string]*memoryEntry)
}
