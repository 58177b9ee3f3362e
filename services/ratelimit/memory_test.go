package ratelimitsvc

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestMemoryLimiter(t *testing.T) {
	ctx := context.Background()
	now := time.Date(2026, 1, 1, 12, 0, 0, 0, time.UTC)
	l := NewMemoryLimiter(3, time.Minute)
	l.now = func() time.Time { return now }

	allow := func(key string) bool {
		ok, err := l.Allow(ctx, key)
		assert.NoError(t, err)
		return ok
	}

	for i := 0; i < 3; i++ {
		assert.True(t, allow("1.2.3.4"))
	}
	assert.False(t, allow("1.2.3.4"))
	assert.True(t, allow("5.6.7.8"), "keys are limited independently")

	// one token every 20s
	now = now.Add(20 * time.Second)
	assert.True(t, allow("1.2.3.4"))
	assert.False(t, allow("1.2.3.4"))

	l.Reset()
	assert.True(t, allow("1.2.3.4"))
}

func TestMemoryLimiterEvictsIdleKeys(t *testing.T) {
	now := time.Date(2026, 1, 1, 12, 0, 0, 0, time.UTC)
	l := NewMemoryLimiter(1, time.Minute)
	l.now = func() time.Time { return now }

	_, _ = l.Allow(context.Background(), "a")
	now = now.Add(memoryIdleTTL + time.Second)
	_, _ = l.Allow(context.Background(), "b")

	assert.Len(t, l.limiters, 1)
	assert.Contains(t, l.limiters, "b")
}
