// Package ratelimitsvc provides the core.RateLimiter implementations used to throttle
// sensitive endpoints such as login and password reset.
package ratelimitsvc

import (
	"context"

	"github.com/cornelabs/lms/core"
)

// NewLimiter returns a Redis backed limiter when conf.Redis.Addr is set and an in-memory one otherwise.
// A limiter allows conf.RateLimit.Requests requests per key every conf.RateLimit.Window.
func NewLimiter(ctx context.Context, conf *core.Config, logger core.Logger) (core.RateLimiter, error) {
	if conf.Redis.Addr != "" {
		return NewRedisLimiter(ctx, conf, logger)
	}
	return NewMemoryLimiter(conf.RateLimit.Requests, conf.RateLimit.Window), nil
}
