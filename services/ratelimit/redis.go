package ratelimitsvc

import (
	"context"
	"time"

	"github.com/kat-co/vala"
	"github.com/pkg/errors"
	goredis "github.com/redis/go-redis/v9"

	"github.com/cornelabs/lms/core"
)

const redisKeyPrefix = "ratelimit:"

// RedisLimiter is a fixed window limiter shared by every API instance.
type RedisLimiter struct {
	rdb      *goredis.Client
	logger   core.Logger
	requests int64
	window   time.Duration
}

var _ core.RateLimiter = (*RedisLimiter)(nil)

func NewRedisLimiter(ctx context.Context, conf *core.Config, logger core.Logger) (*RedisLimiter, error) {
	vala.BeginValidation().Validate(
		vala.IsNotNil(conf, "conf"),
		vala.IsNotNil(logger, "logger"),
		vala.StringNotEmpty(conf.Redis.Addr, "conf.Redis.Addr"),
	).CheckAndPanic()

	rdb := goredis.NewClient(&goredis.Options{
		Addr:        conf.Redis.Addr,
		Password:    conf.Redis.Password,
		DB:          conf.Redis.DB,
		DialTimeout: conf.Redis.DialTimeout,
	})

	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := rdb.Ping(pingCtx).Err(); err != nil {
		_ = rdb.Close()
		return nil, errors.Wrap(err, "redis ping")
	}

	requests, window := conf.RateLimit.Requests, conf.RateLimit.Window
	if requests <= 0 {
		requests = 1
	}
	if window <= 0 {
		window = time.Minute
	}
	return &RedisLimiter{rdb: rdb, logger: logger, requests: int64(requests), window: window}, nil
}

func (l *RedisLimiter) Allow(ctx context.Context, key string) (bool, error) {
	k := redisKeyPrefix + key
	n, err := l.rdb.Incr(ctx, k).Result()
	if err != nil {
		// fail open
		l.logger.Error("rate limiter unavailable", err)
		return true, nil
	}
	if n == 1 {
		if err = l.rdb.Expire(ctx, k, l.window).Err(); err != nil {
			l.logger.Error("setting rate limit window", err)
		}
	}
	return n <= l.requests, nil
}

func (l *RedisLimiter) Close() error {
	return l.rdb.Close()
}
