// Package cache holds the shared Redis client and the cache-aside helpers
// for users, rankings and the category and tag catalog.
package cache

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"inkwell/internal/middleware"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/redis/go-redis/v9"
)

var client *redis.Client

var commandDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
	Name:    "inkwell_redis_command_seconds",
	Help:    "Latency of Redis commands issued by the API",
	Buckets: []float64{.0005, .001, .0025, .005, .01, .025, .05, .1, .25},
}, []string{"command"})

// instrumentation records latency per command and counts failures. A miss
// (redis.Nil) is not a failure.
type instrumentation struct{}

func (instrumentation) DialHook(next redis.DialHook) redis.DialHook { return next }

func (instrumentation) ProcessHook(next redis.ProcessHook) redis.ProcessHook {
	return func(ctx context.Context, cmd redis.Cmder) error {
		start := time.Now()
		err := next(ctx, cmd)
		commandDuration.WithLabelValues(cmd.Name()).Observe(time.Since(start).Seconds())
		if err != nil && !errors.Is(err, redis.Nil) {
			middleware.RedisErrors.WithLabelValues(cmd.Name()).Inc()
		}
		return err
	}
}

func (instrumentation) ProcessPipelineHook(next redis.ProcessPipelineHook) redis.ProcessPipelineHook {
	return func(ctx context.Context, cmds []redis.Cmder) error {
		err := next(ctx, cmds)
		if err != nil && !errors.Is(err, redis.Nil) {
			middleware.RedisErrors.WithLabelValues("pipeline").Inc()
		}
		return err
	}
}

// Connect dials REDIS_URL, which is either a redis:// URL or a bare
// host:port, and verifies it with PING.
func Connect(ctx context.Context, url string) (*redis.Client, error) {
	opts := &redis.Options{Addr: url}
	if strings.Contains(url, "://") {
		parsed, err := redis.ParseURL(url)
		if err != nil {
			return nil, fmt.Errorf("parse REDIS_URL: %w", err)
		}
		opts = parsed
	}

	rdb := redis.NewClient(opts)
	rdb.AddHook(instrumentation{})

	ctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := rdb.Ping(ctx).Err(); err != nil {
		_ = rdb.Close()
		return nil, fmt.Errorf("ping redis at %s: %w", opts.Addr, err)
	}
	return rdb, nil
}

// SetClient installs the client the cache helpers use. nil disables caching.
func SetClient(c *redis.Client) {
	client = c
}

// Client returns the installed client, or nil.
func Client() *redis.Client {
	return client
}
