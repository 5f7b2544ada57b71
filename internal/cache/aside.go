package cache

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"strings"
	"time"

	"inkwell/internal/middleware"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/redis/go-redis/v9"
)

var lookups = promauto.NewCounterVec(prometheus.CounterOpts{
	Name: "inkwell_cache_lookups_total",
	Help: "Cache-aside lookups by keyspace and result",
}, []string{"keyspace", "result"})

// keyspace groups keys for metrics: "posts:top:10:all" counts as "posts".
func keyspace(key string) string {
	prefix, _, _ := strings.Cut(key, ":")
	return prefix
}

// GetJSON decodes key into dest. A missing key or an unset client reports
// (false, nil).
func GetJSON(ctx context.Context, key string, dest any) (bool, error) {
	if client == nil {
		return false, nil
	}
	s, err := client.Get(ctx, key).Result()
	if errors.Is(err, redis.Nil) {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	if err := json.Unmarshal([]byte(s), dest); err != nil {
		return false, err
	}
	return true, nil
}

// SetJSON stores v under key as JSON. Without a client it is a no-op.
func SetJSON(ctx context.Context, key string, v any, ttl time.Duration) error {
	if client == nil {
		return nil
	}
	b, err := json.Marshal(v)
	if err != nil {
		return err
	}
	return client.Set(ctx, key, b, ttl).Err()
}

// Aside serves dest from Redis when possible. On a miss it calls fetch, which
// must populate dest, and stores the result with ttl. Redis failures degrade
// to a plain fetch and only fetch errors are returned.
func Aside(ctx context.Context, key string, dest any, ttl time.Duration, fetch func() error) error {
	space := keyspace(key)
	found, err := GetJSON(ctx, key, dest)
	switch {
	case err != nil:
		lookups.WithLabelValues(space, "error").Inc()
		middleware.Logger.WarnContext(ctx, "cache read failed", slog.String("key", key), slog.String("error", err.Error()))
	case found:
		lookups.WithLabelValues(space, "hit").Inc()
		return nil
	case client != nil:
		lookups.WithLabelValues(space, "miss").Inc()
	}

	if err := fetch(); err != nil {
		return err
	}

	if err := SetJSON(ctx, key, dest, ttl); err != nil {
		middleware.Logger.WarnContext(ctx, "cache write failed", slog.String("key", key), slog.String("error", err.Error()))
	}
	return nil
}
