package middleware

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strconv"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/redis/go-redis/v9"
)

var rateLimited = promauto.NewCounterVec(prometheus.CounterOpts{
	Name: "inkwell_rate_limited_total",
	Help: "Requests rejected by a named rate limit",
}, []string{"limit"})

// FailPolicy decides what happens to a request when Redis cannot be reached.
type FailPolicy int

const (
	// FailOpen lets the request through.
	FailOpen FailPolicy = iota
	// FailClosed answers 503.
	FailClosed
)

// Limit is a fixed-window quota shared by every route that uses its Name.
type Limit struct {
	Name   string
	Max    int
	Window time.Duration
	Policy FailPolicy
}

// Quotas applied to the public API.
var (
	AuthLimit       = Limit{Name: "auth", Max: 10, Window: 15 * time.Minute, Policy: FailOpen}
	EngagementLimit = Limit{Name: "engagement", Max: 60, Window: time.Minute, Policy: FailOpen}
	WritingLimit    = Limit{Name: "writing", Max: 30, Window: time.Minute, Policy: FailOpen}
)

// Decision is the outcome of one counted request.
type Decision struct {
	Allowed    bool
	Remaining  int
	RetryAfter time.Duration
}

var errNoRedis = errors.New("rate limit store unavailable")

// RateLimiter counts requests per subject in Redis.
type RateLimiter struct {
	rdb      *redis.Client
	disabled bool
}

// NewRateLimiter returns a limiter backed by rdb. A disabled limiter admits
// everything; local and load-test environments run that way.
func NewRateLimiter(rdb *redis.Client, disabled bool) *RateLimiter {
	return &RateLimiter{rdb: rdb, disabled: disabled}
}

func rateLimitKey(limit Limit, subject string) string {
	return fmt.Sprintf("rl:%s:%s", limit.Name, subject)
}

// Allow counts one request by subject against limit.
func (l *RateLimiter) Allow(ctx context.Context, limit Limit, subject string) (Decision, error) {
	if l.disabled {
		return Decision{Allowed: true, Remaining: limit.Max}, nil
	}
	if l.rdb == nil {
		return Decision{}, errNoRedis
	}

	key := rateLimitKey(limit, subject)
	count, err := l.rdb.Incr(ctx, key).Result()
	if err != nil {
		RedisErrors.WithLabelValues("rate_limit").Inc()
		return Decision{}, err
	}
	if count == 1 {
		if err := l.rdb.Expire(ctx, key, limit.Window).Err(); err != nil {
			RedisErrors.WithLabelValues("rate_limit").Inc()
		}
	}

	if count <= int64(limit.Max) {
		return Decision{Allowed: true, Remaining: limit.Max - int(count)}, nil
	}
	ttl, err := l.rdb.TTL(ctx, key).Result()
	if err != nil || ttl <= 0 {
		ttl = limit.Window
	}
	return Decision{RetryAfter: ttl}, nil
}

// rateLimitSubject keys signed-in callers by user and everyone else by IP.
func rateLimitSubject(c *fiber.Ctx) string {
	if id, ok := c.Locals("userID").(uint); ok && id != 0 {
		return "user:" + strconv.FormatUint(uint64(id), 10)
	}
	return "ip:" + c.IP()
}

// Handler enforces limit on the routes it is mounted on and reports the
// remaining quota in X-RateLimit-* headers.
func (l *RateLimiter) Handler(limit Limit) fiber.Handler {
	return func(c *fiber.Ctx) error {
		ctx := c.UserContext()
		d, err := l.Allow(ctx, limit, rateLimitSubject(c))
		if err != nil {
			if limit.Policy == FailClosed {
				Logger.WarnContext(ctx, "rate limit store unavailable, rejecting",
					slog.String("limit", limit.Name),
					slog.String("error", err.Error()))
				return c.Status(fiber.StatusServiceUnavailable).JSON(fiber.Map{
					"error": "rate limit unavailable",
				})
			}
			return c.Next()
		}

		c.Set("X-RateLimit-Limit", strconv.Itoa(limit.Max))
		c.Set("X-RateLimit-Remaining", strconv.Itoa(d.Remaining))
		if !d.Allowed {
			rateLimited.WithLabelValues(limit.Name).Inc()
			c.Set(fiber.HeaderRetryAfter, strconv.Itoa(int(d.RetryAfter.Round(time.Second).Seconds())))
			return c.Status(fiber.StatusTooManyRequests).JSON(fiber.Map{
				"error": "rate limit exceeded",
			})
		}
		return c.Next()
	}
}
