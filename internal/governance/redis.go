package governance

import (
	"context"
	"log/slog"
	"time"

	"github.com/redis/go-redis/v9"
)

var fixedWindowScript = redis.NewScript(`
local current = redis.call("INCR", KEYS[1])
if current == 1 then
  redis.call("PEXPIRE", KEYS[1], ARGV[1])
end
local ttl = redis.call("PTTL", KEYS[1])
return {current, ttl}
`)

// RedisLimiter keeps fixed-window counters in Redis so that every gateway
// instance shares one quota per client and route.
type RedisLimiter struct {
	client   redis.UniversalClient
	prefix   string
	timeout  time.Duration
	fallback Limiter
	logger   *slog.Logger
	now      func() time.Time
}

// RedisOption customises a RedisLimiter.
type RedisOption func(*RedisLimiter)

// WithPrefix sets the key prefix. Default "rl:".
func WithPrefix(prefix string) RedisOption {
	return func(l *RedisLimiter) { l.prefix = prefix }
}

// WithFallback sets the limiter used when Redis fails.
func WithFallback(fallback Limiter) RedisOption {
	return func(l *RedisLimiter) { l.fallback = fallback }
}

// WithTimeout bounds each Redis round trip.
func WithTimeout(timeout time.Duration) RedisOption {
	return func(l *RedisLimiter) { l.timeout = timeout }
}

// WithLogger sets the logger used to report Redis failures.
func WithLogger(logger *slog.Logger) RedisOption {
	return func(l *RedisLimiter) { l.logger = logger }
}

// NewRedisLimiter creates a limiter backed by client.
func NewRedisLimiter(client redis.UniversalClient, opts ...RedisOption) *RedisLimiter {
	l := &RedisLimiter{
		client:   client,
		prefix:   "rl:",
		timeout:  2 * time.Second,
		fallback: NewMemoryLimiter(),
		logger:   slog.Default(),
		now:      time.Now,
	}
	for _, opt := range opts {
		opt(l)
	}
	return l
}

// Check increments the shared counter for clientKey+routeKey.
func (l *RedisLimiter) Check(ctx context.Context, clientKey, routeKey string, policy Policy) Decision {
	policy = policy.Normalize()
	if l.client == nil {
		return l.fallback.Check(ctx, clientKey, routeKey, policy)
	}

	ctx, cancel := context.WithTimeout(ctx, l.timeout)
	defer cancel()

	key := l.prefix + limiterKey(clientKey, routeKey)
	res, err := fixedWindowScript.Run(ctx, l.client, []string{key}, policy.Window.Milliseconds()).Int64Slice()
	if err != nil || len(res) < 2 {
		l.logger.Warn("Redis rate limit check failed, using local limiter", "route", routeKey, "error", err)
		return l.fallback.Check(ctx, clientKey, routeKey, policy)
	}

	count, ttlMs := res[0], res[1]
	if ttlMs < 0 {
		ttlMs = policy.Window.Milliseconds()
	}
	return decide(int(count), policy.Limit, l.now().Add(time.Duration(ttlMs)*time.Millisecond))
}
