package middleware

import (
	"context"
	"log/slog"
	"time"

	"github.com/redis/go-redis/v9"
)

// redisKeyPrefix namespaces limiter counters in a shared Redis.
const redisKeyPrefix = "bughunt:ratelimit:"

// fixedWindowScript increments the counter for KEYS[1], starts the window on
// the first hit and returns the new count with the remaining TTL in ms.
var fixedWindowScript = redis.NewScript(`
local current = redis.call("INCR", KEYS[1])
if current == 1 then
  redis.call("PEXPIRE", KEYS[1], ARGV[1])
end
local ttl = redis.call("PTTL", KEYS[1])
if ttl < 0 then
  redis.call("PEXPIRE", KEYS[1], ARGV[1])
  ttl = tonumber(ARGV[1])
end
return {current, ttl}
`)

// RedisRateLimitStore implements RateLimitStore with a fixed window counter
// in Redis so limits hold across API replicas. It fails open: when Redis
// is unreachable the request is allowed and the error is counted.
type RedisRateLimitStore struct {
	client  redis.Scripter
	metrics *Metrics
	logger  *slog.Logger
}

// NewRedisRateLimitStore creates a store backed by client.
func NewRedisRateLimitStore(client redis.Scripter) *RedisRateLimitStore {
	return &RedisRateLimitStore{client: client, logger: slog.Default()}
}

// WithMetrics records fail-open events on m.
func (s *RedisRateLimitStore) WithMetrics(m *Metrics) *RedisRateLimitStore {
	s.metrics = m
	return s
}

// WithLogger sets the logger used for fail-open warnings.
func (s *RedisRateLimitStore) WithLogger(logger *slog.Logger) *RedisRateLimitStore {
	if logger != nil {
		s.logger = logger
	}
	return s
}

// Allow implements RateLimitStore.
func (s *RedisRateLimitStore) Allow(ctx context.Context, key string, config RateLimitConfig) (bool, int, int) {
	window := config.WindowDuration.Milliseconds()
	if window <= 0 {
		window = 1
	}

	res, err := fixedWindowScript.Run(ctx, s.client, []string{redisKeyPrefix + key}, window).Int64Slice()
	if err != nil || len(res) != 2 {
		s.metrics.IncRateLimitRedisErrors()
		s.logger.WarnContext(ctx, "rate limiter failing open", slog.String("key", key), slog.Any("error", err))
		return true, config.RequestsPerWindow, 0
	}

	count, ttl := int(res[0]), time.Duration(res[1])*time.Millisecond
	if count <= config.RequestsPerWindow {
		return true, config.RequestsPerWindow - count, 0
	}
	return false, 0, secondsUntil(ttl)
}
