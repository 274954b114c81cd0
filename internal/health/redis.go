package health

import (
	"context"
	"errors"
	"fmt"

	"github.com/redis/go-redis/v9"
)

// ErrNoRedis is returned when a RedisChecker has no client.
var ErrNoRedis = errors.New("redis not configured")

// pinger is the part of a go-redis client the checker needs; *redis.Client,
// *redis.ClusterClient and redis.UniversalClient all satisfy it.
type pinger interface {
	Ping(ctx context.Context) *redis.StatusCmd
}

// RedisChecker pings the Redis instance shared by the rate limiters.
type RedisChecker struct {
	client pinger
}

func NewRedisChecker(client pinger) *RedisChecker {
	return &RedisChecker{client: client}
}

// HealthCheck fails unless PING answers PONG.
func (r *RedisChecker) HealthCheck(ctx context.Context) error {
	if r.client == nil {
		return ErrNoRedis
	}
	pong, err := r.client.Ping(ctx).Result()
	if err != nil {
		return fmt.Errorf("redis ping: %w", err)
	}
	if pong != "PONG" {
		return fmt.Errorf("redis ping: unexpected reply %q", pong)
	}
	return nil
}
