package dedup

import (
	"context"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/redis/go-redis/v9"
)

const redisKeyPrefix = "gameevents:dedup:"

// redisCommands is the subset of *redis.Client the dedup backend needs.
type redisCommands interface {
	Exists(ctx context.Context, keys ...string) *redis.IntCmd
	SetNX(ctx context.Context, key string, value interface{}, expiration time.Duration) *redis.BoolCmd
	Close() error
}

// RedisClient keeps one key per identity and lets Redis expire it.
type RedisClient struct {
	rdb redisCommands
}

// ConnectRedis builds a client from a redis:// URL or a host:port address.
func ConnectRedis(redisURL string) (*redis.Client, error) {
	if strings.HasPrefix(redisURL, "redis://") || strings.HasPrefix(redisURL, "rediss://") {
		opt, err := redis.ParseURL(redisURL)
		if err != nil {
			return nil, fmt.Errorf("parse redis url: %w", err)
		}
		return redis.NewClient(opt), nil
	}
	return redis.NewClient(&redis.Options{Addr: redisURL}), nil
}

func NewRedisClient(rdb redisCommands) *RedisClient {
	return &RedisClient{rdb: rdb}
}

func (c *RedisClient) Exists(ctx context.Context, id string, _ time.Time) (bool, error) {
	n, err := c.rdb.Exists(ctx, redisKeyPrefix+id).Result()
	if err != nil {
		return false, err
	}
	return n > 0, nil
}

// Claim stores the expiry epoch under a SET NX key that Redis reclaims at
// expiresAt.
func (c *RedisClient) Claim(ctx context.Context, id string, expiresAt, now time.Time) error {
	ttl := expiresAt.Sub(now)
	if ttl < time.Second {
		ttl = time.Second
	}
	ok, err := c.rdb.SetNX(ctx, redisKeyPrefix+id, strconv.FormatInt(expiresAt.Unix(), 10), ttl).Result()
	if err != nil {
		return err
	}
	if !ok {
		return ErrAlreadyClaimed
	}
	return nil
}

func (c *RedisClient) Close() error { return c.rdb.Close() }
