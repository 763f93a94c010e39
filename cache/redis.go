package cache

import (
	"context"
	"errors"
	"fmt"
	"time"

	"cinethos/config"

	"github.com/redis/go-redis/v9"
)

// RedisClient 是全局Redis客户端
var RedisClient *redis.Client

// ConnectRedis 初始化Redis连接
func ConnectRedis(cfg *config.Config) error {
	RedisClient = NewRedisClient(cfg)

	// 测试连接
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if _, err := RedisClient.Ping(ctx).Result(); err != nil {
		return fmt.Errorf("failed to connect to Redis: %w", err)
	}
	return nil
}

// NewRedisClient builds a client from cfg without connecting.
func NewRedisClient(cfg *config.Config) *redis.Client {
	return redis.NewClient(&redis.Options{
		Addr:        fmt.Sprintf("%s:%s", cfg.RedisHost, cfg.RedisPort),
		Password:    cfg.RedisPassword,
		DB:          cfg.RedisDB,
		DialTimeout: 3 * time.Second,
	})
}

// CloseRedis 关闭Redis连接
func CloseRedis() error {
	if RedisClient != nil {
		return RedisClient.Close()
	}
	return nil
}

// TestRedis 测试Redis连接和基本操作
func TestRedis(ctx context.Context) error {
	if RedisClient == nil {
		return fmt.Errorf("Redis client not initialized")
	}

	const key, want = "cinethos:test_key", "Redis connection successful!"
	if err := RedisClient.Set(ctx, key, want, time.Minute).Err(); err != nil {
		return fmt.Errorf("failed to set Redis key: %w", err)
	}

	val, err := RedisClient.Get(ctx, key).Result()
	if err != nil {
		return fmt.Errorf("failed to get Redis key: %w", err)
	}
	if val != want {
		return fmt.Errorf("unexpected value from Redis: got %s", val)
	}

	if err := RedisClient.Del(ctx, key).Err(); err != nil {
		return fmt.Errorf("failed to delete Redis key: %w", err)
	}
	return nil
}

// PreferenceCache keeps user language preferences in Redis, shared between
// every client of the same account.
type PreferenceCache struct {
	client *redis.Client
	ttl    time.Duration
}

// NewPreferenceCache wraps client. A nil client gives a cache that always
// misses.
func NewPreferenceCache(client *redis.Client, ttl time.Duration) *PreferenceCache {
	return &PreferenceCache{client: client, ttl: ttl}
}

func preferenceKey(userID int64) string {
	return fmt.Sprintf("cinethos:pref:%d:language", userID)
}

// GetLanguage returns the cached language of userID. found is false on a
// cache miss; an empty language with found true means "known to be unset".
func (c *PreferenceCache) GetLanguage(ctx context.Context, userID int64) (lang string, found bool, err error) {
	if c == nil || c.client == nil {
		return "", false, nil
	}
	val, err := c.client.Get(ctx, preferenceKey(userID)).Result()
	if errors.Is(err, redis.Nil) {
		return "", false, nil
	}
	if err != nil {
		return "", false, fmt.Errorf("get preference from redis: %w", err)
	}
	return val, true, nil
}

// SetLanguage stores lang for userID with the cache TTL.
func (c *PreferenceCache) SetLanguage(ctx context.Context, userID int64, lang string) error {
	if c == nil || c.client == nil {
		return nil
	}
	if err := c.client.Set(ctx, preferenceKey(userID), lang, c.ttl).Err(); err != nil {
		return fmt.Errorf("set preference in redis: %w", err)
	}
	return nil
}
