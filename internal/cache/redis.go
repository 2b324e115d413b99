package cache

import (
	"context"
	"errors"
	"fmt"
	"time"

	redis "github.com/redis/go-redis/v9"

	"restock-notify/internal/config"
)

// 键格式常量
const redisKeyFormat = "%s:%s"

// RedisCache 基于 Redis 的键值缓存
// 所有键统一加命名空间前缀,隔离同一实例上的其他业务
type RedisCache struct {
	client    *redis.Client
	namespace string
}

// NewRedisClient 按配置创建 Redis 客户端
func NewRedisClient(redisConfig config.RedisConfig) *redis.Client {
	return redis.NewClient(&redis.Options{
		Addr:     redisConfig.Addr,
		Password: redisConfig.Password,
		DB:       redisConfig.DB,
	})
}

// NewRedisCache 创建 Redis 缓存实例
func NewRedisCache(client *redis.Client, namespace string) *RedisCache {
	return &RedisCache{
		client:    client,
		namespace: namespace,
	}
}

// Get 读取缓存值
// 键不存在时第二个返回值为 false,不算错误
func (cache *RedisCache) Get(ctx context.Context, key string) (string, bool, error) {
	value, err := cache.client.Get(ctx, cache.buildKey(key)).Result()
	if errors.Is(err, redis.Nil) {
		return "", false, nil
	}
	if err != nil {
		return "", false, fmt.Errorf("redis get failed: %w", err)
	}
	return value, true, nil
}

// Set 写入不过期的缓存值
func (cache *RedisCache) Set(ctx context.Context, key string, value string) error {
	if err := cache.client.Set(ctx, cache.buildKey(key), value, 0).Err(); err != nil {
		return fmt.Errorf("redis set failed: %w", err)
	}
	return nil
}

// SetWithTTL 写入带过期时间的缓存值
func (cache *RedisCache) SetWithTTL(ctx context.Context, key string, value string, ttl time.Duration) error {
	if err := cache.client.Set(ctx, cache.buildKey(key), value, ttl).Err(); err != nil {
		return fmt.Errorf("redis set failed: %w", err)
	}
	return nil
}

// Delete 删除缓存键
// 键不存在不报错
func (cache *RedisCache) Delete(ctx context.Context, key string) error {
	if err := cache.client.Del(ctx, cache.buildKey(key)).Err(); err != nil {
		return fmt.Errorf("redis del failed: %w", err)
	}
	return nil
}

// buildKey 拼接命名空间前缀
func (cache *RedisCache) buildKey(key string) string {
	return fmt.Sprintf(redisKeyFormat, cache.namespace, key)
}
