package storage

import (
	"context"
	"errors"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/sirupsen/logrus"
)

const snapshotCacheKey = "snapshot:current"

// SnapshotCache 把快照原始 JSON 缓存在 Redis 中，减少每次请求的磁盘读取
type SnapshotCache struct {
	rdb *redis.Client
	key string
	ttl time.Duration
}

func NewSnapshotCache(rdb *redis.Client, ttl time.Duration) *SnapshotCache {
	if ttl <= 0 {
		ttl = 5 * time.Minute
	}
	return &SnapshotCache{rdb: rdb, key: snapshotCacheKey, ttl: ttl}
}

// NewRedisClient 连接失败只告警，不阻塞启动；缓存不可用时自动回落到文件
func NewRedisClient(addr string, log *logrus.Logger) *redis.Client {
	rdb := redis.NewClient(&redis.Options{Addr: addr})

	ctx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
	defer cancel()
	if err := rdb.Ping(ctx).Err(); err != nil {
		log.WithError(err).WithField("addr", addr).Warn("redis ping failed")
	}
	return rdb
}

func (c *SnapshotCache) Get(ctx context.Context) ([]byte, bool, error) {
	bs, err := c.rdb.Get(ctx, c.key).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, err
	}
	return bs, true, nil
}

// Set 无条件覆盖，Save 成功后调用
func (c *SnapshotCache) Set(ctx context.Context, data []byte) error {
	return c.rdb.Set(ctx, c.key, data, c.ttl).Err()
}

// Fill 仅在 key 不存在时写入
func (c *SnapshotCache) Fill(ctx context.Context, data []byte) error {
	return c.rdb.SetNX(ctx, c.key, data, c.ttl).Err()
}
