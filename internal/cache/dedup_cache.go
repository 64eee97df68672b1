package cache

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"
)

const dedupKeyPrefix = "dispatch:alert:dedupe:"

// DedupCache 告警指纹去重缓存
//
// 同一指纹在窗口内只放行一次。窗口过后条目失效，指纹可再次放行。
type DedupCache interface {
	// CheckAndMark 检查指纹是否可放行，可放行时原子地标记为已发出。
	// 返回 true 表示窗口内首次出现。
	CheckAndMark(ctx context.Context, fingerprint string) (bool, error)
	// Size 当前窗口内的条目数
	Size(ctx context.Context) (int, error)
}

// MemoryDedupCache 进程内去重缓存，过期条目惰性清理
type MemoryDedupCache struct {
	mu      sync.Mutex
	window  time.Duration
	entries map[string]time.Time // fingerprint → lastEmittedAt

	nowFunc func() time.Time
}

// NewMemoryDedupCache 创建进程内去重缓存
func NewMemoryDedupCache(window time.Duration) *MemoryDedupCache {
	return &MemoryDedupCache{
		window:  window,
		entries: make(map[string]time.Time),
		nowFunc: time.Now,
	}
}

// CheckAndMark 检查并标记指纹
func (c *MemoryDedupCache) CheckAndMark(_ context.Context, fingerprint string) (bool, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	now := c.nowFunc()
	c.purgeLocked(now)

	if last, ok := c.entries[fingerprint]; ok && now.Sub(last) < c.window {
		return false, nil
	}

	c.entries[fingerprint] = now
	return true, nil
}

// Size 当前窗口内的条目数
func (c *MemoryDedupCache) Size(_ context.Context) (int, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.purgeLocked(c.nowFunc())
	return len(c.entries), nil
}

// purgeLocked 清理过期条目，调用方需持锁
func (c *MemoryDedupCache) purgeLocked(now time.Time) {
	for fp, last := range c.entries {
		if now.Sub(last) >= c.window {
			delete(c.entries, fp)
		}
	}
}

// RedisDedupCache Redis 去重缓存，窗口状态可跨进程重启保留
type RedisDedupCache struct {
	client redis.UniversalClient
	window time.Duration
}

// NewRedisDedupCache 创建 Redis 去重缓存
func NewRedisDedupCache(client redis.UniversalClient, window time.Duration) *RedisDedupCache {
	return &RedisDedupCache{
		client: client,
		window: window,
	}
}

// CheckAndMark 用 SETNX 原子地检查并标记指纹
func (c *RedisDedupCache) CheckAndMark(ctx context.Context, fingerprint string) (bool, error) {
	ok, err := c.client.SetNX(ctx, dedupKeyPrefix+fingerprint, "1", c.window).Result()
	if err != nil {
		return false, fmt.Errorf("redis setnx: %w", err)
	}
	return ok, nil
}

// Size 当前窗口内的条目数
func (c *RedisDedupCache) Size(ctx context.Context) (int, error) {
	var count int
	iter := c.client.Scan(ctx, 0, dedupKeyPrefix+"*", 100).Iterator()
	for iter.Next(ctx) {
		count++
	}
	if err := iter.Err(); err != nil {
		return 0, err
	}
	return count, nil
}
