// Package cache 提供快照与去重缓存
package cache

import (
	"container/list"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/fieldpulse/dispatch-monitor/internal/metrics"
	"github.com/fieldpulse/dispatch-monitor/internal/model"
	"github.com/fieldpulse/dispatch-monitor/pkg/logger"
)

// SnapshotCache 有界的工单快照缓存
//
// 容量满时插入会淘汰最久未访问的条目，Get 会刷新访问序。
// 条目超过 TTL 后由 EvictExpired 批量清理。所有操作不返回错误，
// 未命中是正常结果。
type SnapshotCache struct {
	mu       sync.Mutex
	capacity int
	ttl      time.Duration
	entries  map[string]*list.Element
	order    *list.List // 队首最新，队尾最久未访问

	nowFunc func() time.Time
}

type cacheEntry struct {
	jobID     string
	snapshot  *model.JobSnapshot
	fetchedAt time.Time
	expiresAt time.Time
}

// NewSnapshotCache 创建快照缓存
func NewSnapshotCache(capacity int, ttl time.Duration) *SnapshotCache {
	if capacity <= 0 {
		capacity = 1
	}
	return &SnapshotCache{
		capacity: capacity,
		ttl:      ttl,
		entries:  make(map[string]*list.Element, capacity),
		order:    list.New(),
		nowFunc:  time.Now,
	}
}

// Put 写入快照，已存在则覆盖并刷新访问序
func (c *SnapshotCache) Put(jobID string, snapshot *model.JobSnapshot) {
	c.mu.Lock()
	defer c.mu.Unlock()

	now := c.nowFunc()

	if elem, ok := c.entries[jobID]; ok {
		entry := elem.Value.(*cacheEntry)
		entry.snapshot = snapshot
		entry.fetchedAt = now
		entry.expiresAt = now.Add(c.ttl)
		c.order.MoveToFront(elem)
		return
	}

	if c.order.Len() >= c.capacity {
		c.evictOldest()
	}

	elem := c.order.PushFront(&cacheEntry{
		jobID:     jobID,
		snapshot:  snapshot,
		fetchedAt: now,
		expiresAt: now.Add(c.ttl),
	})
	c.entries[jobID] = elem
	metrics.CacheSize.Set(float64(c.order.Len()))
}

// Get 获取快照并刷新访问序，未命中或已过期返回 nil
func (c *SnapshotCache) Get(jobID string) *model.JobSnapshot {
	c.mu.Lock()
	defer c.mu.Unlock()

	elem, ok := c.entries[jobID]
	if !ok {
		return nil
	}

	entry := elem.Value.(*cacheEntry)
	if c.nowFunc().After(entry.expiresAt) {
		c.removeElement(elem, "expired")
		return nil
	}

	c.order.MoveToFront(elem)
	return entry.snapshot
}

// AllIDs 返回当前所有未过期条目的 ID 集合，不影响访问序
func (c *SnapshotCache) AllIDs() map[string]struct{} {
	c.mu.Lock()
	defer c.mu.Unlock()

	now := c.nowFunc()
	ids := make(map[string]struct{}, len(c.entries))
	for id, elem := range c.entries {
		if now.After(elem.Value.(*cacheEntry).expiresAt) {
			continue
		}
		ids[id] = struct{}{}
	}
	return ids
}

// Snapshots 返回当前所有未过期快照，不影响访问序
func (c *SnapshotCache) Snapshots() map[string]*model.JobSnapshot {
	c.mu.Lock()
	defer c.mu.Unlock()

	now := c.nowFunc()
	out := make(map[string]*model.JobSnapshot, len(c.entries))
	for id, elem := range c.entries {
		entry := elem.Value.(*cacheEntry)
		if now.After(entry.expiresAt) {
			continue
		}
		out[id] = entry.snapshot
	}
	return out
}

// EvictExpired 清理所有过期条目，返回清理数量
func (c *SnapshotCache) EvictExpired() int {
	c.mu.Lock()
	defer c.mu.Unlock()

	now := c.nowFunc()
	evicted := 0
	for elem := c.order.Back(); elem != nil; {
		prev := elem.Prev()
		if now.After(elem.Value.(*cacheEntry).expiresAt) {
			c.removeElement(elem, "expired")
			evicted++
		}
		elem = prev
	}
	return evicted
}

// Len 当前条目数
func (c *SnapshotCache) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.order.Len()
}

// Capacity 配置容量
func (c *SnapshotCache) Capacity() int {
	return c.capacity
}

// evictOldest 淘汰最久未访问的条目，调用方需持锁
func (c *SnapshotCache) evictOldest() {
	elem := c.order.Back()
	if elem == nil {
		return
	}
	c.removeElement(elem, "capacity")
}

// removeElement 移除条目并上报指标，调用方需持锁
func (c *SnapshotCache) removeElement(elem *list.Element, reason string) {
	entry := elem.Value.(*cacheEntry)
	c.order.Remove(elem)
	delete(c.entries, entry.jobID)
	metrics.RecordCacheEviction(reason)
	metrics.CacheSize.Set(float64(c.order.Len()))
	logger.Debug("snapshot evicted",
		zap.String("job_id", entry.jobID),
		zap.String("reason", reason))
}
