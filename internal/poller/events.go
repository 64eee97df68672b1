// Package poller 实现轮询编排器
package poller

import (
	"sort"
	"sync"

	"github.com/fieldpulse/dispatch-monitor/internal/model"
)

// CycleSummary 单个轮询周期的汇总
type CycleSummary struct {
	StartedAt      int64  `json:"started_at"`  // 毫秒
	DurationMs     int64  `json:"duration_ms"`
	JobCount       int    `json:"job_count"`
	ChangeCount    int    `json:"change_count"`
	NewAlerts      int    `json:"new_alerts"`
	ResolvedAlerts int    `json:"resolved_alerts"`
	Succeeded      bool   `json:"succeeded"`
	Error          string `json:"error,omitempty"`
}

// 事件回调类型
type (
	CycleHandler   func(summary *CycleSummary)
	ChangesHandler func(changes []*model.ChangeRecord)
	AlertsHandler  func(alerts []*model.Alert)
	ErrorHandler   func(err error)
)

// EventBus 周期事件总线
//
// 同一周期内的派发顺序固定: 周期汇总 → 变更 → 新告警 → 解除告警。
// 失败周期只派发 onError 和周期汇总。回调在轮询 goroutine 内同步
// 执行，不得阻塞。
type EventBus struct {
	mu     sync.RWMutex
	nextID int

	onCycle    map[int]CycleHandler
	onChanges  map[int]ChangesHandler
	onNew      map[int]AlertsHandler
	onResolved map[int]AlertsHandler
	onError    map[int]ErrorHandler
}

// NewEventBus 创建事件总线
func NewEventBus() *EventBus {
	return &EventBus{
		onCycle:    make(map[int]CycleHandler),
		onChanges:  make(map[int]ChangesHandler),
		onNew:      make(map[int]AlertsHandler),
		onResolved: make(map[int]AlertsHandler),
		onError:    make(map[int]ErrorHandler),
	}
}

// SubscribeCycle 订阅周期汇总事件，返回订阅ID
func (b *EventBus) SubscribeCycle(h CycleHandler) int {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.nextID++
	b.onCycle[b.nextID] = h
	return b.nextID
}

// SubscribeChanges 订阅变更事件
func (b *EventBus) SubscribeChanges(h ChangesHandler) int {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.nextID++
	b.onChanges[b.nextID] = h
	return b.nextID
}

// SubscribeNewAlerts 订阅新告警事件
func (b *EventBus) SubscribeNewAlerts(h AlertsHandler) int {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.nextID++
	b.onNew[b.nextID] = h
	return b.nextID
}

// SubscribeResolvedAlerts 订阅解除告警事件
func (b *EventBus) SubscribeResolvedAlerts(h AlertsHandler) int {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.nextID++
	b.onResolved[b.nextID] = h
	return b.nextID
}

// SubscribeError 订阅周期错误事件
func (b *EventBus) SubscribeError(h ErrorHandler) int {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.nextID++
	b.onError[b.nextID] = h
	return b.nextID
}

// Unsubscribe 取消订阅，ID 全局唯一，对任意事件类型有效
func (b *EventBus) Unsubscribe(id int) {
	b.mu.Lock()
	defer b.mu.Unlock()
	delete(b.onCycle, id)
	delete(b.onChanges, id)
	delete(b.onNew, id)
	delete(b.onResolved, id)
	delete(b.onError, id)
}

func (b *EventBus) emitCycle(summary *CycleSummary) {
	b.mu.RLock()
	handlers := sortedHandlers(b.onCycle)
	b.mu.RUnlock()
	for _, h := range handlers {
		h(summary)
	}
}

func (b *EventBus) emitChanges(changes []*model.ChangeRecord) {
	if len(changes) == 0 {
		return
	}
	b.mu.RLock()
	handlers := sortedHandlers(b.onChanges)
	b.mu.RUnlock()
	for _, h := range handlers {
		h(changes)
	}
}

func (b *EventBus) emitNewAlerts(alerts []*model.Alert) {
	if len(alerts) == 0 {
		return
	}
	b.mu.RLock()
	handlers := sortedHandlers(b.onNew)
	b.mu.RUnlock()
	for _, h := range handlers {
		h(alerts)
	}
}

func (b *EventBus) emitResolvedAlerts(alerts []*model.Alert) {
	if len(alerts) == 0 {
		return
	}
	b.mu.RLock()
	handlers := sortedHandlers(b.onResolved)
	b.mu.RUnlock()
	for _, h := range handlers {
		h(alerts)
	}
}

func (b *EventBus) emitError(err error) {
	b.mu.RLock()
	handlers := sortedHandlers(b.onError)
	b.mu.RUnlock()
	for _, h := range handlers {
		h(err)
	}
}

// sortedHandlers 按订阅序派发，保证多订阅者之间的顺序确定
func sortedHandlers[H any](m map[int]H) []H {
	ids := make([]int, 0, len(m))
	for id := range m {
		ids = append(ids, id)
	}
	sort.Ints(ids)

	out := make([]H, 0, len(ids))
	for _, id := range ids {
		out = append(out, m[id])
	}
	return out
}
