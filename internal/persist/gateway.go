// Package persist 提供尽力而为的异步持久化网关
package persist

import (
	"context"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/fieldpulse/dispatch-monitor/internal/metrics"
	"github.com/fieldpulse/dispatch-monitor/internal/model"
	"github.com/fieldpulse/dispatch-monitor/internal/repository"
	"github.com/fieldpulse/dispatch-monitor/pkg/logger"
)

// Sink 轮询周期产出的持久化出口
//
// 所有方法都不阻塞调用方：写入排队后立即返回，失败只记日志和
// 指标，绝不反馈给周期本身。
type Sink interface {
	SaveSnapshots(snapshots []*model.JobSnapshot)
	SaveAlerts(alerts []*model.Alert)
	SaveCycleMetric(metric *model.CycleMetric)
}

// NopSink 关闭持久化时的空实现
type NopSink struct{}

func (NopSink) SaveSnapshots([]*model.JobSnapshot) {}
func (NopSink) SaveAlerts([]*model.Alert)          {}
func (NopSink) SaveCycleMetric(*model.CycleMetric) {}

const defaultQueueSize = 256

// Gateway 数据库持久化网关
//
// 单 worker 顺序消费任务队列，队列满时丢弃新任务并告警。
type Gateway struct {
	snapshots *repository.SnapshotRepository
	alerts    *repository.AlertRepository
	metrics   *repository.MetricRepository

	queue   chan task
	wg      sync.WaitGroup
	closeMu sync.Mutex
	closed  bool

	opTimeout time.Duration
}

type task struct {
	kind string
	run  func(ctx context.Context) error
}

// NewGateway 创建持久化网关并启动 worker
func NewGateway(snapshots *repository.SnapshotRepository, alerts *repository.AlertRepository, cycleMetrics *repository.MetricRepository) *Gateway {
	g := &Gateway{
		snapshots: snapshots,
		alerts:    alerts,
		metrics:   cycleMetrics,
		queue:     make(chan task, defaultQueueSize),
		opTimeout: 10 * time.Second,
	}

	g.wg.Add(1)
	go g.worker()
	return g
}

// Close 停止接收新任务并等待队列排空
func (g *Gateway) Close() {
	g.closeMu.Lock()
	if g.closed {
		g.closeMu.Unlock()
		return
	}
	g.closed = true
	close(g.queue)
	g.closeMu.Unlock()

	g.wg.Wait()
}

// SaveSnapshots 异步写入一个周期的快照
func (g *Gateway) SaveSnapshots(snapshots []*model.JobSnapshot) {
	if len(snapshots) == 0 {
		return
	}
	g.enqueue(task{kind: "snapshots", run: func(ctx context.Context) error {
		return g.snapshots.BatchCreate(ctx, snapshots)
	}})
}

// SaveAlerts 异步写入或更新告警历史行
func (g *Gateway) SaveAlerts(alerts []*model.Alert) {
	if len(alerts) == 0 {
		return
	}
	g.enqueue(task{kind: "alerts", run: func(ctx context.Context) error {
		return g.alerts.BatchUpsert(ctx, alerts)
	}})
}

// SaveCycleMetric 异步写入一条周期指标
func (g *Gateway) SaveCycleMetric(metric *model.CycleMetric) {
	if metric == nil {
		return
	}
	g.enqueue(task{kind: "metrics", run: func(ctx context.Context) error {
		return g.metrics.Create(ctx, metric)
	}})
}

func (g *Gateway) enqueue(t task) {
	g.closeMu.Lock()
	defer g.closeMu.Unlock()
	if g.closed {
		return
	}

	select {
	case g.queue <- t:
	default:
		metrics.RecordPersistDrop(t.kind)
		logger.Warn("persist queue full, dropping task",
			zap.String("kind", t.kind))
	}
}

func (g *Gateway) worker() {
	defer g.wg.Done()

	for t := range g.queue {
		ctx, cancel := context.WithTimeout(context.Background(), g.opTimeout)
		err := t.run(ctx)
		cancel()

		metrics.RecordPersistOp(t.kind, err)
		if err != nil {
			logger.Error("persist task failed",
				zap.String("kind", t.kind),
				zap.Error(err))
		}
	}
}
