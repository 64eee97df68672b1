package poller

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/robfig/cron/v3"
	"go.uber.org/zap"

	"github.com/fieldpulse/dispatch-monitor/internal/alerts"
	"github.com/fieldpulse/dispatch-monitor/internal/cache"
	"github.com/fieldpulse/dispatch-monitor/internal/client"
	"github.com/fieldpulse/dispatch-monitor/internal/detector"
	"github.com/fieldpulse/dispatch-monitor/internal/kafka"
	"github.com/fieldpulse/dispatch-monitor/internal/metrics"
	"github.com/fieldpulse/dispatch-monitor/internal/model"
	"github.com/fieldpulse/dispatch-monitor/internal/persist"
	"github.com/fieldpulse/dispatch-monitor/internal/rules"
	"github.com/fieldpulse/dispatch-monitor/pkg/logger"
)

// Options 轮询编排器依赖
type Options struct {
	Source    client.JobSource
	Telemetry client.TelemetrySource // 可为 nil，规则按核验未知处理
	Cache     *cache.SnapshotCache
	Engine    *rules.Engine
	Store     *alerts.Store
	Sink      persist.Sink
	Notifier  kafka.AlertNotifier // 可为 nil
	Interval  time.Duration
}

// Status 编排器运行状态
type Status struct {
	IsRunning           bool  `json:"is_running"`
	LastCycleAt         int64 `json:"last_cycle_at"` // 毫秒，0 表示尚未跑过
	LastCycleDurationMs int64 `json:"last_cycle_duration_ms"`
	ConsecutiveFailures int   `json:"consecutive_failures"`
	CacheSize           int   `json:"cache_size"`
	ActiveAlerts        int   `json:"active_alerts"`
}

// Poller 轮询编排器
//
// 每个周期: 拉取 → 变更检测 → 缓存更新 → 规则评估 → 告警更新 →
// 事件派发 → 异步持久化。周期由 cron 按固定间隔驱动，上一周期
// 未结束时跳过本次触发而不是并发执行。
type Poller struct {
	source    client.JobSource
	telemetry client.TelemetrySource
	cache     *cache.SnapshotCache
	engine    *rules.Engine
	store     *alerts.Store
	sink      persist.Sink
	notifier  kafka.AlertNotifier
	events    *EventBus
	interval  time.Duration

	cron    *cron.Cron
	running chan struct{} // 容量 1 的信号量，防止周期重入

	mu                  sync.Mutex
	isRunning           bool
	lastCycleAt         int64
	lastCycleDurationMs int64
	consecutiveFailures int

	nowFunc func() time.Time
}

// New 创建轮询编排器
func New(opts Options) *Poller {
	if opts.Sink == nil {
		opts.Sink = persist.NopSink{}
	}
	return &Poller{
		source:    opts.Source,
		telemetry: opts.Telemetry,
		cache:     opts.Cache,
		engine:    opts.Engine,
		store:     opts.Store,
		sink:      opts.Sink,
		notifier:  opts.Notifier,
		events:    NewEventBus(),
		interval:  opts.Interval,
		cron:      cron.New(cron.WithSeconds()),
		running:   make(chan struct{}, 1),
		nowFunc:   time.Now,
	}
}

// Events 事件总线
func (p *Poller) Events() *EventBus {
	return p.events
}

// Start 启动定时轮询
func (p *Poller) Start() error {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.isRunning {
		return nil
	}

	spec := fmt.Sprintf("@every %ds", int(p.interval.Seconds()))
	if _, err := p.cron.AddFunc(spec, func() {
		_ = p.RunCycle(context.Background())
	}); err != nil {
		return fmt.Errorf("failed to add poll schedule: %w", err)
	}

	p.cron.Start()
	p.isRunning = true

	logger.Info("poller started",
		zap.Duration("interval", p.interval))
	return nil
}

// Stop 停止定时轮询，等待进行中的周期结束
func (p *Poller) Stop() {
	p.mu.Lock()
	if !p.isRunning {
		p.mu.Unlock()
		return
	}
	p.isRunning = false
	p.mu.Unlock()

	ctx := p.cron.Stop()
	<-ctx.Done()

	// 占住信号量，确认最后一个周期已退出
	p.running <- struct{}{}
	<-p.running

	logger.Info("poller stopped")
}

// Status 当前运行状态
func (p *Poller) Status() *Status {
	p.mu.Lock()
	defer p.mu.Unlock()

	return &Status{
		IsRunning:           p.isRunning,
		LastCycleAt:         p.lastCycleAt,
		LastCycleDurationMs: p.lastCycleDurationMs,
		ConsecutiveFailures: p.consecutiveFailures,
		CacheSize:           p.cache.Len(),
		ActiveAlerts:        p.store.ActiveCount(),
	}
}

// RunCycle 执行一个轮询周期
//
// 上一周期仍在执行时立即返回而不等待。拉取失败的周期不做任何
// 缓存或告警变更，只累计失败计数。
func (p *Poller) RunCycle(ctx context.Context) error {
	select {
	case p.running <- struct{}{}:
		defer func() { <-p.running }()
	default:
		metrics.RecordCycle("skipped", 0)
		logger.Warn("previous cycle still running, skipping tick")
		return nil
	}

	start := p.nowFunc()
	today := start.Format(model.DateLayout)

	fetched, err := p.source.FetchJobs(ctx, today, today)
	if err != nil {
		return p.failCycle(start, err)
	}

	jobs, jobMap := dedupeJobs(fetched)
	metrics.JobsFetched.Set(float64(len(jobs)))

	// 本次拉取窗口只覆盖当天，窗口外的缓存条目缺失不算消失
	inWindow := func(scheduledDate string) bool {
		return scheduledDate == today
	}

	previous := p.cache.Snapshots()
	changes := detector.Diff(previous, jobMap, inWindow, start.UnixMilli())
	for _, c := range changes {
		metrics.RecordChange(string(c.Type))
	}

	aux := p.buildAuxData(ctx, jobs, previous)

	for _, job := range jobs {
		p.cache.Put(job.JobID, job)
	}
	p.cache.EvictExpired()

	triggers := p.engine.EvaluateAll(jobs, aux)

	stillTriggering := make(map[string]struct{}, len(triggers))
	var newAlerts []*model.Alert
	for _, trigger := range triggers {
		fp := alerts.Fingerprint(trigger.RuleID, trigger.JobID)
		stillTriggering[fp] = struct{}{}

		outcome, alert, err := p.store.Submit(ctx, trigger)
		if err != nil {
			logger.Error("alert submission failed",
				zap.String("rule", trigger.RuleID),
				zap.String("job_id", trigger.JobID),
				zap.Error(err))
			continue
		}
		if outcome == alerts.OutcomeCreated && alert != nil {
			newAlerts = append(newAlerts, alert)
		}
	}

	resolved := p.store.ResolveMissing(stillTriggering)

	p.notify(newAlerts, resolved)

	duration := p.nowFunc().Sub(start)
	summary := &CycleSummary{
		StartedAt:      start.UnixMilli(),
		DurationMs:     duration.Milliseconds(),
		JobCount:       len(jobs),
		ChangeCount:    len(changes),
		NewAlerts:      len(newAlerts),
		ResolvedAlerts: len(resolved),
		Succeeded:      true,
	}

	p.events.emitCycle(summary)
	p.events.emitChanges(changes)
	p.events.emitNewAlerts(newAlerts)
	p.events.emitResolvedAlerts(resolved)

	p.sink.SaveSnapshots(jobs)
	if len(newAlerts)+len(resolved) > 0 {
		p.sink.SaveAlerts(append(newAlerts, resolved...))
	}
	p.sink.SaveCycleMetric(cycleMetricOf(summary, ""))

	p.mu.Lock()
	p.lastCycleAt = start.UnixMilli()
	p.lastCycleDurationMs = summary.DurationMs
	p.consecutiveFailures = 0
	p.mu.Unlock()
	metrics.ConsecutiveFetchFailures.Set(0)
	metrics.RecordCycle("completed", duration.Seconds())

	logger.Info("cycle completed",
		zap.Int("jobs", summary.JobCount),
		zap.Int("changes", summary.ChangeCount),
		zap.Int("new_alerts", summary.NewAlerts),
		zap.Int("resolved_alerts", summary.ResolvedAlerts),
		zap.Duration("duration", duration))
	return nil
}

// failCycle 以拉取失败收尾，不触碰缓存与告警
//
// lastCycleAt 保持为最后一次成功周期，连续失败时其年龄持续增长，
// 调用方由此感知数据已过期。
func (p *Poller) failCycle(start time.Time, err error) error {
	p.mu.Lock()
	p.consecutiveFailures++
	failures := p.consecutiveFailures
	p.mu.Unlock()

	metrics.ConsecutiveFetchFailures.Set(float64(failures))
	metrics.RecordCycle("fetch_failed", 0)

	logger.Error("cycle fetch failed",
		zap.Int("consecutive_failures", failures),
		zap.Error(err))

	summary := &CycleSummary{
		StartedAt:  start.UnixMilli(),
		DurationMs: p.nowFunc().Sub(start).Milliseconds(),
		Succeeded:  false,
		Error:      err.Error(),
	}
	p.events.emitError(err)
	p.events.emitCycle(summary)
	p.sink.SaveCycleMetric(cycleMetricOf(summary, err.Error()))

	return err
}

// buildAuxData 组装规则的辅助核验数据，遥测失败只降级不报错
func (p *Poller) buildAuxData(ctx context.Context, jobs []*model.JobSnapshot, previous map[string]*model.JobSnapshot) *rules.AuxData {
	aux := &rules.AuxData{
		PrevStatus: make(map[string]model.JobStatus, len(previous)),
	}
	for id, snap := range previous {
		aux.PrevStatus[id] = snap.Status
	}

	if p.telemetry == nil {
		return aux
	}

	assigneeSet := make(map[string]struct{})
	var assignees []string
	for _, job := range jobs {
		if job.Status != model.JobStatusInProgress || job.AssigneeID == "" {
			continue
		}
		if _, ok := assigneeSet[job.AssigneeID]; ok {
			continue
		}
		assigneeSet[job.AssigneeID] = struct{}{}
		assignees = append(assignees, job.AssigneeID)
	}
	if len(assignees) == 0 {
		return aux
	}

	fixes, err := p.telemetry.FetchFixes(ctx, assignees)
	if err != nil {
		logger.Warn("telemetry fetch failed, rules degrade to unknown",
			zap.Int("assignees", len(assignees)),
			zap.Error(err))
		return aux
	}
	aux.Telemetry = fixes
	return aux
}

func (p *Poller) notify(newAlerts, resolved []*model.Alert) {
	if p.notifier == nil {
		return
	}
	for _, alert := range newAlerts {
		_ = p.notifier.NotifyCreated(alert)
	}
	for _, alert := range resolved {
		_ = p.notifier.NotifyResolved(alert)
	}
}

// dedupeJobs 同一批次出现重复工单ID时保留最后一条
func dedupeJobs(fetched []*model.JobSnapshot) ([]*model.JobSnapshot, map[string]*model.JobSnapshot) {
	jobMap := make(map[string]*model.JobSnapshot, len(fetched))
	order := make([]string, 0, len(fetched))
	for _, job := range fetched {
		if _, ok := jobMap[job.JobID]; ok {
			logger.Warn("duplicate job id in fetch batch, last record wins",
				zap.String("job_id", job.JobID))
		} else {
			order = append(order, job.JobID)
		}
		jobMap[job.JobID] = job
	}

	jobs := make([]*model.JobSnapshot, 0, len(order))
	for _, id := range order {
		jobs = append(jobs, jobMap[id])
	}
	return jobs, jobMap
}

func cycleMetricOf(summary *CycleSummary, errMsg string) *model.CycleMetric {
	return &model.CycleMetric{
		Component:      "poller",
		Timestamp:      summary.StartedAt,
		DurationMs:     summary.DurationMs,
		JobCount:       summary.JobCount,
		ChangeCount:    summary.ChangeCount,
		NewAlerts:      summary.NewAlerts,
		ResolvedAlerts: summary.ResolvedAlerts,
		Succeeded:      summary.Succeeded,
		ErrorMessage:   errMsg,
	}
}
