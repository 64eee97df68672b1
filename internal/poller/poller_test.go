package poller

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/fieldpulse/dispatch-monitor/internal/alerts"
	"github.com/fieldpulse/dispatch-monitor/internal/cache"
	"github.com/fieldpulse/dispatch-monitor/internal/model"
	"github.com/fieldpulse/dispatch-monitor/internal/rules"
)

// fakeSource 可编程的工单数据源
type fakeSource struct {
	mu      sync.Mutex
	batches [][]*model.JobSnapshot
	calls   int
	err     error
	block   chan struct{} // 非 nil 时 FetchJobs 阻塞直到收到信号
}

func (s *fakeSource) FetchJobs(_ context.Context, _, _ string) ([]*model.JobSnapshot, error) {
	if s.block != nil {
		<-s.block
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	s.calls++
	if s.err != nil {
		return nil, s.err
	}
	if len(s.batches) == 0 {
		return nil, nil
	}
	batch := s.batches[0]
	if len(s.batches) > 1 {
		s.batches = s.batches[1:]
	}
	return batch, nil
}

// recordingSink 记录持久化调用
type recordingSink struct {
	mu        sync.Mutex
	snapshots [][]*model.JobSnapshot
	alerts    [][]*model.Alert
	cycles    []*model.CycleMetric
}

func (s *recordingSink) SaveSnapshots(snapshots []*model.JobSnapshot) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.snapshots = append(s.snapshots, snapshots)
}

func (s *recordingSink) SaveAlerts(alerts []*model.Alert) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.alerts = append(s.alerts, alerts)
}

func (s *recordingSink) SaveCycleMetric(metric *model.CycleMetric) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.cycles = append(s.cycles, metric)
}

var testNow = time.Date(2026, 8, 30, 9, 0, 0, 0, time.UTC)

const today = "2026-08-30"

func openJob(id, assignee string) *model.JobSnapshot {
	return &model.JobSnapshot{
		JobID:         id,
		ScheduledDate: today,
		Status:        model.JobStatusScheduled,
		AssigneeID:    assignee,
		JobValue:      decimal.NewFromInt(100),
		FetchedAt:     testNow.UnixMilli(),
	}
}

func newTestPoller(source *fakeSource, sink *recordingSink) (*Poller, *alerts.Store) {
	engine := rules.NewEngine()
	engine.Register(rules.NewMissingAssignmentRule(decimal.NewFromInt(5000)))

	store := alerts.NewStore(cache.NewMemoryDedupCache(5*time.Minute), 100)

	p := New(Options{
		Source:   source,
		Cache:    cache.NewSnapshotCache(100, time.Hour),
		Engine:   engine,
		Store:    store,
		Sink:     sink,
		Interval: 30 * time.Second,
	})
	p.nowFunc = func() time.Time { return testNow }
	return p, store
}

// 工单先缺少分派触发告警, 补上分派后告警解除
func TestPoller_AlertLifecycleEndToEnd(t *testing.T) {
	source := &fakeSource{batches: [][]*model.JobSnapshot{
		{openJob("E1", "")},
		{openJob("E1", "T1")},
	}}
	sink := &recordingSink{}
	p, store := newTestPoller(source, sink)

	var newCount, resolvedCount int
	p.Events().SubscribeNewAlerts(func(a []*model.Alert) { newCount += len(a) })
	p.Events().SubscribeResolvedAlerts(func(a []*model.Alert) { resolvedCount += len(a) })

	require.NoError(t, p.RunCycle(context.Background()))
	assert.Equal(t, 1, store.ActiveCount())
	assert.Equal(t, 1, newCount)

	top := store.HighestPriority()
	require.NotNil(t, top)
	assert.Equal(t, model.SeverityHigh, top.Severity)
	assert.Equal(t, "E1", top.JobID)

	require.NoError(t, p.RunCycle(context.Background()))
	assert.Zero(t, store.ActiveCount())
	assert.Equal(t, 1, resolvedCount)

	history := store.History(0)
	require.Len(t, history, 1)
	assert.True(t, history[0].Resolved)
	require.NotNil(t, history[0].ResolvedAt)
}

// 同一工单连续多个周期不变, 告警只创建一次
func TestPoller_UnchangedJobCreatesOneAlert(t *testing.T) {
	source := &fakeSource{batches: [][]*model.JobSnapshot{
		{openJob("J-1", "")},
	}}
	sink := &recordingSink{}
	p, store := newTestPoller(source, sink)

	var newCount int
	p.Events().SubscribeNewAlerts(func(a []*model.Alert) { newCount += len(a) })

	for i := 0; i < 3; i++ {
		require.NoError(t, p.RunCycle(context.Background()))
	}

	assert.Equal(t, 1, store.ActiveCount())
	assert.Equal(t, 1, newCount)
	assert.Zero(t, len(store.History(0)))
}

// 昨天的缓存条目缺失于今天的拉取时不算消失
func TestPoller_StaleDateAbsenceIsNotRemoval(t *testing.T) {
	source := &fakeSource{batches: [][]*model.JobSnapshot{
		{openJob("J-today", "T1")},
	}}
	sink := &recordingSink{}
	p, _ := newTestPoller(source, sink)

	yesterdayJob := openJob("J-yesterday", "T1")
	yesterdayJob.ScheduledDate = "2026-08-29"
	p.cache.Put("J-yesterday", yesterdayJob)

	var changes []*model.ChangeRecord
	p.Events().SubscribeChanges(func(c []*model.ChangeRecord) { changes = append(changes, c...) })

	require.NoError(t, p.RunCycle(context.Background()))

	require.Len(t, changes, 1)
	assert.Equal(t, model.ChangeTypeAdded, changes[0].Type)
	assert.Equal(t, "J-today", changes[0].JobID)
}

// 今天的缓存条目缺失于拉取时产生 REMOVED
func TestPoller_SameDayAbsenceIsRemoval(t *testing.T) {
	source := &fakeSource{batches: [][]*model.JobSnapshot{
		{openJob("J-1", "T1"), openJob("J-2", "T1")},
		{openJob("J-1", "T1")},
	}}
	sink := &recordingSink{}
	p, _ := newTestPoller(source, sink)

	require.NoError(t, p.RunCycle(context.Background()))

	var changes []*model.ChangeRecord
	p.Events().SubscribeChanges(func(c []*model.ChangeRecord) { changes = append(changes, c...) })

	require.NoError(t, p.RunCycle(context.Background()))
	require.Len(t, changes, 1)
	assert.Equal(t, model.ChangeTypeRemoved, changes[0].Type)
	assert.Equal(t, "J-2", changes[0].JobID)
}

// 拉取失败时不触碰缓存与告警, 只累计失败
func TestPoller_FetchFailureLeavesStateUntouched(t *testing.T) {
	source := &fakeSource{batches: [][]*model.JobSnapshot{
		{openJob("J-1", "")},
	}}
	sink := &recordingSink{}
	p, store := newTestPoller(source, sink)

	require.NoError(t, p.RunCycle(context.Background()))
	require.Equal(t, 1, store.ActiveCount())
	require.Equal(t, 1, p.cache.Len())

	var gotErr error
	p.Events().SubscribeError(func(err error) { gotErr = err })

	source.mu.Lock()
	source.err = errors.New("upstream timeout")
	source.mu.Unlock()

	err := p.RunCycle(context.Background())
	require.Error(t, err)
	assert.Error(t, gotErr)

	// 告警没有因为失败周期被解除, 缓存原样
	assert.Equal(t, 1, store.ActiveCount())
	assert.Equal(t, 1, p.cache.Len())
	assert.Equal(t, 1, p.Status().ConsecutiveFailures)

	// 恢复后失败计数清零
	source.mu.Lock()
	source.err = nil
	source.mu.Unlock()
	require.NoError(t, p.RunCycle(context.Background()))
	assert.Zero(t, p.Status().ConsecutiveFailures)
}

// 连续拉取失败时 lastCycleAt 停在最后一次成功周期, 其年龄暴露数据过期
func TestPoller_FetchFailureKeepsLastCycleAt(t *testing.T) {
	source := &fakeSource{batches: [][]*model.JobSnapshot{
		{openJob("J-1", "T1")},
	}}
	sink := &recordingSink{}
	p, _ := newTestPoller(source, sink)

	now := testNow
	p.nowFunc = func() time.Time { return now }

	require.NoError(t, p.RunCycle(context.Background()))
	successAt := p.Status().LastCycleAt
	require.Equal(t, testNow.UnixMilli(), successAt)

	source.mu.Lock()
	source.err = errors.New("upstream unreachable")
	source.mu.Unlock()

	for i := 0; i < 3; i++ {
		now = now.Add(10 * time.Minute)
		require.Error(t, p.RunCycle(context.Background()))
	}

	status := p.Status()
	assert.Equal(t, successAt, status.LastCycleAt, "failed fetch must not advance lastCycleAt")
	assert.Equal(t, 3, status.ConsecutiveFailures)
}

// 上一周期未结束时本次触发被跳过
func TestPoller_OverlappingCycleSkipped(t *testing.T) {
	block := make(chan struct{})
	source := &fakeSource{
		batches: [][]*model.JobSnapshot{{openJob("J-1", "T1")}},
		block:   block,
	}
	sink := &recordingSink{}
	p, _ := newTestPoller(source, sink)

	done := make(chan error, 1)
	go func() { done <- p.RunCycle(context.Background()) }()

	// 等第一个周期占住信号量
	require.Eventually(t, func() bool {
		return len(p.running) == 1
	}, time.Second, 5*time.Millisecond)

	require.NoError(t, p.RunCycle(context.Background()))

	source.mu.Lock()
	calls := source.calls
	source.mu.Unlock()
	assert.Zero(t, calls, "skipped cycle must not hit upstream")

	close(block)
	require.NoError(t, <-done)
}

// 同一批次重复工单ID保留最后一条
func TestPoller_DuplicateJobIDLastWins(t *testing.T) {
	first := openJob("J-1", "")
	second := openJob("J-1", "T1")
	source := &fakeSource{batches: [][]*model.JobSnapshot{{first, second}}}
	sink := &recordingSink{}
	p, store := newTestPoller(source, sink)

	require.NoError(t, p.RunCycle(context.Background()))

	// 生效的是带分派的后一条, 未分派规则不触发
	assert.Zero(t, store.ActiveCount())
	cached := p.cache.Get("J-1")
	require.NotNil(t, cached)
	assert.Equal(t, "T1", cached.AssigneeID)
}

// 事件派发顺序: 周期汇总 → 变更 → 新告警 → 解除告警
func TestPoller_EventOrdering(t *testing.T) {
	source := &fakeSource{batches: [][]*model.JobSnapshot{
		{openJob("J-1", "")},
	}}
	sink := &recordingSink{}
	p, _ := newTestPoller(source, sink)

	var order []string
	p.Events().SubscribeChanges(func([]*model.ChangeRecord) { order = append(order, "changes") })
	p.Events().SubscribeNewAlerts(func([]*model.Alert) { order = append(order, "new") })
	p.Events().SubscribeResolvedAlerts(func([]*model.Alert) { order = append(order, "resolved") })
	p.Events().SubscribeCycle(func(*CycleSummary) { order = append(order, "cycle") })

	require.NoError(t, p.RunCycle(context.Background()))
	assert.Equal(t, []string{"cycle", "changes", "new"}, order)
}

// 周期汇总与持久化
func TestPoller_CycleSummaryAndPersistence(t *testing.T) {
	source := &fakeSource{batches: [][]*model.JobSnapshot{
		{openJob("J-1", ""), openJob("J-2", "T1")},
	}}
	sink := &recordingSink{}
	p, _ := newTestPoller(source, sink)

	var summary *CycleSummary
	p.Events().SubscribeCycle(func(s *CycleSummary) { summary = s })

	require.NoError(t, p.RunCycle(context.Background()))

	require.NotNil(t, summary)
	assert.True(t, summary.Succeeded)
	assert.Equal(t, 2, summary.JobCount)
	assert.Equal(t, 2, summary.ChangeCount)
	assert.Equal(t, 1, summary.NewAlerts)

	sink.mu.Lock()
	defer sink.mu.Unlock()
	require.Len(t, sink.snapshots, 1)
	assert.Len(t, sink.snapshots[0], 2)
	require.Len(t, sink.alerts, 1)
	require.Len(t, sink.cycles, 1)
	assert.True(t, sink.cycles[0].Succeeded)
	assert.Equal(t, "poller", sink.cycles[0].Component)
}

func TestPoller_Status(t *testing.T) {
	source := &fakeSource{batches: [][]*model.JobSnapshot{
		{openJob("J-1", "T1")},
	}}
	sink := &recordingSink{}
	p, _ := newTestPoller(source, sink)

	status := p.Status()
	assert.False(t, status.IsRunning)
	assert.Zero(t, status.LastCycleAt)

	require.NoError(t, p.RunCycle(context.Background()))

	status = p.Status()
	assert.Equal(t, testNow.UnixMilli(), status.LastCycleAt)
	assert.Equal(t, 1, status.CacheSize)
}

// 状态回退规则依赖上一周期状态
func TestPoller_StatusRegressionUsesPreviousCycle(t *testing.T) {
	completed := openJob("J-1", "T1")
	completed.Status = model.JobStatusCompleted
	regressed := openJob("J-1", "T1")
	regressed.Status = model.JobStatusInProgress

	source := &fakeSource{batches: [][]*model.JobSnapshot{
		{completed},
		{regressed},
	}}
	sink := &recordingSink{}

	engine := rules.NewEngine()
	engine.Register(rules.NewStatusRegressionRule())
	store := alerts.NewStore(cache.NewMemoryDedupCache(5*time.Minute), 100)
	p := New(Options{
		Source:   source,
		Cache:    cache.NewSnapshotCache(100, time.Hour),
		Engine:   engine,
		Store:    store,
		Sink:     sink,
		Interval: 30 * time.Second,
	})
	p.nowFunc = func() time.Time { return testNow }

	require.NoError(t, p.RunCycle(context.Background()))
	assert.Zero(t, store.ActiveCount())

	require.NoError(t, p.RunCycle(context.Background()))
	require.Equal(t, 1, store.ActiveCount())
	top := store.HighestPriority()
	assert.Equal(t, rules.RuleIDStatusRegression, top.RuleID)
}
